package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"armonyco/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *LedgerRepo) FindMembershipByUser(ctx context.Context, userID string) (*model.Membership, error) {
	const q = `
		SELECT organization_id, user_id, role, created_at
		FROM organization_members
		WHERE user_id = $1
		ORDER BY CASE role WHEN 'owner' THEN 0 ELSE 1 END, created_at
		LIMIT 1`
	var m model.Membership
	var role string
	err := r.db.QueryRow(ctx, q, userID).Scan(&m.OrganizationID, &m.UserID, &role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Role = model.Role(role)
	return &m, nil
}

func (r *LedgerRepo) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	const q = `
		SELECT user_id, COALESCE(email, ''), COALESCE(full_name, ''), COALESCE(organization_id::text, '')
		FROM profiles WHERE user_id = $1`
	return scanProfile(r.db.QueryRow(ctx, q, userID))
}

func (r *LedgerRepo) FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	const q = `
		SELECT user_id, COALESCE(email, ''), COALESCE(full_name, ''), COALESCE(organization_id::text, '')
		FROM profiles WHERE lower(email) = lower($1)
		LIMIT 1`
	return scanProfile(r.db.QueryRow(ctx, q, strings.TrimSpace(email)))
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	if err := row.Scan(&p.UserID, &p.Email, &p.FullName, &p.OrganizationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ProvisionOrganization creates the organization, the owner membership, an
// inactive zero-balance entitlement and the profile in one transaction.
func (r *LedgerRepo) ProvisionOrganization(ctx context.Context, req model.ProvisionRequest) (*model.Organization, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin provisioning tx: %w", err)
	}

	org := &model.Organization{
		ID:      uuid.NewString(),
		OwnerID: req.UserID,
		Name:    req.OrganizationName,
	}

	steps := []struct {
		name string
		sql  string
		args []any
	}{
		{
			name: "create organization",
			sql:  `INSERT INTO organizations (id, owner_id, name) VALUES ($1, $2, $3)`,
			args: []any{org.ID, org.OwnerID, org.Name},
		},
		{
			name: "create owner membership",
			sql:  `INSERT INTO organization_members (organization_id, user_id, role) VALUES ($1, $2, 'owner')`,
			args: []any{org.ID, org.OwnerID},
		},
		{
			name: "create entitlement",
			sql: `INSERT INTO organization_entitlements (organization_id, credits, subscription_active)
			      VALUES ($1, 0, false)`,
			args: []any{org.ID},
		},
		{
			name: "upsert profile",
			sql: `INSERT INTO profiles (user_id, email, full_name, organization_id, updated_at)
			      VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, now())
			      ON CONFLICT (user_id)
			      DO UPDATE SET email           = COALESCE(EXCLUDED.email, profiles.email),
			                    full_name       = COALESCE(EXCLUDED.full_name, profiles.full_name),
			                    organization_id = EXCLUDED.organization_id,
			                    updated_at      = now()`,
			args: []any{req.UserID, req.Email, req.FullName, org.ID},
		},
	}

	for _, step := range steps {
		if _, err := tx.Exec(ctx, step.sql, step.args...); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit provisioning tx: %w", err)
	}
	return org, nil
}

// AddMember reports false when the user already belongs to the organization.
func (r *LedgerRepo) AddMember(ctx context.Context, organizationID, userID string, role model.Role) (bool, error) {
	const q = `
		INSERT INTO organization_members (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO NOTHING`
	tag, err := r.db.Exec(ctx, q, organizationID, userID, string(role))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *LedgerRepo) RecordInvite(ctx context.Context, organizationID, email string, role model.Role) error {
	const q = `
		INSERT INTO organization_invites (organization_id, email, role)
		VALUES ($1, lower($2), $3)
		ON CONFLICT (organization_id, email)
		DO UPDATE SET role = EXCLUDED.role, created_at = now()`
	_, err := r.db.Exec(ctx, q, organizationID, strings.TrimSpace(email), string(role))
	return err
}

func (r *LedgerRepo) OwnerEmail(ctx context.Context, organizationID string) (string, error) {
	const q = `
		SELECT COALESCE(p.email, '')
		FROM organizations o
		JOIN profiles p ON p.user_id = o.owner_id
		WHERE o.id = $1`
	var email string
	if err := r.db.QueryRow(ctx, q, organizationID).Scan(&email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return email, nil
}
