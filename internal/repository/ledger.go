package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"armonyco/internal/model"
	"armonyco/internal/service"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type LedgerRepo struct {
	db DB
	// inTx is set when db is an open transaction owned by WithEvent.
	inTx bool
}

func NewLedgerRepo(db DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

var (
	ErrNegativeDelta  = errors.New("credit delta must not be negative")
	ErrNoOrganization = errors.New("organization id is required")
)

// AddCredits increments the balance in a single statement and appends
// the audit row. A failed audit insert is logged; the balance stays updated.
func (r *LedgerRepo) AddCredits(ctx context.Context, req model.AddCreditsRequest) (*model.CreditResult, error) {
	if req.OrganizationID == "" {
		return nil, ErrNoOrganization
	}
	if req.Credits < 0 {
		return nil, ErrNegativeDelta
	}

	const upsert = `
		INSERT INTO organization_entitlements (organization_id, credits, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (organization_id)
		DO UPDATE SET credits = organization_entitlements.credits + EXCLUDED.credits,
		              updated_at = now()
		RETURNING credits`

	var newBalance int64
	if err := r.db.QueryRow(ctx, upsert, req.OrganizationID, req.Credits).Scan(&newBalance); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	res := &model.CreditResult{NewBalance: newBalance, PreviousBalance: newBalance - req.Credits}

	const audit = `
		INSERT INTO credit_transactions (organization_id, credits_before, delta, credits_after, kind, source, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if err := r.execIsolated(ctx, audit,
		req.OrganizationID,
		res.PreviousBalance,
		req.Credits,
		res.NewBalance,
		string(req.Kind),
		req.Source,
		req.Reference,
	); err != nil {
		slog.Error("ledger: failed to append credit transaction",
			"organization_id", req.OrganizationID,
			"delta", req.Credits,
			"error", err,
		)
	}

	return res, nil
}

func (r *LedgerRepo) GetEntitlement(ctx context.Context, organizationID string) (*model.Entitlement, error) {
	const q = `
		SELECT organization_id, credits, subscription_active, COALESCE(plan_tier, ''),
		       COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''), updated_at
		FROM organization_entitlements
		WHERE organization_id = $1`
	return scanEntitlement(r.db.QueryRow(ctx, q, organizationID))
}

func (r *LedgerRepo) FindEntitlementByCustomer(ctx context.Context, customerID string) (*model.Entitlement, error) {
	const q = `
		SELECT organization_id, credits, subscription_active, COALESCE(plan_tier, ''),
		       COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''), updated_at
		FROM organization_entitlements
		WHERE stripe_customer_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`
	return scanEntitlement(r.db.QueryRow(ctx, q, customerID))
}

func scanEntitlement(row pgx.Row) (*model.Entitlement, error) {
	var e model.Entitlement
	if err := row.Scan(
		&e.OrganizationID,
		&e.Credits,
		&e.SubscriptionActive,
		&e.PlanTier,
		&e.StripeCustomerID,
		&e.StripeSubscriptionID,
		&e.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepo) ListTransactions(ctx context.Context, organizationID string, limit int) ([]model.CreditTransaction, error) {
	const q = `
		SELECT id, organization_id, credits_before, delta, credits_after, kind, source, COALESCE(reference, ''), created_at
		FROM credit_transactions
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, q, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.CreditTransaction, 0, limit)
	for rows.Next() {
		var t model.CreditTransaction
		var kind string
		if err := rows.Scan(
			&t.ID,
			&t.OrganizationID,
			&t.CreditsBefore,
			&t.Delta,
			&t.CreditsAfter,
			&kind,
			&t.Source,
			&t.Reference,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.Kind = model.TransactionKind(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ActivateSubscription marks the entitlement active. Empty customer or
// subscription ids keep the stored values.
func (r *LedgerRepo) ActivateSubscription(ctx context.Context, organizationID, planTier, customerID, subscriptionID string) error {
	const q = `
		INSERT INTO organization_entitlements
			(organization_id, subscription_active, plan_tier, stripe_customer_id, stripe_subscription_id, updated_at)
		VALUES ($1, true, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), now())
		ON CONFLICT (organization_id)
		DO UPDATE SET subscription_active    = true,
		              plan_tier              = COALESCE(EXCLUDED.plan_tier, organization_entitlements.plan_tier),
		              stripe_customer_id     = COALESCE(EXCLUDED.stripe_customer_id, organization_entitlements.stripe_customer_id),
		              stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, organization_entitlements.stripe_subscription_id),
		              updated_at             = now()`
	_, err := r.db.Exec(ctx, q, organizationID, planTier, customerID, subscriptionID)
	return err
}

func (r *LedgerRepo) SetCustomer(ctx context.Context, organizationID, customerID string) error {
	const q = `
		INSERT INTO organization_entitlements (organization_id, stripe_customer_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (organization_id)
		DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id, updated_at = now()`
	_, err := r.db.Exec(ctx, q, organizationID, customerID)
	return err
}

// DeactivateSubscription clears the active flag; it returns the number of
// entitlements touched.
func (r *LedgerRepo) DeactivateSubscription(ctx context.Context, subscriptionID string) (int64, error) {
	const q = `
		UPDATE organization_entitlements
		SET subscription_active = false, updated_at = now()
		WHERE stripe_subscription_id = $1`
	tag, err := r.db.Exec(ctx, q, subscriptionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// execIsolated runs a statement whose failure must not abort the enclosing
// transaction. Inside WithEvent it runs under a savepoint.
func (r *LedgerRepo) execIsolated(ctx context.Context, sql string, args ...any) error {
	if !r.inTx {
		_, err := r.db.Exec(ctx, sql, args...)
		return err
	}

	sp, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := sp.Exec(ctx, sql, args...); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

// WithEvent records eventID and runs fn in the same transaction. If fn
// fails the event row is rolled back too, so a redelivery is processed again.
func (r *LedgerRepo) WithEvent(ctx context.Context, eventID, eventType string, fn func(service.Store) error) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin event tx: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO stripe_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return false, fmt.Errorf("record event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return false, nil
	}

	if err := fn(&LedgerRepo{db: tx, inTx: true}); err != nil {
		_ = tx.Rollback(ctx)
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit event tx: %w", err)
	}
	return true, nil
}

var _ service.Store = (*LedgerRepo)(nil)
