package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"armonyco/internal/model"
	"armonyco/internal/service"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*LedgerRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewLedgerRepo(mock), mock
}

func TestAddCredits_AppendsSnapshotOfBalance(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO organization_entitlements`).
		WithArgs("org-1", int64(100)).
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(150)))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs("org-1", int64(50), int64(100), int64(150), "purchase", "stripe_checkout", "cs_123").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	res, err := repo.AddCredits(context.Background(), model.AddCreditsRequest{
		OrganizationID: "org-1",
		Credits:        100,
		Kind:           model.KindPurchase,
		Source:         "stripe_checkout",
		Reference:      "cs_123",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), res.NewBalance)
	assert.Equal(t, int64(50), res.PreviousBalance)
	assert.Equal(t, res.PreviousBalance+100, res.NewBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCredits_AuditFailureKeepsBalance(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO organization_entitlements`).
		WithArgs("org-1", int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(10)))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs("org-1", int64(0), int64(10), int64(10), "adjustment", "ops", "").
		WillReturnError(errors.New("audit table unavailable"))

	res, err := repo.AddCredits(context.Background(), model.AddCreditsRequest{
		OrganizationID: "org-1",
		Credits:        10,
		Kind:           model.KindAdjustment,
		Source:         "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.NewBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCredits_RejectsNegativeDelta(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.AddCredits(context.Background(), model.AddCreditsRequest{
		OrganizationID: "org-1",
		Credits:        -5,
	})
	require.ErrorIs(t, err, ErrNegativeDelta)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCredits_BalanceUpdateError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO organization_entitlements`).
		WithArgs("org-1", int64(1)).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.AddCredits(context.Background(), model.AddCreditsRequest{OrganizationID: "org-1", Credits: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update balance")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntitlement_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM organization_entitlements`).
		WithArgs("org-missing").
		WillReturnError(pgx.ErrNoRows)

	ent, err := repo.GetEntitlement(context.Background(), "org-missing")
	require.NoError(t, err)
	assert.Nil(t, ent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntitlement_Found(t *testing.T) {
	repo, mock := newMockRepo(t)
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`FROM organization_entitlements`).
		WithArgs("org-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"organization_id", "credits", "subscription_active", "plan_tier",
			"stripe_customer_id", "stripe_subscription_id", "updated_at",
		}).AddRow("org-1", int64(42), true, "PRO", "cus_1", "sub_1", updated))

	ent, err := repo.GetEntitlement(context.Background(), "org-1")
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Equal(t, int64(42), ent.Credits)
	assert.True(t, ent.SubscriptionActive)
	assert.Equal(t, "PRO", ent.PlanTier)
	assert.Equal(t, updated, ent.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithEvent_DuplicateSkipsHandler(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).
		WithArgs("evt_1", "checkout.session.completed").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	called := false
	applied, err := repo.WithEvent(context.Background(), "evt_1", "checkout.session.completed", func(service.Store) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithEvent_CommitsMutations(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).
		WithArgs("evt_2", "checkout.session.completed").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO organization_entitlements`).
		WithArgs("org-1", int64(100000)).
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(100000)))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs("org-1", int64(0), int64(100000), int64(100000), "purchase", "stripe_checkout", "cs_1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectCommit()

	applied, err := repo.WithEvent(context.Background(), "evt_2", "checkout.session.completed", func(tx service.Store) error {
		_, err := tx.AddCredits(context.Background(), model.AddCreditsRequest{
			OrganizationID: "org-1",
			Credits:        100000,
			Kind:           model.KindPurchase,
			Source:         "stripe_checkout",
			Reference:      "cs_1",
		})
		return err
	})
	require.NoError(t, err)
	assert.True(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithEvent_AuditFailureKeepsBalanceAndEvent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).
		WithArgs("evt_4", "checkout.session.completed").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO organization_entitlements`).
		WithArgs("org-1", int64(500)).
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(1500)))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs("org-1", int64(1000), int64(500), int64(1500), "purchase", "stripe:checkout", "cs_4").
		WillReturnError(errors.New("violates check constraint"))
	mock.ExpectRollback()
	mock.ExpectCommit()

	var res *model.CreditResult
	applied, err := repo.WithEvent(context.Background(), "evt_4", "checkout.session.completed", func(tx service.Store) error {
		var err error
		res, err = tx.AddCredits(context.Background(), model.AddCreditsRequest{
			OrganizationID: "org-1",
			Credits:        500,
			Kind:           model.KindPurchase,
			Source:         "stripe:checkout",
			Reference:      "cs_4",
		})
		return err
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(1500), res.NewBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithEvent_HandlerErrorRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).
		WithArgs("evt_3", "invoice.payment_succeeded").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	applied, err := repo.WithEvent(context.Background(), "evt_3", "invoice.payment_succeeded", func(service.Store) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionOrganization_SingleTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO organizations`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Ada's Organization").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO organization_members`).
		WithArgs(pgxmock.AnyArg(), "user-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO organization_entitlements`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO profiles`).
		WithArgs("user-1", "ada@example.com", "Ada Lovelace", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	org, err := repo.ProvisionOrganization(context.Background(), model.ProvisionRequest{
		UserID:           "user-1",
		Email:            "ada@example.com",
		FullName:         "Ada Lovelace",
		OrganizationName: "Ada's Organization",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, org.ID)
	assert.Equal(t, "user-1", org.OwnerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionOrganization_RollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO organizations`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Org").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO organization_members`).
		WithArgs(pgxmock.AnyArg(), "user-1").
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	_, err := repo.ProvisionOrganization(context.Background(), model.ProvisionRequest{
		UserID:           "user-1",
		OrganizationName: "Org",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create owner membership")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateSubscription_ReportsRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE organization_entitlements`).
		WithArgs("sub_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := repo.DeactivateSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMember_ExistingMembership(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO organization_members`).
		WithArgs("org-1", "user-2", "member").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := repo.AddMember(context.Background(), "org-1", "user-2", model.RoleMember)
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}
