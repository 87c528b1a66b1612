package payouts

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bazario/bazario-backend/internal/settlements"
	"github.com/bazario/bazario-backend/internal/tenants"
	"github.com/bazario/bazario-backend/internal/wallets"
	dbpkg "github.com/bazario/bazario-backend/pkg/db"
	"github.com/bazario/bazario-backend/pkg/db/models"
	"github.com/bazario/bazario-backend/pkg/enums"
	pkgerrors "github.com/bazario/bazario-backend/pkg/errors"
	"github.com/bazario/bazario-backend/pkg/logger"
	"github.com/bazario/bazario-backend/pkg/money"
	"github.com/bazario/bazario-backend/pkg/outbox"
)

func setupPayoutsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  owner_user_id TEXT NOT NULL,
  commission_percent NUMERIC NOT NULL,
  payment_account_id TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS settlements (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  tenant_id TEXT,
  total_amount NUMERIC NOT NULL,
  commission_amount NUMERIC NOT NULL,
  commission_percent NUMERIC NOT NULL,
  net_payout_amount NUMERIC NOT NULL,
  refundable_amount NUMERIC NOT NULL,
  refunded_amount NUMERIC NOT NULL,
  settlement_type TEXT NOT NULL,
  payout_status TEXT NOT NULL DEFAULT 'created',
  payout_reference TEXT,
  payout_date DATETIME,
  payout_locked INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  owner_user_id TEXT NOT NULL,
  balance NUMERIC NOT NULL DEFAULT 0,
  last_updated DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_wallets_owner_user_id ON wallets (owner_user_id);
CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  type TEXT NOT NULL,
  source TEXT NOT NULL,
  reference_id TEXT,
  description TEXT,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

// selectiveCreditor fails transfers for one owner and delegates the rest.
type selectiveCreditor struct {
	inner     wallets.Service
	failOwner uuid.UUID
}

func (c *selectiveCreditor) CreditTx(ctx context.Context, tx *gorm.DB, input wallets.MovementInput) error {
	if input.OwnerUserID == c.failOwner {
		return errors.New("transfer rejected by provider")
	}
	return c.inner.CreditTx(ctx, tx, input)
}

type payoutsTestEnv struct {
	db        *gorm.DB
	svc       Service
	wallets   wallets.Service
	creditor  *selectiveCreditor
	adminUser uuid.UUID
}

func newPayoutsTestEnv(t *testing.T) *payoutsTestEnv {
	t.Helper()

	db := setupPayoutsTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "payouts-test", Output: io.Discard})
	txRunner := dbpkg.NewTxRunner(db)

	walletSvc, err := wallets.NewService(wallets.NewRepository(db), txRunner)
	require.NoError(t, err)
	creditor := &selectiveCreditor{inner: walletSvc}

	adminUser := uuid.New()
	svc, err := NewService(ServiceParams{
		Settlements:       settlements.NewRepository(db),
		Wallets:           creditor,
		Tenants:           tenants.NewRepository(db),
		Outbox:            outbox.NewService(outbox.NewRepository(db), logg),
		TxRunner:          txRunner,
		Logger:            logg,
		PlatformAdminUser: adminUser,
		SweepBatch:        50,
	})
	require.NoError(t, err)

	return &payoutsTestEnv{db: db, svc: svc, wallets: walletSvc, creditor: creditor, adminUser: adminUser}
}

func (e *payoutsTestEnv) createTenant(t *testing.T) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		ID:                uuid.New(),
		Name:              "tenant-" + uuid.NewString()[:8],
		OwnerUserID:       uuid.New(),
		CommissionPercent: money.MustParse("10"),
		Active:            true,
	}
	require.NoError(t, e.db.Create(tenant).Error)
	return tenant
}

func (e *payoutsTestEnv) createSettlement(t *testing.T, tenantID *uuid.UUID, net string, status enums.PayoutStatus) *models.Settlement {
	t.Helper()
	netAmount := money.MustParse(net)
	settlement := &models.Settlement{
		ID:                uuid.New(),
		OrderID:           uuid.New(),
		TenantID:          tenantID,
		TotalAmount:       netAmount,
		CommissionAmount:  decimal.Zero,
		CommissionPercent: decimal.Zero,
		NetPayoutAmount:   netAmount,
		RefundableAmount:  netAmount,
		RefundedAmount:    decimal.Zero,
		SettlementType:    enums.SettlementTypeDirectToSeller,
		PayoutStatus:      status,
	}
	require.NoError(t, e.db.Create(settlement).Error)
	return settlement
}

func (e *payoutsTestEnv) reload(t *testing.T, id uuid.UUID) *models.Settlement {
	t.Helper()
	var settlement models.Settlement
	require.NoError(t, e.db.Where("id = ?", id).First(&settlement).Error)
	return &settlement
}

func TestService_ProcessSinglePayout_Success(t *testing.T) {
	env := newPayoutsTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	settlement := env.createSettlement(t, &tenant.ID, "90.25", enums.PayoutStatusReadyForPayout)

	updated, err := env.svc.ProcessSinglePayout(ctx, settlement.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.PayoutStatusPaid, updated.PayoutStatus)
	assert.False(t, updated.PayoutLocked, "lock must be released after payout")
	require.NotNil(t, updated.PayoutReference)
	assert.True(t, strings.HasPrefix(*updated.PayoutReference, "TRF-"), "got %s", *updated.PayoutReference)
	assert.NotNil(t, updated.PayoutDate)
	assert.Equal(t, int64(1), updated.Version)

	balance, err := env.wallets.GetBalance(ctx, tenant.OwnerUserID)
	require.NoError(t, err)
	assert.True(t, money.MustParse("90.25").Equal(balance), "got %s", balance)

	var outboxCount int64
	require.NoError(t, env.db.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventPayoutPaid, settlement.ID).
		Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount)
}

func TestService_ProcessSinglePayout_PlatformSliceGoesToAdmin(t *testing.T) {
	env := newPayoutsTestEnv(t)
	ctx := context.Background()

	settlement := env.createSettlement(t, nil, "12.50", enums.PayoutStatusReadyForPayout)

	_, err := env.svc.ProcessSinglePayout(ctx, settlement.ID)
	require.NoError(t, err)

	balance, err := env.wallets.GetBalance(ctx, env.adminUser)
	require.NoError(t, err)
	assert.True(t, money.MustParse("12.50").Equal(balance), "got %s", balance)
}

func TestService_ProcessSinglePayout_AlreadyPaid(t *testing.T) {
	env := newPayoutsTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	settlement := env.createSettlement(t, &tenant.ID, "90", enums.PayoutStatusPaid)

	_, err := env.svc.ProcessSinglePayout(ctx, settlement.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyPaid))

	var txnCount int64
	require.NoError(t, env.db.Model(&models.WalletTransaction{}).Count(&txnCount).Error)
	assert.Equal(t, int64(0), txnCount, "an already paid settlement must not move money again")
}

func TestService_ProcessSinglePayout_LockedIsNotClaimable(t *testing.T) {
	env := newPayoutsTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	settlement := env.createSettlement(t, &tenant.ID, "90", enums.PayoutStatusReadyForPayout)
	require.NoError(t, env.db.Model(settlement).Update("payout_locked", true).Error)

	_, err := env.svc.ProcessSinglePayout(ctx, settlement.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotClaimable))
}

func TestService_ProcessSinglePayout_TransferFailure(t *testing.T) {
	env := newPayoutsTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	env.creditor.failOwner = tenant.OwnerUserID
	settlement := env.createSettlement(t, &tenant.ID, "90", enums.PayoutStatusReadyForPayout)

	_, err := env.svc.ProcessSinglePayout(ctx, settlement.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	updated := env.reload(t, settlement.ID)
	assert.Equal(t, enums.PayoutStatusFailed, updated.PayoutStatus)
	assert.False(t, updated.PayoutLocked, "lock must be released after a failed transfer")
	assert.Nil(t, updated.PayoutReference)

	balance, berr := env.wallets.GetBalance(ctx, tenant.OwnerUserID)
	require.NoError(t, berr)
	assert.True(t, balance.IsZero(), "failed transfer must not credit the wallet")

	var outboxCount int64
	require.NoError(t, env.db.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventPayoutFailed, settlement.ID).
		Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount)
}

func TestService_ProcessSinglePayout_RetryAfterFailure(t *testing.T) {
	env := newPayoutsTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	env.creditor.failOwner = tenant.OwnerUserID
	settlement := env.createSettlement(t, &tenant.ID, "45", enums.PayoutStatusReadyForPayout)

	_, err := env.svc.ProcessSinglePayout(ctx, settlement.ID)
	require.Error(t, err)

	env.creditor.failOwner = uuid.Nil
	updated, err := env.svc.ProcessSinglePayout(ctx, settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPaid, updated.PayoutStatus)
	assert.Equal(t, int64(2), updated.Version, "each claim bumps the version")

	balance, err := env.wallets.GetBalance(ctx, tenant.OwnerUserID)
	require.NoError(t, err)
	assert.True(t, money.MustParse("45").Equal(balance), "got %s", balance)
}

func TestService_ProcessPayouts_IsolatesFailures(t *testing.T) {
	env := newPayoutsTestEnv(t)
	ctx := context.Background()

	healthy := env.createTenant(t)
	broken := env.createTenant(t)
	env.creditor.failOwner = broken.OwnerUserID

	good := env.createSettlement(t, &healthy.ID, "60", enums.PayoutStatusReadyForPayout)
	bad := env.createSettlement(t, &broken.ID, "40", enums.PayoutStatusReadyForPayout)
	env.createSettlement(t, &healthy.ID, "99", enums.PayoutStatusCreated)

	summary, err := env.svc.ProcessPayouts(ctx)
	require.Error(t, err, "the combined error reports the failed settlement")
	assert.Equal(t, 2, summary.Attempted, "only ready settlements are swept")
	assert.Equal(t, 1, summary.Paid)
	assert.Equal(t, 1, summary.Failed)

	assert.Equal(t, enums.PayoutStatusPaid, env.reload(t, good.ID).PayoutStatus)
	assert.Equal(t, enums.PayoutStatusFailed, env.reload(t, bad.ID).PayoutStatus)

	balance, berr := env.wallets.GetBalance(ctx, healthy.OwnerUserID)
	require.NoError(t, berr)
	assert.True(t, money.MustParse("60").Equal(balance), "got %s", balance)
}
