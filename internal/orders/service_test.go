package orders

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bazario/bazario-backend/internal/settlements"
	"github.com/bazario/bazario-backend/internal/tenants"
	"github.com/bazario/bazario-backend/internal/wallets"
	"github.com/bazario/bazario-backend/internal/webhookevents"
	dbpkg "github.com/bazario/bazario-backend/pkg/db"
	"github.com/bazario/bazario-backend/pkg/db/models"
	"github.com/bazario/bazario-backend/pkg/enums"
	pkgerrors "github.com/bazario/bazario-backend/pkg/errors"
	"github.com/bazario/bazario-backend/pkg/logger"
	"github.com/bazario/bazario-backend/pkg/money"
	"github.com/bazario/bazario-backend/pkg/outbox"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
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
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_user_id TEXT NOT NULL,
  total_amount NUMERIC NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  payment_reference TEXT,
  settlement_type TEXT NOT NULL,
  primary_tenant_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  tenant_id TEXT,
  product_name TEXT NOT NULL,
  unit_price NUMERIC NOT NULL,
  quantity INTEGER NOT NULL,
  gross_amount NUMERIC NOT NULL,
  commission_percent NUMERIC NOT NULL,
  commission_amount NUMERIC NOT NULL,
  net_amount NUMERIC NOT NULL,
  created_at DATETIME
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
CREATE TABLE IF NOT EXISTS payment_webhook_events (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  order_id TEXT NOT NULL,
  payload TEXT,
  processed_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_webhook_events_event_id ON payment_webhook_events (event_id);
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

type ordersTestEnv struct {
	db  *gorm.DB
	svc Service
}

func newOrdersTestEnv(t *testing.T) *ordersTestEnv {
	t.Helper()

	db := setupOrdersTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	txRunner := dbpkg.NewTxRunner(db)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), logg)
	tenantRepo := tenants.NewRepository(db)
	orderRepo := NewRepository(db)

	walletSvc, err := wallets.NewService(wallets.NewRepository(db), txRunner)
	require.NoError(t, err)

	settlementSvc, err := settlements.NewService(settlements.ServiceParams{
		Repo:              settlements.NewRepository(db),
		Events:            webhookevents.NewRepository(db),
		Orders:            orderRepo,
		Tenants:           tenantRepo,
		Wallets:           walletSvc,
		Outbox:            outboxSvc,
		TxRunner:          txRunner,
		Logger:            logg,
		PlatformAdminUser: uuid.New(),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:                     orderRepo,
		Tenants:                  tenantRepo,
		Settlements:              settlementSvc,
		Outbox:                   outboxSvc,
		TxRunner:                 txRunner,
		Logger:                   logg,
		DefaultCommissionPercent: money.MustParse("10"),
	})
	require.NoError(t, err)

	return &ordersTestEnv{db: db, svc: svc}
}

func (e *ordersTestEnv) createTenant(t *testing.T, percent string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		ID:                uuid.New(),
		Name:              "tenant-" + uuid.NewString()[:8],
		OwnerUserID:       uuid.New(),
		CommissionPercent: money.MustParse(percent),
		Active:            true,
	}
	require.NoError(t, e.db.Create(tenant).Error)
	return tenant
}

func TestService_BuildLineSnapshots(t *testing.T) {
	env := newOrdersTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t, "15")
	items, err := env.svc.BuildLineSnapshots(ctx, []LineInput{
		{TenantID: &tenant.ID, ProductName: "widget", UnitPrice: money.MustParse("33.33"), Quantity: 1},
		{ProductName: "platform sticker", UnitPrice: money.MustParse("4"), Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.True(t, money.MustParse("33.33").Equal(items[0].GrossAmount), "got %s", items[0].GrossAmount)
	assert.True(t, money.MustParse("5").Equal(items[0].CommissionAmount), "got %s", items[0].CommissionAmount)
	assert.True(t, money.MustParse("28.33").Equal(items[0].NetAmount), "got %s", items[0].NetAmount)

	assert.Nil(t, items[1].TenantID)
	assert.True(t, money.MustParse("10").Equal(items[1].CommissionPercent), "platform lines use the default rate")
	assert.True(t, money.MustParse("8").Equal(items[1].GrossAmount), "got %s", items[1].GrossAmount)
	assert.True(t, money.MustParse("0.80").Equal(items[1].CommissionAmount), "got %s", items[1].CommissionAmount)
}

func TestService_BuildLineSnapshots_HalfCentRoundsAwayFromZero(t *testing.T) {
	env := newOrdersTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t, "10")
	items, err := env.svc.BuildLineSnapshots(ctx, []LineInput{
		{TenantID: &tenant.ID, ProductName: "widget", UnitPrice: money.MustParse("3.335"), Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.True(t, money.MustParse("10.01").Equal(items[0].GrossAmount), "got %s", items[0].GrossAmount)
	assert.True(t, money.MustParse("1.00").Equal(items[0].CommissionAmount), "got %s", items[0].CommissionAmount)
	assert.True(t, money.MustParse("9.01").Equal(items[0].NetAmount), "got %s", items[0].NetAmount)
}

func TestService_BuildLineSnapshots_Validation(t *testing.T) {
	env := newOrdersTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.BuildLineSnapshots(ctx, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = env.svc.BuildLineSnapshots(ctx, []LineInput{
		{ProductName: "widget", UnitPrice: money.MustParse("5"), Quantity: 0},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = env.svc.BuildLineSnapshots(ctx, []LineInput{
		{ProductName: "widget", UnitPrice: money.MustParse("-5"), Quantity: 1},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestService_PlaceOrder_SingleTenantIsDirectToSeller(t *testing.T) {
	env := newOrdersTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t, "10")
	order, err := env.svc.PlaceOrder(ctx, PlaceOrderInput{
		BuyerUserID: uuid.New(),
		Lines: []LineInput{
			{TenantID: &tenant.ID, ProductName: "widget", UnitPrice: money.MustParse("25"), Quantity: 2},
			{TenantID: &tenant.ID, ProductName: "gadget", UnitPrice: money.MustParse("50"), Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.SettlementTypeDirectToSeller, order.SettlementType)
	require.NotNil(t, order.PrimaryTenantID)
	assert.Equal(t, tenant.ID, *order.PrimaryTenantID)
	assert.True(t, money.MustParse("100").Equal(order.TotalAmount), "got %s", order.TotalAmount)

	stored, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)

	var outboxCount int64
	require.NoError(t, env.db.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventOrderCreated, order.ID).
		Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount)
}

func TestService_PlaceOrder_MixedLinesArePlatformSplit(t *testing.T) {
	env := newOrdersTestEnv(t)
	ctx := context.Background()

	t1 := env.createTenant(t, "10")
	t2 := env.createTenant(t, "20")

	order, err := env.svc.PlaceOrder(ctx, PlaceOrderInput{
		BuyerUserID: uuid.New(),
		Lines: []LineInput{
			{TenantID: &t1.ID, ProductName: "widget", UnitPrice: money.MustParse("10"), Quantity: 1},
			{TenantID: &t2.ID, ProductName: "gadget", UnitPrice: money.MustParse("10"), Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementTypePlatformSplit, order.SettlementType)
	assert.Nil(t, order.PrimaryTenantID)

	single := env.createTenant(t, "10")
	order, err = env.svc.PlaceOrder(ctx, PlaceOrderInput{
		BuyerUserID: uuid.New(),
		Lines: []LineInput{
			{TenantID: &single.ID, ProductName: "widget", UnitPrice: money.MustParse("10"), Quantity: 1},
			{ProductName: "platform sticker", UnitPrice: money.MustParse("2"), Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementTypePlatformSplit, order.SettlementType, "a platform-owned line forces a split")
	assert.Nil(t, order.PrimaryTenantID)
}

func TestService_ConfirmPayment_CreatesSettlements(t *testing.T) {
	env := newOrdersTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t, "10")
	order, err := env.svc.PlaceOrder(ctx, PlaceOrderInput{
		BuyerUserID: uuid.New(),
		Lines: []LineInput{
			{TenantID: &tenant.ID, ProductName: "widget", UnitPrice: money.MustParse("100"), Quantity: 1},
		},
	})
	require.NoError(t, err)

	input := ConfirmPaymentInput{
		OrderID:          order.ID,
		PaymentReference: "pay_123",
		EventID:          "evt-confirm",
		EventType:        "payment.success",
	}
	require.NoError(t, env.svc.ConfirmPayment(ctx, input))

	stored, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, "pay_123", *stored.PaymentReference)

	var rows []models.Settlement
	require.NoError(t, env.db.Where("order_id = ?", order.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.PayoutStatusReadyForPayout, rows[0].PayoutStatus)
	assert.True(t, money.MustParse("90").Equal(rows[0].NetPayoutAmount), "got %s", rows[0].NetPayoutAmount)

	require.NoError(t, env.svc.ConfirmPayment(ctx, input), "webhook redelivery is a no-op")
	require.NoError(t, env.db.Where("order_id = ?", order.ID).Find(&rows).Error)
	assert.Len(t, rows, 1)
}

func TestService_ConfirmPayment_SnapshotSurvivesRateChange(t *testing.T) {
	env := newOrdersTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t, "10")
	order, err := env.svc.PlaceOrder(ctx, PlaceOrderInput{
		BuyerUserID: uuid.New(),
		Lines: []LineInput{
			{TenantID: &tenant.ID, ProductName: "widget", UnitPrice: money.MustParse("100"), Quantity: 1},
		},
	})
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&models.Tenant{}).
		Where("id = ?", tenant.ID).
		Update("commission_percent", money.MustParse("50")).Error)

	require.NoError(t, env.svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderID: order.ID}))

	var rows []models.Settlement
	require.NoError(t, env.db.Where("order_id = ?", order.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, money.MustParse("10").Equal(rows[0].CommissionAmount), "settlement uses the rate frozen at placement, got %s", rows[0].CommissionAmount)
	assert.True(t, money.MustParse("90").Equal(rows[0].NetPayoutAmount), "got %s", rows[0].NetPayoutAmount)
}

func TestService_FailPayment(t *testing.T) {
	env := newOrdersTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t, "10")
	order, err := env.svc.PlaceOrder(ctx, PlaceOrderInput{
		BuyerUserID: uuid.New(),
		Lines: []LineInput{
			{TenantID: &tenant.ID, ProductName: "widget", UnitPrice: money.MustParse("10"), Quantity: 1},
		},
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.FailPayment(ctx, order.ID))
	stored, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, stored.PaymentStatus)

	require.NoError(t, env.svc.ConfirmPayment(ctx, ConfirmPaymentInput{OrderID: order.ID}), "a failed payment can still succeed later")

	err = env.svc.FailPayment(ctx, order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}
