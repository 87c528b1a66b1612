package settlements

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

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

// OrderSource loads the order whose settlements are being created.
type OrderSource interface {
	GetWithItems(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// TenantDirectory resolves the user who receives a tenant's money.
type TenantDirectory interface {
	OwnerUserID(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error)
}

// CreateInput carries the payment confirmation that triggers settlement
// creation. A blank EventID marks a manual trigger, which skips the
// webhook idempotency guard and relies on the per-order uniqueness alone.
type CreateInput struct {
	OrderID   uuid.UUID
	EventID   string
	EventType string
	Payload   json.RawMessage
}

// Service owns the settlement ledger: creation from paid orders, refund
// accounting, and reversals. Payout execution lives in the payouts package.
type Service interface {
	CreateSettlements(ctx context.Context, input CreateInput) error
	MarkReady(ctx context.Context, settlementID uuid.UUID) error
	ApplyRefund(ctx context.Context, settlementID uuid.UUID, amount decimal.Decimal) error
	Reverse(ctx context.Context, settlementID uuid.UUID) error
	GetByID(ctx context.Context, settlementID uuid.UUID) (*models.Settlement, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.Settlement, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Settlement, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Settlement, error)
}

// ServiceParams lists the dependencies for NewService.
type ServiceParams struct {
	Repo              Repository
	Events            webhookevents.Repository
	Orders            OrderSource
	Tenants           TenantDirectory
	Wallets           wallets.Service
	Outbox            outbox.Emitter
	TxRunner          dbpkg.TxRunner
	Logger            *logger.Logger
	PlatformAdminUser uuid.UUID
}

type service struct {
	repo      Repository
	events    webhookevents.Repository
	orders    OrderSource
	tenants   TenantDirectory
	wallets   wallets.Service
	outbox    outbox.Emitter
	txRunner  dbpkg.TxRunner
	logg      *logger.Logger
	adminUser uuid.UUID
}

// NewService wires the settlement service and validates its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement repository required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order source required")
	}
	if params.Tenants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant directory required")
	}
	if params.Wallets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		repo:      params.Repo,
		events:    params.Events,
		orders:    params.Orders,
		tenants:   params.Tenants,
		wallets:   params.Wallets,
		outbox:    params.Outbox,
		txRunner:  params.TxRunner,
		logg:      params.Logger,
		adminUser: params.PlatformAdminUser,
	}, nil
}

type settlementCreatedPayload struct {
	SettlementID    string  `json:"settlement_id"`
	OrderID         string  `json:"order_id"`
	TenantID        *string `json:"tenant_id,omitempty"`
	NetPayoutAmount string  `json:"net_payout_amount"`
	PayoutStatus    string  `json:"payout_status"`
}

type settlementRefundPayload struct {
	SettlementID     string `json:"settlement_id"`
	OrderID          string `json:"order_id"`
	Amount           string `json:"amount"`
	RefundableAmount string `json:"refundable_amount"`
	RefundedAmount   string `json:"refunded_amount"`
	PayoutStatus     string `json:"payout_status"`
}

// CreateSettlements materializes one settlement per tenant from the order's
// frozen item snapshots. The webhook event row, the settlement rows and the
// outbox events commit in one transaction, so a redelivered webhook either
// sees the recorded event id or loses on the unique index and changes
// nothing.
func (s *service) CreateSettlements(ctx context.Context, input CreateInput) error {
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	if input.EventID != "" {
		processed, err := s.events.Exists(ctx, input.EventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to check webhook event")
		}
		if processed {
			s.logg.Info(ctx, "webhook event already processed, skipping settlement creation")
			return nil
		}
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if input.EventID != "" {
			event := &models.PaymentWebhookEvent{
				ID:        uuid.New(),
				EventID:   input.EventID,
				EventType: input.EventType,
				OrderID:   input.OrderID,
				Payload:   input.Payload,
			}
			if err := s.events.WithTx(tx).Record(ctx, event); err != nil {
				return err
			}
		}

		repo := s.repo.WithTx(tx)
		existing, err := repo.CountByOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if existing > 0 {
			s.logg.Info(ctx, "settlements already exist for order, skipping")
			return nil
		}

		order, err := s.orders.GetWithItems(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return err
		}
		if order.PaymentStatus != enums.PaymentStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order payment is not completed")
		}
		if len(order.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no items to settle")
		}

		status := enums.PayoutStatusCreated
		if order.SettlementType == enums.SettlementTypeDirectToSeller {
			status = enums.PayoutStatusReadyForPayout
		}

		for _, group := range groupItemsByTenant(order.Items) {
			settlement := &models.Settlement{
				ID:                uuid.New(),
				OrderID:           order.ID,
				TenantID:          group.tenantID,
				TotalAmount:       group.gross,
				CommissionAmount:  group.commission,
				CommissionPercent: group.commissionPercent,
				NetPayoutAmount:   group.net,
				RefundableAmount:  group.net,
				RefundedAmount:    decimal.Zero,
				SettlementType:    order.SettlementType,
				PayoutStatus:      status,
			}
			if err := repo.Create(ctx, settlement); err != nil {
				return err
			}
			if err := s.emitCreated(ctx, tx, settlement); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, webhookevents.ErrDuplicateEvent) {
			s.logg.Info(ctx, "concurrent webhook delivery lost the insert race, skipping")
			return nil
		}
		return err
	}
	return nil
}

func (s *service) emitCreated(ctx context.Context, tx *gorm.DB, settlement *models.Settlement) error {
	var tenantID *string
	if settlement.TenantID != nil {
		id := settlement.TenantID.String()
		tenantID = &id
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSettlementCreated,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   settlement.ID,
		Data: settlementCreatedPayload{
			SettlementID:    settlement.ID.String(),
			OrderID:         settlement.OrderID.String(),
			TenantID:        tenantID,
			NetPayoutAmount: settlement.NetPayoutAmount.StringFixed(2),
			PayoutStatus:    settlement.PayoutStatus.String(),
		},
	})
}

// MarkReady releases a held settlement into the payout queue.
func (s *service) MarkReady(ctx context.Context, settlementID uuid.UUID) error {
	settlement, err := s.getSettlement(ctx, settlementID)
	if err != nil {
		return err
	}
	if settlement.PayoutStatus == enums.PayoutStatusReadyForPayout {
		return nil
	}
	if !settlement.PayoutStatus.CanTransitionTo(enums.PayoutStatusReadyForPayout) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement cannot be marked ready for payout").
			WithDetails(map[string]string{"payout_status": settlement.PayoutStatus.String()})
	}
	return s.repo.SetStatus(ctx, settlementID, enums.PayoutStatusReadyForPayout)
}

// ApplyRefund moves amount from the refundable to the refunded bucket. If
// the settlement was already paid out, the tenant's wallet is debited so the
// money comes back; a refund that drains a paid settlement completes the
// paid → refunded transition.
func (s *service) ApplyRefund(ctx context.Context, settlementID uuid.UUID, amount decimal.Decimal) error {
	if !money.IsPositive(amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	ctx = s.logg.WithSettlementID(ctx, settlementID.String())

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		settlement, err := repo.GetByID(ctx, settlementID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
			}
			return err
		}
		if amount.GreaterThan(settlement.RefundableAmount) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund exceeds refundable amount").
				WithDetails(map[string]string{
					"refundable_amount": settlement.RefundableAmount.StringFixed(2),
					"requested":         amount.StringFixed(2),
				})
		}

		refundable := settlement.RefundableAmount.Sub(amount)
		refunded := settlement.RefundedAmount.Add(amount)
		status := settlement.PayoutStatus
		if settlement.PayoutStatus == enums.PayoutStatusPaid && refundable.IsZero() {
			status = enums.PayoutStatusRefunded
		}

		if settlement.PayoutStatus == enums.PayoutStatusPaid {
			if err := s.clawBack(ctx, tx, settlement, amount, "settlement refund"); err != nil {
				return err
			}
		}
		if err := repo.SetRefundAmounts(ctx, settlementID, refundable, refunded, status); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementRefunded,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Data: settlementRefundPayload{
				SettlementID:     settlement.ID.String(),
				OrderID:          settlement.OrderID.String(),
				Amount:           amount.StringFixed(2),
				RefundableAmount: refundable.StringFixed(2),
				RefundedAmount:   refunded.StringFixed(2),
				PayoutStatus:     status.String(),
			},
		})
	})
}

// Reverse claws back the entire remaining refundable amount of a paid
// settlement in one step.
func (s *service) Reverse(ctx context.Context, settlementID uuid.UUID) error {
	ctx = s.logg.WithSettlementID(ctx, settlementID.String())

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		settlement, err := repo.GetByID(ctx, settlementID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
			}
			return err
		}
		if !settlement.PayoutStatus.CanTransitionTo(enums.PayoutStatusReversed) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only paid settlements can be reversed").
				WithDetails(map[string]string{"payout_status": settlement.PayoutStatus.String()})
		}

		remaining := settlement.RefundableAmount
		if money.IsPositive(remaining) {
			if err := s.clawBack(ctx, tx, settlement, remaining, "settlement reversal"); err != nil {
				return err
			}
		}
		if err := repo.SetRefundAmounts(ctx, settlementID, decimal.Zero, settlement.NetPayoutAmount, enums.PayoutStatusReversed); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementReversed,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Data: settlementRefundPayload{
				SettlementID:     settlement.ID.String(),
				OrderID:          settlement.OrderID.String(),
				Amount:           remaining.StringFixed(2),
				RefundableAmount: "0.00",
				RefundedAmount:   settlement.NetPayoutAmount.StringFixed(2),
				PayoutStatus:     enums.PayoutStatusReversed.String(),
			},
		})
	})
}

func (s *service) clawBack(ctx context.Context, tx *gorm.DB, settlement *models.Settlement, amount decimal.Decimal, description string) error {
	owner, err := s.payeeFor(ctx, settlement)
	if err != nil {
		return err
	}
	return s.wallets.DebitTx(ctx, tx, wallets.MovementInput{
		OwnerUserID: owner,
		Amount:      amount,
		Source:      enums.TransactionSourceRefund,
		ReferenceID: settlement.ID.String(),
		Description: description,
	})
}

func (s *service) payeeFor(ctx context.Context, settlement *models.Settlement) (uuid.UUID, error) {
	if settlement.TenantID == nil {
		if s.adminUser == uuid.Nil {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeInternal, "platform admin user not configured")
		}
		return s.adminUser, nil
	}
	return s.tenants.OwnerUserID(ctx, *settlement.TenantID)
}

func (s *service) GetByID(ctx context.Context, settlementID uuid.UUID) (*models.Settlement, error) {
	return s.getSettlement(ctx, settlementID)
}

func (s *service) ListAll(ctx context.Context, limit, offset int) ([]models.Settlement, error) {
	return s.repo.GetAll(ctx, limit, offset)
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Settlement, error) {
	return s.repo.GetByOrder(ctx, orderID)
}

func (s *service) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Settlement, error) {
	return s.repo.GetByTenant(ctx, tenantID)
}

func (s *service) getSettlement(ctx context.Context, settlementID uuid.UUID) (*models.Settlement, error) {
	settlement, err := s.repo.GetByID(ctx, settlementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, err
	}
	return settlement, nil
}

type tenantGroup struct {
	tenantID          *uuid.UUID
	gross             decimal.Decimal
	commission        decimal.Decimal
	net               decimal.Decimal
	commissionPercent decimal.Decimal
}

// groupItemsByTenant folds item snapshots into per-tenant totals, keeping a
// stable order so settlement rows are created deterministically.
func groupItemsByTenant(items []models.OrderItem) []tenantGroup {
	const platformKey = "platform"

	index := make(map[string]int)
	groups := make([]tenantGroup, 0, len(items))
	for _, item := range items {
		key := platformKey
		if item.TenantID != nil {
			key = item.TenantID.String()
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, tenantGroup{
				tenantID:          item.TenantID,
				gross:             decimal.Zero,
				commission:        decimal.Zero,
				net:               decimal.Zero,
				commissionPercent: item.CommissionPercent,
			})
		}
		groups[i].gross = groups[i].gross.Add(item.GrossAmount)
		groups[i].commission = groups[i].commission.Add(item.CommissionAmount)
		groups[i].net = groups[i].net.Add(item.NetAmount)
	}
	return groups
}
