package orders

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bazario/bazario-backend/internal/settlements"
	dbpkg "github.com/bazario/bazario-backend/pkg/db"
	"github.com/bazario/bazario-backend/pkg/db/models"
	"github.com/bazario/bazario-backend/pkg/enums"
	pkgerrors "github.com/bazario/bazario-backend/pkg/errors"
	"github.com/bazario/bazario-backend/pkg/logger"
	"github.com/bazario/bazario-backend/pkg/money"
	"github.com/bazario/bazario-backend/pkg/outbox"
)

// TenantRates resolves the live commission rate of a tenant.
type TenantRates interface {
	CommissionPercent(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)
}

// LineInput is one order line as submitted by the buyer. A nil TenantID
// marks a platform-owned product.
type LineInput struct {
	TenantID    *uuid.UUID
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// PlaceOrderInput creates a new order.
type PlaceOrderInput struct {
	BuyerUserID uuid.UUID
	Lines       []LineInput
}

// ConfirmPaymentInput carries a successful payment notification. EventID and
// EventType come from the gateway webhook; a blank EventID marks a manual
// confirmation by an operator.
type ConfirmPaymentInput struct {
	OrderID          uuid.UUID
	PaymentReference string
	EventID          string
	EventType        string
	Payload          json.RawMessage
}

// Service owns order placement and payment confirmation. Placement freezes
// the money snapshot per line; confirmation hands the paid order to the
// settlement ledger.
type Service interface {
	BuildLineSnapshots(ctx context.Context, lines []LineInput) ([]models.OrderItem, error)
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) error
	FailPayment(ctx context.Context, orderID uuid.UUID) error
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// ServiceParams lists the dependencies for NewService.
type ServiceParams struct {
	Repo                     Repository
	Tenants                  TenantRates
	Settlements              settlements.Service
	Outbox                   outbox.Emitter
	TxRunner                 dbpkg.TxRunner
	Logger                   *logger.Logger
	DefaultCommissionPercent decimal.Decimal
}

type service struct {
	repo           Repository
	tenants        TenantRates
	settlements    settlements.Service
	outbox         outbox.Emitter
	txRunner       dbpkg.TxRunner
	logg           *logger.Logger
	defaultPercent decimal.Decimal
}

// NewService wires the order service and validates its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository required")
	}
	if params.Tenants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant rates required")
	}
	if params.Settlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
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
	if params.DefaultCommissionPercent.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "default commission percent must not be negative")
	}
	return &service{
		repo:           params.Repo,
		tenants:        params.Tenants,
		settlements:    params.Settlements,
		outbox:         params.Outbox,
		txRunner:       params.TxRunner,
		logg:           params.Logger,
		defaultPercent: params.DefaultCommissionPercent,
	}, nil
}

type orderCreatedPayload struct {
	OrderID        string `json:"order_id"`
	BuyerUserID    string `json:"buyer_user_id"`
	TotalAmount    string `json:"total_amount"`
	SettlementType string `json:"settlement_type"`
	LineCount      int    `json:"line_count"`
}

type orderPaidPayload struct {
	OrderID          string `json:"order_id"`
	PaymentReference string `json:"payment_reference"`
}

// BuildLineSnapshots freezes gross, commission and net per line at the
// tenant's current rate. Platform-owned lines use the configured default
// rate. Later rate changes never touch these snapshots.
func (s *service) BuildLineSnapshots(ctx context.Context, lines []LineInput) ([]models.OrderItem, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one line")
	}

	rateCache := make(map[uuid.UUID]decimal.Decimal)
	items := make([]models.OrderItem, 0, len(lines))
	for i, line := range lines {
		if line.ProductName == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name is required").
				WithDetails(map[string]int{"line": i})
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]int{"line": i})
		}
		if !money.IsPositive(line.UnitPrice) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be positive").
				WithDetails(map[string]int{"line": i})
		}

		percent := s.defaultPercent
		if line.TenantID != nil {
			cached, ok := rateCache[*line.TenantID]
			if !ok {
				rate, err := s.tenants.CommissionPercent(ctx, *line.TenantID)
				if err != nil {
					return nil, err
				}
				rateCache[*line.TenantID] = rate
				cached = rate
			}
			percent = cached
		}

		gross := money.Gross(line.UnitPrice, line.Quantity)
		commission := money.Commission(gross, percent)
		items = append(items, models.OrderItem{
			ID:                uuid.New(),
			TenantID:          line.TenantID,
			ProductName:       line.ProductName,
			UnitPrice:         line.UnitPrice,
			Quantity:          line.Quantity,
			GrossAmount:       gross,
			CommissionPercent: percent,
			CommissionAmount:  commission,
			NetAmount:         gross.Sub(commission),
		})
	}
	return items, nil
}

// PlaceOrder persists the order with its frozen snapshots. An order whose
// lines all belong to one tenant is settled direct to that seller; anything
// else is split by the platform.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if input.BuyerUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer user id is required")
	}
	items, err := s.BuildLineSnapshots(ctx, input.Lines)
	if err != nil {
		return nil, err
	}

	settlementType, primaryTenant := classifySettlement(items)

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.GrossAmount)
	}

	order := &models.Order{
		ID:              uuid.New(),
		BuyerUserID:     input.BuyerUserID,
		TotalAmount:     total,
		PaymentStatus:   enums.PaymentStatusPending,
		SettlementType:  settlementType,
		PrimaryTenantID: primaryTenant,
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	order.Items = items

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: orderCreatedPayload{
				OrderID:        order.ID.String(),
				BuyerUserID:    order.BuyerUserID.String(),
				TotalAmount:    order.TotalAmount.StringFixed(2),
				SettlementType: string(order.SettlementType),
				LineCount:      len(order.Items),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order placed")
	return order, nil
}

// ConfirmPayment marks the order paid and creates its settlements. Marking
// paid and settlement creation run in separate transactions on purpose: the
// settlement path is idempotent per webhook event and per order, so a crash
// between the two leaves a paid order that the next webhook redelivery or a
// manual trigger settles.
func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) error {
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	order, err := s.getOrder(ctx, input.OrderID)
	if err != nil {
		return err
	}

	switch order.PaymentStatus {
	case enums.PaymentStatusCompleted:
		s.logg.Info(ctx, "order already marked paid, ensuring settlements exist")
	case enums.PaymentStatusPending, enums.PaymentStatusFailed:
		err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
			var reference *string
			if input.PaymentReference != "" {
				reference = &input.PaymentReference
			}
			if err := s.repo.WithTx(tx).SetPaymentOutcome(ctx, order.ID, enums.PaymentStatusCompleted, reference); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderPaid,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data: orderPaidPayload{
					OrderID:          order.ID.String(),
					PaymentReference: input.PaymentReference,
				},
			})
		})
		if err != nil {
			return err
		}
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order payment status does not allow confirmation").
			WithDetails(map[string]string{"payment_status": string(order.PaymentStatus)})
	}

	return s.settlements.CreateSettlements(ctx, settlements.CreateInput{
		OrderID:   order.ID,
		EventID:   input.EventID,
		EventType: input.EventType,
		Payload:   input.Payload,
	})
}

// FailPayment records a failed payment attempt. The order stays settleable:
// a later successful webhook can still confirm it.
func (s *service) FailPayment(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "paid order cannot be marked failed")
	}
	return s.repo.SetPaymentOutcome(ctx, orderID, enums.PaymentStatusFailed, nil)
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetWithItems(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return order, nil
}

func (s *service) getOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return order, nil
}

// classifySettlement decides how the order settles. Exactly one tenant and
// no platform-owned lines means the whole order can be paid out directly to
// that seller.
func classifySettlement(items []models.OrderItem) (enums.SettlementType, *uuid.UUID) {
	var single *uuid.UUID
	for _, item := range items {
		if item.TenantID == nil {
			return enums.SettlementTypePlatformSplit, nil
		}
		if single == nil {
			id := *item.TenantID
			single = &id
			continue
		}
		if *single != *item.TenantID {
			return enums.SettlementTypePlatformSplit, nil
		}
	}
	return enums.SettlementTypeDirectToSeller, single
}
