package payouts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bazario/bazario-backend/internal/settlements"
	"github.com/bazario/bazario-backend/internal/wallets"
	dbpkg "github.com/bazario/bazario-backend/pkg/db"
	"github.com/bazario/bazario-backend/pkg/db/models"
	"github.com/bazario/bazario-backend/pkg/enums"
	pkgerrors "github.com/bazario/bazario-backend/pkg/errors"
	"github.com/bazario/bazario-backend/pkg/logger"
	"github.com/bazario/bazario-backend/pkg/money"
	"github.com/bazario/bazario-backend/pkg/outbox"
)

var (
	// ErrAlreadyPaid rejects a payout attempt on a settlement that has
	// already been paid out.
	ErrAlreadyPaid = pkgerrors.New(pkgerrors.CodeStateConflict, "settlement already paid out")
	// ErrNotClaimable means another worker holds the settlement or its
	// status does not allow a payout right now.
	ErrNotClaimable = pkgerrors.New(pkgerrors.CodeConflict, "settlement is locked or not claimable for payout")
)

// WalletCreditor is the slice of the wallet service the payout engine needs.
type WalletCreditor interface {
	CreditTx(ctx context.Context, tx *gorm.DB, input wallets.MovementInput) error
}

// TenantDirectory resolves the user who receives a tenant's payout.
type TenantDirectory interface {
	OwnerUserID(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error)
}

// SweepSummary reports one run of the daily payout sweep.
type SweepSummary struct {
	Attempted int
	Paid      int
	Failed    int
}

// Service executes payouts for settlements. Exactly-once execution rests on
// the settlement claim: a single conditional update that only one caller can
// win.
type Service interface {
	ProcessSinglePayout(ctx context.Context, settlementID uuid.UUID) (*models.Settlement, error)
	ProcessPayouts(ctx context.Context) (SweepSummary, error)
}

// ServiceParams lists the dependencies for NewService.
type ServiceParams struct {
	Settlements       settlements.Repository
	Wallets           WalletCreditor
	Tenants           TenantDirectory
	Outbox            outbox.Emitter
	TxRunner          dbpkg.TxRunner
	Logger            *logger.Logger
	PlatformAdminUser uuid.UUID
	SweepBatch        int
}

type service struct {
	settlements settlements.Repository
	wallets     WalletCreditor
	tenants     TenantDirectory
	outbox      outbox.Emitter
	txRunner    dbpkg.TxRunner
	logg        *logger.Logger
	adminUser   uuid.UUID
	sweepBatch  int
}

// NewService wires the payout engine and validates its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Settlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement repository required")
	}
	if params.Wallets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet creditor required")
	}
	if params.Tenants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant directory required")
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
	if params.SweepBatch <= 0 {
		params.SweepBatch = 200
	}
	return &service{
		settlements: params.Settlements,
		wallets:     params.Wallets,
		tenants:     params.Tenants,
		outbox:      params.Outbox,
		txRunner:    params.TxRunner,
		logg:        params.Logger,
		adminUser:   params.PlatformAdminUser,
		sweepBatch:  params.SweepBatch,
	}, nil
}

type payoutEventPayload struct {
	SettlementID    string  `json:"settlement_id"`
	OrderID         string  `json:"order_id"`
	TenantID        *string `json:"tenant_id,omitempty"`
	Amount          string  `json:"amount"`
	PayoutReference string  `json:"payout_reference,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// ProcessSinglePayout pays out one settlement. The claim is a conditional
// update on (unlocked, claimable status), so a concurrent attempt on the
// same settlement loses the claim instead of paying twice. The wallet credit
// and the paid transition commit in one transaction; on transfer failure the
// settlement lands in failed with the lock released, ready for a retry.
func (s *service) ProcessSinglePayout(ctx context.Context, settlementID uuid.UUID) (*models.Settlement, error) {
	ctx = s.logg.WithSettlementID(ctx, settlementID.String())

	settlement, err := s.settlements.GetByID(ctx, settlementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, err
	}
	if settlement.PayoutStatus == enums.PayoutStatusPaid {
		return nil, ErrAlreadyPaid
	}

	claimed, err := s.settlements.ClaimForPayout(ctx, settlementID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to claim settlement for payout")
	}
	if !claimed {
		return nil, ErrNotClaimable
	}

	reference := newPayoutReference()
	paidAt := time.Now().UTC()

	transferErr := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.transfer(ctx, tx, settlement, reference); err != nil {
			return err
		}
		if err := s.settlements.WithTx(tx).FinalizePayout(ctx, settlementID, enums.PayoutStatusPaid, &reference, &paidAt); err != nil {
			return err
		}
		return s.emitPayoutEvent(ctx, tx, settlement, enums.EventPayoutPaid, reference, nil)
	})
	if transferErr != nil {
		s.logg.Error(ctx, "payout transfer failed", transferErr)
		if failErr := s.markFailed(ctx, settlement, transferErr); failErr != nil {
			s.logg.Error(ctx, "failed to record payout failure", failErr)
			transferErr = multierr.Append(transferErr, failErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, transferErr, "payout transfer failed")
	}

	updated, err := s.settlements.GetByID(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "payout_reference", reference), "settlement paid out")
	return updated, nil
}

func (s *service) transfer(ctx context.Context, tx *gorm.DB, settlement *models.Settlement, reference string) error {
	if !money.IsPositive(settlement.NetPayoutAmount) {
		return nil
	}
	payee, err := s.payeeFor(ctx, settlement)
	if err != nil {
		return err
	}
	return s.wallets.CreditTx(ctx, tx, wallets.MovementInput{
		OwnerUserID: payee,
		Amount:      settlement.NetPayoutAmount,
		Source:      enums.TransactionSourcePayout,
		ReferenceID: reference,
		Description: "settlement payout " + settlement.ID.String(),
	})
}

// markFailed runs in its own transaction so the failed state survives even
// though the transfer transaction rolled back.
func (s *service) markFailed(ctx context.Context, settlement *models.Settlement, cause error) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.settlements.WithTx(tx).FinalizePayout(ctx, settlement.ID, enums.PayoutStatusFailed, nil, nil); err != nil {
			return err
		}
		return s.emitPayoutEvent(ctx, tx, settlement, enums.EventPayoutFailed, "", cause)
	})
}

func (s *service) emitPayoutEvent(ctx context.Context, tx *gorm.DB, settlement *models.Settlement, eventType enums.OutboxEventType, reference string, cause error) error {
	var tenantID *string
	if settlement.TenantID != nil {
		id := settlement.TenantID.String()
		tenantID = &id
	}
	payload := payoutEventPayload{
		SettlementID:    settlement.ID.String(),
		OrderID:         settlement.OrderID.String(),
		TenantID:        tenantID,
		Amount:          settlement.NetPayoutAmount.StringFixed(2),
		PayoutReference: reference,
	}
	if cause != nil {
		payload.Error = cause.Error()
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   settlement.ID,
		Data:          payload,
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

// ProcessPayouts is the sweep behind the daily cron job. Each settlement is
// attempted independently; one failure never aborts the batch. The combined
// error is informational, callers log it and keep going.
func (s *service) ProcessPayouts(ctx context.Context) (SweepSummary, error) {
	ready, err := s.settlements.ListReadyUnlocked(ctx, s.sweepBatch)
	if err != nil {
		return SweepSummary{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list settlements ready for payout")
	}

	summary := SweepSummary{Attempted: len(ready)}
	var combined error
	for _, settlement := range ready {
		if ctx.Err() != nil {
			combined = multierr.Append(combined, ctx.Err())
			break
		}
		if _, err := s.ProcessSinglePayout(ctx, settlement.ID); err != nil {
			// Lost claims mean another worker is on it, not a failure.
			if errors.Is(err, ErrNotClaimable) || errors.Is(err, ErrAlreadyPaid) {
				continue
			}
			summary.Failed++
			combined = multierr.Append(combined, err)
			continue
		}
		summary.Paid++
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"attempted": summary.Attempted,
		"paid":      summary.Paid,
		"failed":    summary.Failed,
	}), "payout sweep finished")
	return summary, combined
}

// newPayoutReference builds a short operator-facing transfer reference.
func newPayoutReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TRF-" + raw[:8]
}
