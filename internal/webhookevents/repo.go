package webhookevents

import (
	"context"

	"gorm.io/gorm"

	dbpkg "github.com/bazario/bazario-backend/pkg/db"
	"github.com/bazario/bazario-backend/pkg/db/models"
	pkgerrors "github.com/bazario/bazario-backend/pkg/errors"
)

// ErrDuplicateEvent marks a webhook event id that has already been recorded.
// Callers treat it as "already processed", not as a failure.
var ErrDuplicateEvent = pkgerrors.New(pkgerrors.CodeConflict, "webhook event already processed")

// Repository is the durable idempotency guard for payment webhooks. The
// unique index on event_id closes the race between two concurrent
// deliveries: the loser's insert fails instead of silently duplicating.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Exists(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, event *models.PaymentWebhookEvent) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a webhook event repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Exists(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentWebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Record(ctx context.Context, event *models.PaymentWebhookEvent) error {
	if event == nil || event.EventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_payment_webhook_events_event_id") {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}
