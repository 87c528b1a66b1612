package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bazario/bazario-backend/pkg/db/models"
	"github.com/bazario/bazario-backend/pkg/enums"
)

// Repository manages persistence for settlement rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.Settlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	GetAll(ctx context.Context, limit, offset int) ([]models.Settlement, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Settlement, error)
	GetByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Settlement, error)
	CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListReadyUnlocked(ctx context.Context, limit int) ([]models.Settlement, error)
	ClaimForPayout(ctx context.Context, id uuid.UUID) (bool, error)
	FinalizePayout(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, reference *string, payoutDate *time.Time) error
	SetStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus) error
	SetRefundAmounts(ctx context.Context, id uuid.UUID, refundable, refunded decimal.Decimal, status enums.PayoutStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&settlement).Error
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) GetAll(ctx context.Context, limit, offset int) ([]models.Settlement, error) {
	var rows []models.Settlement
	query := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) GetByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Settlement, error) {
	var rows []models.Settlement
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) GetByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Settlement, error) {
	var rows []models.Settlement
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

// ListReadyUnlocked returns settlements the daily sweep should attempt.
func (r *repository) ListReadyUnlocked(ctx context.Context, limit int) ([]models.Settlement, error) {
	var rows []models.Settlement
	query := r.db.WithContext(ctx).
		Where("payout_status = ? AND payout_locked = ?", enums.PayoutStatusReadyForPayout, false).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimForPayout atomically moves one settlement into in_progress and locks
// it. The conditional update is the only arbiter between concurrent payout
// attempts: exactly one caller sees rows affected. A false return means the
// settlement was already locked, already paid, or otherwise not claimable.
func (r *repository) ClaimForPayout(ctx context.Context, id uuid.UUID) (bool, error) {
	claimable := []enums.PayoutStatus{
		enums.PayoutStatusCreated,
		enums.PayoutStatusReadyForPayout,
		enums.PayoutStatusFailed,
	}
	res := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ? AND payout_locked = ? AND payout_status IN ?", id, false, claimable).
		Updates(map[string]any{
			"payout_locked": true,
			"payout_status": enums.PayoutStatusInProgress,
			"version":       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FinalizePayout records the outcome of a payout attempt and always releases
// the claim lock, for failures as much as for successes.
func (r *repository) FinalizePayout(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, reference *string, payoutDate *time.Time) error {
	updates := map[string]any{
		"payout_status": status,
		"payout_locked": false,
	}
	if reference != nil {
		updates["payout_reference"] = *reference
	}
	if payoutDate != nil {
		updates["payout_date"] = *payoutDate
	}
	return r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ?", id).
		Update("payout_status", status).Error
}

func (r *repository) SetRefundAmounts(ctx context.Context, id uuid.UUID, refundable, refunded decimal.Decimal, status enums.PayoutStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"refundable_amount": refundable,
			"refunded_amount":   refunded,
			"payout_status":     status,
		}).Error
}
