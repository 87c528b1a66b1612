package tenants

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bazario/bazario-backend/pkg/db/models"
	pkgerrors "github.com/bazario/bazario-backend/pkg/errors"
)

// Repository reads tenant records. Tenant administration happens elsewhere;
// the settlement pipeline only needs lookups.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	OwnerUserID(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error)
	CommissionPercent(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tenant repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) OwnerUserID(ctx context.Context, tenantID uuid.UUID) (uuid.UUID, error) {
	tenant, err := r.GetByID(ctx, tenantID)
	if err != nil {
		return uuid.Nil, err
	}
	return tenant.OwnerUserID, nil
}

// CommissionPercent reads the tenant's live rate. Callers snapshot it into
// order items; nothing downstream reads it again.
func (r *repository) CommissionPercent(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	tenant, err := r.GetByID(ctx, tenantID)
	if err != nil {
		return decimal.Zero, err
	}
	return tenant.CommissionPercent, nil
}
