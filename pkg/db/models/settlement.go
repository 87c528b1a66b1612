package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bazario/bazario-backend/pkg/enums"
)

// Settlement records what the platform owes one tenant for one order.
// Exactly one row exists per (order, tenant) pair; a nil TenantID is the
// platform's own slice. RefundableAmount + RefundedAmount always equals
// NetPayoutAmount. Version is bumped by every payout claim.
type Settlement struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	TenantID          *uuid.UUID           `gorm:"column:tenant_id;type:uuid"`
	TotalAmount       decimal.Decimal      `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CommissionAmount  decimal.Decimal      `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	CommissionPercent decimal.Decimal      `gorm:"column:commission_percent;type:numeric(5,2);not null"`
	NetPayoutAmount   decimal.Decimal      `gorm:"column:net_payout_amount;type:numeric(12,2);not null"`
	RefundableAmount  decimal.Decimal      `gorm:"column:refundable_amount;type:numeric(12,2);not null"`
	RefundedAmount    decimal.Decimal      `gorm:"column:refunded_amount;type:numeric(12,2);not null"`
	SettlementType    enums.SettlementType `gorm:"column:settlement_type;type:text;not null"`
	PayoutStatus      enums.PayoutStatus   `gorm:"column:payout_status;type:text;not null;default:'created'"`
	PayoutReference   *string              `gorm:"column:payout_reference"`
	PayoutDate        *time.Time           `gorm:"column:payout_date"`
	PayoutLocked      bool                 `gorm:"column:payout_locked;not null;default:false"`
	Version           int64                `gorm:"column:version;not null;default:0"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
