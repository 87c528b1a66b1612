package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is the per-line financial snapshot frozen at order placement.
// Gross, commission and net are computed once from the tenant's commission
// rate at purchase time and are never recomputed, so later rate changes
// cannot rewrite history. A nil TenantID marks a platform-owned item.
type OrderItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	TenantID          *uuid.UUID      `gorm:"column:tenant_id;type:uuid"`
	ProductName       string          `gorm:"column:product_name;not null"`
	UnitPrice         decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity          int             `gorm:"column:quantity;not null"`
	GrossAmount       decimal.Decimal `gorm:"column:gross_amount;type:numeric(12,2);not null"`
	CommissionPercent decimal.Decimal `gorm:"column:commission_percent;type:numeric(5,2);not null"`
	CommissionAmount  decimal.Decimal `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	NetAmount         decimal.Decimal `gorm:"column:net_amount;type:numeric(12,2);not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}
