package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bazario/bazario-backend/pkg/enums"
)

// Order is a customer order that may span multiple tenants.
type Order struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerUserID      uuid.UUID            `gorm:"column:buyer_user_id;type:uuid;not null"`
	TotalAmount      decimal.Decimal      `gorm:"column:total_amount;type:numeric(12,2);not null"`
	PaymentStatus    enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentReference *string              `gorm:"column:payment_reference"`
	SettlementType   enums.SettlementType `gorm:"column:settlement_type;type:text;not null"`
	PrimaryTenantID  *uuid.UUID           `gorm:"column:primary_tenant_id;type:uuid"`
	Items            []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
