package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tenant is an independent seller whose products appear in the shared
// catalog. CommissionPercent is the live rate and is only ever read at order
// placement; historical orders keep the rate they were placed with.
type Tenant struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string          `gorm:"column:name;not null"`
	OwnerUserID       uuid.UUID       `gorm:"column:owner_user_id;type:uuid;not null"`
	CommissionPercent decimal.Decimal `gorm:"column:commission_percent;type:numeric(5,2);not null"`
	PaymentAccountID  *string         `gorm:"column:payment_account_id"`
	Active            bool            `gorm:"column:active;not null;default:true"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
