package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's internal balance. One wallet per user, created
// lazily on first credit or debit. Balance always equals the signed sum of
// the wallet's transactions.
type Wallet struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerUserID uuid.UUID       `gorm:"column:owner_user_id;type:uuid;uniqueIndex:ux_wallets_owner_user_id;not null"`
	Balance     decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null"`
	LastUpdated time.Time       `gorm:"column:last_updated;autoUpdateTime"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
