package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bazario/bazario-backend/pkg/enums"
)

// WalletTransaction is an append-only record of one wallet balance change.
type WalletTransaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID    uuid.UUID               `gorm:"column:wallet_id;type:uuid;not null"`
	Amount      decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Type        enums.TransactionType   `gorm:"column:type;type:text;not null"`
	Source      enums.TransactionSource `gorm:"column:source;type:text;not null"`
	ReferenceID string                  `gorm:"column:reference_id"`
	Description string                  `gorm:"column:description"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}
