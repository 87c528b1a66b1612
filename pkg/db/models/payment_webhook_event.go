package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentWebhookEvent marks a gateway notification as processed. The unique
// index on EventID is the idempotency barrier: the second concurrent insert
// of the same event id fails instead of duplicating settlements.
type PaymentWebhookEvent struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID     string          `gorm:"column:event_id;uniqueIndex:ux_payment_webhook_events_event_id;not null"`
	EventType   string          `gorm:"column:event_type;not null"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb"`
	ProcessedAt time.Time       `gorm:"column:processed_at;autoCreateTime"`
}
