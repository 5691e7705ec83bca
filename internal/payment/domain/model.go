package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the dedup row for one provider webhook delivery.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	BookingID       *snowflake.ID  `json:"booking_id"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// ProviderStatus is the provider-reported payment state carried by evidence.
type ProviderStatus string

const (
	ProviderStatusSucceeded      ProviderStatus = "succeeded"
	ProviderStatusProcessing     ProviderStatus = "processing"
	ProviderStatusRequiresAction ProviderStatus = "requires_action"
	ProviderStatusFailed         ProviderStatus = "failed"
	ProviderStatusCanceled       ProviderStatus = "canceled"
)

type EventKind string

const (
	EventKindPayment EventKind = "payment"
	EventKindDispute EventKind = "dispute"
)

// WebhookEvent is the canonical event parsed by provider adapters.
type WebhookEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	Kind            EventKind
	BookingID       snowflake.ID
	SessionID       string
	PaymentIntentID string
	ProviderStatus  ProviderStatus
	Amount          int64
	Currency        string
	OccurredAt      time.Time
	RawPayload      []byte
}
