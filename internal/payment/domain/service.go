package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// Service ingests signed provider webhooks.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// EventHandler applies a verified, deduplicated webhook event to bookings.
// It returns the booking the event resolved to, or zero when none matched.
type EventHandler interface {
	HandleWebhookEvent(ctx context.Context, event *WebhookEvent) (snowflake.ID, error)
}
