package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/staybook/internal/reconciliation/domain"
	"go.uber.org/zap"
)

// HandleWebhookEvent resolves the booking by metadata, then session id, then
// payment intent id. Events for unknown bookings are acknowledged and logged.
func (e *Engine) HandleWebhookEvent(ctx context.Context, event *paymentdomain.WebhookEvent) (snowflake.ID, error) {
	if event == nil {
		return 0, paymentdomain.ErrInvalidEvent
	}
	booking, err := e.resolveEventBooking(ctx, event)
	if err != nil {
		return 0, err
	}
	if booking == nil {
		logger.WithContext(ctx, e.log).Warn("webhook did not match any booking",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("type", event.Type),
		)
		return 0, nil
	}

	switch event.Kind {
	case paymentdomain.EventKindDispute:
		return booking.ID, e.applyDispute(ctx, booking)
	case paymentdomain.EventKindPayment:
		_, err := e.ApplyEvidence(ctx, booking.ID, reconciliationdomain.Evidence{
			Source:          reconciliationdomain.SourceWebhook,
			SessionID:       event.SessionID,
			PaymentIntentID: event.PaymentIntentID,
			ProviderStatus:  event.ProviderStatus,
			Amount:          event.Amount,
		})
		return booking.ID, err
	default:
		return 0, paymentdomain.ErrInvalidEvent
	}
}

func (e *Engine) resolveEventBooking(ctx context.Context, event *paymentdomain.WebhookEvent) (*bookingdomain.Booking, error) {
	if event.BookingID != 0 {
		booking, err := e.repo.FindByID(ctx, e.db, event.BookingID)
		if err != nil || booking != nil {
			return booking, err
		}
	}
	if event.SessionID != "" {
		booking, err := e.repo.FindByExternalSessionID(ctx, e.db, event.SessionID)
		if err != nil || booking != nil {
			return booking, err
		}
	}
	if event.PaymentIntentID != "" {
		return e.repo.FindByPaymentIntentID(ctx, e.db, event.PaymentIntentID)
	}
	return nil, nil
}
