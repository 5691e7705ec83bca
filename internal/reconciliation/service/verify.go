package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/staybook/internal/reconciliation/domain"
	"go.uber.org/zap"
)

// VerifySession polls the checkout session with a bounded, fixed backoff.
// A cancelled context aborts before any write.
func (e *Engine) VerifySession(ctx context.Context, sessionID string) (reconciliationdomain.Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return reconciliationdomain.Result{}, reconciliationdomain.ErrInvalidSession
	}

	cfg := e.config.Get()
	attempts := cfg.PollAttempts
	if attempts <= 0 {
		attempts = 1
	}
	log := logger.WithContext(ctx, e.log).With(zap.String("session_id", sessionID))

	var (
		session *paymentdomain.CheckoutSession
		intent  *paymentdomain.PaymentIntent
		status  paymentdomain.ProviderStatus
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		session, err = e.gateway.RetrieveSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, paymentdomain.ErrSessionNotFound) {
				return reconciliationdomain.Result{}, paymentdomain.ErrSessionNotFound
			}
			return reconciliationdomain.Result{}, err
		}

		intent = nil
		if session.PaymentIntentID != "" {
			intent, err = e.gateway.RetrievePaymentIntent(ctx, session.PaymentIntentID)
			if err != nil {
				// The session alone may still prove settlement.
				log.Warn("payment intent lookup failed", zap.String("payment_intent_id", session.PaymentIntentID), zap.Error(err))
				intent = nil
			}
		}

		status = reconciliationdomain.DeriveStatus(session, intent)
		if !reconciliationdomain.IsPending(status) || attempt == attempts {
			break
		}
		log.Debug("payment still pending, polling again", zap.Int("attempt", attempt), zap.Duration("backoff", cfg.PollBackoff))
		if err := e.clock.Sleep(ctx, cfg.PollBackoff); err != nil {
			return reconciliationdomain.Result{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return reconciliationdomain.Result{}, err
	}

	bookingID, err := e.resolveSessionBooking(ctx, session)
	if err != nil {
		return reconciliationdomain.Result{}, err
	}

	intentID := session.PaymentIntentID
	if intentID == "" && intent != nil {
		intentID = intent.ID
	}
	return e.ApplyEvidence(ctx, bookingID, reconciliationdomain.Evidence{
		Source:          reconciliationdomain.SourceVerifyPoll,
		SessionID:       session.ID,
		PaymentIntentID: intentID,
		ProviderStatus:  status,
		Amount:          session.AmountTotal,
	})
}

func (e *Engine) resolveSessionBooking(ctx context.Context, session *paymentdomain.CheckoutSession) (snowflake.ID, error) {
	if id, ok := session.BookingID(); ok {
		return id, nil
	}
	booking, err := e.repo.FindByExternalSessionID(ctx, e.db, session.ID)
	if err != nil {
		return 0, err
	}
	if booking == nil {
		return 0, bookingdomain.ErrBookingNotFound
	}
	return booking.ID, nil
}
