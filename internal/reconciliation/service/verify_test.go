package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/staybook/internal/booking/bookingtest"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/staybook/internal/reconciliation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(bookingID string, status, paymentStatus, intentID string) *paymentdomain.CheckoutSession {
	return &paymentdomain.CheckoutSession{
		ID:              "cs_1",
		Status:          status,
		PaymentStatus:   paymentStatus,
		PaymentIntentID: intentID,
		AmountTotal:     20000,
		Currency:        "USD",
		Metadata:        map[string]string{"booking_id": bookingID},
	}
}

func TestVerifySessionSettlesAfterPolling(t *testing.T) {
	h := newHarness(t)
	booking := bookingtest.InsertBooking(t, h.db, h.node, h.fx)
	h.gateway.sessions = []*paymentdomain.CheckoutSession{
		session(booking.ID.String(), paymentdomain.SessionStatusOpen, paymentdomain.SessionPaymentStatusUnpaid, "pi_1"),
		session(booking.ID.String(), paymentdomain.SessionStatusOpen, paymentdomain.SessionPaymentStatusUnpaid, "pi_1"),
		session(booking.ID.String(), paymentdomain.SessionStatusComplete, paymentdomain.SessionPaymentStatusPaid, "pi_1"),
	}

	res, err := h.engine.VerifySession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, bookingdomain.PaymentStatusPaid, res.PaymentStatus)
	assert.Equal(t, 3, h.gateway.sessionCalls)
	assert.Len(t, h.clock.Sleeps(), 2)
	assert.Equal(t, bookingdomain.BookingStatusConfirmed, bookingtest.MustFind(t, h.db, booking.ID).Status)
}

func TestVerifySessionExhaustsPolling(t *testing.T) {
	h := newHarness(t)
	booking := bookingtest.InsertBooking(t, h.db, h.node, h.fx)
	h.gateway.sessions = []*paymentdomain.CheckoutSession{
		session(booking.ID.String(), paymentdomain.SessionStatusOpen, paymentdomain.SessionPaymentStatusUnpaid, "pi_1"),
	}

	res, err := h.engine.VerifySession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Processing)
	assert.Equal(t, 5, h.gateway.sessionCalls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, h.clock.Sleeps())

	notified, _ := h.sink.counts()
	assert.Zero(t, notified)
}

func TestVerifySessionCancelledContextWritesNothing(t *testing.T) {
	h := newHarness(t)
	booking := bookingtest.InsertBooking(t, h.db, h.node, h.fx)
	h.gateway.sessions = []*paymentdomain.CheckoutSession{
		session(booking.ID.String(), paymentdomain.SessionStatusOpen, paymentdomain.SessionPaymentStatusUnpaid, "pi_1"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.engine.VerifySession(ctx, "cs_1")
	require.ErrorIs(t, err, context.Canceled)

	stored := bookingtest.MustFind(t, h.db, booking.ID)
	assert.Equal(t, bookingdomain.PaymentStatusPending, stored.PaymentStatus)
	assert.Nil(t, stored.ExternalSessionID)
}

func TestVerifySessionTieBreakToleratesIntentFailure(t *testing.T) {
	h := newHarness(t)
	booking := bookingtest.InsertBooking(t, h.db, h.node, h.fx)
	h.gateway.sessions = []*paymentdomain.CheckoutSession{
		session(booking.ID.String(), paymentdomain.SessionStatusOpen, paymentdomain.SessionPaymentStatusPaid, "pi_1"),
	}
	h.gateway.intentErr = errors.New("stripe down")

	res, err := h.engine.VerifySession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, h.gateway.sessionCalls)
	assert.Empty(t, h.clock.Sleeps())
}

func TestVerifySessionNotFound(t *testing.T) {
	h := newHarness(t)
	h.gateway.sessionErr = paymentdomain.ErrSessionNotFound

	_, err := h.engine.VerifySession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, paymentdomain.ErrSessionNotFound)

	_, err = h.engine.VerifySession(context.Background(), " ")
	assert.ErrorIs(t, err, reconciliationdomain.ErrInvalidSession)
}

func TestVerifySessionFallsBackToStampedSession(t *testing.T) {
	h := newHarness(t)
	booking := bookingtest.InsertBooking(t, h.db, h.node, h.fx, bookingtest.WithSession("cs_1"))
	h.gateway.sessions = []*paymentdomain.CheckoutSession{
		session("", paymentdomain.SessionStatusComplete, paymentdomain.SessionPaymentStatusPaid, "pi_1"),
	}

	res, err := h.engine.VerifySession(context.Background(), "cs_1")
	require.NoError(t, err)
	require.NotNil(t, res.Booking)
	assert.Equal(t, booking.ID.String(), res.Booking.ID)
}

func TestLateWebhookAfterVerify(t *testing.T) {
	h := newHarness(t)
	booking := bookingtest.InsertBooking(t, h.db, h.node, h.fx)
	h.gateway.sessions = []*paymentdomain.CheckoutSession{
		session(booking.ID.String(), paymentdomain.SessionStatusComplete, paymentdomain.SessionPaymentStatusPaid, "pi_1"),
	}

	_, err := h.engine.VerifySession(context.Background(), "cs_1")
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	resolved, err := h.engine.HandleWebhookEvent(context.Background(), &paymentdomain.WebhookEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		Type:            "checkout.session.completed",
		Kind:            paymentdomain.EventKindPayment,
		SessionID:       "cs_1",
		PaymentIntentID: "pi_1",
		ProviderStatus:  paymentdomain.ProviderStatusSucceeded,
		Amount:          20000,
	})
	require.NoError(t, err)
	assert.Equal(t, booking.ID, resolved)

	notified, emailed := h.sink.counts()
	assert.Equal(t, 2, notified)
	assert.Equal(t, 2, emailed)
}

func TestWebhookDisputeMarksPaidBooking(t *testing.T) {
	h := newHarness(t)
	booking := bookingtest.InsertBooking(t, h.db, h.node, h.fx,
		bookingtest.WithStatus(bookingdomain.BookingStatusConfirmed, bookingdomain.PaymentStatusPaid),
		bookingtest.WithPaymentIntent("pi_9"),
	)

	resolved, err := h.engine.HandleWebhookEvent(context.Background(), &paymentdomain.WebhookEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_dp",
		Type:            "charge.dispute.created",
		Kind:            paymentdomain.EventKindDispute,
		PaymentIntentID: "pi_9",
	})
	require.NoError(t, err)
	assert.Equal(t, booking.ID, resolved)
	assert.Equal(t, bookingdomain.PaymentStatusDisputed, bookingtest.MustFind(t, h.db, booking.ID).PaymentStatus)

	notified, _ := h.sink.counts()
	assert.Equal(t, 1, notified)
}

func TestWebhookForUnknownBookingIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	resolved, err := h.engine.HandleWebhookEvent(context.Background(), &paymentdomain.WebhookEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_unknown",
		Kind:            paymentdomain.EventKindPayment,
		SessionID:       "cs_unknown",
		ProviderStatus:  paymentdomain.ProviderStatusSucceeded,
	})
	require.NoError(t, err)
	assert.Zero(t, resolved)
}
