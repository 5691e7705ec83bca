package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/booking/bookingtest"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"github.com/smallbiznis/staybook/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu      sync.Mutex
	calls   int
	resolve snowflake.ID
	err     error
}

func (h *recordingHandler) HandleWebhookEvent(ctx context.Context, event *paymentdomain.WebhookEvent) (snowflake.ID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.resolve, h.err
}

func newTestService(t *testing.T, handler paymentdomain.EventHandler) *Service {
	t.Helper()
	return NewService(Params{
		DB:      bookingtest.NewDB(t),
		Log:     zap.NewNop(),
		GenID:   bookingtest.NewNode(t),
		Repo:    repository.Provide(),
		Handler: handler,
	})
}

func paymentEvent(id string) *paymentdomain.WebhookEvent {
	return &paymentdomain.WebhookEvent{
		Provider:        "Stripe",
		ProviderEventID: id,
		Type:            "checkout.session.completed",
		Kind:            paymentdomain.EventKindPayment,
		SessionID:       "cs_1",
		ProviderStatus:  paymentdomain.ProviderStatusSucceeded,
	}
}

func TestProcessEventAppliesOnce(t *testing.T) {
	handler := &recordingHandler{resolve: 42}
	svc := newTestService(t, handler)
	ctx := context.Background()
	payload := []byte(`{"id":"evt_1"}`)

	require.NoError(t, svc.ProcessEvent(ctx, paymentEvent("evt_1"), payload))
	err := svc.ProcessEvent(ctx, paymentEvent("evt_1"), payload)
	assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
	assert.Equal(t, 1, handler.calls)

	stored, err := svc.repo.FindEvent(ctx, svc.db, "stripe", "evt_1")
	require.NoError(t, err)
	require.NotNil(t, stored.BookingID)
	assert.Equal(t, snowflake.ID(42), *stored.BookingID)
}

func TestProcessEventRetriesAfterHandlerFailure(t *testing.T) {
	handler := &recordingHandler{err: errors.New("database unavailable")}
	svc := newTestService(t, handler)
	ctx := context.Background()
	payload := []byte(`{"id":"evt_2"}`)

	require.Error(t, svc.ProcessEvent(ctx, paymentEvent("evt_2"), payload))

	handler.err = nil
	require.NoError(t, svc.ProcessEvent(ctx, paymentEvent("evt_2"), payload))
	assert.Equal(t, 2, handler.calls)

	stored, err := svc.repo.FindEvent(ctx, svc.db, "stripe", "evt_2")
	require.NoError(t, err)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Nil(t, stored.BookingID)
}

func TestProcessEventValidation(t *testing.T) {
	handler := &recordingHandler{}
	svc := newTestService(t, handler)
	ctx := context.Background()

	assert.ErrorIs(t, svc.ProcessEvent(ctx, nil, []byte(`{}`)), paymentdomain.ErrInvalidEvent)
	assert.ErrorIs(t, svc.ProcessEvent(ctx, paymentEvent("evt_3"), []byte(`not-json`)), paymentdomain.ErrInvalidPayload)

	noProvider := paymentEvent("evt_4")
	noProvider.Provider = " "
	assert.ErrorIs(t, svc.ProcessEvent(ctx, noProvider, []byte(`{}`)), paymentdomain.ErrInvalidProvider)

	noReference := paymentEvent("evt_5")
	noReference.SessionID = ""
	assert.ErrorIs(t, svc.ProcessEvent(ctx, noReference, []byte(`{}`)), paymentdomain.ErrInvalidEvent)

	dispute := &paymentdomain.WebhookEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_6",
		Type:            "charge.dispute.created",
		Kind:            paymentdomain.EventKindDispute,
	}
	assert.ErrorIs(t, svc.ProcessEvent(ctx, dispute, []byte(`{}`)), paymentdomain.ErrInvalidEvent)
	assert.Zero(t, handler.calls)
}
