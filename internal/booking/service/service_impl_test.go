package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	availabilitydomain "github.com/smallbiznis/staybook/internal/availability/domain"
	availabilityservice "github.com/smallbiznis/staybook/internal/availability/service"
	"github.com/smallbiznis/staybook/internal/booking/bookingtest"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/booking/repository"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateSession(ctx context.Context, req paymentdomain.CreateSessionRequest) (*paymentdomain.CheckoutSession, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*paymentdomain.CheckoutSession)
	return session, args.Error(1)
}

func (m *mockGateway) RetrieveSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	session, _ := args.Get(0).(*paymentdomain.CheckoutSession)
	return session, args.Error(1)
}

func (m *mockGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*paymentdomain.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	intent, _ := args.Get(0).(*paymentdomain.PaymentIntent)
	return intent, args.Error(1)
}

func (m *mockGateway) CreateRefund(ctx context.Context, req paymentdomain.CreateRefundRequest) (*paymentdomain.Refund, error) {
	args := m.Called(ctx, req)
	refund, _ := args.Get(0).(*paymentdomain.Refund)
	return refund, args.Error(1)
}

type testEnv struct {
	svc     bookingdomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	fx      bookingtest.Fixture
	gateway *mockGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := bookingtest.NewDB(t)
	node := bookingtest.NewNode(t)
	fixture := bookingtest.Seed(t, db, node)
	repo := repository.Provide()
	gateway := &mockGateway{}
	availability := availabilityservice.NewService(availabilityservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: repo,
	})

	cfg := config.Config{PublicBaseURL: "https://stay.example.com/"}
	svc := NewService(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Cfg:          cfg,
		Repo:         repo,
		Availability: availability,
		Gateway:      gateway,
		Clock:        clock.NewFakeClock(time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)),
	})
	return &testEnv{svc: svc, db: db, node: node, fx: fixture, gateway: gateway}
}

func (e *testEnv) request() bookingdomain.CreateBookingRequest {
	return bookingdomain.CreateBookingRequest{
		PropertyID:  e.fx.Property.ID,
		GuestID:     e.fx.Guest.ID,
		CheckIn:     bookingtest.Date(2024, 6, 1),
		CheckOut:    bookingtest.Date(2024, 6, 5),
		GuestsCount: 2,
	}
}

func TestCreateOpensCheckoutSession(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(req paymentdomain.CreateSessionRequest) bool {
		return req.Amount == 20000 &&
			req.CustomerEmail == "guest@example.com" &&
			req.SuccessURL == "https://stay.example.com/booking/success?session_id={CHECKOUT_SESSION_ID}"
	})).Return(&paymentdomain.CheckoutSession{ID: "cs_new", URL: "https://checkout.stripe.com/c/cs_new"}, nil).Once()

	res, err := env.svc.Create(context.Background(), env.request())
	require.NoError(t, err)
	assert.Equal(t, "cs_new", res.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_new", res.CheckoutURL)
	assert.Equal(t, 200.0, res.Booking.TotalAmount)
	assert.Equal(t, bookingdomain.BookingStatusPending, res.Booking.Status)
	env.gateway.AssertExpectations(t)

	var stored bookingdomain.Booking
	require.NoError(t, env.db.Where("external_session_id = ?", "cs_new").First(&stored).Error)
	assert.Equal(t, env.fx.Host.ID, stored.HostID)
	assert.Equal(t, int64(20000), stored.TotalAmount)
}

func TestCreateRejectsOverlap(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Return(&paymentdomain.CheckoutSession{ID: "cs_first"}, nil).Once()

	_, err := env.svc.Create(context.Background(), env.request())
	require.NoError(t, err)

	overlapping := env.request()
	overlapping.CheckIn = bookingtest.Date(2024, 6, 4)
	overlapping.CheckOut = bookingtest.Date(2024, 6, 8)
	_, err = env.svc.Create(context.Background(), overlapping)

	var conflict *availabilitydomain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, availabilitydomain.ErrDatesUnavailable)
	assert.Len(t, conflict.Conflicts, 1)
	env.gateway.AssertNumberOfCalls(t, "CreateSession", 1)

	adjacent := env.request()
	adjacent.CheckIn = bookingtest.Date(2024, 6, 5)
	adjacent.CheckOut = bookingtest.Date(2024, 6, 7)
	env.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Return(&paymentdomain.CheckoutSession{ID: "cs_second"}, nil).Once()
	_, err = env.svc.Create(context.Background(), adjacent)
	require.NoError(t, err)
}

func TestCreateGatewayFailureLeavesPendingBooking(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Return(nil, &paymentdomain.GatewayError{Op: "create_session", StatusCode: 503, Message: "unavailable"}).Once()

	_, err := env.svc.Create(context.Background(), env.request())
	require.ErrorIs(t, err, paymentdomain.ErrGateway)

	assert.Equal(t, int64(1), bookingtest.Count(t, env.db, "bookings", "status = ? AND external_session_id IS NULL", "pending"))
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reversed := env.request()
	reversed.CheckOut = reversed.CheckIn
	_, err := env.svc.Create(ctx, reversed)
	assert.ErrorIs(t, err, bookingdomain.ErrInvalidDates)

	past := env.request()
	past.CheckIn = bookingtest.Date(2024, 5, 1)
	_, err = env.svc.Create(ctx, past)
	assert.ErrorIs(t, err, bookingdomain.ErrCheckInInPast)

	crowded := env.request()
	crowded.GuestsCount = 9
	_, err = env.svc.Create(ctx, crowded)
	assert.ErrorIs(t, err, bookingdomain.ErrInvalidGuests)

	missing := env.request()
	missing.PropertyID = 12345
	_, err = env.svc.Create(ctx, missing)
	assert.ErrorIs(t, err, bookingdomain.ErrPropertyNotFound)

	env.gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestGet(t *testing.T) {
	env := newTestEnv(t)
	booking := bookingtest.InsertBooking(t, env.db, env.node, env.fx)

	view, err := env.svc.Get(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID.String(), view.ID)
	require.NotNil(t, view.Property)
	assert.Equal(t, "Cliffside Cottage", view.Property.Title)

	_, err = env.svc.Get(context.Background(), 99)
	assert.True(t, errors.Is(err, bookingdomain.ErrBookingNotFound))
}
