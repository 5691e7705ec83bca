package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	admindomain "github.com/smallbiznis/staybook/internal/adminaction/domain"
	"github.com/smallbiznis/staybook/internal/auth"
	"github.com/smallbiznis/staybook/internal/authorization"
	availabilitydomain "github.com/smallbiznis/staybook/internal/availability/domain"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/observability"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/staybook/internal/reconciliation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakeReconcile struct {
	result    reconciliationdomain.Result
	err       error
	sessionID string
}

func (f *fakeReconcile) ApplyEvidence(ctx context.Context, bookingID snowflake.ID, evidence reconciliationdomain.Evidence) (reconciliationdomain.Result, error) {
	return f.result, f.err
}

func (f *fakeReconcile) VerifySession(ctx context.Context, sessionID string) (reconciliationdomain.Result, error) {
	f.sessionID = sessionID
	return f.result, f.err
}

type fakePayments struct {
	err      error
	provider string
}

func (f *fakePayments) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	f.provider = provider
	return f.err
}

type fakeAvailability struct {
	result availabilitydomain.Result
	err    error
	req    availabilitydomain.CheckRequest
}

func (f *fakeAvailability) Check(ctx context.Context, req availabilitydomain.CheckRequest) (availabilitydomain.Result, error) {
	f.req = req
	return f.result, f.err
}

func (f *fakeAvailability) Reserve(ctx context.Context, booking *bookingdomain.Booking) error {
	return nil
}

type fakeBookings struct {
	resp bookingdomain.CreateBookingResponse
	view bookingdomain.BookingView
	err  error
	req  bookingdomain.CreateBookingRequest
}

func (f *fakeBookings) Create(ctx context.Context, req bookingdomain.CreateBookingRequest) (bookingdomain.CreateBookingResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeBookings) Get(ctx context.Context, id snowflake.ID) (bookingdomain.BookingView, error) {
	return f.view, f.err
}

type fakeAdmin struct {
	result   admindomain.Result
	err      error
	req      admindomain.Request
	identity auth.Identity
}

func (f *fakeAdmin) Process(ctx context.Context, req admindomain.Request) (admindomain.Result, error) {
	f.req = req
	f.identity, _ = auth.IdentityFromContext(ctx)
	return f.result, f.err
}

type testServer struct {
	engine       *gin.Engine
	tokens       *auth.TokenVerifier
	reconcile    *fakeReconcile
	payments     *fakePayments
	availability *fakeAvailability
	bookings     *fakeBookings
	admin        *fakeAdmin
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	cfg := config.Config{AuthJWTSecret: "test-secret"}
	ts := &testServer{
		engine:       NewEngine(observability.Config{}, nil, zap.NewNop()),
		tokens:       auth.NewTokenVerifier(cfg),
		reconcile:    &fakeReconcile{},
		payments:     &fakePayments{},
		availability: &fakeAvailability{},
		bookings:     &fakeBookings{},
		admin:        &fakeAdmin{},
	}
	NewServer(ServerParams{
		Gin:             ts.engine,
		Cfg:             cfg,
		Log:             zap.NewNop(),
		Tokens:          ts.tokens,
		AuthzSvc:        authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		AvailabilitySvc: ts.availability,
		BookingSvc:      ts.bookings,
		ReconcileSvc:    ts.reconcile,
		PaymentSvc:      ts.payments,
		AdminSvc:        ts.admin,
	})
	return ts
}

func (ts *testServer) token(t *testing.T, userID snowflake.ID, role string) string {
	t.Helper()
	token, err := ts.tokens.Issue(auth.Identity{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func errorBody(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error payload: %v", body)
	return payload
}

func TestVerifyPaymentStillProcessing(t *testing.T) {
	ts := newTestServer(t)
	ts.reconcile.result = reconciliationdomain.Result{
		Success:       false,
		Processing:    true,
		PaymentStatus: bookingdomain.PaymentStatusProcessing,
	}

	rec, body := ts.do(t, http.MethodPost, "/api/payments/verify", map[string]string{"session_id": " cs_123 "}, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["processing"])
	assert.Equal(t, "processing", body["payment_status"])
	assert.Equal(t, "cs_123", ts.reconcile.sessionID)
}

func TestVerifyPaymentSettled(t *testing.T) {
	ts := newTestServer(t)
	ts.reconcile.result = reconciliationdomain.Result{
		Success:       true,
		PaymentStatus: bookingdomain.PaymentStatusPaid,
		Booking:       &bookingdomain.BookingView{ID: "42", Status: bookingdomain.BookingStatusConfirmed, PaymentStatus: bookingdomain.PaymentStatusPaid},
	}

	rec, body := ts.do(t, http.MethodPost, "/api/payments/verify", map[string]string{"session_id": "cs_123"}, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	booking := body["booking"].(map[string]any)
	assert.Equal(t, "confirmed", booking["status"])
}

func TestVerifyPaymentErrors(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/payments/verify", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := errorBody(t, body)
	assert.Equal(t, "validation_error", payload["type"])
	fields := payload["errors"].([]any)
	require.Len(t, fields, 1)
	assert.Equal(t, "session_id", fields[0].(map[string]any)["field"])

	ts.reconcile.err = paymentdomain.ErrSessionNotFound
	rec, _ = ts.do(t, http.MethodPost, "/api/payments/verify", map[string]string{"session_id": "cs_missing"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.reconcile.err = bookingdomain.ErrBookingNotFound
	rec, _ = ts.do(t, http.MethodPost, "/api/payments/verify", map[string]string{"session_id": "cs_orphan"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.reconcile.err = &paymentdomain.GatewayError{Op: "retrieve_session", StatusCode: http.StatusBadGateway, Message: "upstream unavailable"}
	rec, body = ts.do(t, http.MethodPost, "/api/payments/verify", map[string]string{"session_id": "cs_1"}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "payment_gateway_error", errorBody(t, body)["type"])
}

func TestPaymentWebhook(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/payments/webhooks/stripe", map[string]string{"id": "evt_1"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "stripe", ts.payments.provider)

	ts.payments.err = paymentdomain.ErrEventAlreadyProcessed
	rec, _ = ts.do(t, http.MethodPost, "/api/payments/webhooks/stripe", map[string]string{"id": "evt_1"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.payments.err = paymentdomain.ErrInvalidSignature
	rec, body = ts.do(t, http.MethodPost, "/api/payments/webhooks/stripe", map[string]string{"id": "evt_2"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorBody(t, body)["type"])

	ts.payments.err = paymentdomain.ErrProviderNotFound
	rec, _ = ts.do(t, http.MethodPost, "/api/payments/webhooks/paypal", map[string]string{"id": "evt_3"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckAvailability(t *testing.T) {
	ts := newTestServer(t)
	ts.availability.result = availabilitydomain.Result{
		Available: false,
		Conflicts: []availabilitydomain.DateRange{{
			CheckIn:  time.Date(2030, time.June, 3, 0, 0, 0, 0, time.UTC),
			CheckOut: time.Date(2030, time.June, 6, 0, 0, 0, 0, time.UTC),
		}},
	}

	rec, body := ts.do(t, http.MethodPost, "/api/bookings/check-availability", map[string]string{
		"property_id": "1001",
		"check_in":    "2030-06-01",
		"check_out":   "2030-06-05",
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["available"])
	conflicts := body["conflicts"].([]any)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "2030-06-03", conflicts[0].(map[string]any)["check_in"])
	assert.Equal(t, snowflake.ID(1001), ts.availability.req.PropertyID)
	assert.True(t, ts.availability.req.CheckIn.Equal(time.Date(2030, time.June, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCheckAvailabilityEmptyConflictsIsArray(t *testing.T) {
	ts := newTestServer(t)
	ts.availability.result = availabilitydomain.Result{Available: true}

	rec, body := ts.do(t, http.MethodPost, "/api/bookings/check-availability", map[string]string{
		"property_id": "1001",
		"check_in":    "2030-06-01",
		"check_out":   "2030-06-05",
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["available"])
	assert.Equal(t, []any{}, body["conflicts"])
}

func TestCheckAvailabilityValidation(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/bookings/check-availability", map[string]string{
		"property_id": "1001",
		"check_in":    "06/01/2030",
		"check_out":   "2030-06-05",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := errorBody(t, body)["errors"].([]any)
	require.Len(t, fields, 1)
	assert.Equal(t, "check_in", fields[0].(map[string]any)["field"])
	assert.Equal(t, "date_only", fields[0].(map[string]any)["code"])

	ts.availability.err = availabilitydomain.ErrInvalidRange
	rec, body = ts.do(t, http.MethodPost, "/api/bookings/check-availability", map[string]string{
		"property_id": "1001",
		"check_in":    "2030-06-05",
		"check_out":   "2030-06-01",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields = errorBody(t, body)["errors"].([]any)
	assert.Equal(t, "dates", fields[0].(map[string]any)["field"])
}

func TestCreateBookingAuthentication(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{
		"property_id":  "1001",
		"check_in":     "2030-06-01",
		"check_out":    "2030-06-05",
		"guests_count": 2,
	}

	rec, _ := ts.do(t, http.MethodPost, "/api/bookings", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/bookings", body, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/bookings", body, ts.token(t, 5, auth.RoleHost))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBooking(t *testing.T) {
	ts := newTestServer(t)
	ts.bookings.resp = bookingdomain.CreateBookingResponse{
		Booking:     bookingdomain.BookingView{ID: "900", Status: bookingdomain.BookingStatusPending, PaymentStatus: bookingdomain.PaymentStatusPending},
		CheckoutURL: "https://checkout.stripe.test/cs_900",
		SessionID:   "cs_900",
	}

	rec, body := ts.do(t, http.MethodPost, "/api/bookings", map[string]any{
		"property_id":  "1001",
		"check_in":     "2030-06-01",
		"check_out":    "2030-06-05",
		"guests_count": 2,
	}, ts.token(t, 77, auth.RoleGuest))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "cs_900", body["session_id"])
	assert.Equal(t, snowflake.ID(77), ts.bookings.req.GuestID)
	assert.Equal(t, snowflake.ID(1001), ts.bookings.req.PropertyID)
	assert.Equal(t, 2, ts.bookings.req.GuestsCount)
}

func TestCreateBookingConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.bookings.err = &availabilitydomain.ConflictError{Conflicts: []availabilitydomain.DateRange{{
		CheckIn:  time.Date(2030, time.June, 2, 0, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2030, time.June, 4, 0, 0, 0, 0, time.UTC),
	}}}

	rec, body := ts.do(t, http.MethodPost, "/api/bookings", map[string]any{
		"property_id":  "1001",
		"check_in":     "2030-06-01",
		"check_out":    "2030-06-05",
		"guests_count": 2,
	}, ts.token(t, 77, auth.RoleGuest))

	require.Equal(t, http.StatusConflict, rec.Code)
	payload := errorBody(t, body)
	assert.Equal(t, "conflict", payload["type"])
	conflicts := payload["conflicts"].([]any)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "2030-06-04", conflicts[0].(map[string]any)["check_out"])
}

func TestGetBookingVisibility(t *testing.T) {
	ts := newTestServer(t)
	ts.bookings.view = bookingdomain.BookingView{ID: "900", GuestID: "77", HostID: "5", Status: bookingdomain.BookingStatusConfirmed}

	rec, body := ts.do(t, http.MethodGet, "/api/bookings/900", nil, ts.token(t, 77, auth.RoleGuest))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "900", body["booking"].(map[string]any)["id"])

	rec, _ = ts.do(t, http.MethodGet, "/api/bookings/900", nil, ts.token(t, 5, auth.RoleHost))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/bookings/900", nil, ts.token(t, 1, auth.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/bookings/900", nil, ts.token(t, 78, auth.RoleGuest))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/bookings/abc", nil, ts.token(t, 77, auth.RoleGuest))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminBookingAction(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.result = admindomain.Result{Success: true, Message: "Refund of 50.00 USD processed", RefundID: "re_1"}

	rec, body := ts.do(t, http.MethodPost, "/api/admin/bookings", map[string]any{
		"booking_id":    "42",
		"action":        "refund",
		"reason":        "guest request",
		"refund_amount": 50.0,
	}, ts.token(t, 1, auth.RoleAdmin))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "re_1", body["refund_id"])
	assert.Equal(t, snowflake.ID(42), ts.admin.req.BookingID)
	assert.Equal(t, admindomain.ActionRefund, ts.admin.req.Action)
	assert.InDelta(t, 50.0, ts.admin.req.RefundAmount, 0.0001)
	assert.Equal(t, snowflake.ID(1), ts.admin.identity.UserID)
}

func TestAdminBookingActionErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"forbidden", admindomain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"invalid action", admindomain.ErrInvalidAction, http.StatusBadRequest, "validation_error"},
		{"invalid refund amount", admindomain.ErrInvalidRefundAmount, http.StatusBadRequest, "validation_error"},
		{"exceeds total", admindomain.ErrRefundExceedsTotal, http.StatusBadRequest, "validation_error"},
		{"missing intent", admindomain.ErrMissingPaymentIntent, http.StatusBadRequest, "validation_error"},
		{"not found", bookingdomain.ErrBookingNotFound, http.StatusNotFound, "not_found"},
		{"illegal transition", admindomain.ErrIllegalTransition, http.StatusConflict, "conflict"},
		{"refund required", admindomain.ErrRefundRequired, http.StatusConflict, "conflict"},
		{"payment in flight", admindomain.ErrPaymentInFlight, http.StatusConflict, "conflict"},
		{"not refundable", admindomain.ErrNotRefundable, http.StatusConflict, "conflict"},
		{"in progress", admindomain.ErrRefundInProgress, http.StatusConflict, "conflict"},
		{"gateway", &paymentdomain.GatewayError{Op: "create_refund", StatusCode: http.StatusBadGateway, Message: "upstream unavailable"}, http.StatusInternalServerError, "payment_gateway_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.admin.err = tc.err

			rec, body := ts.do(t, http.MethodPost, "/api/admin/bookings", map[string]any{
				"booking_id": "42",
				"action":     "cancel",
			}, ts.token(t, 1, auth.RoleAdmin))

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.typ, errorBody(t, body)["type"])
		})
	}
}

func TestAdminRefundUpdateFailedCarriesRefundID(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.err = &admindomain.RefundUpdateFailedError{BookingID: 42, RefundID: "re_orphan", Err: gorm.ErrInvalidDB}

	rec, body := ts.do(t, http.MethodPost, "/api/admin/bookings", map[string]any{
		"booking_id":    "42",
		"action":        "refund",
		"refund_amount": 10,
	}, ts.token(t, 1, auth.RoleAdmin))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	payload := errorBody(t, body)
	assert.Equal(t, "refund processed but booking update failed", payload["message"])
	assert.Equal(t, "re_orphan", payload["refund_id"])
}

func TestAdminBookingActionRequiresTokenAndID(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/admin/bookings", map[string]any{"booking_id": "42", "action": "cancel"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := ts.do(t, http.MethodPost, "/api/admin/bookings", map[string]any{"booking_id": "nope", "action": "cancel"}, ts.token(t, 1, auth.RoleAdmin))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := errorBody(t, body)["errors"].([]any)
	assert.Equal(t, "booking_id", fields[0].(map[string]any)["field"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodGet, "/api/nothing-here", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorBody(t, body)["type"])
}
