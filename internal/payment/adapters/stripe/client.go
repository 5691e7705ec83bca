package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/staybook/internal/config"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type checkoutSessionResponse struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent expandableID      `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	URL           string            `json:"url"`
	Metadata      map[string]string `json:"metadata"`
}

// Client is the Stripe REST gateway. Requests are form encoded and writes
// carry an Idempotency-Key.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.Config) paymentdomain.Gateway {
	return newClient(cfg.Stripe.SecretKey, cfg.Stripe.BaseURL, &http.Client{Timeout: 12 * time.Second})
}

func newClient(apiKey string, baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		client:  httpClient,
	}
}

func (c *Client) CreateSession(ctx context.Context, req paymentdomain.CreateSessionRequest) (*paymentdomain.CheckoutSession, error) {
	if req.BookingID == 0 || req.Amount <= 0 || strings.TrimSpace(req.Currency) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	bookingID := req.BookingID.String()
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Booking " + bookingID
	}

	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("client_reference_id", bookingID)
	values.Set("success_url", req.SuccessURL)
	values.Set("cancel_url", req.CancelURL)
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	values.Set("line_items[0][price_data][product_data][name]", description)
	values.Set("metadata[booking_id]", bookingID)
	values.Set("payment_intent_data[metadata][booking_id]", bookingID)
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		values.Set("customer_email", email)
	}

	var resp checkoutSessionResponse
	if err := c.doRequest(ctx, "create_session", http.MethodPost, "/v1/checkout/sessions", values, "checkout:"+bookingID, &resp); err != nil {
		return nil, err
	}
	return toSession(resp), nil
}

func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, paymentdomain.ErrSessionNotFound
	}
	var resp checkoutSessionResponse
	err := c.doRequest(ctx, "retrieve_session", http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, "", &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, paymentdomain.ErrSessionNotFound
		}
		return nil, err
	}
	return toSession(resp), nil
}

func (c *Client) RetrievePaymentIntent(ctx context.Context, intentID string) (*paymentdomain.PaymentIntent, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, paymentdomain.ErrIntentNotFound
	}
	var resp stripePaymentIntent
	err := c.doRequest(ctx, "retrieve_payment_intent", http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil, "", &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, paymentdomain.ErrIntentNotFound
		}
		return nil, err
	}
	return &paymentdomain.PaymentIntent{
		ID:           resp.ID,
		Status:       resp.Status,
		LatestCharge: string(resp.LatestCharge),
		Amount:       resp.Amount,
	}, nil
}

func (c *Client) CreateRefund(ctx context.Context, req paymentdomain.CreateRefundRequest) (*paymentdomain.Refund, error) {
	if strings.TrimSpace(req.PaymentIntentID) == "" || req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidConfig
	}
	values := url.Values{}
	values.Set("payment_intent", req.PaymentIntentID)
	values.Set("amount", strconv.FormatInt(req.Amount, 10))
	values.Set("reason", "requested_by_customer")
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		values.Set("metadata[reason]", reason)
	}
	for key, value := range req.Metadata {
		values.Set("metadata["+key+"]", value)
	}

	var resp stripeRefund
	if err := c.doRequest(ctx, "create_refund", http.MethodPost, "/v1/refunds", values, req.IdempotencyKey, &resp); err != nil {
		return nil, err
	}
	return &paymentdomain.Refund{ID: resp.ID, Status: resp.Status, Amount: resp.Amount}, nil
}

func (c *Client) doRequest(
	ctx context.Context,
	op string,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if c.apiKey == "" {
		return paymentdomain.ErrInvalidConfig
	}
	var bodyReader *strings.Reader
	if values != nil {
		bodyReader = strings.NewReader(values.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &paymentdomain.GatewayError{Op: "stripe " + op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		message := "stripe_request_failed"
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err == nil {
			if m := strings.TrimSpace(stripeErr.Error.Message); m != "" {
				message = m
			}
		}
		return &paymentdomain.GatewayError{Op: "stripe " + op, StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &paymentdomain.GatewayError{Op: "stripe " + op, StatusCode: resp.StatusCode, Message: "stripe_response_invalid"}
	}
	return nil
}

func toSession(resp checkoutSessionResponse) *paymentdomain.CheckoutSession {
	return &paymentdomain.CheckoutSession{
		ID:              resp.ID,
		Status:          resp.Status,
		PaymentStatus:   resp.PaymentStatus,
		PaymentIntentID: string(resp.PaymentIntent),
		AmountTotal:     resp.AmountTotal,
		Currency:        strings.ToUpper(resp.Currency),
		URL:             resp.URL,
		Metadata:        resp.Metadata,
	}
}

func isNotFound(err error) bool {
	var gatewayErr *paymentdomain.GatewayError
	return errors.As(err, &gatewayErr) && gatewayErr.StatusCode == http.StatusNotFound
}
