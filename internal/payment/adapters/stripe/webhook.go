package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
)

const providerName = "stripe"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.WebhookAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{
		webhookSecret: secret,
		tolerance:     cfg.Tolerance,
		now:           time.Now,
	}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	if a.tolerance > 0 {
		unix, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return paymentdomain.ErrInvalidSignature
		}
		age := a.now().Sub(time.Unix(unix, 0))
		if age < 0 {
			age = -age
		}
		if age > a.tolerance {
			return paymentdomain.ErrInvalidSignature
		}
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventType := strings.TrimSpace(event.Type)
	switch eventType {
	case "checkout.session.completed":
		return a.parseSession(event, payload, "")
	case "checkout.session.async_payment_succeeded":
		return a.parseSession(event, payload, paymentdomain.ProviderStatusSucceeded)
	case "checkout.session.async_payment_failed":
		return a.parseSession(event, payload, paymentdomain.ProviderStatusFailed)
	case "checkout.session.expired":
		return a.parseSession(event, payload, paymentdomain.ProviderStatusCanceled)
	case "payment_intent.succeeded":
		return a.parsePaymentIntent(event, payload, paymentdomain.ProviderStatusSucceeded)
	case "payment_intent.processing":
		return a.parsePaymentIntent(event, payload, paymentdomain.ProviderStatusProcessing)
	case "payment_intent.requires_action":
		return a.parsePaymentIntent(event, payload, paymentdomain.ProviderStatusRequiresAction)
	case "payment_intent.payment_failed":
		return a.parsePaymentIntent(event, payload, paymentdomain.ProviderStatusFailed)
	case "payment_intent.canceled":
		return a.parsePaymentIntent(event, payload, paymentdomain.ProviderStatusCanceled)
	case "charge.dispute.created":
		return a.parseDispute(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSession struct {
	ID                string         `json:"id"`
	Status            string         `json:"status"`
	PaymentStatus     string         `json:"payment_status"`
	PaymentIntent     expandableID   `json:"payment_intent"`
	AmountTotal       int64          `json:"amount_total"`
	Currency          string         `json:"currency"`
	ClientReferenceID string         `json:"client_reference_id"`
	Created           int64          `json:"created"`
	Metadata          map[string]any `json:"metadata"`
}

type stripePaymentIntent struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Amount         int64          `json:"amount"`
	AmountReceived int64          `json:"amount_received"`
	Currency       string         `json:"currency"`
	LatestCharge   expandableID   `json:"latest_charge"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

type stripeDispute struct {
	ID            string         `json:"id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Reason        string         `json:"reason"`
	PaymentIntent expandableID   `json:"payment_intent"`
	Created       int64          `json:"created"`
	Metadata      map[string]any `json:"metadata"`
}

// expandableID decodes a Stripe reference that is either an id string or an
// expanded object carrying an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*e = ""
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*e = expandableID(obj.ID)
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*e = expandableID(id)
	return nil
}

func (a *Adapter) parseSession(event stripeEvent, payload []byte, status paymentdomain.ProviderStatus) (*paymentdomain.WebhookEvent, error) {
	var session stripeSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	if status == "" {
		// A completed session with a delayed method is not yet paid.
		switch session.PaymentStatus {
		case paymentdomain.SessionPaymentStatusPaid, paymentdomain.SessionPaymentStatusNoPaymentRequired:
			status = paymentdomain.ProviderStatusSucceeded
		default:
			status = paymentdomain.ProviderStatusProcessing
		}
	}

	bookingID := parseBookingID(session.Metadata)
	if bookingID == 0 {
		bookingID = parseID(session.ClientReferenceID)
	}

	return &paymentdomain.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: event.ID,
		Type:            event.Type,
		Kind:            paymentdomain.EventKindPayment,
		BookingID:       bookingID,
		SessionID:       session.ID,
		PaymentIntentID: string(session.PaymentIntent),
		ProviderStatus:  status,
		Amount:          session.AmountTotal,
		Currency:        strings.ToUpper(strings.TrimSpace(session.Currency)),
		OccurredAt:      timestamp(session.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) parsePaymentIntent(event stripeEvent, payload []byte, status paymentdomain.ProviderStatus) (*paymentdomain.WebhookEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	return &paymentdomain.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: event.ID,
		Type:            event.Type,
		Kind:            paymentdomain.EventKindPayment,
		BookingID:       parseBookingID(intent.Metadata),
		PaymentIntentID: intent.ID,
		ProviderStatus:  status,
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:      timestamp(intent.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) parseDispute(event stripeEvent, payload []byte) (*paymentdomain.WebhookEvent, error) {
	var dispute stripeDispute
	if err := json.Unmarshal(event.Data.Object, &dispute); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(dispute.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: event.ID,
		Type:            event.Type,
		Kind:            paymentdomain.EventKindDispute,
		BookingID:       parseBookingID(dispute.Metadata),
		PaymentIntentID: string(dispute.PaymentIntent),
		Amount:          dispute.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(dispute.Currency)),
		OccurredAt:      timestamp(dispute.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func parseBookingID(metadata map[string]any) snowflake.ID {
	return parseID(readMetadataValue(metadata, "booking_id"))
}

func parseID(raw string) snowflake.ID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}
