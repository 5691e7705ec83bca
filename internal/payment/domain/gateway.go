package domain

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"

	SessionPaymentStatusPaid              = "paid"
	SessionPaymentStatusUnpaid            = "unpaid"
	SessionPaymentStatusNoPaymentRequired = "no_payment_required"

	IntentStatusSucceeded             = "succeeded"
	IntentStatusProcessing            = "processing"
	IntentStatusRequiresAction        = "requires_action"
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusCanceled              = "canceled"
)

// Gateway is the payment provider as seen by the booking flows. Every call
// is idempotent on the provider side for the ids it is given.
type Gateway interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error)
}

type CreateSessionRequest struct {
	BookingID     snowflake.ID
	Amount        int64
	Currency      string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID              string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	URL             string
	Metadata        map[string]string
}

// BookingID reads the booking reference stamped on the session at creation.
func (s *CheckoutSession) BookingID() (snowflake.ID, bool) {
	if s == nil || s.Metadata == nil {
		return 0, false
	}
	id, err := snowflake.ParseString(s.Metadata["booking_id"])
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

type PaymentIntent struct {
	ID           string
	Status       string
	LatestCharge string
	Amount       int64
}

type CreateRefundRequest struct {
	PaymentIntentID string
	Amount          int64
	Reason          string
	Metadata        map[string]string
	// IdempotencyKey makes a resubmitted refund return the first refund.
	IdempotencyKey string
}

type Refund struct {
	ID     string
	Status string
	Amount int64
}

// GatewayError is a non-2xx answer from the provider.
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error { return ErrGateway }
