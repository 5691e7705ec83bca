package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
)

type Source string

const (
	SourceWebhook    Source = "webhook"
	SourceVerifyPoll Source = "verify_poll"
)

type Outcome string

const (
	// OutcomeTransitioned means this caller's conditional update changed the row.
	OutcomeTransitioned Outcome = "transitioned"
	// OutcomeNoOp means the row already reflected the evidence or may no longer move.
	OutcomeNoOp Outcome = "no_op"
)

const (
	WarnSettledOnCancelled        = "settled_on_cancelled_booking"
	WarnBookingDetailsUnavailable = "booking_details_unavailable"
	WarnLedgerWriteFailed         = "ledger_write_failed"
)

var (
	ErrInvalidEvidence = errors.New("invalid_evidence")
	ErrInvalidSession  = errors.New("invalid_session")
)

// Evidence is one observation of the provider's view of a payment.
type Evidence struct {
	Source          Source
	SessionID       string
	PaymentIntentID string
	ProviderStatus  paymentdomain.ProviderStatus
	Amount          int64
}

type Result struct {
	Success       bool                        `json:"success"`
	Outcome       Outcome                     `json:"-"`
	PaymentStatus bookingdomain.PaymentStatus `json:"payment_status"`
	Processing    bool                        `json:"processing,omitempty"`
	Message       string                      `json:"message,omitempty"`
	Booking       *bookingdomain.BookingView  `json:"booking,omitempty"`
	Warnings      []string                    `json:"warnings,omitempty"`
}

type Service interface {
	// ApplyEvidence converges the booking to the evidence exactly once.
	// Side effects run only for the caller whose update changed the row.
	ApplyEvidence(ctx context.Context, bookingID snowflake.ID, evidence Evidence) (Result, error)
	// VerifySession polls the gateway for a checkout session and applies
	// whatever evidence is current once polling settles or runs out.
	VerifySession(ctx context.Context, sessionID string) (Result, error)
}

// IsSettled is the tie-break across independently observed signals: any one
// of them reporting settlement is proof of payment.
func IsSettled(session *paymentdomain.CheckoutSession, intent *paymentdomain.PaymentIntent) bool {
	if session != nil {
		if session.PaymentStatus == paymentdomain.SessionPaymentStatusPaid ||
			session.Status == paymentdomain.SessionStatusComplete {
			return true
		}
	}
	return intent != nil && intent.Status == paymentdomain.IntentStatusSucceeded
}

// DeriveStatus maps a session and its (optional) intent to evidence status.
func DeriveStatus(session *paymentdomain.CheckoutSession, intent *paymentdomain.PaymentIntent) paymentdomain.ProviderStatus {
	if IsSettled(session, intent) {
		return paymentdomain.ProviderStatusSucceeded
	}
	if session != nil && session.Status == paymentdomain.SessionStatusExpired {
		return paymentdomain.ProviderStatusCanceled
	}
	if intent != nil {
		switch intent.Status {
		case paymentdomain.IntentStatusCanceled:
			return paymentdomain.ProviderStatusCanceled
		case paymentdomain.IntentStatusRequiresAction:
			return paymentdomain.ProviderStatusRequiresAction
		case paymentdomain.IntentStatusRequiresPaymentMethod:
			return paymentdomain.ProviderStatusFailed
		}
	}
	return paymentdomain.ProviderStatusProcessing
}

// IsPending reports whether more polling could change the evidence.
func IsPending(status paymentdomain.ProviderStatus) bool {
	return status == paymentdomain.ProviderStatusProcessing || status == paymentdomain.ProviderStatusRequiresAction
}
