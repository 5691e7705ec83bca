package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
)

type Action string

const (
	ActionMarkPaid Action = "mark_paid"
	ActionCancel   Action = "cancel"
	ActionRefund   Action = "refund"
)

func ParseAction(raw string) (Action, error) {
	switch action := Action(strings.ToLower(strings.TrimSpace(raw))); action {
	case ActionMarkPaid, ActionCancel, ActionRefund:
		return action, nil
	default:
		return "", ErrInvalidAction
	}
}

const (
	OutcomeApplied  = "applied"
	OutcomeNoOp     = "no_op"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

const (
	WarnDegradedWrite      = "degraded_write"
	WarnLedgerWriteFailed  = "ledger_write_failed"
	WarnDetailsUnavailable = "booking_details_unavailable"
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidAction        = errors.New("invalid_action")
	ErrInvalidRefundAmount  = errors.New("invalid_refund_amount")
	ErrRefundExceedsTotal   = errors.New("refund_exceeds_total")
	ErrMissingPaymentIntent = errors.New("missing_payment_intent")
	ErrIllegalTransition    = errors.New("illegal_transition")
	ErrRefundRequired       = errors.New("refund_required")
	ErrPaymentInFlight      = errors.New("payment_in_flight")
	ErrNotRefundable        = errors.New("booking_not_refundable")
	ErrRefundInProgress     = errors.New("refund_in_progress")
	ErrRefundUpdateFailed   = errors.New("refund_update_failed")
)

// RefundUpdateFailedError reports a refund the gateway accepted while the
// booking row could not be updated. Operators reconcile it by RefundID.
type RefundUpdateFailedError struct {
	BookingID snowflake.ID
	RefundID  string
	Err       error
}

func (e *RefundUpdateFailedError) Error() string {
	return fmt.Sprintf("refund %s processed but booking update failed: %v", e.RefundID, e.Err)
}

func (e *RefundUpdateFailedError) Unwrap() []error {
	return []error{ErrRefundUpdateFailed, e.Err}
}

// Request carries a refund amount in major currency units.
type Request struct {
	BookingID    snowflake.ID
	Action       Action
	Reason       string
	RefundAmount float64
}

type Result struct {
	Success  bool                       `json:"success"`
	Message  string                     `json:"message"`
	Outcome  string                     `json:"-"`
	RefundID string                     `json:"refund_id,omitempty"`
	Booking  *bookingdomain.BookingView `json:"booking,omitempty"`
	Warnings []string                   `json:"warnings,omitempty"`
}

type Service interface {
	Process(ctx context.Context, req Request) (Result, error)
}
