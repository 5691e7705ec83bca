package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	admindomain "github.com/smallbiznis/staybook/internal/adminaction/domain"
	"github.com/smallbiznis/staybook/internal/auth"
	"github.com/smallbiznis/staybook/internal/authorization"
	availabilitydomain "github.com/smallbiznis/staybook/internal/availability/domain"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/staybook/internal/reconciliation/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string                         `json:"type"`
	Message   string                         `json:"message"`
	Errors    []ValidationError              `json:"errors,omitempty"`
	Conflicts []availabilitydomain.DateRange `json:"conflicts,omitempty"`
	RefundID  string                         `json:"refund_id,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels surface as 400 with the sentinel text as the code.
var validationSentinels = []error{
	ErrInvalidRequest,
	admindomain.ErrInvalidAction,
	admindomain.ErrInvalidRefundAmount,
	admindomain.ErrRefundExceedsTotal,
	admindomain.ErrMissingPaymentIntent,
	bookingdomain.ErrInvalidBooking,
	bookingdomain.ErrInvalidProperty,
	bookingdomain.ErrInvalidDates,
	bookingdomain.ErrCheckInInPast,
	bookingdomain.ErrInvalidGuests,
	availabilitydomain.ErrInvalidRange,
	reconciliationdomain.ErrInvalidSession,
	reconciliationdomain.ErrInvalidEvidence,
	paymentdomain.ErrInvalidProvider,
	paymentdomain.ErrInvalidSignature,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
}

var conflictMessages = []struct {
	err     error
	message string
}{
	{admindomain.ErrIllegalTransition, "illegal status transition"},
	{admindomain.ErrRefundRequired, "refund required"},
	{admindomain.ErrPaymentInFlight, "payment in flight"},
	{admindomain.ErrNotRefundable, "booking is not refundable"},
	{admindomain.ErrRefundInProgress, "refund already in progress"},
	{availabilitydomain.ErrDatesUnavailable, "dates unavailable"},
	{ErrConflict, "conflict"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var conflictErr *availabilitydomain.ConflictError
	if errors.As(err, &conflictErr) {
		return http.StatusConflict, errorPayload{
			Type:      "conflict",
			Message:   "dates unavailable",
			Conflicts: conflictErr.Conflicts,
		}
	}

	var refundErr *admindomain.RefundUpdateFailedError
	if errors.As(err, &refundErr) {
		return http.StatusInternalServerError, errorPayload{
			Type:     "refund_update_failed",
			Message:  "refund processed but booking update failed",
			RefundID: refundErr.RefundID,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, admindomain.ErrUnauthorized),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, admindomain.ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidRole):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrGateway):
		return http.StatusInternalServerError, errorPayload{
			Type:    "payment_gateway_error",
			Message: "payment provider error",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	}

	for _, conflict := range conflictMessages {
		if errors.Is(err, conflict.err) {
			return http.StatusConflict, errorPayload{
				Type:    "conflict",
				Message: conflict.message,
			}
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request logger a low-cardinality type and code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if code, ok := validationErrorCode(err); ok {
		return payload.Type, code
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, bookingdomain.ErrBookingNotFound),
		errors.Is(err, bookingdomain.ErrPropertyNotFound),
		errors.Is(err, paymentdomain.ErrSessionNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_dates", "check_in_in_past", "invalid_date_range":
		return "dates"
	case "refund_exceeds_total":
		return "refund_amount"
	case "missing_payment_intent":
		return "payment_intent_id"
	case "invalid_session":
		return "session_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return "request"
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_refund_amount":
		return "refund amount must be greater than zero"
	case "refund_exceeds_total":
		return "refund amount exceeds booking total"
	case "missing_payment_intent":
		return "booking has no payment intent to refund"
	case "check_in_in_past":
		return "check-in date is in the past"
	case "invalid_dates", "invalid_date_range":
		return "check-out must be after check-in"
	case "invalid_signature":
		return "webhook signature verification failed"
	default:
		return "invalid value"
	}
}
