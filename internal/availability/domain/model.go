package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
)

var (
	ErrDatesUnavailable = errors.New("dates_unavailable")
	ErrInvalidRange     = errors.New("invalid_date_range")
)

// DateRange is a half-open stay [CheckIn, CheckOut).
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CheckIn  string `json:"check_in"`
		CheckOut string `json:"check_out"`
	}{
		CheckIn:  r.CheckIn.UTC().Format(bookingdomain.DateLayout),
		CheckOut: r.CheckOut.UTC().Format(bookingdomain.DateLayout),
	})
}

// Overlaps reports whether [a, b) and [c, d) share at least one night.
// A checkout on day N does not collide with a check-in on day N.
func Overlaps(a, b, c, d time.Time) bool {
	return a.Before(d) && c.Before(b)
}

type CheckRequest struct {
	PropertyID snowflake.ID
	CheckIn    time.Time
	CheckOut   time.Time
}

type Result struct {
	Available bool        `json:"available"`
	Conflicts []DateRange `json:"conflicts"`
}

// ConflictError is returned by Reserve when the requested nights are taken.
// It matches ErrDatesUnavailable under errors.Is.
type ConflictError struct {
	Conflicts []DateRange
}

func (e *ConflictError) Error() string { return ErrDatesUnavailable.Error() }

func (e *ConflictError) Unwrap() error { return ErrDatesUnavailable }

type Service interface {
	// Check is a read-only probe; it never reserves anything.
	Check(ctx context.Context, req CheckRequest) (Result, error)
	// Reserve inserts the booking only if no occupying booking overlaps it,
	// re-validating under a lock on the property row.
	Reserve(ctx context.Context, booking *bookingdomain.Booking) error
}
