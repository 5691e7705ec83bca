package domain

import "errors"

var (
	ErrBookingNotFound  = errors.New("booking_not_found")
	ErrPropertyNotFound = errors.New("property_not_found")
	ErrInvalidBooking   = errors.New("invalid_booking")
	ErrInvalidProperty  = errors.New("invalid_property")
	ErrInvalidDates     = errors.New("invalid_dates")
	ErrCheckInInPast    = errors.New("check_in_in_past")
	ErrInvalidGuests    = errors.New("invalid_guests")
)
