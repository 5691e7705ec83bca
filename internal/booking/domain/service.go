package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateBookingRequest struct {
	PropertyID  snowflake.ID
	GuestID     snowflake.ID
	CheckIn     time.Time
	CheckOut    time.Time
	GuestsCount int
}

type CreateBookingResponse struct {
	Booking     BookingView `json:"booking"`
	CheckoutURL string      `json:"checkout_url,omitempty"`
	SessionID   string      `json:"session_id,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateBookingRequest) (CreateBookingResponse, error)
	Get(ctx context.Context, id snowflake.ID) (BookingView, error)
}
