package domain

import "time"

// BookingView is the booking shape returned to HTTP clients. Amounts are
// decimal major units.
type BookingView struct {
	ID                 string         `json:"id"`
	PropertyID         string         `json:"property_id,omitempty"`
	GuestID            string         `json:"guest_id,omitempty"`
	HostID             string         `json:"host_id,omitempty"`
	CheckIn            string         `json:"check_in,omitempty"`
	CheckOut           string         `json:"check_out,omitempty"`
	GuestsCount        int            `json:"guests_count,omitempty"`
	TotalAmount        float64        `json:"total_amount,omitempty"`
	Currency           string         `json:"currency,omitempty"`
	Status             BookingStatus  `json:"status"`
	PaymentStatus      PaymentStatus  `json:"payment_status"`
	PaymentMethod      string         `json:"payment_method,omitempty"`
	CancellationReason string         `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time     `json:"cancelled_at,omitempty"`
	RefundAmount       *float64       `json:"refund_amount,omitempty"`
	RefundDate         *time.Time     `json:"refund_date,omitempty"`
	Property           *PropertyBrief `json:"property,omitempty"`
	Host               *PersonBrief   `json:"host,omitempty"`
	CreatedAt          *time.Time     `json:"created_at,omitempty"`
}

type PropertyBrief struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
}

type PersonBrief struct {
	ID       string `json:"id"`
	FullName string `json:"full_name,omitempty"`
}

func NewBookingView(b Booking) BookingView {
	view := BookingView{
		ID:            b.ID.String(),
		PropertyID:    b.PropertyID.String(),
		GuestID:       b.GuestID.String(),
		HostID:        b.HostID.String(),
		CheckIn:       b.CheckInDate.UTC().Format(DateLayout),
		CheckOut:      b.CheckOutDate.UTC().Format(DateLayout),
		GuestsCount:   b.GuestsCount,
		TotalAmount:   FromMinorUnits(b.TotalAmount),
		Currency:      b.Currency,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		CancelledAt:   b.CancelledAt,
		RefundDate:    b.RefundDate,
	}
	if b.PaymentMethod != nil {
		view.PaymentMethod = *b.PaymentMethod
	}
	if b.CancellationReason != nil {
		view.CancellationReason = *b.CancellationReason
	}
	if b.RefundAmount != nil {
		amount := FromMinorUnits(*b.RefundAmount)
		view.RefundAmount = &amount
	}
	if !b.CreatedAt.IsZero() {
		created := b.CreatedAt
		view.CreatedAt = &created
	}
	return view
}

func NewBookingDetailsView(d BookingDetails) BookingView {
	view := NewBookingView(d.Booking)
	view.Property = &PropertyBrief{
		ID:       d.PropertyID.String(),
		Title:    d.PropertyTitle,
		Location: d.PropertyLocation,
	}
	view.Host = &PersonBrief{
		ID:       d.HostID.String(),
		FullName: d.HostName,
	}
	return view
}
