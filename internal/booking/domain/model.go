package domain

import (
	"database/sql/driver"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

func (s BookingStatus) Value() (driver.Value, error) { return string(s), nil }

// IsTerminal reports whether payment evidence may no longer move the status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusDisputed          PaymentStatus = "disputed"
)

func (s PaymentStatus) Value() (driver.Value, error) { return string(s), nil }

func (s PaymentStatus) IsRefunded() bool {
	return s == PaymentStatusRefunded || s == PaymentStatusPartiallyRefunded
}

const (
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
)

type TransactionType string

func (t TransactionType) Value() (driver.Value, error) { return string(t), nil }

const (
	TransactionTypeCard         TransactionType = "card"
	TransactionTypeBankTransfer TransactionType = "bank_transfer"
	TransactionTypeRefund       TransactionType = "refund"
)

const TransactionStatusSucceeded = "succeeded"

// OccupyingStatuses are the booking statuses that hold their nights.
var OccupyingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusCompleted,
}

// Booking is a guest's reservation of a property for [CheckInDate, CheckOutDate).
// Amounts are minor currency units.
type Booking struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	PropertyID         snowflake.ID  `gorm:"column:property_id;not null;index" json:"property_id"`
	GuestID            snowflake.ID  `gorm:"column:guest_id;not null;index" json:"guest_id"`
	HostID             snowflake.ID  `gorm:"column:host_id;not null;index" json:"host_id"`
	CheckInDate        time.Time     `gorm:"column:check_in_date;type:date;not null" json:"check_in_date"`
	CheckOutDate       time.Time     `gorm:"column:check_out_date;type:date;not null" json:"check_out_date"`
	GuestsCount        int           `gorm:"column:guests_count;not null" json:"guests_count"`
	TotalAmount        int64         `gorm:"column:total_amount;not null" json:"total_amount"`
	Currency           string        `gorm:"column:currency;not null" json:"currency"`
	Status             BookingStatus `gorm:"column:status;not null" json:"status"`
	PaymentStatus      PaymentStatus `gorm:"column:payment_status;not null" json:"payment_status"`
	PaymentMethod      *string       `gorm:"column:payment_method" json:"payment_method,omitempty"`
	PaymentIntentID    *string       `gorm:"column:payment_intent_id" json:"payment_intent_id,omitempty"`
	ExternalSessionID  *string       `gorm:"column:external_session_id" json:"external_session_id,omitempty"`
	CancellationReason *string       `gorm:"column:cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time    `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	RefundAmount       *int64        `gorm:"column:refund_amount" json:"refund_amount,omitempty"`
	RefundDate         *time.Time    `gorm:"column:refund_date" json:"refund_date,omitempty"`
	RefundReason       *string       `gorm:"column:refund_reason" json:"refund_reason,omitempty"`
	CreatedAt          time.Time     `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// Nights is the number of nights covered by the booking.
func (b Booking) Nights() int {
	return NightsBetween(b.CheckInDate, b.CheckOutDate)
}

// PaymentTransaction is an append-only ledger line; rows are never updated.
type PaymentTransaction struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	BookingID         snowflake.ID    `gorm:"column:booking_id;not null;index" json:"booking_id"`
	TransactionType   TransactionType `gorm:"column:transaction_type;not null" json:"transaction_type"`
	Amount            int64           `gorm:"column:amount;not null" json:"amount"`
	Currency          string          `gorm:"column:currency;not null" json:"currency"`
	Status            string          `gorm:"column:status;not null" json:"status"`
	PaymentMethodType string          `gorm:"column:payment_method_type" json:"payment_method_type"`
	ProviderReference *string         `gorm:"column:provider_reference" json:"provider_reference,omitempty"`
	CompletedAt       *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Metadata          datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time       `gorm:"column:created_at;not null" json:"created_at"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

type Property struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	HostID      snowflake.ID `gorm:"column:host_id;not null" json:"host_id"`
	Title       string       `gorm:"column:title;not null" json:"title"`
	Location    string       `gorm:"column:location" json:"location"`
	NightlyRate int64        `gorm:"column:nightly_rate;not null" json:"nightly_rate"`
	Currency    string       `gorm:"column:currency;not null" json:"currency"`
	MaxGuests   int          `gorm:"column:max_guests;not null" json:"max_guests"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Property) TableName() string { return "properties" }

type Profile struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Email     string       `gorm:"column:email;not null" json:"email"`
	FullName  string       `gorm:"column:full_name" json:"full_name"`
	Role      string       `gorm:"column:role;not null" json:"role"`
	CreatedAt time.Time    `gorm:"column:created_at;not null" json:"created_at"`
}

func (Profile) TableName() string { return "profiles" }

// BookingDetails joins a booking with the display data of its property,
// host and guest.
type BookingDetails struct {
	Booking
	PropertyTitle    string `gorm:"column:property_title"`
	PropertyLocation string `gorm:"column:property_location"`
	HostName         string `gorm:"column:host_name"`
	HostEmail        string `gorm:"column:host_email"`
	GuestName        string `gorm:"column:guest_name"`
	GuestEmail       string `gorm:"column:guest_email"`
}

// Condition guards a conditional update. Empty slices are ignored.
type Condition struct {
	StatusIn           []BookingStatus
	StatusNotIn        []BookingStatus
	PaymentStatusIn    []PaymentStatus
	PaymentStatusNotIn []PaymentStatus
	// SessionIDNull restricts the update to rows with no checkout session yet.
	SessionIDNull bool
}
