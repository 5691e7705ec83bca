package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TypePaymentConfirmed = "payment_confirmed"
	TypeBookingConfirmed = "booking_confirmed"
	TypeBookingCancelled = "booking_cancelled"
	TypeRefundProcessed  = "refund_processed"
	TypePaymentDisputed  = "payment_disputed"
)

var (
	ErrInvalidUser      = errors.New("invalid_notification_user")
	ErrMissingRecipient = errors.New("missing_email_recipient")
)

// Notification is an in-app message. It is written once and only read by
// the guest and host dashboards.
type Notification struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID   `json:"user_id" gorm:"not null;index"`
	Type      string         `json:"type" gorm:"type:text;not null"`
	Title     string         `json:"title" gorm:"type:text;not null"`
	Message   string         `json:"message" gorm:"type:text;not null"`
	Data      datatypes.JSON `json:"data"`
	IsRead    bool           `json:"is_read" gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
}

func (Notification) TableName() string { return "notifications" }

// Sink delivers best-effort notices. Callers log failures and move on.
type Sink interface {
	Notify(ctx context.Context, userID snowflake.ID, notificationType string, title string, message string, data map[string]any) error
	SendBookingConfirmationEmail(ctx context.Context, details *bookingdomain.BookingDetails) error
	SendHostNotificationEmail(ctx context.Context, details *bookingdomain.BookingDetails) error
	SendCancellationEmail(ctx context.Context, details *bookingdomain.BookingDetails, reason string) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *Notification) error
}
