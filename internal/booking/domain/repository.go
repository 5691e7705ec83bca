package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the booking store. Finders return (nil, nil) when no row matches.
// Every mutation of an existing booking goes through ConditionalUpdate and
// reports the affected row count so callers can tell a no-op from a transition.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	FindByExternalSessionID(ctx context.Context, db *gorm.DB, sessionID string) (*Booking, error)
	FindByPaymentIntentID(ctx context.Context, db *gorm.DB, intentID string) (*Booking, error)
	FindDetails(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BookingDetails, error)
	ConditionalUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any, cond Condition) (int64, error)

	InsertTransaction(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]PaymentTransaction, error)

	FindProperty(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Property, error)
	// LockProperty takes a row lock on the property where the dialect supports it.
	LockProperty(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Property, error)
	ListOccupying(ctx context.Context, db *gorm.DB, propertyID snowflake.ID, checkIn, checkOut time.Time) ([]Booking, error)

	CompleteFinishedStays(ctx context.Context, db *gorm.DB, today time.Time, now time.Time, limit int) (int64, error)
	ExpireStalePending(ctx context.Context, db *gorm.DB, cutoff time.Time, now time.Time, limit int) (int64, error)
}
