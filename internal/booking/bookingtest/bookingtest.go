// Package bookingtest provides an in-memory booking store for tests.
package bookingtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/staybook/internal/booking/domain"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE profiles (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT,
		role TEXT NOT NULL DEFAULT 'guest',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE properties (
		id INTEGER PRIMARY KEY,
		host_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		location TEXT,
		nightly_rate INTEGER NOT NULL,
		currency TEXT NOT NULL,
		max_guests INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE bookings (
		id INTEGER PRIMARY KEY,
		property_id INTEGER NOT NULL,
		guest_id INTEGER NOT NULL,
		host_id INTEGER NOT NULL,
		check_in_date DATE NOT NULL,
		check_out_date DATE NOT NULL,
		guests_count INTEGER NOT NULL,
		total_amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_method TEXT,
		payment_intent_id TEXT,
		external_session_id TEXT,
		cancellation_reason TEXT,
		cancelled_at DATETIME,
		refund_amount INTEGER,
		refund_date DATETIME,
		refund_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (check_out_date > check_in_date)
	)`,
	`CREATE TABLE payment_transactions (
		id INTEGER PRIMARY KEY,
		booking_id INTEGER NOT NULL,
		transaction_type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method_type TEXT,
		provider_reference TEXT,
		completed_at DATETIME,
		metadata TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE notifications (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		data TEXT,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		booking_id INTEGER,
		payload TEXT,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (provider, provider_event_id)
	)`,
}

// NewDB opens a private in-memory sqlite database with the booking schema.
// Connections are capped at one so concurrent callers serialize like row locks.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:staybook_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// NewNode returns a snowflake generator for tests.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Fixture is a seeded host, guest and property.
type Fixture struct {
	Host     domain.Profile
	Guest    domain.Profile
	Property domain.Property
}

// Seed inserts a host, a guest and one property charging 5000 minor units a night.
func Seed(t testing.TB, db *gorm.DB, node *snowflake.Node) Fixture {
	t.Helper()
	now := time.Now().UTC()
	host := domain.Profile{ID: node.Generate(), Email: "host@example.com", FullName: "Hana Host", Role: "host", CreatedAt: now}
	guest := domain.Profile{ID: node.Generate(), Email: "guest@example.com", FullName: "Gus Guest", Role: "guest", CreatedAt: now}
	property := domain.Property{
		ID:          node.Generate(),
		HostID:      host.ID,
		Title:       "Cliffside Cottage",
		Location:    "Lisbon",
		NightlyRate: 5000,
		Currency:    "USD",
		MaxGuests:   4,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, row := range []any{&host, &guest, &property} {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return Fixture{Host: host, Guest: guest, Property: property}
}

// BookingOption mutates a booking before it is inserted.
type BookingOption func(*domain.Booking)

func WithStatus(status domain.BookingStatus, payment domain.PaymentStatus) BookingOption {
	return func(b *domain.Booking) {
		b.Status = status
		b.PaymentStatus = payment
	}
}

func WithDates(checkIn, checkOut time.Time) BookingOption {
	return func(b *domain.Booking) {
		b.CheckInDate = checkIn
		b.CheckOutDate = checkOut
	}
}

func WithTotal(amount int64) BookingOption {
	return func(b *domain.Booking) { b.TotalAmount = amount }
}

func WithPaymentIntent(id string) BookingOption {
	return func(b *domain.Booking) { b.PaymentIntentID = &id }
}

func WithSession(id string) BookingOption {
	return func(b *domain.Booking) { b.ExternalSessionID = &id }
}

// InsertBooking stores a pending booking for fx.Property, adjusted by opts.
func InsertBooking(t testing.TB, db *gorm.DB, node *snowflake.Node, fx Fixture, opts ...BookingOption) domain.Booking {
	t.Helper()
	now := time.Now().UTC()
	booking := domain.Booking{
		ID:            node.Generate(),
		PropertyID:    fx.Property.ID,
		GuestID:       fx.Guest.ID,
		HostID:        fx.Host.ID,
		CheckInDate:   Date(2024, time.June, 1),
		CheckOutDate:  Date(2024, time.June, 5),
		GuestsCount:   2,
		TotalAmount:   20000,
		Currency:      "USD",
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, opt := range opts {
		opt(&booking)
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	return booking
}

// MustFind reloads a booking or fails the test.
func MustFind(t testing.TB, db *gorm.DB, id snowflake.ID) domain.Booking {
	t.Helper()
	var booking domain.Booking
	if err := db.Where("id = ?", id).First(&booking).Error; err != nil {
		t.Fatalf("find booking %s: %v", id, err)
	}
	return booking
}

// Count returns the row count of table matching where.
func Count(t testing.TB, db *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	q := db.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
