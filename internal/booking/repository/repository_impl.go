package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/booking/domain"
	dbpkg "github.com/smallbiznis/staybook/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Create(booking).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByExternalSessionID(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Booking, error) {
	return r.findOne(ctx, db, "external_session_id = ?", sessionID)
}

func (r *repo) FindByPaymentIntentID(ctx context.Context, db *gorm.DB, intentID string) (*domain.Booking, error) {
	return r.findOne(ctx, db, "payment_intent_id = ?", intentID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Booking, error) {
	var item domain.Booking
	res := db.WithContext(ctx).Where(query, args...).Limit(1).Find(&item)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindDetails(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BookingDetails, error) {
	var item domain.BookingDetails
	err := db.WithContext(ctx).Raw(
		`SELECT b.*,
			COALESCE(p.title, '') AS property_title,
			COALESCE(p.location, '') AS property_location,
			COALESCE(h.full_name, '') AS host_name,
			COALESCE(h.email, '') AS host_email,
			COALESCE(g.full_name, '') AS guest_name,
			COALESCE(g.email, '') AS guest_email
		 FROM bookings b
		 LEFT JOIN properties p ON p.id = b.property_id
		 LEFT JOIN profiles h ON h.id = b.host_id
		 LEFT JOIN profiles g ON g.id = b.guest_id
		 WHERE b.id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ConditionalUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any, cond domain.Condition) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	q := db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", id)
	if len(cond.StatusIn) > 0 {
		q = q.Where("status IN ?", bookingStatuses(cond.StatusIn))
	}
	if len(cond.StatusNotIn) > 0 {
		q = q.Where("status NOT IN ?", bookingStatuses(cond.StatusNotIn))
	}
	if len(cond.PaymentStatusIn) > 0 {
		q = q.Where("payment_status IN ?", paymentStatuses(cond.PaymentStatusIn))
	}
	if len(cond.PaymentStatusNotIn) > 0 {
		q = q.Where("payment_status NOT IN ?", paymentStatuses(cond.PaymentStatusNotIn))
	}
	if cond.SessionIDNull {
		q = q.Where("external_session_id IS NULL")
	}

	res := q.Updates(fields)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.PaymentTransaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]domain.PaymentTransaction, error) {
	var items []domain.PaymentTransaction
	err := db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindProperty(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Property, error) {
	return r.findProperty(db.WithContext(ctx), id)
}

func (r *repo) LockProperty(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Property, error) {
	q := db.WithContext(ctx)
	if dbpkg.SupportsRowLocks(db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.findProperty(q, id)
}

func (r *repo) findProperty(q *gorm.DB, id snowflake.ID) (*domain.Property, error) {
	var item domain.Property
	res := q.Where("id = ?", id).Limit(1).Find(&item)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &item, nil
}

// ListOccupying returns the blocking bookings whose [check_in, check_out)
// overlaps [checkIn, checkOut).
func (r *repo) ListOccupying(ctx context.Context, db *gorm.DB, propertyID snowflake.ID, checkIn, checkOut time.Time) ([]domain.Booking, error) {
	var items []domain.Booking
	err := db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Where("status IN ?", bookingStatuses(domain.OccupyingStatuses)).
		Where("check_in_date < ? AND ? < check_out_date", checkOut, checkIn).
		Order("check_in_date ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CompleteFinishedStays and ExpireStalePending pick a batch of ids first and
// then update by id with the original predicate repeated, so a row another
// sweeper already moved is skipped. MySQL rejects a LIMIT subquery over the
// table being updated.
func (r *repo) CompleteFinishedStays(ctx context.Context, db *gorm.DB, today time.Time, now time.Time, limit int) (int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("status = ? AND check_out_date <= ?", domain.BookingStatusConfirmed, today).
		Order("check_out_date ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	res := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id IN ? AND status = ?", ids, domain.BookingStatusConfirmed).
		Updates(map[string]any{
			"status":     domain.BookingStatusCompleted,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *repo) ExpireStalePending(ctx context.Context, db *gorm.DB, cutoff time.Time, now time.Time, limit int) (int64, error) {
	unpaid := paymentStatuses([]domain.PaymentStatus{domain.PaymentStatusPending, domain.PaymentStatusFailed})
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("status = ? AND payment_status IN ? AND created_at < ?", domain.BookingStatusPending, unpaid, cutoff).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	res := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id IN ? AND status = ? AND payment_status IN ?", ids, domain.BookingStatusPending, unpaid).
		Updates(map[string]any{
			"status":              domain.BookingStatusCancelled,
			"cancellation_reason": "expired",
			"cancelled_at":        now,
			"updated_at":          now,
		})
	return res.RowsAffected, res.Error
}

func bookingStatuses(in []domain.BookingStatus) []string {
	out := make([]string, 0, len(in))
	for _, status := range in {
		out = append(out, string(status))
	}
	return out
}

func paymentStatuses(in []domain.PaymentStatus) []string {
	out := make([]string, 0, len(in))
	for _, status := range in {
		out = append(out, string(status))
	}
	return out
}
