package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	availabilitydomain "github.com/smallbiznis/staybook/internal/availability/domain"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	dbpkg "github.com/smallbiznis/staybook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       bookingdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       bookingdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) availabilitydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("availability.service"),
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Check(ctx context.Context, req availabilitydomain.CheckRequest) (availabilitydomain.Result, error) {
	checkIn, checkOut, err := normalizeRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return availabilitydomain.Result{}, err
	}
	if req.PropertyID == 0 {
		return availabilitydomain.Result{}, bookingdomain.ErrInvalidProperty
	}

	property, err := s.repo.FindProperty(ctx, s.db, req.PropertyID)
	if err != nil {
		return availabilitydomain.Result{}, err
	}
	if property == nil {
		return availabilitydomain.Result{}, bookingdomain.ErrPropertyNotFound
	}

	conflicts, err := s.conflicts(ctx, s.db, req.PropertyID, checkIn, checkOut)
	if err != nil {
		return availabilitydomain.Result{}, err
	}

	result := availabilitydomain.Result{
		Available: len(conflicts) == 0,
		Conflicts: conflicts,
	}
	s.obsMetrics.RecordAvailability(ctx, "check", result.Available)
	return result, nil
}

func (s *Service) Reserve(ctx context.Context, booking *bookingdomain.Booking) error {
	if booking == nil {
		return bookingdomain.ErrInvalidBooking
	}
	checkIn, checkOut, err := normalizeRange(booking.CheckInDate, booking.CheckOutDate)
	if err != nil {
		return err
	}
	booking.CheckInDate = checkIn
	booking.CheckOutDate = checkOut

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		property, err := s.repo.LockProperty(ctx, tx, booking.PropertyID)
		if err != nil {
			return err
		}
		if property == nil {
			return bookingdomain.ErrPropertyNotFound
		}

		conflicts, err := s.conflicts(ctx, tx, booking.PropertyID, checkIn, checkOut)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &availabilitydomain.ConflictError{Conflicts: conflicts}
		}

		return s.repo.Insert(ctx, tx, booking)
	})

	switch {
	case err == nil:
		s.obsMetrics.RecordAvailability(ctx, "reserve", true)
		return nil
	case errors.Is(err, availabilitydomain.ErrDatesUnavailable):
		s.obsMetrics.RecordAvailability(ctx, "reserve", false)
		return err
	case dbpkg.IsExclusionViolation(err):
		// A concurrent reservation committed between our check and insert.
		s.obsMetrics.RecordAvailability(ctx, "reserve", false)
		s.log.Info("reservation rejected by exclusion constraint",
			zap.String("property_id", booking.PropertyID.String()),
		)
		conflicts, lookupErr := s.conflicts(ctx, s.db, booking.PropertyID, checkIn, checkOut)
		if lookupErr != nil {
			s.log.Warn("failed to list conflicts after exclusion violation", zap.Error(lookupErr))
		}
		return &availabilitydomain.ConflictError{Conflicts: conflicts}
	default:
		return fmt.Errorf("reserve booking: %w", err)
	}
}

func (s *Service) conflicts(ctx context.Context, db *gorm.DB, propertyID snowflake.ID, checkIn, checkOut time.Time) ([]availabilitydomain.DateRange, error) {
	items, err := s.repo.ListOccupying(ctx, db, propertyID, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	conflicts := make([]availabilitydomain.DateRange, 0, len(items))
	for _, item := range items {
		// sqlite compares dates as text.
		if !availabilitydomain.Overlaps(checkIn, checkOut, bookingdomain.NormalizeDate(item.CheckInDate), bookingdomain.NormalizeDate(item.CheckOutDate)) {
			continue
		}
		conflicts = append(conflicts, availabilitydomain.DateRange{
			CheckIn:  bookingdomain.NormalizeDate(item.CheckInDate),
			CheckOut: bookingdomain.NormalizeDate(item.CheckOutDate),
		})
	}
	return conflicts, nil
}

func normalizeRange(checkIn, checkOut time.Time) (time.Time, time.Time, error) {
	if checkIn.IsZero() || checkOut.IsZero() {
		return time.Time{}, time.Time{}, bookingdomain.ErrInvalidDates
	}
	in := bookingdomain.NormalizeDate(checkIn)
	out := bookingdomain.NormalizeDate(checkOut)
	if !out.After(in) {
		return time.Time{}, time.Time{}, availabilitydomain.ErrInvalidRange
	}
	return in, out, nil
}
