package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	availabilitydomain "github.com/smallbiznis/staybook/internal/availability/domain"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Cfg          config.Config
	Repo         bookingdomain.Repository
	Availability availabilitydomain.Service
	Gateway      paymentdomain.Gateway
	Clock        clock.Clock
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	publicBaseURL string
	repo          bookingdomain.Repository
	availability  availabilitydomain.Service
	gateway       paymentdomain.Gateway
	clock         clock.Clock
}

func NewService(p Params) bookingdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("booking.service"),
		genID:         p.GenID,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(p.Cfg.PublicBaseURL), "/"),
		repo:          p.Repo,
		availability:  p.Availability,
		gateway:       p.Gateway,
		clock:         p.Clock,
	}
}

// Create reserves the dates and opens a checkout session for the guest.
// When the gateway is unreachable the pending booking is left for the expiry
// sweeper and the gateway error is returned.
func (s *Service) Create(ctx context.Context, req bookingdomain.CreateBookingRequest) (bookingdomain.CreateBookingResponse, error) {
	if req.PropertyID == 0 || req.GuestID == 0 {
		return bookingdomain.CreateBookingResponse{}, bookingdomain.ErrInvalidBooking
	}
	if req.CheckIn.IsZero() || req.CheckOut.IsZero() {
		return bookingdomain.CreateBookingResponse{}, bookingdomain.ErrInvalidDates
	}
	checkIn := bookingdomain.NormalizeDate(req.CheckIn)
	checkOut := bookingdomain.NormalizeDate(req.CheckOut)
	if !checkOut.After(checkIn) {
		return bookingdomain.CreateBookingResponse{}, bookingdomain.ErrInvalidDates
	}
	now := s.clock.Now().UTC()
	if checkIn.Before(bookingdomain.NormalizeDate(now)) {
		return bookingdomain.CreateBookingResponse{}, bookingdomain.ErrCheckInInPast
	}
	if req.GuestsCount <= 0 {
		return bookingdomain.CreateBookingResponse{}, bookingdomain.ErrInvalidGuests
	}

	property, err := s.repo.FindProperty(ctx, s.db, req.PropertyID)
	if err != nil {
		return bookingdomain.CreateBookingResponse{}, err
	}
	if property == nil {
		return bookingdomain.CreateBookingResponse{}, bookingdomain.ErrPropertyNotFound
	}
	if property.MaxGuests > 0 && req.GuestsCount > property.MaxGuests {
		return bookingdomain.CreateBookingResponse{}, bookingdomain.ErrInvalidGuests
	}

	nights := bookingdomain.NightsBetween(checkIn, checkOut)
	booking := &bookingdomain.Booking{
		ID:            s.genID.Generate(),
		PropertyID:    property.ID,
		GuestID:       req.GuestID,
		HostID:        property.HostID,
		CheckInDate:   checkIn,
		CheckOutDate:  checkOut,
		GuestsCount:   req.GuestsCount,
		TotalAmount:   int64(nights) * property.NightlyRate,
		Currency:      property.Currency,
		Status:        bookingdomain.BookingStatusPending,
		PaymentStatus: bookingdomain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.availability.Reserve(ctx, booking); err != nil {
		return bookingdomain.CreateBookingResponse{}, err
	}

	log := logger.WithBooking(logger.WithContext(ctx, s.log), booking.ID.String())
	log.Info("booking reserved",
		zap.String("property_id", property.ID.String()),
		zap.Int("nights", nights),
		zap.Int64("total_amount", booking.TotalAmount),
	)

	checkout, err := s.gateway.CreateSession(ctx, paymentdomain.CreateSessionRequest{
		BookingID:     booking.ID,
		Amount:        booking.TotalAmount,
		Currency:      booking.Currency,
		Description:   fmt.Sprintf("%s, %d night(s)", property.Title, nights),
		CustomerEmail: s.guestEmail(ctx, booking.ID),
		SuccessURL:    s.publicBaseURL + "/booking/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     fmt.Sprintf("%s/properties/%s", s.publicBaseURL, property.ID.String()),
	})
	if err != nil {
		log.Error("checkout session creation failed, booking left pending", zap.Error(err))
		return bookingdomain.CreateBookingResponse{}, fmt.Errorf("create checkout session: %w", err)
	}

	if _, err := s.repo.ConditionalUpdate(ctx, s.db, booking.ID, map[string]any{
		"external_session_id": checkout.ID,
		"updated_at":          s.clock.Now().UTC(),
	}, bookingdomain.Condition{SessionIDNull: true}); err != nil {
		return bookingdomain.CreateBookingResponse{}, err
	}
	sessionID := checkout.ID
	booking.ExternalSessionID = &sessionID

	return bookingdomain.CreateBookingResponse{
		Booking:     bookingdomain.NewBookingView(*booking),
		CheckoutURL: checkout.URL,
		SessionID:   checkout.ID,
	}, nil
}

func (s *Service) guestEmail(ctx context.Context, bookingID snowflake.ID) string {
	details, err := s.repo.FindDetails(ctx, s.db, bookingID)
	if err != nil || details == nil {
		return ""
	}
	return details.GuestEmail
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (bookingdomain.BookingView, error) {
	if id == 0 {
		return bookingdomain.BookingView{}, bookingdomain.ErrInvalidBooking
	}
	details, err := s.repo.FindDetails(ctx, s.db, id)
	if err != nil {
		return bookingdomain.BookingView{}, err
	}
	if details == nil {
		return bookingdomain.BookingView{}, bookingdomain.ErrBookingNotFound
	}
	return bookingdomain.NewBookingDetailsView(*details), nil
}

