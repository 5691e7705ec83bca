package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	Handler    paymentdomain.EventHandler
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service records each provider delivery once and hands it to the booking
// reconciliation handler.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	handler    paymentdomain.EventHandler
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		handler:    p.Handler,
		obsMetrics: p.ObsMetrics,
	}
}

// ProcessEvent returns ErrEventAlreadyProcessed for a delivery that was
// already applied. A delivery recorded but never marked processed is retried.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.WebhookEvent, payload []byte) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	now := time.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	if event.BookingID != 0 {
		bookingID := event.BookingID
		received.BookingID = &bookingID
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	bookingID, err := s.handler.HandleWebhookEvent(ctx, event)
	if err != nil {
		return err
	}

	var resolved *snowflake.ID
	if bookingID != 0 {
		resolved = &bookingID
	}
	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, resolved, time.Now().UTC()); err != nil {
		return err
	}

	if inserted {
		s.obsMetrics.RecordWebhookEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func validateEvent(event *paymentdomain.WebhookEvent) error {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.Kind {
	case paymentdomain.EventKindPayment:
		if event.ProviderStatus == "" {
			return paymentdomain.ErrInvalidEvent
		}
		if event.SessionID == "" && event.PaymentIntentID == "" && event.BookingID == 0 {
			return paymentdomain.ErrInvalidEvent
		}
	case paymentdomain.EventKindDispute:
		if event.PaymentIntentID == "" && event.BookingID == 0 {
			return paymentdomain.ErrInvalidEvent
		}
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
