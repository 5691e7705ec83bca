package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	notificationdomain "github.com/smallbiznis/staybook/internal/notification/domain"
	"github.com/smallbiznis/staybook/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  notificationdomain.Repository
	Email email.Provider
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  notificationdomain.Repository
	email email.Provider
}

func NewService(p Params) notificationdomain.Sink {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		repo:  p.Repo,
		email: p.Email,
	}
}

func (s *Service) Notify(ctx context.Context, userID snowflake.ID, notificationType string, title string, message string, data map[string]any) error {
	if userID == 0 {
		return notificationdomain.ErrInvalidUser
	}
	var payload datatypes.JSON
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode notification data: %w", err)
		}
		payload = datatypes.JSON(raw)
	}

	item := notificationdomain.Notification{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Type:      notificationType,
		Title:     title,
		Message:   message,
		Data:      payload,
		CreatedAt: time.Now().UTC(),
	}
	return s.repo.Insert(ctx, s.db, &item)
}

func (s *Service) SendBookingConfirmationEmail(ctx context.Context, details *bookingdomain.BookingDetails) error {
	if details == nil || strings.TrimSpace(details.GuestEmail) == "" {
		return notificationdomain.ErrMissingRecipient
	}
	return s.email.SendTemplate(ctx, []string{details.GuestEmail}, email.TemplateBookingConfirmation, templateData(details))
}

func (s *Service) SendHostNotificationEmail(ctx context.Context, details *bookingdomain.BookingDetails) error {
	if details == nil || strings.TrimSpace(details.HostEmail) == "" {
		return notificationdomain.ErrMissingRecipient
	}
	return s.email.SendTemplate(ctx, []string{details.HostEmail}, email.TemplateHostNotification, templateData(details))
}

func (s *Service) SendCancellationEmail(ctx context.Context, details *bookingdomain.BookingDetails, reason string) error {
	if details == nil || strings.TrimSpace(details.GuestEmail) == "" {
		return notificationdomain.ErrMissingRecipient
	}
	data := templateData(details)
	data["reason"] = strings.TrimSpace(reason)
	if details.RefundAmount != nil && *details.RefundAmount > 0 {
		data["refund_amount"] = formatAmount(*details.RefundAmount)
	}
	return s.email.SendTemplate(ctx, []string{details.GuestEmail}, email.TemplateCancellation, data)
}

func templateData(details *bookingdomain.BookingDetails) map[string]any {
	return map[string]any{
		"booking_id":        details.ID.String(),
		"guest_name":        details.GuestName,
		"host_name":         details.HostName,
		"property_title":    details.PropertyTitle,
		"property_location": details.PropertyLocation,
		"check_in":          details.CheckInDate.UTC().Format(bookingdomain.DateLayout),
		"check_out":         details.CheckOutDate.UTC().Format(bookingdomain.DateLayout),
		"guests_count":      details.GuestsCount,
		"total_amount":      formatAmount(details.TotalAmount),
		"currency":          details.Currency,
	}
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("%.2f", bookingdomain.FromMinorUnits(minor))
}
