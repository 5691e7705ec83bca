// Package sideeffect runs the best-effort notices that follow a committed
// booking transition. Every failure becomes a warning; none is returned.
package sideeffect

import (
	"context"
	"fmt"
	"time"

	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	notificationdomain "github.com/smallbiznis/staybook/internal/notification/domain"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	WarnGuestNotification = "guest_notification_failed"
	WarnHostNotification  = "host_notification_failed"
	WarnGuestEmail        = "guest_email_failed"
	WarnHostEmail         = "host_email_failed"
)

type Params struct {
	fx.In

	Sink       notificationdomain.Sink
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Runner struct {
	sink       notificationdomain.Sink
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Runner {
	return &Runner{
		sink:       p.Sink,
		log:        p.Log.Named("notification.sideeffect"),
		obsMetrics: p.ObsMetrics,
	}
}

// BookingConfirmed notifies guest and host and sends both emails.
func (r *Runner) BookingConfirmed(ctx context.Context, details *bookingdomain.BookingDetails) []string {
	if details == nil {
		return nil
	}
	var warnings []string
	data := noticeData(details)

	err := r.sink.Notify(ctx, details.GuestID, notificationdomain.TypePaymentConfirmed,
		"Payment confirmed",
		fmt.Sprintf("Your payment for %s was received. Your booking is confirmed.", propertyLabel(details)),
		data,
	)
	warnings = r.record(ctx, warnings, WarnGuestNotification, err)

	err = r.sink.Notify(ctx, details.HostID, notificationdomain.TypeBookingConfirmed,
		"Booking confirmed",
		fmt.Sprintf("%s booked %s from %s to %s.", guestLabel(details), propertyLabel(details), formatDate(details.CheckInDate), formatDate(details.CheckOutDate)),
		data,
	)
	warnings = r.record(ctx, warnings, WarnHostNotification, err)

	warnings = r.record(ctx, warnings, WarnGuestEmail, r.sink.SendBookingConfirmationEmail(ctx, details))
	warnings = r.record(ctx, warnings, WarnHostEmail, r.sink.SendHostNotificationEmail(ctx, details))
	return warnings
}

// BookingCancelled notifies guest and host and emails the guest. A refunded
// booking tells the guest about the refund instead of a plain cancellation.
func (r *Runner) BookingCancelled(ctx context.Context, details *bookingdomain.BookingDetails, reason string) []string {
	if details == nil {
		return nil
	}
	var warnings []string
	data := noticeData(details)
	if reason != "" {
		data["reason"] = reason
	}

	guestType := notificationdomain.TypeBookingCancelled
	guestTitle := "Booking cancelled"
	guestMessage := fmt.Sprintf("Your booking at %s was cancelled.", propertyLabel(details))
	if details.RefundAmount != nil && *details.RefundAmount > 0 {
		guestType = notificationdomain.TypeRefundProcessed
		guestTitle = "Refund processed"
		guestMessage = fmt.Sprintf("Your booking at %s was cancelled and %.2f %s was refunded.",
			propertyLabel(details), bookingdomain.FromMinorUnits(*details.RefundAmount), details.Currency)
		data["refund_amount"] = bookingdomain.FromMinorUnits(*details.RefundAmount)
	}

	err := r.sink.Notify(ctx, details.GuestID, guestType, guestTitle, guestMessage, data)
	warnings = r.record(ctx, warnings, WarnGuestNotification, err)

	err = r.sink.Notify(ctx, details.HostID, notificationdomain.TypeBookingCancelled,
		"Booking cancelled",
		fmt.Sprintf("The booking for %s from %s to %s was cancelled.", propertyLabel(details), formatDate(details.CheckInDate), formatDate(details.CheckOutDate)),
		data,
	)
	warnings = r.record(ctx, warnings, WarnHostNotification, err)

	warnings = r.record(ctx, warnings, WarnGuestEmail, r.sink.SendCancellationEmail(ctx, details, reason))
	return warnings
}

// PaymentDisputed tells the host a chargeback was opened.
func (r *Runner) PaymentDisputed(ctx context.Context, details *bookingdomain.BookingDetails) []string {
	if details == nil {
		return nil
	}
	err := r.sink.Notify(ctx, details.HostID, notificationdomain.TypePaymentDisputed,
		"Payment disputed",
		fmt.Sprintf("The guest's bank opened a dispute for the booking at %s.", propertyLabel(details)),
		noticeData(details),
	)
	return r.record(ctx, nil, WarnHostNotification, err)
}

func (r *Runner) record(ctx context.Context, warnings []string, kind string, err error) []string {
	if err == nil {
		return warnings
	}
	logger.WithContext(ctx, r.log).Warn("booking side effect failed",
		zap.String("kind", kind),
		zap.Error(err),
	)
	r.obsMetrics.RecordSideEffectFailure(ctx, kind)
	return append(warnings, kind)
}

func noticeData(details *bookingdomain.BookingDetails) map[string]any {
	return map[string]any{
		"booking_id":  details.ID.String(),
		"property_id": details.PropertyID.String(),
		"check_in":    formatDate(details.CheckInDate),
		"check_out":   formatDate(details.CheckOutDate),
	}
}

func propertyLabel(details *bookingdomain.BookingDetails) string {
	if details.PropertyTitle != "" {
		return details.PropertyTitle
	}
	return "your property"
}

func guestLabel(details *bookingdomain.BookingDetails) string {
	if details.GuestName != "" {
		return details.GuestName
	}
	return "A guest"
}

func formatDate(t time.Time) string {
	return t.UTC().Format(bookingdomain.DateLayout)
}
