package service

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/staybook/internal/booking/bookingtest"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	notificationdomain "github.com/smallbiznis/staybook/internal/notification/domain"
	"github.com/smallbiznis/staybook/internal/notification/repository"
	"github.com/smallbiznis/staybook/internal/providers/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentEmail struct {
	to       []string
	template string
	data     map[string]any
}

type recordingEmail struct {
	sent []sentEmail
	err  error
}

func (r *recordingEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return r.err
}

func (r *recordingEmail) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	r.sent = append(r.sent, sentEmail{to: to, template: templateName, data: data})
	return r.err
}

func TestNotifyPersistsNotification(t *testing.T) {
	db := bookingtest.NewDB(t)
	node := bookingtest.NewNode(t)
	sink := NewService(Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Email: &recordingEmail{}})

	userID := node.Generate()
	err := sink.Notify(context.Background(), userID, notificationdomain.TypePaymentConfirmed, "Payment confirmed", "done", map[string]any{"booking_id": "42"})
	require.NoError(t, err)

	var stored notificationdomain.Notification
	require.NoError(t, db.Where("user_id = ?", userID).First(&stored).Error)
	assert.Equal(t, notificationdomain.TypePaymentConfirmed, stored.Type)
	assert.False(t, stored.IsRead)
	assert.JSONEq(t, `{"booking_id":"42"}`, string(stored.Data))

	err = sink.Notify(context.Background(), 0, notificationdomain.TypePaymentConfirmed, "x", "y", nil)
	assert.ErrorIs(t, err, notificationdomain.ErrInvalidUser)
}

func TestEmailsUseBookingDetails(t *testing.T) {
	db := bookingtest.NewDB(t)
	node := bookingtest.NewNode(t)
	mailer := &recordingEmail{}
	sink := NewService(Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Email: mailer})

	refund := int64(5000)
	details := &bookingdomain.BookingDetails{
		Booking: bookingdomain.Booking{
			ID:           node.Generate(),
			CheckInDate:  bookingtest.Date(2024, 6, 1),
			CheckOutDate: bookingtest.Date(2024, 6, 5),
			TotalAmount:  20000,
			Currency:     "USD",
			RefundAmount: &refund,
		},
		PropertyTitle: "Cliffside Cottage",
		GuestEmail:    "guest@example.com",
		HostEmail:     "host@example.com",
	}
	ctx := context.Background()

	require.NoError(t, sink.SendBookingConfirmationEmail(ctx, details))
	require.NoError(t, sink.SendHostNotificationEmail(ctx, details))
	require.NoError(t, sink.SendCancellationEmail(ctx, details, "guest request"))

	require.Len(t, mailer.sent, 3)
	assert.Equal(t, []string{"guest@example.com"}, mailer.sent[0].to)
	assert.Equal(t, email.TemplateBookingConfirmation, mailer.sent[0].template)
	assert.Equal(t, "200.00", mailer.sent[0].data["total_amount"])
	assert.Equal(t, []string{"host@example.com"}, mailer.sent[1].to)
	assert.Equal(t, "50.00", mailer.sent[2].data["refund_amount"])
	assert.Equal(t, "guest request", mailer.sent[2].data["reason"])

	details.GuestEmail = ""
	assert.ErrorIs(t, sink.SendBookingConfirmationEmail(ctx, details), notificationdomain.ErrMissingRecipient)

	mailer.err = errors.New("smtp down")
	assert.Error(t, sink.SendHostNotificationEmail(ctx, details))
}
