package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplateRendersEmbeddedTemplate(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	provider := NewSMTP(Config{Host: "smtp.local", Port: 1025, From: "bookings@staybook.local"})
	provider.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := provider.SendTemplate(context.Background(), []string{"guest@example.com"}, TemplateBookingConfirmation, map[string]any{
		"guest_name":     "Gus",
		"property_title": "Cliffside Cottage",
		"check_in":       "2024-06-01",
		"check_out":      "2024-06-05",
		"guests_count":   2,
		"total_amount":   "200.00",
		"currency":       "USD",
		"booking_id":     "42",
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.local:1025", gotAddr)
	assert.Equal(t, []string{"guest@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your stay at Cliffside Cottage is confirmed")
	assert.Contains(t, gotMsg, "2024-06-05")
}

func TestSendRequiresRecipient(t *testing.T) {
	provider := NewSMTP(Config{Host: "smtp.local", Port: 1025})
	err := provider.Send(context.Background(), nil, "subject", "body")
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", map[string]any{})
	assert.Error(t, err)
}
