package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/staybook/internal/booking/bookingtest"
	"github.com/smallbiznis/staybook/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestInsertEventIsInsertIfAbsent(t *testing.T) {
	db := bookingtest.NewDB(t)
	node := bookingtest.NewNode(t)
	repo := Provide()
	ctx := context.Background()

	record := &domain.EventRecord{
		ID:              node.Generate(),
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventType:       "checkout.session.completed",
		Payload:         datatypes.JSON(`{"id":"evt_1"}`),
		ReceivedAt:      time.Now().UTC(),
	}
	inserted, err := repo.InsertEvent(ctx, db, record)
	require.NoError(t, err)
	assert.True(t, inserted)

	duplicate := *record
	duplicate.ID = node.Generate()
	inserted, err = repo.InsertEvent(ctx, db, &duplicate)
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := repo.FindEvent(ctx, db, "stripe", "evt_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, record.ID, stored.ID)
	assert.Nil(t, stored.ProcessedAt)

	bookingID := node.Generate()
	require.NoError(t, repo.MarkProcessed(ctx, db, stored.ID, &bookingID, time.Now().UTC()))

	stored, err = repo.FindEvent(ctx, db, "stripe", "evt_1")
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessedAt)
	require.NotNil(t, stored.BookingID)
	assert.Equal(t, bookingID, *stored.BookingID)

	missing, err := repo.FindEvent(ctx, db, "stripe", "evt_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkProcessedKeepsFirstBooking(t *testing.T) {
	db := bookingtest.NewDB(t)
	node := bookingtest.NewNode(t)
	repo := Provide()
	ctx := context.Background()

	first := node.Generate()
	record := &domain.EventRecord{
		ID:              node.Generate(),
		Provider:        "stripe",
		ProviderEventID: "evt_2",
		EventType:       "payment_intent.succeeded",
		BookingID:       &first,
		ReceivedAt:      time.Now().UTC(),
	}
	_, err := repo.InsertEvent(ctx, db, record)
	require.NoError(t, err)

	other := node.Generate()
	require.NoError(t, repo.MarkProcessed(ctx, db, record.ID, &other, time.Now().UTC()))
	require.NoError(t, repo.MarkProcessed(ctx, db, record.ID, nil, time.Now().UTC()))

	stored, err := repo.FindEvent(ctx, db, "stripe", "evt_2")
	require.NoError(t, err)
	require.NotNil(t, stored.BookingID)
	assert.Equal(t, first, *stored.BookingID)
	assert.NotNil(t, stored.ProcessedAt)
}
