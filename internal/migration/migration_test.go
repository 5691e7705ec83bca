package migration

import (
	"io/fs"
	"testing"

	"github.com/glebarez/sqlite"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestEmbeddedMigrationsPairUpAndDown(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	up, name, err := src.ReadUp(version)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "init_schema", name)

	down, _, err := src.ReadDown(version)
	require.NoError(t, err)
	defer down.Close()
}

func TestInitSchemaDeclaresOverlapConstraint(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, "migrations/000001_init_schema.up.sql")
	require.NoError(t, err)

	sql := string(body)
	assert.Contains(t, sql, "CREATE EXTENSION IF NOT EXISTS btree_gist")
	assert.Contains(t, sql, "daterange(check_in_date, check_out_date, '[)') WITH &&")
	assert.Contains(t, sql, "WHERE (status <> 'cancelled')")
	assert.Contains(t, sql, "UNIQUE (provider, provider_event_id)")
}

func TestAutoMigrateSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(conn))
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{"profiles", "properties", "bookings", "payment_transactions", "notifications", "payment_events"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	event := paymentdomain.EventRecord{ID: 1, Provider: "stripe", ProviderEventID: "evt_1", EventType: "checkout.session.completed"}
	require.NoError(t, conn.Create(&event).Error)
	dup := event
	dup.ID = 2
	assert.Error(t, conn.Create(&dup).Error)

	assert.True(t, conn.Migrator().HasColumn(&bookingdomain.Booking{}, "external_session_id"))
}
