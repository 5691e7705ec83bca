package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), GormLoggerConfig{Level: level, SlowThreshold: time.Millisecond}), logs
}

func TestTraceDowngradesExpectedErrors(t *testing.T) {
	l, logs := newObservedGormLogger(gormlogger.Warn)
	sql := func() (string, int64) { return `INSERT INTO "bookings" ("id") VALUES ($1)`, 0 }

	l.Trace(context.Background(), time.Now(), sql, &pgconn.PgError{Code: "23P01"})
	l.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	l.Trace(context.Background(), time.Now(), sql, errors.New("connection reset"))

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
		assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
		assert.Equal(t, "bookings", entries[2].ContextMap()["table"])
		assert.Equal(t, "INSERT", entries[2].ContextMap()["operation"])
	}
}

func TestTraceReportsSlowQueries(t *testing.T) {
	l, logs := newObservedGormLogger(gormlogger.Warn)
	begin := time.Now().Add(-50 * time.Millisecond)

	l.Trace(context.Background(), begin, func() (string, int64) {
		return `UPDATE "bookings" SET "status"=$1 WHERE id = $2`, 1
	}, nil)

	entries := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, int64(1), entries[0].ContextMap()["rows_affected"])
	}
}

func TestSilentLoggerDropsEverything(t *testing.T) {
	l, logs := newObservedGormLogger(gormlogger.Warn)
	silent := l.LogMode(gormlogger.Silent)

	silent.Error(context.Background(), "boom %s", "now")
	silent.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, errors.New("x"))
	l.Warn(context.Background(), "pool %d", 3)

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "pool 3", logs.All()[0].Message)
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "payment_events", tableFromSQL(`SELECT * FROM "payment_events" WHERE id = 1`))
	assert.Equal(t, "", tableFromSQL("SELECT 1"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
