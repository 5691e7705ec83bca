package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsSchemaShapeErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pg undefined column", err: fmt.Errorf("update: %w", &pgconn.PgError{Code: "42703"}), want: true},
		{name: "pg message", err: errors.New(`ERROR: column "refund_reason" of relation "bookings" does not exist`), want: true},
		{name: "translated", err: fmt.Errorf("update: %w", gorm.ErrInvalidField), want: true},
		{name: "sqlite", err: errors.New("no such column: refund_reason"), want: true},
		{name: "mysql", err: errors.New("Error 1054: Unknown column 'refund_reason' in 'field list'"), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
		{name: "pg serialization", err: &pgconn.PgError{Code: "40001"}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsSchemaShapeErr(tc.err))
		})
	}
}

func TestIsExclusionViolation(t *testing.T) {
	assert.True(t, IsExclusionViolation(&pgconn.PgError{Code: "23P01"}))
	assert.False(t, IsExclusionViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsExclusionViolation(nil))
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: payment_events.provider")))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
}
