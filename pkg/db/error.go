package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
	pgUndefinedColumn    = "42703"
	pgUndefinedTable     = "42P01"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if hasPGCode(err, pgUniqueViolation) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsExclusionViolation reports a postgres exclusion constraint rejection.
func IsExclusionViolation(err error) bool {
	if err == nil {
		return false
	}
	if hasPGCode(err, pgExclusionViolation) {
		return true
	}
	return strings.Contains(err.Error(), "conflicting key value violates exclusion constraint")
}

// IsSchemaShapeErr reports errors caused by the table not having the
// columns a write referenced. Other failures are not schema errors.
func IsSchemaShapeErr(err error) bool {
	if err == nil {
		return false
	}
	if hasPGCode(err, pgUndefinedColumn) || hasPGCode(err, pgUndefinedTable) {
		return true
	}
	// TranslateError maps postgres 42703 to ErrInvalidField.
	if errors.Is(err, gorm.ErrInvalidField) {
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	// PostgreSQL
	case strings.Contains(msg, "column") && strings.Contains(msg, "does not exist"):
		return true
	// MySQL (error code 1054)
	case strings.Contains(msg, "error 1054"), strings.Contains(msg, "unknown column"):
		return true
	// SQLite
	case strings.Contains(msg, "no such column"), strings.Contains(msg, "has no column named"):
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
