// Package store holds the shared persistence plumbing: connection pools, transactions,
// embedded migrations and the error vocabulary every repository maps into.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crm-platform/pkg/validate"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotConfigured is returned by every service when the backend connection
	// parameters are missing. The message is user facing.
	ErrNotConfigured = errors.New("Supabase not configured")

	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = validate.ErrInvalid
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// MapError converts driver errors into the package sentinels.
// Errors that have no mapping are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

// Like wraps a search term for ILIKE, escaping the pattern metacharacters.
func Like(term string) string {
	out := make([]rune, 0, len(term)+2)
	out = append(out, '%')
	for _, r := range term {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(append(out, '%'))
}

// TimePtr converts a scanned nullable timestamp.
func TimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// NullableTime converts an optional timestamp into a query argument.
func NullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// NullableString maps "" to SQL NULL, for optional foreign keys.
func NullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
