package lib

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Database errors
var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
)

// Auth errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
	ErrForbidden    = errors.New("forbidden")
)

// MapPgError translates SQLSTATE codes from either Postgres driver into the
// package sentinels, returning err untouched otherwise
func MapPgError(err error) error {
	if err == nil {
		return nil
	}

	var code string
	var pgErr *pgconn.PgError
	var drvErr pgdriver.Error
	switch {
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &drvErr):
		code = drvErr.Field('C')
	default:
		return err
	}

	switch code {
	case "23505", // unique_violation
		"40001": // serialization_failure
		return ErrConflict
	case "23503", // foreign_key_violation
		"P0002": // no_data_found
		return ErrNotFound
	}
	return err
}
