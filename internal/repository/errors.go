package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"deposit-reconciliation-backend/internal/models"
)

// translate maps gorm and driver errors onto the models taxonomy. what names
// the entity for the not-found message.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case isClassified(err):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NotFound(what + " not found")
	case IsUniqueViolation(err):
		return models.Conflict(what + " already exists")
	case isUnavailable(err):
		return models.StorageUnavailable(err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Translate is translate for callers that own a transaction.
func Translate(err error) error {
	return translate(err, "record")
}

func isClassified(err error) bool {
	for _, sentinel := range []error{
		models.ErrNotFound,
		models.ErrConflict,
		models.ErrValidation,
		models.ErrStorageUnavailable,
		models.ErrDuplicate,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if hasPGCode(err, "23505") {
		return true
	}
	// sqlite without error translation
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57"), // operator intervention
			pgErr.Code == "40001",               // serialization failure
			pgErr.Code == "40P01",               // deadlock
			pgErr.Code == "55P03":               // lock not available
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sql: database is closed") ||
		strings.Contains(msg, "connection refused")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
