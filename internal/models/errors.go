package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the repository, service and HTTP layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("validation error")
	ErrAuthentication     = errors.New("authentication failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDuplicate          = errors.New("duplicate")
)

func NotFound(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, msg)
}

func Conflict(msg string) error {
	return fmt.Errorf("%w: %s", ErrConflict, msg)
}

func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func Authentication(msg string) error {
	return fmt.Errorf("%w: %s", ErrAuthentication, msg)
}

// StorageUnavailable wraps a transient infrastructure failure. The cause is
// kept for logs and never exposed by Message.
func StorageUnavailable(cause error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, cause)
}

// Message returns the client-safe text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return ErrStorageUnavailable.Error()
	}
	for _, sentinel := range []error{ErrNotFound, ErrConflict, ErrValidation, ErrAuthentication, ErrDuplicate} {
		if !errors.Is(err, sentinel) {
			continue
		}
		text, prefix := err.Error(), sentinel.Error()+": "
		if i := strings.Index(text, prefix); i >= 0 && len(text) > i+len(prefix) {
			return text[i+len(prefix):]
		}
		return sentinel.Error()
	}
	return "internal server error"
}
