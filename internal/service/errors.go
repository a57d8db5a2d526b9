package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Failure kinds surfaced to handlers. Callers need to distinguish "try a
// different code" from "try again later", so these are never collapsed
// into a generic error.
var (
	ErrInvalidInput        = errors.New("invalid generation input")
	ErrInvalidFormat       = errors.New("invalid code format")
	ErrInvalidChecksum     = errors.New("invalid code checksum")
	ErrCodeNotFound        = errors.New("code not found")
	ErrCodeAlreadyUsed     = errors.New("code already used")
	ErrDuplicateExists     = errors.New("code already exists")
	ErrGenerationExhausted = errors.New("exceeded max attempts while generating unique codes")
	ErrUpstreamUnavailable = errors.New("platform api unavailable")
	ErrConflict            = errors.New("conflicting concurrent write")
	ErrOrderNotFound       = errors.New("order not found")
)

// isDuplicateKey reports whether err is a storage unique-constraint
// violation. The sqlite driver does not translate these into a typed
// error on every path, so the message is checked as a fallback.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
