package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrRateLimited     = errors.New("too many requests")

	// Bonus code lifecycle
	ErrCodeAlreadyUsed  = errors.New("bonus code already used")
	ErrCodeExpired      = errors.New("bonus code has expired")
	ErrMissingEvidence  = errors.New("residence proof is required")
	ErrEvidenceTooLarge = errors.New("residence proof exceeds size limit")
	ErrExhaustedRetries = errors.New("could not generate a unique bonus code")
	ErrInvalidAction    = errors.New("invalid action")
	ErrCodeConflict     = errors.New("bonus code already taken")
	ErrBlobStoreFailure = errors.New("could not store residence proof")

	ErrCodeNotFound  = fmt.Errorf("bonus code: %w", ErrNotFound)
	ErrShopNotFound  = fmt.Errorf("shop: %w", ErrNotFound)
	ErrOrderNotFound = fmt.Errorf("order: %w", ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("user: %w", ErrNotFound)

	// Storage
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("could not read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)
