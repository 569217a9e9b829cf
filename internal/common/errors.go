// Package common defines shared constants and sentinel errors used across
// the tipbot service layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Lookup misses in custody and the on-chain view.
	ErrorNotFound = errors.New("not found")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Request validation: bad handle, bad amount, unsupported asset, self tip.
	ErrValidation = errors.New("validation error")

	// Custody errors.
	ErrAlreadyRegistered = errors.New("already registered")
	ErrPersistence       = errors.New("persistence error")

	// Routing errors.
	ErrSenderUnregistered    = errors.New("sender is not registered")
	ErrRecipientUnregistered = errors.New("recipient is not registered")
	ErrInsufficientBalance   = errors.New("insufficient balance")

	// Ledger errors.
	ErrLedgerRejected      = errors.New("ledger rejected transaction")
	ErrUnknownOutcome      = errors.New("transaction outcome unknown")
	ErrDerivationExhausted = errors.New("no valid bump seed found")
	ErrMalformedAccount    = errors.New("malformed account data")
)
