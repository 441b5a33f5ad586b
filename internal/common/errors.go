// Package common defines shared constants and sentinel errors used across
// the ledger service layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Validation errors.
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrUnsupportedProgram = errors.New("unsupported program")
	ErrSameProgram        = errors.New("source and destination programs are the same")

	// User errors.
	ErrUserExists = errors.New("user already exists")

	// Ledger errors.
	ErrUserNotFound        = errors.New("user not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRateNotFound        = errors.New("exchange rate not found")

	// ErrLedgerIntegrity is fatal: a credit could not be applied after a debit
	// succeeded within the same unit. It requires operator attention and must
	// never be retried by clients.
	ErrLedgerIntegrity = errors.New("ledger integrity violation")

	// Trade offer lifecycle errors.
	ErrOfferNotFound        = errors.New("trade offer not found")
	ErrOfferNotOpen         = errors.New("trade offer is not open")
	ErrOfferExpired         = errors.New("trade offer expired")
	ErrCannotAcceptOwnOffer = errors.New("cannot accept own trade offer")
	ErrNotOfferOwner        = errors.New("only the offer creator can cancel it")
)
