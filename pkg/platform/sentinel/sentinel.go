package sentinel

import "errors"

// Sentinel errors for ledger facts. The store returns these (optionally
// wrapped) so the bridge can translate them into coded domain errors.
//
// These represent factual states about records, not validation failures:
// - ErrNotFound: record does not exist under the key
// - ErrConflict: the key already holds a record (single-write-per-key)
// - ErrUnauthorized: caller is not the identity the operation requires
// - ErrExpired: escrow rule's expiry passed unclaimed
// - ErrAlreadyClaimed: escrow rule was already claimed
// - ErrInsufficientFunds: sender balance does not cover the amount
// - ErrUnavailable: the ledger backend cannot be reached
//
// For validation errors (bad input, zero digests), use pkg/domain-errors
// directly.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrExpired           = errors.New("expired")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnavailable       = errors.New("unavailable")
)
