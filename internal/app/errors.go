package app

import "errors"

var (
	ErrUsernameTaken = errors.New("username already exists")
	ErrUserNotFound  = errors.New("user not found")

	ErrKeyNotFound = errors.New("quantum key not found")
	// ErrKeyRevoked blocks ledger appends against a revoked key.
	ErrKeyRevoked = errors.New("quantum key has been revoked")
	// ErrKeyIDTaken rejects client-supplied key IDs that already exist,
	// instead of silently overwriting the stored record.
	ErrKeyIDTaken = errors.New("key id already exists")

	ErrTransactionIDTaken  = errors.New("transaction id already exists")
	ErrLedgerEntryNotFound = errors.New("quantum ledger entry not found")

	ErrSourceKeyNotFound = errors.New("source quantum key not found")
	ErrTargetKeyNotFound = errors.New("target quantum key not found")
	// ErrEntangleRevokedKey blocks entanglement when either end is revoked.
	ErrEntangleRevokedKey = errors.New("cannot entangle revoked quantum keys")
)
