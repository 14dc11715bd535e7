package store

import (
	"errors"

	"quantumshield/pkg/domain"
)

// Uniqueness violations surfaced by Store implementations.
var (
	ErrUsernameExists      = errors.New("username already exists")
	ErrKeyIDExists         = errors.New("key id already exists")
	ErrTransactionIDExists = errors.New("transaction id already exists")
)

// Store defines persistence operations for the quantum shield domain.
// Implementations must serialize their own check-then-write sequences so
// that every method is atomic with respect to the others.
type Store interface {
	// users
	CreateUser(u domain.NewUser) (domain.User, error)
	GetUser(id int) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	UpdateUser(id int, upd domain.UserUpdate) (domain.User, bool, error)

	// exploration log
	AppendExploration(e domain.NewExploration) (domain.ExplorationEntry, error)
	ListExplorationByUser(userID string) ([]domain.ExplorationEntry, error)

	// quantum keys
	CreateKey(k domain.NewQuantumKey) (domain.QuantumKey, error)
	GetKey(keyID string) (domain.QuantumKey, bool, error)
	ListKeysByUser(userID int) ([]domain.QuantumKey, error)
	RevokeKey(keyID string) (domain.QuantumKey, bool, error)

	// quantum ledger
	AppendLedger(e domain.NewLedgerEntry) (domain.QuantumLedgerEntry, error)
	ListLedgerByKey(keyID string) ([]domain.QuantumLedgerEntry, error)
	GetLedgerEntry(transactionID string) (domain.QuantumLedgerEntry, bool, error)

	// quantum entanglements
	CreateEntanglement(e domain.NewEntanglement) (domain.QuantumEntanglement, error)
	ListEntanglementsByKey(keyID string) ([]domain.QuantumEntanglement, error)
	EntanglementCount() (int, error)
}
