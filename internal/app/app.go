package app

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"quantumshield/pkg/domain"
	"quantumshield/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	StorageDriver string // "memory" (default) or "postgres"
	DatabaseURL   string
	Store         store.Store // overrides driver selection when set
}

// App is the core application service wiring validation rules and
// cross-entity preconditions on top of the storage layer.
type App struct {
	store store.Store
}

// New constructs the application. The in-memory store is the default;
// postgres requires a database URL.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		switch cfg.StorageDriver {
		case "", "memory":
			dataStore = store.NewMemoryStore()
		case "postgres":
			if cfg.DatabaseURL == "" {
				return nil, fmt.Errorf("database URL required for postgres storage")
			}
			var err error
			dataStore, err = store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
		default:
			return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
		}
	}
	return &App{store: dataStore}, nil
}

// CreateUser registers a user. The username must not already be taken.
func (a *App) CreateUser(username, password string) (domain.User, error) {
	user, err := a.store.CreateUser(domain.NewUser{Username: username, Password: password})
	if errors.Is(err, store.ErrUsernameExists) {
		return domain.User{}, ErrUsernameTaken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// UpdateUser applies a partial patch of cipherName/resonanceCode.
func (a *App) UpdateUser(id int, upd domain.UserUpdate) (domain.User, error) {
	user, ok, err := a.store.UpdateUser(id, upd)
	if err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// RecordExploration appends an interaction event to the exploration log.
func (a *App) RecordExploration(e domain.NewExploration) (domain.ExplorationEntry, error) {
	entry, err := a.store.AppendExploration(e)
	if err != nil {
		return domain.ExplorationEntry{}, fmt.Errorf("append exploration: %w", err)
	}
	return entry, nil
}

// ExplorationByUser lists logged events for a userId in insertion order.
func (a *App) ExplorationByUser(userID string) ([]domain.ExplorationEntry, error) {
	return a.store.ListExplorationByUser(userID)
}

// CreateKey registers a quantum key. When keyID is empty a unique one is
// generated; a client-supplied keyID that already exists is rejected.
func (a *App) CreateKey(userID int, keyID, entropyLevel, superpositionState string) (domain.QuantumKey, error) {
	if keyID == "" {
		keyID = newKeyID()
	}
	key, err := a.store.CreateKey(domain.NewQuantumKey{
		KeyID:              keyID,
		UserID:             userID,
		EntropyLevel:       entropyLevel,
		SuperpositionState: superpositionState,
	})
	if errors.Is(err, store.ErrKeyIDExists) {
		return domain.QuantumKey{}, ErrKeyIDTaken
	}
	if err != nil {
		return domain.QuantumKey{}, fmt.Errorf("create key: %w", err)
	}
	return key, nil
}

// KeyByID returns a key regardless of revocation state.
func (a *App) KeyByID(keyID string) (domain.QuantumKey, error) {
	key, ok, err := a.store.GetKey(keyID)
	if err != nil {
		return domain.QuantumKey{}, fmt.Errorf("get key: %w", err)
	}
	if !ok {
		return domain.QuantumKey{}, ErrKeyNotFound
	}
	return key, nil
}

// KeysByUser lists the user's non-revoked keys.
func (a *App) KeysByUser(userID int) ([]domain.QuantumKey, error) {
	return a.store.ListKeysByUser(userID)
}

// RevokeKey flags a key revoked. Re-revoking is idempotent, not an error.
func (a *App) RevokeKey(keyID string) (domain.QuantumKey, error) {
	key, ok, err := a.store.RevokeKey(keyID)
	if err != nil {
		return domain.QuantumKey{}, fmt.Errorf("revoke key: %w", err)
	}
	if !ok {
		return domain.QuantumKey{}, ErrKeyNotFound
	}
	return key, nil
}

// RecordOperation appends a ledger entry after checking that the referenced
// key exists and is not revoked. Blocked requests create no ledger row.
func (a *App) RecordOperation(e domain.NewLedgerEntry) (domain.QuantumLedgerEntry, error) {
	key, ok, err := a.store.GetKey(e.KeyID)
	if err != nil {
		return domain.QuantumLedgerEntry{}, fmt.Errorf("check key: %w", err)
	}
	if !ok {
		return domain.QuantumLedgerEntry{}, ErrKeyNotFound
	}
	if key.IsRevoked {
		return domain.QuantumLedgerEntry{}, ErrKeyRevoked
	}
	if e.TransactionID == "" {
		e.TransactionID = newTransactionID()
	}
	entry, err := a.store.AppendLedger(e)
	if errors.Is(err, store.ErrTransactionIDExists) {
		return domain.QuantumLedgerEntry{}, ErrTransactionIDTaken
	}
	if err != nil {
		return domain.QuantumLedgerEntry{}, fmt.Errorf("append ledger: %w", err)
	}
	return entry, nil
}

// LedgerByKey lists ledger entries for a key in insertion order.
func (a *App) LedgerByKey(keyID string) ([]domain.QuantumLedgerEntry, error) {
	return a.store.ListLedgerByKey(keyID)
}

// LedgerEntry returns a single ledger entry by transaction ID.
func (a *App) LedgerEntry(transactionID string) (domain.QuantumLedgerEntry, error) {
	entry, ok, err := a.store.GetLedgerEntry(transactionID)
	if err != nil {
		return domain.QuantumLedgerEntry{}, fmt.Errorf("get ledger entry: %w", err)
	}
	if !ok {
		return domain.QuantumLedgerEntry{}, ErrLedgerEntryNotFound
	}
	return entry, nil
}

// CreateEntanglement links two keys after checking that both exist and
// neither is revoked.
func (a *App) CreateEntanglement(e domain.NewEntanglement) (domain.QuantumEntanglement, error) {
	source, ok, err := a.store.GetKey(e.SourceKeyID)
	if err != nil {
		return domain.QuantumEntanglement{}, fmt.Errorf("check source key: %w", err)
	}
	if !ok {
		return domain.QuantumEntanglement{}, ErrSourceKeyNotFound
	}
	target, ok, err := a.store.GetKey(e.TargetKeyID)
	if err != nil {
		return domain.QuantumEntanglement{}, fmt.Errorf("check target key: %w", err)
	}
	if !ok {
		return domain.QuantumEntanglement{}, ErrTargetKeyNotFound
	}
	if source.IsRevoked || target.IsRevoked {
		return domain.QuantumEntanglement{}, ErrEntangleRevokedKey
	}
	ent, err := a.store.CreateEntanglement(e)
	if err != nil {
		return domain.QuantumEntanglement{}, fmt.Errorf("create entanglement: %w", err)
	}
	return ent, nil
}

// EntanglementsByKey lists unexpired entanglements touching a key.
func (a *App) EntanglementsByKey(keyID string) ([]domain.QuantumEntanglement, error) {
	return a.store.ListEntanglementsByKey(keyID)
}

// EntangledKeyIDs returns the deduplicated set of keys entangled with keyID,
// reading each link from whichever side the key is not on.
func (a *App) EntangledKeyIDs(keyID string) ([]string, error) {
	entanglements, err := a.store.ListEntanglementsByKey(keyID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(entanglements))
	res := make([]string, 0, len(entanglements))
	for _, ent := range entanglements {
		other := ent.TargetKeyID
		if ent.TargetKeyID == keyID {
			other = ent.SourceKeyID
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		res = append(res, other)
	}
	return res, nil
}

func newKeyID() string {
	return "qk-" + uuid.NewString()
}

func newTransactionID() string {
	return "ql-" + uuid.NewString()
}
