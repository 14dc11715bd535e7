package store

import (
	"sync"
	"time"

	"quantumshield/pkg/domain"
)

// MemoryStore keeps all records in process memory. It is the default storage
// backend: state lives for the process lifetime only. A single RWMutex guards
// every compound read-modify-write sequence, so methods are safe to call from
// concurrent request handlers.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[int]domain.User
	usernames map[string]int // username -> user ID

	exploration []domain.ExplorationEntry

	keys     map[string]domain.QuantumKey // keyed by keyId
	keyOrder []string

	ledger      map[string]domain.QuantumLedgerEntry // keyed by transactionId
	ledgerOrder []string

	entanglements []domain.QuantumEntanglement

	userIDSeq         int
	explorationIDSeq  int
	keyIDSeq          int
	ledgerIDSeq       int
	entanglementIDSeq int
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int]domain.User),
		usernames: make(map[string]int),
		keys:      make(map[string]domain.QuantumKey),
		ledger:    make(map[string]domain.QuantumLedgerEntry),
	}
}

// CreateUser registers a user, enforcing username uniqueness under the lock.
func (m *MemoryStore) CreateUser(u domain.NewUser) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.usernames[u.Username]; exists {
		return domain.User{}, ErrUsernameExists
	}
	m.userIDSeq++
	user := domain.User{
		ID:       m.userIDSeq,
		Username: u.Username,
		Password: u.Password,
	}
	m.users[user.ID] = user
	m.usernames[user.Username] = user.ID
	return user, nil
}

// GetUser returns a user by ID.
func (m *MemoryStore) GetUser(id int) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByUsername looks up a user through the username index.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[username]
	if !ok {
		return domain.User{}, false, nil
	}
	u, exists := m.users[id]
	return u, exists, nil
}

// UpdateUser merges non-nil patch fields into the stored record.
func (m *MemoryStore) UpdateUser(id int, upd domain.UserUpdate) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	if upd.CipherName != nil {
		user.CipherName = upd.CipherName
	}
	if upd.ResonanceCode != nil {
		user.ResonanceCode = upd.ResonanceCode
	}
	m.users[id] = user
	return user, true, nil
}

// AppendExploration records an interaction event with server-side ID and timestamp.
func (m *MemoryStore) AppendExploration(e domain.NewExploration) (domain.ExplorationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.explorationIDSeq++
	entry := domain.ExplorationEntry{
		ID:              m.explorationIDSeq,
		UserID:          e.UserID,
		CipherInput:     e.CipherInput,
		SectionExplored: e.SectionExplored,
		CreatedAt:       time.Now().UTC(),
	}
	m.exploration = append(m.exploration, entry)
	return entry, nil
}

// ListExplorationByUser returns entries for a user in insertion order.
func (m *MemoryStore) ListExplorationByUser(userID string) ([]domain.ExplorationEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ExplorationEntry, 0)
	for _, entry := range m.exploration {
		if entry.UserID == userID {
			res = append(res, entry)
		}
	}
	return res, nil
}

// CreateKey stores a key record. The caller must have resolved KeyID already;
// a KeyID that is already present is rejected instead of overwritten.
func (m *MemoryStore) CreateKey(k domain.NewQuantumKey) (domain.QuantumKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keys[k.KeyID]; exists {
		return domain.QuantumKey{}, ErrKeyIDExists
	}
	m.keyIDSeq++
	key := domain.QuantumKey{
		ID:                 m.keyIDSeq,
		KeyID:              k.KeyID,
		UserID:             k.UserID,
		EntropyLevel:       k.EntropyLevel,
		SuperpositionState: k.SuperpositionState,
		CreatedAt:          time.Now().UTC(),
	}
	m.keys[key.KeyID] = key
	m.keyOrder = append(m.keyOrder, key.KeyID)
	return key, nil
}

// GetKey retrieves a key by its keyId, revoked or not.
func (m *MemoryStore) GetKey(keyID string) (domain.QuantumKey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[keyID]
	return k, ok, nil
}

// ListKeysByUser returns the user's non-revoked keys in insertion order.
// Revoked keys are invisible here even though they remain in storage.
func (m *MemoryStore) ListKeysByUser(userID int) ([]domain.QuantumKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.QuantumKey, 0)
	for _, id := range m.keyOrder {
		if k, ok := m.keys[id]; ok && k.UserID == userID && !k.IsRevoked {
			res = append(res, k)
		}
	}
	return res, nil
}

// RevokeKey flips the revocation flag and returns the updated record.
// Revoking an already-revoked key re-applies the flag without error.
func (m *MemoryStore) RevokeKey(keyID string) (domain.QuantumKey, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[keyID]
	if !ok {
		return domain.QuantumKey{}, false, nil
	}
	key.IsRevoked = true
	m.keys[keyID] = key
	return key, true, nil
}

// AppendLedger stores a ledger entry and touches the referenced key's lastUsed.
// A dangling key reference is tolerated: the entry is still recorded and no
// key is updated. Precondition checks (key exists, not revoked) belong to the
// caller.
func (m *MemoryStore) AppendLedger(e domain.NewLedgerEntry) (domain.QuantumLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.ledger[e.TransactionID]; exists {
		return domain.QuantumLedgerEntry{}, ErrTransactionIDExists
	}
	now := time.Now().UTC()
	m.ledgerIDSeq++
	entry := domain.QuantumLedgerEntry{
		ID:               m.ledgerIDSeq,
		TransactionID:    e.TransactionID,
		KeyID:            e.KeyID,
		OperationType:    e.OperationType,
		TimestampVector:  e.TimestampVector,
		EntanglementHash: e.EntanglementHash,
		Metadata:         e.Metadata,
		CreatedAt:        now,
	}
	m.ledger[entry.TransactionID] = entry
	m.ledgerOrder = append(m.ledgerOrder, entry.TransactionID)

	if key, ok := m.keys[e.KeyID]; ok {
		key.LastUsed = &now
		m.keys[e.KeyID] = key
	}
	return entry, nil
}

// ListLedgerByKey returns ledger entries for a key in insertion order.
func (m *MemoryStore) ListLedgerByKey(keyID string) ([]domain.QuantumLedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.QuantumLedgerEntry, 0)
	for _, id := range m.ledgerOrder {
		if entry, ok := m.ledger[id]; ok && entry.KeyID == keyID {
			res = append(res, entry)
		}
	}
	return res, nil
}

// GetLedgerEntry retrieves a ledger entry by transaction ID.
func (m *MemoryStore) GetLedgerEntry(transactionID string) (domain.QuantumLedgerEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.ledger[transactionID]
	return entry, ok, nil
}

// CreateEntanglement stores a link record between two keys.
func (m *MemoryStore) CreateEntanglement(e domain.NewEntanglement) (domain.QuantumEntanglement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entanglementIDSeq++
	ent := domain.QuantumEntanglement{
		ID:                   m.entanglementIDSeq,
		SourceKeyID:          e.SourceKeyID,
		TargetKeyID:          e.TargetKeyID,
		EntanglementType:     e.EntanglementType,
		EntanglementStrength: e.EntanglementStrength,
		StateVector:          e.StateVector,
		CreatedAt:            time.Now().UTC(),
		ExpiresAt:            e.ExpiresAt,
	}
	m.entanglements = append(m.entanglements, ent)
	return ent, nil
}

// ListEntanglementsByKey returns unexpired entanglements touching the key on
// either side, in insertion order. Expiry is evaluated against wall-clock time
// at query time; expired records stay in storage.
func (m *MemoryStore) ListEntanglementsByKey(keyID string) ([]domain.QuantumEntanglement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	res := make([]domain.QuantumEntanglement, 0)
	for _, ent := range m.entanglements {
		if ent.SourceKeyID != keyID && ent.TargetKeyID != keyID {
			continue
		}
		if ent.ExpiresAt != nil && !ent.ExpiresAt.After(now) {
			continue
		}
		res = append(res, ent)
	}
	return res, nil
}

// EntanglementCount returns the number of stored entanglements, expired ones
// included.
func (m *MemoryStore) EntanglementCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entanglements), nil
}
