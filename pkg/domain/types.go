package domain

import "time"

// User is an account in the identity store. The plaintext password is kept
// in storage for this simulation and must never serialize.
type User struct {
	ID            int     `json:"id"`
	Username      string  `json:"username"`
	Password      string  `json:"-"`
	CipherName    *string `json:"cipherName"`
	ResonanceCode *string `json:"resonanceCode"`
}

// NewUser carries the fields required to register a user.
type NewUser struct {
	Username string
	Password string
}

// UserUpdate is a partial patch of the user's adventure fields.
// Nil fields are left untouched.
type UserUpdate struct {
	CipherName    *string
	ResonanceCode *string
}

// ExplorationEntry is an append-only record of one interaction event.
// UserID is a free-form string, not a reference into the identity store.
type ExplorationEntry struct {
	ID              int       `json:"id"`
	UserID          string    `json:"userId"`
	CipherInput     string    `json:"cipherInput"`
	SectionExplored string    `json:"sectionExplored"`
	CreatedAt       time.Time `json:"createdAt"`
}

type NewExploration struct {
	UserID          string
	CipherInput     string
	SectionExplored string
}

// QuantumKey is a simulated key record. Revocation is a one-way soft-delete
// flag; revoked keys stay in storage but are blocked from further ledger and
// entanglement operations.
type QuantumKey struct {
	ID                 int        `json:"id"`
	KeyID              string     `json:"keyId"`
	UserID             int        `json:"userId"`
	EntropyLevel       string     `json:"entropyLevel"`
	SuperpositionState string     `json:"superpositionState"`
	CreatedAt          time.Time  `json:"createdAt"`
	LastUsed           *time.Time `json:"lastUsed"`
	IsRevoked          bool       `json:"isRevoked"`
}

// NewQuantumKey carries the fields for key creation. KeyID must already be
// resolved by the caller (client-supplied or generated).
type NewQuantumKey struct {
	KeyID              string
	UserID             int
	EntropyLevel       string
	SuperpositionState string
}

// QuantumLedgerEntry is an immutable audit record of one operation performed
// with a key.
type QuantumLedgerEntry struct {
	ID               int            `json:"id"`
	TransactionID    string         `json:"transactionId"`
	KeyID            string         `json:"keyId"`
	OperationType    string         `json:"operationType"`
	TimestampVector  map[string]any `json:"timestampVector"`
	EntanglementHash string         `json:"entanglementHash"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"createdAt"`
}

type NewLedgerEntry struct {
	TransactionID    string
	KeyID            string
	OperationType    string
	TimestampVector  map[string]any
	EntanglementHash string
	Metadata         map[string]any
}

// QuantumEntanglement links two keys. Storage is directed but the relation is
// symmetric for queries. A past ExpiresAt makes the record invisible to active
// lookups without deleting it.
type QuantumEntanglement struct {
	ID                   int            `json:"id"`
	SourceKeyID          string         `json:"sourceKeyId"`
	TargetKeyID          string         `json:"targetKeyId"`
	EntanglementType     string         `json:"entanglementType"`
	EntanglementStrength string         `json:"entanglementStrength"`
	StateVector          map[string]any `json:"stateVector"`
	CreatedAt            time.Time      `json:"createdAt"`
	ExpiresAt            *time.Time     `json:"expiresAt"`
}

type NewEntanglement struct {
	SourceKeyID          string
	TargetKeyID          string
	EntanglementType     string
	EntanglementStrength string
	StateVector          map[string]any
	ExpiresAt            *time.Time
}
