package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used by the postgres-backed store.
type UserModel struct {
	ID            int    `gorm:"primaryKey"`
	Username      string `gorm:"uniqueIndex;not null"`
	Password      string `gorm:"not null"`
	CipherName    *string
	ResonanceCode *string
}

type ExplorationModel struct {
	ID              int       `gorm:"primaryKey"`
	UserID          string    `gorm:"not null;index"`
	CipherInput     string    `gorm:"not null"`
	SectionExplored string    `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

type QuantumKeyModel struct {
	ID                 int       `gorm:"primaryKey"`
	KeyID              string    `gorm:"uniqueIndex;not null"`
	UserID             int       `gorm:"not null;index"`
	EntropyLevel       string    `gorm:"not null"`
	SuperpositionState string    `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
	LastUsed           *time.Time
	IsRevoked          bool `gorm:"not null;default:false"`
}

type QuantumLedgerModel struct {
	ID               int            `gorm:"primaryKey"`
	TransactionID    string         `gorm:"uniqueIndex;not null"`
	KeyID            string         `gorm:"not null;index"`
	OperationType    string         `gorm:"not null"`
	TimestampVector  datatypes.JSON `gorm:"type:jsonb"`
	EntanglementHash string         `gorm:"not null"`
	Metadata         datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt        time.Time      `gorm:"not null;index"`
}

type QuantumEntanglementModel struct {
	ID                   int            `gorm:"primaryKey"`
	SourceKeyID          string         `gorm:"not null;index"`
	TargetKeyID          string         `gorm:"not null;index"`
	EntanglementType     string         `gorm:"not null"`
	EntanglementStrength string         `gorm:"not null"`
	StateVector          datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt            time.Time      `gorm:"not null"`
	ExpiresAt            *time.Time
}
