package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"quantumshield/pkg/domain"
)

// GormStore implements Store using GORM + Postgres. Unique indexes back the
// username/keyId/transactionId invariants; compound sequences run inside
// transactions.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&ExplorationModel{},
		&QuantumKeyModel{},
		&QuantumLedgerModel{},
		&QuantumEntanglementModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateUser(u domain.NewUser) (domain.User, error) {
	model := UserModel{Username: u.Username, Password: u.Password}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserModel{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameExists
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

func (s *GormStore) GetUser(id int) (domain.User, bool, error) {
	var model UserModel
	err := s.db.First(&model, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	err := s.db.First(&model, "username = ?", username).Error
	if err == gorm.ErrRecordNotFound {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) UpdateUser(id int, upd domain.UserUpdate) (domain.User, bool, error) {
	var model UserModel
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&model, "id = ?", id).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if upd.CipherName != nil {
			model.CipherName = upd.CipherName
		}
		if upd.ResonanceCode != nil {
			model.ResonanceCode = upd.ResonanceCode
		}
		return tx.Save(&model).Error
	})
	if err != nil {
		return domain.User{}, false, err
	}
	if !found {
		return domain.User{}, false, nil
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) AppendExploration(e domain.NewExploration) (domain.ExplorationEntry, error) {
	model := ExplorationModel{
		UserID:          e.UserID,
		CipherInput:     e.CipherInput,
		SectionExplored: e.SectionExplored,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.ExplorationEntry{}, err
	}
	return explorationFromModel(model), nil
}

func (s *GormStore) ListExplorationByUser(userID string) ([]domain.ExplorationEntry, error) {
	var models []ExplorationModel
	if err := s.db.Where("user_id = ?", userID).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ExplorationEntry, 0, len(models))
	for _, m := range models {
		res = append(res, explorationFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CreateKey(k domain.NewQuantumKey) (domain.QuantumKey, error) {
	model := QuantumKeyModel{
		KeyID:              k.KeyID,
		UserID:             k.UserID,
		EntropyLevel:       k.EntropyLevel,
		SuperpositionState: k.SuperpositionState,
		CreatedAt:          time.Now().UTC(),
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&QuantumKeyModel{}).Where("key_id = ?", k.KeyID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrKeyIDExists
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.QuantumKey{}, err
	}
	return keyFromModel(model), nil
}

func (s *GormStore) GetKey(keyID string) (domain.QuantumKey, bool, error) {
	var model QuantumKeyModel
	err := s.db.First(&model, "key_id = ?", keyID).Error
	if err == gorm.ErrRecordNotFound {
		return domain.QuantumKey{}, false, nil
	}
	if err != nil {
		return domain.QuantumKey{}, false, err
	}
	return keyFromModel(model), true, nil
}

func (s *GormStore) ListKeysByUser(userID int) ([]domain.QuantumKey, error) {
	var models []QuantumKeyModel
	err := s.db.Where("user_id = ? AND is_revoked = ?", userID, false).Order("id").Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.QuantumKey, 0, len(models))
	for _, m := range models {
		res = append(res, keyFromModel(m))
	}
	return res, nil
}

func (s *GormStore) RevokeKey(keyID string) (domain.QuantumKey, bool, error) {
	var model QuantumKeyModel
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&model, "key_id = ?", keyID).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		model.IsRevoked = true
		return tx.Save(&model).Error
	})
	if err != nil {
		return domain.QuantumKey{}, false, err
	}
	if !found {
		return domain.QuantumKey{}, false, nil
	}
	return keyFromModel(model), true, nil
}

func (s *GormStore) AppendLedger(e domain.NewLedgerEntry) (domain.QuantumLedgerEntry, error) {
	now := time.Now().UTC()
	model := QuantumLedgerModel{
		TransactionID:    e.TransactionID,
		KeyID:            e.KeyID,
		OperationType:    e.OperationType,
		TimestampVector:  toJSON(e.TimestampVector),
		EntanglementHash: e.EntanglementHash,
		Metadata:         toJSON(e.Metadata),
		CreatedAt:        now,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&QuantumLedgerModel{}).Where("transaction_id = ?", e.TransactionID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrTransactionIDExists
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		// Touching zero rows is fine: a dangling key reference is tolerated.
		return tx.Model(&QuantumKeyModel{}).Where("key_id = ?", e.KeyID).Update("last_used", now).Error
	})
	if err != nil {
		return domain.QuantumLedgerEntry{}, err
	}
	return ledgerFromModel(model), nil
}

func (s *GormStore) ListLedgerByKey(keyID string) ([]domain.QuantumLedgerEntry, error) {
	var models []QuantumLedgerModel
	if err := s.db.Where("key_id = ?", keyID).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.QuantumLedgerEntry, 0, len(models))
	for _, m := range models {
		res = append(res, ledgerFromModel(m))
	}
	return res, nil
}

func (s *GormStore) GetLedgerEntry(transactionID string) (domain.QuantumLedgerEntry, bool, error) {
	var model QuantumLedgerModel
	err := s.db.First(&model, "transaction_id = ?", transactionID).Error
	if err == gorm.ErrRecordNotFound {
		return domain.QuantumLedgerEntry{}, false, nil
	}
	if err != nil {
		return domain.QuantumLedgerEntry{}, false, err
	}
	return ledgerFromModel(model), true, nil
}

func (s *GormStore) CreateEntanglement(e domain.NewEntanglement) (domain.QuantumEntanglement, error) {
	model := QuantumEntanglementModel{
		SourceKeyID:          e.SourceKeyID,
		TargetKeyID:          e.TargetKeyID,
		EntanglementType:     e.EntanglementType,
		EntanglementStrength: e.EntanglementStrength,
		StateVector:          toJSON(e.StateVector),
		CreatedAt:            time.Now().UTC(),
		ExpiresAt:            e.ExpiresAt,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.QuantumEntanglement{}, err
	}
	return entanglementFromModel(model), nil
}

func (s *GormStore) ListEntanglementsByKey(keyID string) ([]domain.QuantumEntanglement, error) {
	var models []QuantumEntanglementModel
	err := s.db.
		Where("(source_key_id = ? OR target_key_id = ?)", keyID, keyID).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.QuantumEntanglement, 0, len(models))
	for _, m := range models {
		res = append(res, entanglementFromModel(m))
	}
	return res, nil
}

func (s *GormStore) EntanglementCount() (int, error) {
	var count int64
	if err := s.db.Model(&QuantumEntanglementModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// model <-> domain conversions

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:            m.ID,
		Username:      m.Username,
		Password:      m.Password,
		CipherName:    m.CipherName,
		ResonanceCode: m.ResonanceCode,
	}
}

func explorationFromModel(m ExplorationModel) domain.ExplorationEntry {
	return domain.ExplorationEntry{
		ID:              m.ID,
		UserID:          m.UserID,
		CipherInput:     m.CipherInput,
		SectionExplored: m.SectionExplored,
		CreatedAt:       m.CreatedAt,
	}
}

func keyFromModel(m QuantumKeyModel) domain.QuantumKey {
	return domain.QuantumKey{
		ID:                 m.ID,
		KeyID:              m.KeyID,
		UserID:             m.UserID,
		EntropyLevel:       m.EntropyLevel,
		SuperpositionState: m.SuperpositionState,
		CreatedAt:          m.CreatedAt,
		LastUsed:           m.LastUsed,
		IsRevoked:          m.IsRevoked,
	}
}

func ledgerFromModel(m QuantumLedgerModel) domain.QuantumLedgerEntry {
	return domain.QuantumLedgerEntry{
		ID:               m.ID,
		TransactionID:    m.TransactionID,
		KeyID:            m.KeyID,
		OperationType:    m.OperationType,
		TimestampVector:  fromJSON(m.TimestampVector),
		EntanglementHash: m.EntanglementHash,
		Metadata:         fromJSON(m.Metadata),
		CreatedAt:        m.CreatedAt,
	}
}

func entanglementFromModel(m QuantumEntanglementModel) domain.QuantumEntanglement {
	return domain.QuantumEntanglement{
		ID:                   m.ID,
		SourceKeyID:          m.SourceKeyID,
		TargetKeyID:          m.TargetKeyID,
		EntanglementType:     m.EntanglementType,
		EntanglementStrength: m.EntanglementStrength,
		StateVector:          fromJSON(m.StateVector),
		CreatedAt:            m.CreatedAt,
		ExpiresAt:            m.ExpiresAt,
	}
}

func toJSON(m map[string]any) datatypes.JSON {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func fromJSON(j datatypes.JSON) map[string]any {
	if len(j) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(j, &m); err != nil {
		return nil
	}
	return m
}
