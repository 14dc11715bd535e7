package store

import (
	"errors"
	"testing"
	"time"

	"quantumshield/pkg/domain"
)

func TestCreateUserEnforcesUsernameUniqueness(t *testing.T) {
	m := NewMemoryStore()
	first, err := m.CreateUser(domain.NewUser{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if first.ID != 1 {
		t.Fatalf("first user ID = %d, want 1", first.ID)
	}
	if _, err := m.CreateUser(domain.NewUser{Username: "alice", Password: "pw2"}); !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("duplicate username error = %v, want ErrUsernameExists", err)
	}
	// The failed create must not disturb the stored record.
	stored, ok, err := m.GetUserByUsername("alice")
	if err != nil || !ok {
		t.Fatalf("get user by username: ok=%v err=%v", ok, err)
	}
	if stored.Password != "pw" {
		t.Fatalf("stored password = %q, want original", stored.Password)
	}
	second, err := m.CreateUser(domain.NewUser{Username: "bob", Password: "pw"})
	if err != nil {
		t.Fatalf("create second user: %v", err)
	}
	if second.ID != 2 {
		t.Fatalf("second user ID = %d, want 2 (IDs must keep increasing)", second.ID)
	}
}

func TestUpdateUserMergesPatchFields(t *testing.T) {
	m := NewMemoryStore()
	user, err := m.CreateUser(domain.NewUser{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	cipher := "veil"
	updated, ok, err := m.UpdateUser(user.ID, domain.UserUpdate{CipherName: &cipher})
	if err != nil || !ok {
		t.Fatalf("update user: ok=%v err=%v", ok, err)
	}
	if updated.CipherName == nil || *updated.CipherName != "veil" {
		t.Fatalf("cipherName = %v, want veil", updated.CipherName)
	}
	if updated.ResonanceCode != nil {
		t.Fatalf("resonanceCode should stay nil")
	}
	code := "r-42"
	updated, ok, err = m.UpdateUser(user.ID, domain.UserUpdate{ResonanceCode: &code})
	if err != nil || !ok {
		t.Fatalf("second update: ok=%v err=%v", ok, err)
	}
	if updated.CipherName == nil || *updated.CipherName != "veil" {
		t.Fatalf("cipherName lost by partial update: %v", updated.CipherName)
	}
	if _, ok, _ := m.UpdateUser(999, domain.UserUpdate{CipherName: &cipher}); ok {
		t.Fatalf("update of unknown user should report absent")
	}
}

func TestListExplorationByUserKeepsInsertionOrder(t *testing.T) {
	m := NewMemoryStore()
	for _, section := range []string{"origins", "cipher-chamber", "frontier"} {
		if _, err := m.AppendExploration(domain.NewExploration{
			UserID:          "wanderer",
			CipherInput:     "x",
			SectionExplored: section,
		}); err != nil {
			t.Fatalf("append exploration: %v", err)
		}
	}
	if _, err := m.AppendExploration(domain.NewExploration{UserID: "other", CipherInput: "y", SectionExplored: "origins"}); err != nil {
		t.Fatalf("append exploration: %v", err)
	}
	entries, err := m.ListExplorationByUser("wanderer")
	if err != nil {
		t.Fatalf("list exploration: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	want := []string{"origins", "cipher-chamber", "frontier"}
	for i, entry := range entries {
		if entry.SectionExplored != want[i] {
			t.Fatalf("entry %d section = %q, want %q", i, entry.SectionExplored, want[i])
		}
		if entry.ID <= 0 || entry.CreatedAt.IsZero() {
			t.Fatalf("entry %d missing server-assigned fields: %+v", i, entry)
		}
	}
}

func TestCreateKeyRejectsDuplicateKeyID(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.CreateKey(domain.NewQuantumKey{KeyID: "qk-1", UserID: 1, EntropyLevel: "0.8", SuperpositionState: "coherent"}); err != nil {
		t.Fatalf("create key: %v", err)
	}
	if _, err := m.CreateKey(domain.NewQuantumKey{KeyID: "qk-1", UserID: 2, EntropyLevel: "0.1", SuperpositionState: "collapsed"}); !errors.Is(err, ErrKeyIDExists) {
		t.Fatalf("duplicate keyId error = %v, want ErrKeyIDExists", err)
	}
	key, ok, _ := m.GetKey("qk-1")
	if !ok || key.UserID != 1 {
		t.Fatalf("original key must survive rejected duplicate, got %+v ok=%v", key, ok)
	}
}

func TestRevokeKeyIsIdempotent(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.CreateKey(domain.NewQuantumKey{KeyID: "qk-1", UserID: 1, EntropyLevel: "0.8", SuperpositionState: "coherent"}); err != nil {
		t.Fatalf("create key: %v", err)
	}
	first, ok, err := m.RevokeKey("qk-1")
	if err != nil || !ok || !first.IsRevoked {
		t.Fatalf("first revoke: key=%+v ok=%v err=%v", first, ok, err)
	}
	second, ok, err := m.RevokeKey("qk-1")
	if err != nil || !ok || !second.IsRevoked {
		t.Fatalf("second revoke must re-apply the flag without error: key=%+v ok=%v err=%v", second, ok, err)
	}
	if _, ok, _ := m.RevokeKey("missing"); ok {
		t.Fatalf("revoking unknown key should report absent")
	}
}

func TestListKeysByUserExcludesRevoked(t *testing.T) {
	m := NewMemoryStore()
	for _, id := range []string{"qk-a", "qk-b"} {
		if _, err := m.CreateKey(domain.NewQuantumKey{KeyID: id, UserID: 7, EntropyLevel: "0.5", SuperpositionState: "mixed"}); err != nil {
			t.Fatalf("create key %s: %v", id, err)
		}
	}
	if _, _, err := m.RevokeKey("qk-a"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	keys, err := m.ListKeysByUser(7)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 1 || keys[0].KeyID != "qk-b" {
		t.Fatalf("listing should hide revoked keys, got %+v", keys)
	}
	// The revoked key still exists and is retrievable directly.
	revoked, ok, _ := m.GetKey("qk-a")
	if !ok || !revoked.IsRevoked {
		t.Fatalf("revoked key must stay in storage, got %+v ok=%v", revoked, ok)
	}
}

func TestAppendLedgerUpdatesKeyLastUsed(t *testing.T) {
	m := NewMemoryStore()
	key, err := m.CreateKey(domain.NewQuantumKey{KeyID: "qk-1", UserID: 1, EntropyLevel: "0.9", SuperpositionState: "coherent"})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if key.LastUsed != nil {
		t.Fatalf("new key lastUsed should be nil")
	}
	if _, err := m.AppendLedger(domain.NewLedgerEntry{
		TransactionID:    "ql-1",
		KeyID:            "qk-1",
		OperationType:    "encrypt",
		TimestampVector:  map[string]any{"node": float64(1)},
		EntanglementHash: "abc",
	}); err != nil {
		t.Fatalf("append ledger: %v", err)
	}
	after, _, _ := m.GetKey("qk-1")
	if after.LastUsed == nil {
		t.Fatalf("lastUsed not set by ledger append")
	}
	if after.LastUsed.Before(after.CreatedAt) {
		t.Fatalf("lastUsed %v before createdAt %v", after.LastUsed, after.CreatedAt)
	}
	firstUsed := *after.LastUsed
	time.Sleep(2 * time.Millisecond)
	if _, err := m.AppendLedger(domain.NewLedgerEntry{
		TransactionID:    "ql-2",
		KeyID:            "qk-1",
		OperationType:    "decrypt",
		TimestampVector:  map[string]any{"node": float64(2)},
		EntanglementHash: "def",
	}); err != nil {
		t.Fatalf("append second ledger: %v", err)
	}
	again, _, _ := m.GetKey("qk-1")
	if again.LastUsed.Before(firstUsed) {
		t.Fatalf("lastUsed must not go backwards: %v then %v", firstUsed, again.LastUsed)
	}
}

func TestAppendLedgerRejectsDuplicateTransactionID(t *testing.T) {
	m := NewMemoryStore()
	entry := domain.NewLedgerEntry{
		TransactionID:    "ql-1",
		KeyID:            "qk-1",
		OperationType:    "encrypt",
		TimestampVector:  map[string]any{},
		EntanglementHash: "abc",
	}
	if _, err := m.AppendLedger(entry); err != nil {
		t.Fatalf("append ledger: %v", err)
	}
	if _, err := m.AppendLedger(entry); !errors.Is(err, ErrTransactionIDExists) {
		t.Fatalf("duplicate transactionId error = %v, want ErrTransactionIDExists", err)
	}
}

func TestAppendLedgerToleratesDanglingKey(t *testing.T) {
	m := NewMemoryStore()
	// No key registered: the entry is still recorded and nothing is touched.
	entry, err := m.AppendLedger(domain.NewLedgerEntry{
		TransactionID:    "ql-1",
		KeyID:            "qk-ghost",
		OperationType:    "encrypt",
		TimestampVector:  map[string]any{},
		EntanglementHash: "abc",
	})
	if err != nil {
		t.Fatalf("append ledger with dangling key: %v", err)
	}
	got, ok, _ := m.GetLedgerEntry(entry.TransactionID)
	if !ok || got.KeyID != "qk-ghost" {
		t.Fatalf("entry not stored: %+v ok=%v", got, ok)
	}
}

func TestListLedgerByKeyKeepsInsertionOrder(t *testing.T) {
	m := NewMemoryStore()
	for i, tx := range []string{"ql-1", "ql-2", "ql-3"} {
		if _, err := m.AppendLedger(domain.NewLedgerEntry{
			TransactionID:    tx,
			KeyID:            "qk-1",
			OperationType:    "encrypt",
			TimestampVector:  map[string]any{"seq": float64(i)},
			EntanglementHash: "h",
		}); err != nil {
			t.Fatalf("append %s: %v", tx, err)
		}
	}
	entries, err := m.ListLedgerByKey("qk-1")
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i, entry := range entries {
		if want := "ql-" + string(rune('1'+i)); entry.TransactionID != want {
			t.Fatalf("entry %d = %q, want %q", i, entry.TransactionID, want)
		}
	}
}

func TestEntanglementSymmetry(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.CreateEntanglement(domain.NewEntanglement{
		SourceKeyID:          "qk-a",
		TargetKeyID:          "qk-b",
		EntanglementType:     "bell-pair",
		EntanglementStrength: "0.9",
		StateVector:          map[string]any{"phi": 0.5},
	}); err != nil {
		t.Fatalf("create entanglement: %v", err)
	}
	forA, err := m.ListEntanglementsByKey("qk-a")
	if err != nil || len(forA) != 1 {
		t.Fatalf("list for source: %v (%d entries)", err, len(forA))
	}
	forB, err := m.ListEntanglementsByKey("qk-b")
	if err != nil || len(forB) != 1 {
		t.Fatalf("list for target: %v (%d entries)", err, len(forB))
	}
	if forA[0].ID != forB[0].ID {
		t.Fatalf("both sides must see the same record")
	}
}

func TestExpiredEntanglementsAreFilteredButRetained(t *testing.T) {
	m := NewMemoryStore()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	if _, err := m.CreateEntanglement(domain.NewEntanglement{
		SourceKeyID: "qk-a", TargetKeyID: "qk-b",
		EntanglementType: "bell-pair", EntanglementStrength: "0.9",
		StateVector: map[string]any{}, ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("create expired entanglement: %v", err)
	}
	if _, err := m.CreateEntanglement(domain.NewEntanglement{
		SourceKeyID: "qk-a", TargetKeyID: "qk-c",
		EntanglementType: "bell-pair", EntanglementStrength: "0.7",
		StateVector: map[string]any{}, ExpiresAt: &future,
	}); err != nil {
		t.Fatalf("create live entanglement: %v", err)
	}
	active, err := m.ListEntanglementsByKey("qk-a")
	if err != nil {
		t.Fatalf("list entanglements: %v", err)
	}
	if len(active) != 1 || active[0].TargetKeyID != "qk-c" {
		t.Fatalf("expired entanglement leaked into active listing: %+v", active)
	}
	// Lazy expiry: the expired record is filtered at read time, never deleted.
	count, err := m.EntanglementCount()
	if err != nil || count != 2 {
		t.Fatalf("EntanglementCount = %d err=%v, want 2", count, err)
	}
}
