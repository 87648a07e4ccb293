package quota

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/faultlinehq/faultline/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAdmitWithBalance(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertAccount("tech", "user", 1)

	g := NewGate(db)
	if err := g.Admit(id); err != nil {
		t.Errorf("expected admission with positive balance, got %v", err)
	}
}

func TestAdmitExhausted(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertAccount("tech", "user", 0)

	g := NewGate(db)
	if err := g.Admit(id); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestAdmitUnknownAccount(t *testing.T) {
	db := openTestDB(t)
	g := NewGate(db)
	if err := g.Admit(999); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestAdmitAdminUnlimited(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertAccount("boss", "admin", 0)

	g := NewGate(db)
	if err := g.Admit(id); err != nil {
		t.Errorf("expected admin admitted with zero balance, got %v", err)
	}
}

func TestSettleSpendsOne(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertAccount("tech", "user", 2)

	g := NewGate(db)
	if err := g.Settle(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := db.GetAccount(id)
	if a.Balance != 1 {
		t.Errorf("expected balance 1 after settle, got %d", a.Balance)
	}
}

func TestSettleAdminFree(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertAccount("boss", "admin", 3)

	g := NewGate(db)
	if err := g.Settle(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := db.GetAccount(id)
	if a.Balance != 3 {
		t.Errorf("expected admin balance untouched, got %d", a.Balance)
	}
}

func TestSettleExhausted(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertAccount("tech", "user", 0)

	g := NewGate(db)
	if err := g.Settle(id); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
}
