package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/cashd-network/cashd/internal/domain"
)

// ─── Principals ─────────────────────────────────────────────────────────────

func TestCreatePrincipal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := mustPrincipal(t, db, "alice", 10000, false)
	if p.ID == 0 {
		t.Fatal("ID not assigned")
	}

	got, err := db.PrincipalByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("PrincipalByUsername() error: %v", err)
	}
	if got.ID != p.ID || got.Balance != 10000 || got.IsAdmin {
		t.Errorf("PrincipalByUsername() = %+v", got)
	}
}

func TestCreatePrincipal_Conflict(t *testing.T) {
	db := newTestDB(t)
	mustPrincipal(t, db, "alice", 10000, false)

	_, err := db.CreatePrincipal(context.Background(), "alice", "other", 0, false)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate CreatePrincipal() error = %v, want ErrConflict", err)
	}
}

func TestPrincipal_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.PrincipalByUsername(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("PrincipalByUsername(ghost) error = %v, want ErrNotFound", err)
	}
	if _, err := db.Balance(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Balance(42) error = %v, want ErrNotFound", err)
	}
}

func TestStore_RejectsNegativeBalance(t *testing.T) {
	db := newTestDB(t)

	_, err := db.CreatePrincipal(context.Background(), "overdrawn", "hash", -1, false)
	if err == nil {
		t.Fatal("store accepted a negative balance for an ordinary principal")
	}
	if _, err := db.CreatePrincipal(context.Background(), "root", "hash", -1, true); err != nil {
		t.Fatalf("admin with negative balance rejected: %v", err)
	}
}

// ─── AdjustBalance ──────────────────────────────────────────────────────────

func TestAdjustBalance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := mustPrincipal(t, db, "alice", 500, false)
	admin := mustPrincipal(t, db, "root", 0, true)

	tests := []struct {
		name    string
		id      int64
		delta   int64
		want    int64
		wantErr error
	}{
		{"credit", alice.ID, 250, 750, nil},
		{"debit to zero", alice.ID, -750, 0, nil},
		{"overdraw rejected", alice.ID, -1, 0, domain.ErrInsufficientFunds},
		{"admin below zero", admin.ID, -1000, -1000, nil},
		{"unknown principal", 9999, 10, 0, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int64
			err := db.Atomic(ctx, func(tx *Tx) error {
				var err error
				got, err = tx.AdjustBalance(ctx, tt.id, tt.delta)
				return err
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AdjustBalance() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AdjustBalance() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("AdjustBalance() = %d, want %d", got, tt.want)
			}
		})
	}
}

// ─── EnsureAdmin ────────────────────────────────────────────────────────────

func TestEnsureAdmin_CreatesOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p, created, err := db.EnsureAdmin(ctx, "admin", "hash", 999999999)
	if err != nil {
		t.Fatalf("EnsureAdmin() error: %v", err)
	}
	if !created || !p.IsAdmin || p.Balance != 999999999 {
		t.Errorf("first EnsureAdmin() = %+v created=%v", p, created)
	}

	again, created, err := db.EnsureAdmin(ctx, "admin", "other", 1)
	if err != nil {
		t.Fatalf("second EnsureAdmin() error: %v", err)
	}
	if created {
		t.Error("second EnsureAdmin() should not create")
	}
	if again.ID != p.ID || again.Balance != 999999999 {
		t.Errorf("second EnsureAdmin() = %+v, want untouched %+v", again, p)
	}
}

func TestEnsureAdmin_PromotesExisting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mustPrincipal(t, db, "boss", 10, false)

	p, created, err := db.EnsureAdmin(ctx, "boss", "hash", 999)
	if err != nil {
		t.Fatalf("EnsureAdmin() error: %v", err)
	}
	if created || !p.IsAdmin {
		t.Errorf("EnsureAdmin() = %+v created=%v, want promoted", p, created)
	}
	stored, _ := db.PrincipalByUsername(ctx, "boss")
	if !stored.IsAdmin {
		t.Error("promotion not persisted")
	}
}
