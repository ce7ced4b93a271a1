package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cashd-network/cashd/internal/domain"
)

// ─── Tokens ─────────────────────────────────────────────────────────────────

func mintToken(t *testing.T, db *DB, id, name, symbol string, supply, creator int64) error {
	t.Helper()
	ctx := context.Background()
	return db.Atomic(ctx, func(tx *Tx) error {
		if err := tx.InsertToken(ctx, domain.Token{ID: id, Name: name, Symbol: symbol, Supply: supply, CreatorID: creator, CreatedAt: time.Now()}); err != nil {
			return err
		}
		return tx.InsertTokenEntry(ctx, domain.TokenEntry{ID: id + "-mint", TokenID: id, SourceID: domain.MintSource, DestinationID: creator, Amount: supply, CreatedAt: time.Now()})
	})
}

func TestToken_SymbolCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	alice := mustPrincipal(t, db, "alice", 0, false)

	if err := mintToken(t, db, "t1", "AliceCoin", "ALC", 1000, alice.ID); err != nil {
		t.Fatalf("mint error: %v", err)
	}
	tok, err := db.TokenBySymbol(context.Background(), "alc")
	if err != nil {
		t.Fatalf("TokenBySymbol(alc) error: %v", err)
	}
	if tok.ID != "t1" || tok.Supply != 1000 {
		t.Errorf("TokenBySymbol() = %+v", tok)
	}

	err = mintToken(t, db, "t2", "Other", "alc", 5, alice.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate symbol error = %v, want ErrConflict", err)
	}
	err = mintToken(t, db, "t3", "AliceCoin", "XYZ", 5, alice.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate name error = %v, want ErrConflict", err)
	}
}

func TestTokenBalance_Derived(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := mustPrincipal(t, db, "alice", 0, false)
	bob := mustPrincipal(t, db, "bob", 0, false)

	if err := mintToken(t, db, "t1", "AliceCoin", "ALC", 1000, alice.ID); err != nil {
		t.Fatalf("mint error: %v", err)
	}
	err := db.Atomic(ctx, func(tx *Tx) error {
		return tx.InsertTokenEntry(ctx, domain.TokenEntry{ID: "e1", TokenID: "t1", SourceID: alice.ID, DestinationID: bob.ID, Amount: 400, CreatedAt: time.Now()})
	})
	if err != nil {
		t.Fatalf("InsertTokenEntry() error: %v", err)
	}

	aliceBal, _ := db.TokenBalance(ctx, "t1", alice.ID)
	bobBal, _ := db.TokenBalance(ctx, "t1", bob.ID)
	if aliceBal != 600 || bobBal != 400 {
		t.Errorf("balances alice=%d bob=%d, want 600/400", aliceBal, bobBal)
	}

	holders, err := db.TokenHolders(ctx, "t1")
	if err != nil {
		t.Fatalf("TokenHolders() error: %v", err)
	}
	if holders[domain.MintSource] != -1000 {
		t.Errorf("mint sentinel = %d, want -1000", holders[domain.MintSource])
	}
}

func TestTokenTransferStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := mustPrincipal(t, db, "alice", 0, false)
	bob := mustPrincipal(t, db, "bob", 0, false)
	if err := mintToken(t, db, "t1", "AliceCoin", "ALC", 10, alice.ID); err != nil {
		t.Fatalf("mint error: %v", err)
	}

	err := db.Atomic(ctx, func(tx *Tx) error {
		if _, err := tx.TokenTransferStatus(ctx, "k1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("TokenTransferStatus(k1) error = %v, want ErrNotFound", err)
		}
		return tx.InsertTokenTransfer(ctx, "k1", "t1", alice.ID, bob.ID, 50, domain.TransferInsufficient, time.Now())
	})
	if err != nil {
		t.Fatalf("InsertTokenTransfer() error: %v", err)
	}

	status, err := db.TokenTransferStatus(ctx, "k1")
	if err != nil || status != domain.TransferInsufficient {
		t.Errorf("TokenTransferStatus(k1) = %q, %v", status, err)
	}
}
