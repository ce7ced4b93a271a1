package token

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cashd-network/cashd/internal/domain"
	"github.com/cashd-network/cashd/internal/infra/logging"
	"github.com/cashd-network/cashd/internal/infra/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(DefaultConfig(), db, logging.Discard()), db
}

func register(t *testing.T, db *sqlite.DB, username string) *domain.Principal {
	t.Helper()
	p, err := db.CreatePrincipal(context.Background(), username, "hash", 10000, false)
	require.NoError(t, err)
	return p
}

func TestAliceCoinScenario(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice")
	bob := register(t, db, "bob")

	tok, err := svc.Mint(ctx, alice.ID, "AliceCoin", "ALC", 1000)
	require.NoError(t, err)
	require.Equal(t, "ALC", tok.Symbol)

	res, err := svc.Send(ctx, SendRequest{SenderID: alice.ID, Symbol: "ALC", DestinationUsername: "bob", Amount: 1500})
	require.NoError(t, err)
	require.Equal(t, domain.TransferInsufficient, res.Status)

	res, err = svc.Send(ctx, SendRequest{SenderID: alice.ID, Symbol: "ALC", DestinationUsername: "bob", Amount: 400})
	require.NoError(t, err)
	require.Equal(t, domain.TransferCompleted, res.Status)

	aliceBal, err := svc.BalanceOf(ctx, alice.ID, "ALC")
	require.NoError(t, err)
	bobBal, err := svc.BalanceOf(ctx, bob.ID, "alc")
	require.NoError(t, err)
	require.Equal(t, int64(600), aliceBal)
	require.Equal(t, int64(400), bobBal)

	// currency balances are untouched by token movements
	bal, err := db.Balance(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10000), bal)
}

func TestMint_Conflicts(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice")
	bob := register(t, db, "bob")

	_, err := svc.Mint(ctx, alice.ID, "AliceCoin", "ALC", 1000)
	require.NoError(t, err)

	_, err = svc.Mint(ctx, bob.ID, "BobCoin", "alc", 5)
	require.ErrorIs(t, err, domain.ErrConflict, "symbol is case-insensitive")
	_, err = svc.Mint(ctx, bob.ID, "AliceCoin", "BOB", 5)
	require.ErrorIs(t, err, domain.ErrConflict, "name is unique")

	_, err = svc.BalanceOf(ctx, bob.ID, "BOB")
	require.ErrorIs(t, err, domain.ErrNotFound, "failed mint leaves no token behind")
}

func TestMint_InvalidInput(t *testing.T) {
	svc, db := newTestService(t)
	alice := register(t, db, "alice")

	tests := []struct {
		name, tokenName, symbol string
		supply                  int64
	}{
		{"empty name", "  ", "ABC", 10},
		{"empty symbol", "Coin", "", 10},
		{"symbol too long", "Coin", "ABCDEFGHIJKLM", 10},
		{"symbol punctuation", "Coin", "AB-C", 10},
		{"zero supply", "Coin", "ABC", 0},
		{"negative supply", "Coin", "ABC", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Mint(context.Background(), alice.ID, tt.tokenName, tt.symbol, tt.supply)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestMint_UnknownCreator(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Mint(context.Background(), 42, "Ghost", "GHO", 10)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSend_NotFound(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice")
	_, err := svc.Mint(ctx, alice.ID, "AliceCoin", "ALC", 10)
	require.NoError(t, err)

	_, err = svc.Send(ctx, SendRequest{SenderID: alice.ID, Symbol: "NOPE", DestinationUsername: "alice", Amount: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Send(ctx, SendRequest{SenderID: alice.ID, Symbol: "ALC", DestinationUsername: "carol", Amount: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSend_KeyedIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice")
	bob := register(t, db, "bob")
	_, err := svc.Mint(ctx, alice.ID, "AliceCoin", "ALC", 1000)
	require.NoError(t, err)

	req := SendRequest{RequestID: "tk-1", SenderID: alice.ID, Symbol: "ALC", DestinationUsername: "bob", Amount: 300}
	for i := 0; i < 3; i++ {
		res, err := svc.Send(ctx, req)
		require.NoError(t, err)
		require.Equal(t, domain.TransferCompleted, res.Status)
		require.Equal(t, i > 0, res.Replayed)
	}

	bobBal, err := svc.BalanceOf(ctx, bob.ID, "ALC")
	require.NoError(t, err)
	require.Equal(t, int64(300), bobBal)
}

func TestSend_KeyedInsufficientIsSticky(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice")
	register(t, db, "bob")
	carol := register(t, db, "carol")
	_, err := svc.Mint(ctx, carol.ID, "CarolCoin", "CRL", 100)
	require.NoError(t, err)

	req := SendRequest{RequestID: "tk-2", SenderID: alice.ID, Symbol: "CRL", DestinationUsername: "bob", Amount: 50}
	res, err := svc.Send(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.TransferInsufficient, res.Status)

	_, err = svc.Send(ctx, SendRequest{SenderID: carol.ID, Symbol: "CRL", DestinationUsername: "alice", Amount: 100})
	require.NoError(t, err)

	res, err = svc.Send(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.TransferInsufficient, res.Status)
	require.True(t, res.Replayed)
}

func TestSend_ConservesSupplyUnderConcurrency(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	names := []string{"alice", "bob", "carol", "dave"}
	ids := map[string]int64{}
	for _, n := range names {
		ids[n] = register(t, db, n).ID
	}
	_, err := svc.Mint(ctx, ids["alice"], "AliceCoin", "ALC", 1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := names[i%len(names)]
			to := names[(i+1)%len(names)]
			_, err := svc.Send(ctx, SendRequest{
				RequestID:           fmt.Sprintf("c-%d", i),
				SenderID:            ids[from],
				Symbol:              "ALC",
				DestinationUsername: to,
				Amount:              int64(50 + i),
			})
			if err != nil {
				t.Errorf("send %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	held, tok, err := svc.Supply(ctx, "ALC")
	require.NoError(t, err)
	require.Equal(t, tok.Supply, held)

	for _, n := range names {
		bal, err := svc.BalanceOf(ctx, ids[n], "ALC")
		require.NoError(t, err)
		require.GreaterOrEqual(t, bal, int64(0), "%s went negative", n)
	}
}

func TestSend_InvalidInput(t *testing.T) {
	svc, db := newTestService(t)
	alice := register(t, db, "alice")

	tests := []struct {
		name string
		req  SendRequest
	}{
		{"zero amount", SendRequest{SenderID: alice.ID, Symbol: "ALC", DestinationUsername: "bob"}},
		{"bad symbol", SendRequest{SenderID: alice.ID, Symbol: "a$c", DestinationUsername: "bob", Amount: 1}},
		{"no destination", SendRequest{SenderID: alice.ID, Symbol: "ALC", Amount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), tt.req)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
