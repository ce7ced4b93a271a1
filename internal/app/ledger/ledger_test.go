package ledger

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

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T) (*Service, *sqlite.DB) {
	t.Helper()
	db := newTestDB(t)
	return New(DefaultConfig(), db, logging.Discard()), db
}

func register(t *testing.T, db *sqlite.DB, username string, balance int64, admin bool) *domain.Principal {
	t.Helper()
	p, err := db.CreatePrincipal(context.Background(), username, "hash", balance, admin)
	require.NoError(t, err)
	return p
}

func balance(t *testing.T, db *sqlite.DB, id int64) int64 {
	t.Helper()
	b, err := db.Balance(context.Background(), id)
	require.NoError(t, err)
	return b
}

// ─── Scenario ───────────────────────────────────────────────────────────────

func TestTransfer_AliceBobScenario(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice", 10000, false)
	bob := register(t, db, "bob", 10000, false)

	req := TransferRequest{RequestID: "r1", SourceID: alice.ID, DestinationUsername: "bob", Amount: 2500}
	res, err := svc.Transfer(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.TransferCompleted, res.Status)
	require.False(t, res.Replayed)
	require.Equal(t, int64(7500), balance(t, db, alice.ID))
	require.Equal(t, int64(12500), balance(t, db, bob.ID))

	res, err = svc.Transfer(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.TransferCompleted, res.Status)
	require.True(t, res.Replayed)
	require.Equal(t, int64(7500), balance(t, db, alice.ID), "resend must not debit again")
	require.Equal(t, int64(12500), balance(t, db, bob.ID), "resend must not credit again")
}

// ─── Terminal Statuses ──────────────────────────────────────────────────────

func TestTransfer_Statuses(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice", 1000, false)
	register(t, db, "bob", 0, false)

	tests := []struct {
		name   string
		req    TransferRequest
		status domain.TransferStatus
	}{
		{"insufficient", TransferRequest{RequestID: "s1", SourceID: alice.ID, DestinationUsername: "bob", Amount: 1001}, domain.TransferInsufficient},
		{"recipient not found", TransferRequest{RequestID: "s2", SourceID: alice.ID, DestinationUsername: "carol", Amount: 1}, domain.TransferRecipientNotFound},
		{"exact balance", TransferRequest{RequestID: "s3", SourceID: alice.ID, DestinationUsername: "bob", Amount: 1000}, domain.TransferCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Transfer(ctx, tt.req)
			require.NoError(t, err)
			require.Equal(t, tt.status, res.Status)

			stored, err := db.Transfer(ctx, tt.req.RequestID)
			require.NoError(t, err)
			require.Equal(t, tt.status, stored.Status)
		})
	}
	require.Equal(t, int64(0), balance(t, db, alice.ID))
}

func TestTransfer_FailureOutcomeIsSticky(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice", 100, false)

	req := TransferRequest{RequestID: "late-bob", SourceID: alice.ID, DestinationUsername: "bob", Amount: 50}
	res, err := svc.Transfer(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.TransferRecipientNotFound, res.Status)

	// bob registers afterwards; the retry must not re-attempt resolution
	register(t, db, "bob", 0, false)
	res, err = svc.Transfer(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.TransferRecipientNotFound, res.Status)
	require.True(t, res.Replayed)
	require.Equal(t, int64(100), balance(t, db, alice.ID))
}

func TestTransfer_ReplayIgnoresNewArguments(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice", 100, false)
	register(t, db, "bob", 0, false)

	_, err := svc.Transfer(ctx, TransferRequest{RequestID: "k", SourceID: alice.ID, DestinationUsername: "bob", Amount: 500})
	require.NoError(t, err)

	res, err := svc.Transfer(ctx, TransferRequest{RequestID: "k", SourceID: alice.ID, DestinationUsername: "bob", Amount: 10})
	require.NoError(t, err)
	require.Equal(t, domain.TransferInsufficient, res.Status, "stored status is returned unchanged")
	require.Equal(t, int64(100), balance(t, db, alice.ID))
}

// ─── Administrator ──────────────────────────────────────────────────────────

func TestTransfer_AdminIsNotDebited(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	admin := register(t, db, "admin", 0, true)
	bob := register(t, db, "bob", 0, false)

	res, err := svc.Transfer(ctx, TransferRequest{RequestID: "mint-1", SourceID: admin.ID, DestinationUsername: "bob", Amount: 1_000_000})
	require.NoError(t, err)
	require.Equal(t, domain.TransferCompleted, res.Status)
	require.Equal(t, int64(0), balance(t, db, admin.ID))
	require.Equal(t, int64(1_000_000), balance(t, db, bob.ID))
}

// ─── Conservation ───────────────────────────────────────────────────────────

func TestTransfer_ConservesAmount(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice", 5000, false)
	bob := register(t, db, "bob", 3000, false)

	amounts := []int64{1, 250, 4000, 749, 9999, 3}
	for i, amt := range amounts {
		before := balance(t, db, alice.ID) + balance(t, db, bob.ID)
		_, err := svc.Transfer(ctx, TransferRequest{RequestID: fmt.Sprintf("c%d", i), SourceID: alice.ID, DestinationUsername: "bob", Amount: amt})
		require.NoError(t, err)
		after := balance(t, db, alice.ID) + balance(t, db, bob.ID)
		require.Equal(t, before, after, "amount %d not conserved", amt)
		require.GreaterOrEqual(t, balance(t, db, alice.ID), int64(0))
	}
}

// ─── Concurrency ────────────────────────────────────────────────────────────

func TestTransfer_ConcurrentNoDoubleSpend(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	const (
		n      = 12
		amount = int64(100)
	)
	alice := register(t, db, "alice", (n-1)*amount, false)
	bob := register(t, db, "bob", 0, false)

	var wg sync.WaitGroup
	statuses := make(chan domain.TransferStatus, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Transfer(ctx, TransferRequest{RequestID: fmt.Sprintf("race-%d", i), SourceID: alice.ID, DestinationUsername: "bob", Amount: amount})
			if err != nil {
				errs <- err
				return
			}
			statuses <- res.Status
		}(i)
	}
	wg.Wait()
	close(statuses)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	counts := map[domain.TransferStatus]int{}
	for s := range statuses {
		counts[s]++
	}
	require.Equal(t, n-1, counts[domain.TransferCompleted])
	require.Equal(t, 1, counts[domain.TransferInsufficient])
	require.Equal(t, int64(0), balance(t, db, alice.ID))
	require.Equal(t, (n-1)*amount, balance(t, db, bob.ID))
}

func TestTransfer_ConcurrentSameRequestID(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice", 10000, false)
	bob := register(t, db, "bob", 0, false)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan TransferResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Transfer(ctx, TransferRequest{RequestID: "same", SourceID: alice.ID, DestinationUsername: "bob", Amount: 700})
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	fresh := 0
	got := 0
	for res := range results {
		got++
		require.Equal(t, domain.TransferCompleted, res.Status)
		if !res.Replayed {
			fresh++
		}
	}
	require.Equal(t, n, got)
	require.Equal(t, 1, fresh, "exactly one call executes")
	require.Equal(t, int64(9300), balance(t, db, alice.ID))
	require.Equal(t, int64(700), balance(t, db, bob.ID))
}

// ─── Validation ─────────────────────────────────────────────────────────────

func TestTransfer_InvalidInput(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice", 100, false)
	register(t, db, "bob", 0, false)

	long := make([]byte, MaxRequestIDLen+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name string
		req  TransferRequest
	}{
		{"zero amount", TransferRequest{RequestID: "v1", SourceID: alice.ID, DestinationUsername: "bob", Amount: 0}},
		{"negative amount", TransferRequest{RequestID: "v2", SourceID: alice.ID, DestinationUsername: "bob", Amount: -5}},
		{"missing request id", TransferRequest{RequestID: "  ", SourceID: alice.ID, DestinationUsername: "bob", Amount: 5}},
		{"request id too long", TransferRequest{RequestID: string(long), SourceID: alice.ID, DestinationUsername: "bob", Amount: 5}},
		{"missing destination", TransferRequest{RequestID: "v5", SourceID: alice.ID, Amount: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Transfer(ctx, tt.req)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			_, err = db.Transfer(ctx, tt.req.RequestID)
			require.ErrorIs(t, err, domain.ErrNotFound, "invalid input must not create a record")
		})
	}
	require.Equal(t, int64(100), balance(t, db, alice.ID))
}

func TestTransfer_UnknownSource(t *testing.T) {
	svc, db := newTestService(t)
	register(t, db, "bob", 0, false)

	_, err := svc.Transfer(context.Background(), TransferRequest{RequestID: "ghost", SourceID: 404, DestinationUsername: "bob", Amount: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// ─── History ────────────────────────────────────────────────────────────────

func TestHistory(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	alice := register(t, db, "alice", 1000, false)
	bob := register(t, db, "bob", 1000, false)

	for i := 0; i < 3; i++ {
		_, err := svc.Transfer(ctx, TransferRequest{RequestID: fmt.Sprintf("h%d", i), SourceID: alice.ID, DestinationUsername: "bob", Amount: 10})
		require.NoError(t, err)
	}
	_, err := svc.Transfer(ctx, TransferRequest{RequestID: "back", SourceID: bob.ID, DestinationUsername: "alice", Amount: 5})
	require.NoError(t, err)

	hist, err := svc.History(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, hist, 4)
	require.Equal(t, "back", hist[0].RequestID)
	require.Equal(t, domain.DirectionIn, hist[0].Direction)

	empty, err := svc.History(ctx, 999, 10)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}
