package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cashd-network/cashd/internal/domain"
)

// ─── Token Ledger ───────────────────────────────────────────────────────────

const tokenColumns = `id, name, symbol, supply, creator_id, created_at`

// balanceSQL derives one principal's balance of one token from the entries.
const balanceSQL = `
	SELECT COALESCE(SUM(CASE WHEN destination_id = ?1 THEN amount ELSE 0 END), 0)
	     - COALESCE(SUM(CASE WHEN source_id = ?1 THEN amount ELSE 0 END), 0)
	FROM token_entries WHERE token_id = ?2`

// TokenBySymbol resolves a token case-insensitively, or domain.ErrNotFound.
func (db *DB) TokenBySymbol(ctx context.Context, symbol string) (*domain.Token, error) {
	return tokenBySymbol(ctx, db.db, symbol)
}

// TokenBalance is a pure derived read of principalID's holding of tokenID.
func (db *DB) TokenBalance(ctx context.Context, tokenID string, principalID int64) (int64, error) {
	return tokenBalance(ctx, db.db, tokenID, principalID)
}

// TokenHolders returns every principal's derived balance of tokenID,
// including zero and the mint sentinel's (always −supply).
func (db *DB) TokenHolders(ctx context.Context, tokenID string) (map[int64]int64, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT p, SUM(d) FROM (
			SELECT destination_id AS p, amount AS d FROM token_entries WHERE token_id = ?1
			UNION ALL
			SELECT source_id AS p, -amount AS d FROM token_entries WHERE token_id = ?1
		) GROUP BY p
	`, tokenID)
	if err != nil {
		return nil, storeErr("token holders", err)
	}
	defer rows.Close()

	holders := make(map[int64]int64)
	for rows.Next() {
		var id, bal int64
		if err := rows.Scan(&id, &bal); err != nil {
			return nil, storeErr("scan holder", err)
		}
		holders[id] = bal
	}
	return holders, rows.Err()
}

// TokenBySymbol resolves a token inside the unit.
func (tx *Tx) TokenBySymbol(ctx context.Context, symbol string) (*domain.Token, error) {
	return tokenBySymbol(ctx, tx.tx, symbol)
}

// TokenBalance derives a balance inside the unit, so the check and the entry
// insert that follows see the same ledger.
func (tx *Tx) TokenBalance(ctx context.Context, tokenID string, principalID int64) (int64, error) {
	return tokenBalance(ctx, tx.tx, tokenID, principalID)
}

// InsertToken stores a token definition. A taken name or symbol returns
// domain.ErrConflict.
func (tx *Tx) InsertToken(ctx context.Context, t domain.Token) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO tokens (id, name, symbol, supply, creator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.Symbol, t.Supply, t.CreatorID, toMillis(t.CreatedAt))
	return storeErr("insert token", err)
}

// InsertTokenEntry appends a ledger entry. The caller is responsible for the
// balance check; it must happen in the same unit.
func (tx *Tx) InsertTokenEntry(ctx context.Context, e domain.TokenEntry) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO token_entries (id, token_id, source_id, destination_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.TokenID, e.SourceID, e.DestinationID, e.Amount, toMillis(e.CreatedAt))
	return storeErr("insert token entry", err)
}

// TokenTransferStatus returns the status persisted for a token send request
// id, or domain.ErrNotFound.
func (db *DB) TokenTransferStatus(ctx context.Context, requestID string) (domain.TransferStatus, error) {
	return tokenTransferStatus(ctx, db.db, requestID)
}

// TokenTransferStatus is the in-unit idempotency check for token sends.
func (tx *Tx) TokenTransferStatus(ctx context.Context, requestID string) (domain.TransferStatus, error) {
	return tokenTransferStatus(ctx, tx.tx, requestID)
}

func tokenTransferStatus(ctx context.Context, q querier, requestID string) (domain.TransferStatus, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM token_transfers WHERE request_id = ?`, requestID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("token transfer %q: %w", requestID, domain.ErrNotFound)
	}
	if err != nil {
		return "", storeErr("load token transfer", err)
	}
	return domain.TransferStatus(status), nil
}

// InsertTokenTransfer records the terminal status of a keyed token send.
func (tx *Tx) InsertTokenTransfer(ctx context.Context, requestID, tokenID string, sourceID, destinationID, amount int64, status domain.TransferStatus, at time.Time) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO token_transfers (request_id, token_id, source_id, destination_id, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, requestID, tokenID, sourceID, destinationID, amount, string(status), toMillis(at))
	return storeErr("insert token transfer", err)
}

func tokenBySymbol(ctx context.Context, q querier, symbol string) (*domain.Token, error) {
	var (
		t         domain.Token
		createdMs int64
	)
	err := q.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE symbol = ?`, symbol).
		Scan(&t.ID, &t.Name, &t.Symbol, &t.Supply, &t.CreatorID, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token %q: %w", symbol, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("load token", err)
	}
	t.CreatedAt = fromMillis(createdMs)
	return &t, nil
}

func tokenBalance(ctx context.Context, q querier, tokenID string, principalID int64) (int64, error) {
	var balance int64
	if err := q.QueryRowContext(ctx, balanceSQL, principalID, tokenID).Scan(&balance); err != nil {
		return 0, storeErr("token balance", err)
	}
	return balance, nil
}
