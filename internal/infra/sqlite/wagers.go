package sqlite

import (
	"context"

	"github.com/cashd-network/cashd/internal/domain"
)

// ─── Wager Log ──────────────────────────────────────────────────────────────

// InsertWager appends a settled wager.
func (tx *Tx) InsertWager(ctx context.Context, w domain.WagerRecord) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO wagers (id, principal_id, amount, target, outcome, win, payout, balance_delta, seed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.PrincipalID, w.Amount, w.Target, w.Outcome, boolToInt(w.Win), w.Payout, w.BalanceDelta, w.Seed, toMillis(w.CreatedAt))
	return storeErr("insert wager", err)
}

// Wagers returns a principal's most recent wagers, newest first.
func (db *DB) Wagers(ctx context.Context, principalID int64, limit int) ([]domain.WagerRecord, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, principal_id, amount, target, outcome, win, payout, balance_delta, seed, created_at
		FROM wagers WHERE principal_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, principalID, limit)
	if err != nil {
		return nil, storeErr("list wagers", err)
	}
	defer rows.Close()

	var result []domain.WagerRecord
	for rows.Next() {
		var (
			w         domain.WagerRecord
			win       int
			createdMs int64
		)
		if err := rows.Scan(&w.ID, &w.PrincipalID, &w.Amount, &w.Target, &w.Outcome, &win,
			&w.Payout, &w.BalanceDelta, &w.Seed, &createdMs); err != nil {
			return nil, storeErr("scan wager", err)
		}
		w.Win = win == 1
		w.CreatedAt = fromMillis(createdMs)
		result = append(result, w)
	}
	return result, rows.Err()
}
