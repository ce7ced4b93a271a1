package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cashd-network/cashd/internal/domain"
)

// ─── Idempotency Ledger ─────────────────────────────────────────────────────

const transferColumns = `request_id, source_id, COALESCE(destination_id, 0), destination_username, amount, status, created_at`

// Transfer loads the record stored under requestID, or domain.ErrNotFound.
func (db *DB) Transfer(ctx context.Context, requestID string) (*domain.TransferRecord, error) {
	return transferByRequestID(ctx, db.db, requestID)
}

// TransferByRequestID is the in-unit idempotency check.
func (tx *Tx) TransferByRequestID(ctx context.Context, requestID string) (*domain.TransferRecord, error) {
	return transferByRequestID(ctx, tx.tx, requestID)
}

// InsertTransfer appends a terminal record. A second insert for the same
// request id fails with domain.ErrConflict; records are never updated.
func (tx *Tx) InsertTransfer(ctx context.Context, rec domain.TransferRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("insert transfer %q: unknown status %q", rec.RequestID, rec.Status)
	}
	var destination any
	if rec.DestinationID != 0 {
		destination = rec.DestinationID
	}
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO transfers (request_id, source_id, destination_id, destination_username, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.RequestID, rec.SourceID, destination, rec.DestinationUsername, rec.Amount, string(rec.Status), toMillis(rec.CreatedAt))
	return storeErr("insert transfer", err)
}

// History returns the transfers a principal is party to, most recent first.
// The sender sees every outcome; the recipient only completed ones.
func (db *DB) History(ctx context.Context, principalID int64, limit int) ([]domain.HistoryEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT t.request_id, t.source_id, COALESCE(t.destination_id, 0), t.destination_username,
		       t.amount, t.status, t.created_at, COALESCE(s.username, '')
		FROM transfers t
		LEFT JOIN principals s ON s.id = t.source_id
		WHERE t.source_id = ?1 OR (t.destination_id = ?1 AND t.status = 'completed')
		ORDER BY t.created_at DESC, t.rowid DESC
		LIMIT ?2
	`, principalID, limit)
	if err != nil {
		return nil, storeErr("history", err)
	}
	defer rows.Close()

	var result []domain.HistoryEntry
	for rows.Next() {
		var (
			e         domain.HistoryEntry
			status    string
			createdMs int64
		)
		if err := rows.Scan(&e.RequestID, &e.SourceID, &e.DestinationID, &e.DestinationUsername,
			&e.Amount, &status, &createdMs, &e.SourceUsername); err != nil {
			return nil, storeErr("scan history", err)
		}
		e.Status = domain.TransferStatus(status)
		e.CreatedAt = fromMillis(createdMs)
		e.Direction = domain.DirectionIn
		if e.SourceID == principalID {
			e.Direction = domain.DirectionOut
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func transferByRequestID(ctx context.Context, q querier, requestID string) (*domain.TransferRecord, error) {
	var (
		rec       domain.TransferRecord
		status    string
		createdMs int64
	)
	err := q.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE request_id = ?`, requestID).
		Scan(&rec.RequestID, &rec.SourceID, &rec.DestinationID, &rec.DestinationUsername, &rec.Amount, &status, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transfer %q: %w", requestID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("load transfer", err)
	}
	rec.Status = domain.TransferStatus(status)
	rec.CreatedAt = fromMillis(createdMs)
	return &rec, nil
}
