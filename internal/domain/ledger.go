package domain

import "time"

// ─── Transfer Records ───────────────────────────────────────────────────────

// TransferStatus is the terminal outcome of a transfer attempt. Every status
// is persisted under the caller's request id.
type TransferStatus string

const (
	TransferCompleted         TransferStatus = "completed"
	TransferInsufficient      TransferStatus = "insufficient"
	TransferRecipientNotFound TransferStatus = "recipient_not_found"
)

// Valid reports whether s is one of the known terminal statuses.
func (s TransferStatus) Valid() bool {
	switch s {
	case TransferCompleted, TransferInsufficient, TransferRecipientNotFound:
		return true
	}
	return false
}

// TransferRecord is the idempotency ledger row for one request id.
// Immutable once written.
type TransferRecord struct {
	RequestID           string         `json:"id"`
	SourceID            int64          `json:"source_id"`
	DestinationID       int64          `json:"destination_id,omitempty"` // 0 when recipient_not_found
	DestinationUsername string         `json:"to"`
	Amount              int64          `json:"amount_cents"`
	Status              TransferStatus `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
}

// Direction relative to the principal reading their history.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// HistoryEntry is a TransferRecord as seen by one of its parties.
type HistoryEntry struct {
	TransferRecord
	SourceUsername string    `json:"from"`
	Direction      Direction `json:"direction"`
}

// ─── Wager Records ──────────────────────────────────────────────────────────

// WagerRecord logs a single settled wager. Wagers carry no idempotency key;
// every call is a fresh draw.
type WagerRecord struct {
	ID           string    `json:"id"`
	PrincipalID  int64     `json:"principal_id"`
	Amount       int64     `json:"wager_cents"`
	Target       int       `json:"target"`
	Outcome      int       `json:"roll"`
	Win          bool      `json:"win"`
	Payout       int64     `json:"payout_cents"`
	BalanceDelta int64     `json:"balance_delta"`
	Seed         string    `json:"seed"`
	CreatedAt    time.Time `json:"created_at"`
}
