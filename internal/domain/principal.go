// Package domain contains pure ledger types with ZERO infrastructure imports.
// Amounts are always int64 minor units (cents); floats never touch money.
package domain

import "time"

// ─── Principal ──────────────────────────────────────────────────────────────

// Principal is an account holder. The balance of an ordinary principal is
// never negative; an administrator has an unlimited balance.
type Principal struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	PassHash  string    `json:"-"`
	Balance   int64     `json:"balance_cents"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// MintSource is the sentinel principal id a token's initial supply is
// issued from. Real principal ids start at 1.
const MintSource int64 = 0
