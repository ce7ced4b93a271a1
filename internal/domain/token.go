package domain

import (
	"strings"
	"time"
)

// ─── Tokens ─────────────────────────────────────────────────────────────────

// Token is a user-minted fungible token. Supply is fixed at mint time.
type Token struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Supply    int64     `json:"supply"`
	CreatorID int64     `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenEntry is one immutable movement in the token ledger. Balances are
// never stored: balance(p) = Σ amount to p − Σ amount from p.
type TokenEntry struct {
	ID            string    `json:"id"`
	TokenID       string    `json:"token_id"`
	SourceID      int64     `json:"source_id"` // MintSource for the issuance entry
	DestinationID int64     `json:"destination_id"`
	Amount        int64     `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// MaxSymbolLen bounds token tickers.
const MaxSymbolLen = 12

// NormalizeSymbol upper-cases and trims a ticker. Symbols are unique
// case-insensitively, so every lookup goes through here.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidSymbol reports whether a normalized symbol is 1..MaxSymbolLen
// characters of A-Z and 0-9.
func ValidSymbol(s string) bool {
	if len(s) == 0 || len(s) > MaxSymbolLen {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
