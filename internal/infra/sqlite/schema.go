package sqlite

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements in apply order. Each string is a
// single SQL statement (SQLite executes one at a time) and every one is
// idempotent, so Open can run them on every start.
func Migrations() []string {
	return []string{
		// Principals. The CHECK makes the store itself refuse a negative
		// balance for anyone but an administrator.
		`CREATE TABLE IF NOT EXISTS principals (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			username    TEXT    NOT NULL UNIQUE,
			pass_hash   TEXT    NOT NULL,
			balance     INTEGER NOT NULL DEFAULT 0,
			is_admin    INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			CHECK (is_admin = 1 OR balance >= 0)
		)`,

		// Transfer records. request_id is the caller's idempotency key; the
		// primary key is what makes a second record for it impossible.
		`CREATE TABLE IF NOT EXISTS transfers (
			request_id           TEXT    PRIMARY KEY,
			source_id            INTEGER NOT NULL REFERENCES principals(id),
			destination_id       INTEGER REFERENCES principals(id),
			destination_username TEXT    NOT NULL,
			amount               INTEGER NOT NULL CHECK (amount > 0),
			status               TEXT    NOT NULL CHECK (status IN ('completed', 'insufficient', 'recipient_not_found')),
			created_at           INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_source ON transfers(source_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_destination ON transfers(destination_id, created_at)`,

		// Wager log
		`CREATE TABLE IF NOT EXISTS wagers (
			id            TEXT    PRIMARY KEY,
			principal_id  INTEGER NOT NULL REFERENCES principals(id),
			amount        INTEGER NOT NULL CHECK (amount > 0),
			target        INTEGER NOT NULL CHECK (target BETWEEN 0 AND 99),
			outcome       INTEGER NOT NULL CHECK (outcome BETWEEN 0 AND 99),
			win           INTEGER NOT NULL,
			payout        INTEGER NOT NULL,
			balance_delta INTEGER NOT NULL,
			seed          TEXT    NOT NULL,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wagers_principal ON wagers(principal_id, created_at)`,

		// Token definitions. Symbols are unique regardless of case.
		`CREATE TABLE IF NOT EXISTS tokens (
			id          TEXT    PRIMARY KEY,
			name        TEXT    NOT NULL UNIQUE,
			symbol      TEXT    NOT NULL UNIQUE COLLATE NOCASE,
			supply      INTEGER NOT NULL CHECK (supply > 0),
			creator_id  INTEGER NOT NULL REFERENCES principals(id),
			created_at  INTEGER NOT NULL
		)`,

		// Token ledger entries. source_id 0 is the mint sentinel, so it
		// carries no foreign key.
		`CREATE TABLE IF NOT EXISTS token_entries (
			id             TEXT    PRIMARY KEY,
			token_id       TEXT    NOT NULL REFERENCES tokens(id),
			source_id      INTEGER NOT NULL,
			destination_id INTEGER NOT NULL REFERENCES principals(id),
			amount         INTEGER NOT NULL CHECK (amount > 0),
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_token_entries_token ON token_entries(token_id)`,

		// Terminal statuses of token sends that carried a request id.
		`CREATE TABLE IF NOT EXISTS token_transfers (
			request_id     TEXT    PRIMARY KEY,
			token_id       TEXT    NOT NULL REFERENCES tokens(id),
			source_id      INTEGER NOT NULL REFERENCES principals(id),
			destination_id INTEGER NOT NULL REFERENCES principals(id),
			amount         INTEGER NOT NULL CHECK (amount > 0),
			status         TEXT    NOT NULL CHECK (status IN ('completed', 'insufficient')),
			created_at     INTEGER NOT NULL
		)`,
	}
}
