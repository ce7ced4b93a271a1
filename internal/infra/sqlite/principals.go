package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cashd-network/cashd/internal/domain"
)

// ─── Account Store ──────────────────────────────────────────────────────────

const principalColumns = `id, username, pass_hash, balance, is_admin, created_at`

// CreatePrincipal registers a new principal. A taken username returns
// domain.ErrConflict.
func (db *DB) CreatePrincipal(ctx context.Context, username, passHash string, balance int64, isAdmin bool) (*domain.Principal, error) {
	return createPrincipal(ctx, db.db, username, passHash, balance, isAdmin)
}

// PrincipalByID loads a principal or returns domain.ErrNotFound.
func (db *DB) PrincipalByID(ctx context.Context, id int64) (*domain.Principal, error) {
	return principalWhere(ctx, db.db, `id = ?`, id)
}

// PrincipalByUsername loads a principal or returns domain.ErrNotFound.
func (db *DB) PrincipalByUsername(ctx context.Context, username string) (*domain.Principal, error) {
	return principalWhere(ctx, db.db, `username = ?`, username)
}

// Balance returns a principal's balance in minor units.
func (db *DB) Balance(ctx context.Context, id int64) (int64, error) {
	var balance int64
	err := db.db.QueryRowContext(ctx, `SELECT balance FROM principals WHERE id = ?`, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("principal %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return 0, storeErr("read balance", err)
	}
	return balance, nil
}

// EnsureAdmin makes sure an administrator with this username exists. A
// missing one is created with the given hash and balance; an existing
// ordinary principal is promoted. created reports which happened.
func (db *DB) EnsureAdmin(ctx context.Context, username, passHash string, balance int64) (p *domain.Principal, created bool, err error) {
	err = db.Atomic(ctx, func(tx *Tx) error {
		existing, err := tx.PrincipalByUsername(ctx, username)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			p, err = createPrincipal(ctx, tx.tx, username, passHash, balance, true)
			created = err == nil
			return err
		case err != nil:
			return err
		}
		if !existing.IsAdmin {
			if _, err := tx.tx.ExecContext(ctx, `UPDATE principals SET is_admin = 1 WHERE id = ?`, existing.ID); err != nil {
				return storeErr("promote admin", err)
			}
			existing.IsAdmin = true
		}
		p = existing
		return nil
	})
	return p, created, err
}

// PrincipalByID loads a principal inside the unit.
func (tx *Tx) PrincipalByID(ctx context.Context, id int64) (*domain.Principal, error) {
	return principalWhere(ctx, tx.tx, `id = ?`, id)
}

// PrincipalByUsername loads a principal inside the unit.
func (tx *Tx) PrincipalByUsername(ctx context.Context, username string) (*domain.Principal, error) {
	return principalWhere(ctx, tx.tx, `username = ?`, username)
}

// AdjustBalance adds delta (negative to debit) to a principal's balance as a
// single read-modify-write and returns the new balance. An ordinary
// principal that would go below zero gets domain.ErrInsufficientFunds and
// the row is untouched; administrators are exempt.
func (tx *Tx) AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	var balance int64
	err := tx.tx.QueryRowContext(ctx, `
		UPDATE principals SET balance = balance + ?1
		WHERE id = ?2 AND (is_admin = 1 OR balance + ?1 >= 0)
		RETURNING balance
	`, delta, id).Scan(&balance)
	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, sql.ErrNoRows):
		if _, lookupErr := tx.PrincipalByID(ctx, id); lookupErr != nil {
			return 0, lookupErr
		}
		return 0, fmt.Errorf("adjust principal %d by %d: %w", id, delta, domain.ErrInsufficientFunds)
	case isCheckViolation(err):
		return 0, fmt.Errorf("adjust principal %d by %d: %w", id, delta, domain.ErrInsufficientFunds)
	default:
		return 0, storeErr("adjust balance", err)
	}
}

func createPrincipal(ctx context.Context, q querier, username, passHash string, balance int64, isAdmin bool) (*domain.Principal, error) {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		INSERT INTO principals (username, pass_hash, balance, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, username, passHash, balance, boolToInt(isAdmin), toMillis(now))
	if err != nil {
		return nil, storeErr("create principal", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("create principal", err)
	}
	return &domain.Principal{
		ID:        id,
		Username:  username,
		PassHash:  passHash,
		Balance:   balance,
		IsAdmin:   isAdmin,
		CreatedAt: fromMillis(toMillis(now)),
	}, nil
}

func principalWhere(ctx context.Context, q querier, where string, arg any) (*domain.Principal, error) {
	var (
		p         domain.Principal
		isAdmin   int
		createdMs int64
	)
	err := q.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE `+where, arg).
		Scan(&p.ID, &p.Username, &p.PassHash, &p.Balance, &isAdmin, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("principal %v: %w", arg, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("load principal", err)
	}
	p.IsAdmin = isAdmin == 1
	p.CreatedAt = fromMillis(createdMs)
	return &p, nil
}
