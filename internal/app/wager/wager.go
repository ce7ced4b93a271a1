// Package wager is the wager engine: a principal stakes minor units on a
// threshold, the server draws an outcome in [0, 100) and the stake is settled
// against a payout curve that always favours the house.
//
// Wagers carry no idempotency key, so a transient store failure is never
// retried here. The caller gets domain.ErrRetryDenied and decides whether to
// resubmit.
package wager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cashd-network/cashd/internal/domain"
	"github.com/cashd-network/cashd/internal/infra/observability"
	"github.com/cashd-network/cashd/internal/infra/sqlite"
)

// Status is the result of a Place call.
type Status string

const (
	StatusSettled      Status = "settled"
	StatusInsufficient Status = "insufficient"
)

// Config bounds wagers and sets the house edge.
type Config struct {
	MaxAmount    int64 // largest accepted stake in minor units (default: 50000)
	HouseEdgeBps int64 // house edge in basis points, [0, 10000) (default: 100)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{MaxAmount: 50000, HouseEdgeBps: 100}
}

// Validate rejects a config that would break the payout curve.
func (c Config) Validate() error {
	if c.MaxAmount <= 0 {
		return fmt.Errorf("wager max amount must be positive, got %d", c.MaxAmount)
	}
	if c.HouseEdgeBps < 0 || c.HouseEdgeBps >= bpsScale {
		return fmt.Errorf("wager house edge must be in [0, %d) bps, got %d", bpsScale, c.HouseEdgeBps)
	}
	return nil
}

// Result is what the caller sees. Outcome, Win, Seed, Payout and the delta
// are zero when Status is insufficient.
type Result struct {
	ID           string `json:"id,omitempty"`
	Status       Status `json:"status"`
	Outcome      int    `json:"roll"`
	Win          bool   `json:"win"`
	Seed         string `json:"seed,omitempty"`
	Payout       int64  `json:"payout_cents"`
	BalanceDelta int64  `json:"balance_delta"`
	Balance      int64  `json:"balance_cents"`
}

// Service is the wager engine.
type Service struct {
	db   *sqlite.DB
	cfg  Config
	rng  domain.RandomSource
	log  *logrus.Entry
	now  func() time.Time
	seed func() string
}

// New creates a wager engine. A nil rng uses CryptoSource.
func New(cfg Config, db *sqlite.DB, rng domain.RandomSource, log *logrus.Entry) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = CryptoSource{}
	}
	return &Service{
		db:   db,
		cfg:  cfg,
		rng:  rng,
		log:  log,
		now:  time.Now,
		seed: func() string { return uuid.NewString() },
	}, nil
}

// Place stakes amount on target for principalID. An ordinary principal
// without the funds gets StatusInsufficient and nothing is written. An
// administrator is not debited but is still credited on a win.
func (s *Service) Place(ctx context.Context, principalID, amount int64, target int) (Result, error) {
	if err := s.validate(principalID, amount, target); err != nil {
		return Result{}, err
	}
	ctx = context.WithoutCancel(ctx)

	var res Result
	err := s.db.Atomic(ctx, func(tx *sqlite.Tx) error {
		p, err := tx.PrincipalByID(ctx, principalID)
		if err != nil {
			return err
		}
		if !p.IsAdmin && p.Balance < amount {
			res = Result{Status: StatusInsufficient, Balance: p.Balance}
			return nil
		}

		outcome := s.rng.Intn(Outcomes)
		win, payout, delta := Settle(amount, target, outcome, s.cfg.HouseEdgeBps)
		if p.IsAdmin {
			delta = payout
		}

		balance := p.Balance
		if delta != 0 {
			if balance, err = tx.AdjustBalance(ctx, p.ID, delta); err != nil {
				return fmt.Errorf("settle: %w", err)
			}
		}

		rec := domain.WagerRecord{
			ID:           uuid.NewString(),
			PrincipalID:  p.ID,
			Amount:       amount,
			Target:       target,
			Outcome:      outcome,
			Win:          win,
			Payout:       payout,
			BalanceDelta: delta,
			Seed:         s.seed(),
			CreatedAt:    s.now(),
		}
		if err := tx.InsertWager(ctx, rec); err != nil {
			return err
		}

		res = Result{
			ID:           rec.ID,
			Status:       StatusSettled,
			Outcome:      outcome,
			Win:          win,
			Seed:         rec.Seed,
			Payout:       payout,
			BalanceDelta: delta,
			Balance:      balance,
		}
		return nil
	})
	if errors.Is(err, domain.ErrTransient) {
		observability.TransientFailures.WithLabelValues("wager").Inc()
		s.log.WithError(err).WithField("principal", principalID).Warn("wager aborted by store contention")
		return Result{}, fmt.Errorf("wager: %w: %w", domain.ErrRetryDenied, err)
	}
	if err != nil {
		return Result{}, err
	}

	s.record(res, amount, target)
	return res, nil
}

// History returns a principal's most recent wagers, newest first.
func (s *Service) History(ctx context.Context, principalID int64, limit int) ([]domain.WagerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	recs, err := s.db.Wagers(ctx, principalID, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []domain.WagerRecord{}
	}
	return recs, nil
}

// MultiplierBps exposes the configured curve for a target.
func (s *Service) MultiplierBps(target int) int64 {
	return MultiplierBps(target, s.cfg.HouseEdgeBps)
}

func (s *Service) validate(principalID, amount int64, target int) error {
	switch {
	case principalID <= 0:
		return fmt.Errorf("%w: principal is required", domain.ErrInvalidInput)
	case amount <= 0:
		return fmt.Errorf("%w: wager must be a positive integer", domain.ErrInvalidInput)
	case amount > s.cfg.MaxAmount:
		return fmt.Errorf("%w: wager above maximum of %d", domain.ErrInvalidInput, s.cfg.MaxAmount)
	case target < 0 || target > MaxTarget:
		return fmt.Errorf("%w: target must be in [0, %d]", domain.ErrInvalidInput, MaxTarget)
	}
	return nil
}

func (s *Service) record(res Result, amount int64, target int) {
	switch {
	case res.Status == StatusInsufficient:
		observability.WagersTotal.WithLabelValues("insufficient").Inc()
		return
	case res.Win:
		observability.WagersTotal.WithLabelValues("win").Inc()
	default:
		observability.WagersTotal.WithLabelValues("loss").Inc()
	}
	observability.WagerStake.Add(float64(amount))
	observability.WagerPayout.Add(float64(res.Payout))
	observability.WagerTarget.Observe(float64(target))
	s.log.WithFields(logrus.Fields{
		"wager":  res.ID,
		"target": target,
		"roll":   res.Outcome,
		"delta":  res.BalanceDelta,
	}).Debug("wager settled")
}
