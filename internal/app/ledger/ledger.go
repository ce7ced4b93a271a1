// Package ledger is the transfer engine: it moves minor units between
// principals exactly once per caller-supplied request id.
//
// A transfer is one atomic unit against the store:
//  1. idempotency check: a stored record for the request id is returned as is
//  2. resolve the destination, recording recipient_not_found when absent
//  3. balance check (administrator exempt), recording insufficient when short
//  4. debit source (administrator exempt), credit destination, record completed
//
// Failure outcomes are persisted too, so a retry short-circuits to the same
// terminal answer.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cashd-network/cashd/internal/domain"
	"github.com/cashd-network/cashd/internal/infra/observability"
	"github.com/cashd-network/cashd/internal/infra/sqlite"
)

// MaxRequestIDLen bounds caller-supplied idempotency keys.
const MaxRequestIDLen = 128

// Config controls retry and history behavior.
type Config struct {
	MaxAttempts  int           // atomic unit attempts on transient failure (default: 3)
	RetryBackoff time.Duration // linear backoff step between attempts (default: 20ms)
	HistoryLimit int           // default and maximum history page (default: 50)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		RetryBackoff: 20 * time.Millisecond,
		HistoryLimit: 50,
	}
}

// TransferRequest is one send call.
type TransferRequest struct {
	RequestID           string
	SourceID            int64
	DestinationUsername string
	Amount              int64
}

// TransferResult carries the terminal status stored under the request id.
// Replayed is true when the status came from an earlier call.
type TransferResult struct {
	RequestID string               `json:"tx_id"`
	Status    domain.TransferStatus `json:"status"`
	Replayed  bool                 `json:"replayed"`
}

// Service is the transfer engine.
type Service struct {
	db  *sqlite.DB
	cfg Config
	log *logrus.Entry
	now func() time.Time
}

// New creates a transfer engine on db.
func New(cfg Config, db *sqlite.DB, log *logrus.Entry) *Service {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	return &Service{db: db, cfg: cfg, log: log, now: time.Now}
}

// Transfer executes req at most once. insufficient and recipient_not_found
// are normal results, not errors. Errors are ErrInvalidInput, ErrNotFound
// (unknown source) or ErrTransient once every attempt hit contention.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.DestinationUsername = strings.TrimSpace(req.DestinationUsername)
	if err := validate(req); err != nil {
		return TransferResult{}, err
	}

	log := s.log.WithFields(logrus.Fields{"request_id": req.RequestID, "source": req.SourceID})
	for attempt := 1; ; attempt++ {
		res, err := s.transferOnce(ctx, req)
		if err == nil {
			observability.TransfersTotal.WithLabelValues(string(res.Status), fmt.Sprint(res.Replayed)).Inc()
			if res.Status == domain.TransferCompleted && !res.Replayed {
				observability.TransferVolume.Add(float64(req.Amount))
			}
			return res, nil
		}
		if !errors.Is(err, domain.ErrTransient) {
			return TransferResult{}, err
		}

		observability.TransientFailures.WithLabelValues("transfer").Inc()
		if attempt >= s.cfg.MaxAttempts {
			log.WithError(err).Warn("transfer gave up after store contention")
			return TransferResult{}, fmt.Errorf("transfer %q after %d attempts: %w", req.RequestID, attempt, err)
		}
		observability.TransferRetries.Inc()
		log.WithError(err).WithField("attempt", attempt).Debug("retrying transfer")

		select {
		case <-ctx.Done():
			return TransferResult{}, fmt.Errorf("transfer %q: %w", req.RequestID, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.cfg.RetryBackoff):
		}
	}
}

func (s *Service) transferOnce(ctx context.Context, req TransferRequest) (TransferResult, error) {
	ctx = context.WithoutCancel(ctx)
	res := TransferResult{RequestID: req.RequestID}

	err := s.db.Atomic(ctx, func(tx *sqlite.Tx) error {
		existing, err := tx.TransferByRequestID(ctx, req.RequestID)
		if err == nil {
			res.Status, res.Replayed = existing.Status, true
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		src, err := tx.PrincipalByID(ctx, req.SourceID)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}

		rec := domain.TransferRecord{
			RequestID:           req.RequestID,
			SourceID:            src.ID,
			DestinationUsername: req.DestinationUsername,
			Amount:              req.Amount,
			CreatedAt:           s.now(),
		}

		dst, err := tx.PrincipalByUsername(ctx, req.DestinationUsername)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			rec.Status = domain.TransferRecipientNotFound
		case err != nil:
			return err
		case !src.IsAdmin && src.Balance < req.Amount:
			rec.DestinationID = dst.ID
			rec.Status = domain.TransferInsufficient
		default:
			rec.DestinationID = dst.ID
			if !src.IsAdmin {
				if _, err := tx.AdjustBalance(ctx, src.ID, -req.Amount); err != nil {
					return fmt.Errorf("debit: %w", err)
				}
			}
			if _, err := tx.AdjustBalance(ctx, dst.ID, req.Amount); err != nil {
				return fmt.Errorf("credit: %w", err)
			}
			rec.Status = domain.TransferCompleted
		}

		if err := tx.InsertTransfer(ctx, rec); err != nil {
			return err
		}
		res.Status = rec.Status
		return nil
	})
	if errors.Is(err, domain.ErrConflict) {
		// Lost a race on the request id: the unit rolled back, report the
		// winner's record instead.
		existing, lookupErr := s.db.Transfer(ctx, req.RequestID)
		if lookupErr != nil {
			return TransferResult{}, lookupErr
		}
		return TransferResult{RequestID: req.RequestID, Status: existing.Status, Replayed: true}, nil
	}
	if err != nil {
		return TransferResult{}, err
	}
	return res, nil
}

// Account loads the principal behind an authenticated caller.
func (s *Service) Account(ctx context.Context, principalID int64) (*domain.Principal, error) {
	return s.db.PrincipalByID(ctx, principalID)
}

// Balance returns a principal's balance in minor units.
func (s *Service) Balance(ctx context.Context, principalID int64) (int64, error) {
	return s.db.Balance(ctx, principalID)
}

// History returns up to limit transfers involving the principal, most
// recent first. limit <= 0 or above the configured page uses the page size.
func (s *Service) History(ctx context.Context, principalID int64, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	entries, err := s.db.History(ctx, principalID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

func validate(req TransferRequest) error {
	switch {
	case req.RequestID == "":
		return fmt.Errorf("%w: request id is required", domain.ErrInvalidInput)
	case len(req.RequestID) > MaxRequestIDLen:
		return fmt.Errorf("%w: request id longer than %d", domain.ErrInvalidInput, MaxRequestIDLen)
	case req.Amount <= 0:
		return fmt.Errorf("%w: amount must be a positive integer", domain.ErrInvalidInput)
	case req.DestinationUsername == "":
		return fmt.Errorf("%w: destination username is required", domain.ErrInvalidInput)
	case req.SourceID <= 0:
		return fmt.Errorf("%w: source principal is required", domain.ErrInvalidInput)
	}
	return nil
}
