// Package token is the token ledger: principals mint fixed-supply fungible
// tokens and send them to each other. Balances are never stored. A holding
// is the sum of entries credited to a principal minus those debited from it,
// and the issuance entry comes from the mint sentinel.
//
// Sends may carry a request id. A keyed send has the same at-most-once
// guarantee as a currency transfer; an unkeyed send is not deduplicated and
// is never retried automatically.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cashd-network/cashd/internal/domain"
	"github.com/cashd-network/cashd/internal/infra/observability"
	"github.com/cashd-network/cashd/internal/infra/sqlite"
)

// MaxNameLen bounds token display names.
const MaxNameLen = 64

// MaxRequestIDLen bounds send request ids.
const MaxRequestIDLen = 128

// Config controls retries for keyed sends.
type Config struct {
	MaxAttempts  int           // attempts for a keyed send on transient failure (default: 3)
	RetryBackoff time.Duration // linear backoff step (default: 20ms)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, RetryBackoff: 20 * time.Millisecond}
}

// SendRequest is one token send. RequestID is optional.
type SendRequest struct {
	RequestID           string
	SenderID            int64
	Symbol              string
	DestinationUsername string
	Amount              int64
}

// SendResult carries the terminal status of a send.
type SendResult struct {
	Status   domain.TransferStatus `json:"status"`
	Replayed bool                  `json:"replayed,omitempty"`
}

// Service is the token ledger.
type Service struct {
	db  *sqlite.DB
	cfg Config
	log *logrus.Entry
	now func() time.Time
}

// New creates a token ledger on db.
func New(cfg Config, db *sqlite.DB, log *logrus.Entry) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	return &Service{db: db, cfg: cfg, log: log, now: time.Now}
}

// ─── Mint ───────────────────────────────────────────────────────────────────

// Mint creates a token and credits the whole supply to the creator. A name
// or symbol already in use returns domain.ErrConflict and nothing is written.
func (s *Service) Mint(ctx context.Context, creatorID int64, name, symbol string, supply int64) (*domain.Token, error) {
	name = strings.TrimSpace(name)
	symbol = domain.NormalizeSymbol(symbol)
	switch {
	case creatorID <= 0:
		return nil, fmt.Errorf("%w: creator is required", domain.ErrInvalidInput)
	case name == "" || len(name) > MaxNameLen:
		return nil, fmt.Errorf("%w: name must be 1 to %d characters", domain.ErrInvalidInput, MaxNameLen)
	case !domain.ValidSymbol(symbol):
		return nil, fmt.Errorf("%w: symbol must be 1 to %d characters of A-Z and 0-9", domain.ErrInvalidInput, domain.MaxSymbolLen)
	case supply <= 0:
		return nil, fmt.Errorf("%w: supply must be a positive integer", domain.ErrInvalidInput)
	}
	ctx = context.WithoutCancel(ctx)

	now := s.now()
	tok := &domain.Token{
		ID:        uuid.NewString(),
		Name:      name,
		Symbol:    symbol,
		Supply:    supply,
		CreatorID: creatorID,
		CreatedAt: now,
	}
	err := s.db.Atomic(ctx, func(tx *sqlite.Tx) error {
		if _, err := tx.PrincipalByID(ctx, creatorID); err != nil {
			return err
		}
		if err := tx.InsertToken(ctx, *tok); err != nil {
			return err
		}
		return tx.InsertTokenEntry(ctx, domain.TokenEntry{
			ID:            uuid.NewString(),
			TokenID:       tok.ID,
			SourceID:      domain.MintSource,
			DestinationID: creatorID,
			Amount:        supply,
			CreatedAt:     now,
		})
	})
	if errors.Is(err, domain.ErrConflict) {
		return nil, fmt.Errorf("token %s (%s): %w", name, symbol, domain.ErrConflict)
	}
	if errors.Is(err, domain.ErrTransient) {
		observability.TransientFailures.WithLabelValues("mint").Inc()
		return nil, fmt.Errorf("mint: %w: %w", domain.ErrRetryDenied, err)
	}
	if err != nil {
		return nil, err
	}

	observability.TokensMinted.Inc()
	s.log.WithFields(logrus.Fields{"symbol": symbol, "supply": supply, "creator": creatorID}).Info("token minted")
	return tok, nil
}

// ─── Send ───────────────────────────────────────────────────────────────────

// Send moves amount of a token from the sender to the destination. A missing
// token or destination is domain.ErrNotFound; a short holding is the normal
// insufficient status.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Symbol = domain.NormalizeSymbol(req.Symbol)
	req.DestinationUsername = strings.TrimSpace(req.DestinationUsername)
	switch {
	case req.SenderID <= 0:
		return SendResult{}, fmt.Errorf("%w: sender is required", domain.ErrInvalidInput)
	case !domain.ValidSymbol(req.Symbol):
		return SendResult{}, fmt.Errorf("%w: invalid symbol", domain.ErrInvalidInput)
	case req.DestinationUsername == "":
		return SendResult{}, fmt.Errorf("%w: destination username is required", domain.ErrInvalidInput)
	case req.Amount <= 0:
		return SendResult{}, fmt.Errorf("%w: amount must be a positive integer", domain.ErrInvalidInput)
	case len(req.RequestID) > MaxRequestIDLen:
		return SendResult{}, fmt.Errorf("%w: request id longer than %d", domain.ErrInvalidInput, MaxRequestIDLen)
	}

	if req.RequestID == "" {
		res, err := s.sendOnce(ctx, req)
		if errors.Is(err, domain.ErrTransient) {
			observability.TransientFailures.WithLabelValues("token_send").Inc()
			return SendResult{}, fmt.Errorf("token send: %w: %w", domain.ErrRetryDenied, err)
		}
		if err != nil {
			return SendResult{}, err
		}
		observability.TokenSends.WithLabelValues(string(res.Status)).Inc()
		return res, nil
	}

	for attempt := 1; ; attempt++ {
		res, err := s.sendOnce(ctx, req)
		if err == nil {
			observability.TokenSends.WithLabelValues(string(res.Status)).Inc()
			return res, nil
		}
		if !errors.Is(err, domain.ErrTransient) {
			return SendResult{}, err
		}
		observability.TransientFailures.WithLabelValues("token_send").Inc()
		if attempt >= s.cfg.MaxAttempts {
			return SendResult{}, fmt.Errorf("token send %q after %d attempts: %w", req.RequestID, attempt, err)
		}
		s.log.WithError(err).WithFields(logrus.Fields{"request_id": req.RequestID, "attempt": attempt}).Debug("retrying token send")

		select {
		case <-ctx.Done():
			return SendResult{}, fmt.Errorf("token send %q: %w", req.RequestID, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.cfg.RetryBackoff):
		}
	}
}

func (s *Service) sendOnce(ctx context.Context, req SendRequest) (SendResult, error) {
	ctx = context.WithoutCancel(ctx)
	keyed := req.RequestID != ""

	var res SendResult
	err := s.db.Atomic(ctx, func(tx *sqlite.Tx) error {
		if keyed {
			status, err := tx.TokenTransferStatus(ctx, req.RequestID)
			if err == nil {
				res = SendResult{Status: status, Replayed: true}
				return nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}

		sender, err := tx.PrincipalByID(ctx, req.SenderID)
		if err != nil {
			return fmt.Errorf("sender: %w", err)
		}
		tok, err := tx.TokenBySymbol(ctx, req.Symbol)
		if err != nil {
			return err
		}
		dst, err := tx.PrincipalByUsername(ctx, req.DestinationUsername)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		held, err := tx.TokenBalance(ctx, tok.ID, sender.ID)
		if err != nil {
			return err
		}

		now := s.now()
		res.Status = domain.TransferInsufficient
		if held >= req.Amount {
			if err := tx.InsertTokenEntry(ctx, domain.TokenEntry{
				ID:            uuid.NewString(),
				TokenID:       tok.ID,
				SourceID:      sender.ID,
				DestinationID: dst.ID,
				Amount:        req.Amount,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
			res.Status = domain.TransferCompleted
		}
		if keyed {
			return tx.InsertTokenTransfer(ctx, req.RequestID, tok.ID, sender.ID, dst.ID, req.Amount, res.Status, now)
		}
		return nil
	})
	if keyed && errors.Is(err, domain.ErrConflict) {
		status, lookupErr := s.db.TokenTransferStatus(ctx, req.RequestID)
		if lookupErr != nil {
			return SendResult{}, lookupErr
		}
		return SendResult{Status: status, Replayed: true}, nil
	}
	if err != nil {
		return SendResult{}, err
	}
	return res, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// BalanceOf derives a principal's holding of symbol.
func (s *Service) BalanceOf(ctx context.Context, principalID int64, symbol string) (int64, error) {
	tok, err := s.db.TokenBySymbol(ctx, domain.NormalizeSymbol(symbol))
	if err != nil {
		return 0, err
	}
	return s.db.TokenBalance(ctx, tok.ID, principalID)
}

// Supply sums every principal's derived holding of symbol. For a consistent
// ledger it equals the minted supply.
func (s *Service) Supply(ctx context.Context, symbol string) (held int64, tok *domain.Token, err error) {
	tok, err = s.db.TokenBySymbol(ctx, domain.NormalizeSymbol(symbol))
	if err != nil {
		return 0, nil, err
	}
	holders, err := s.db.TokenHolders(ctx, tok.ID)
	if err != nil {
		return 0, nil, err
	}
	for id, bal := range holders {
		if id != domain.MintSource {
			held += bal
		}
	}
	return held, tok, nil
}
