package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cashd-network/cashd/internal/app/ledger"
	"github.com/cashd-network/cashd/internal/app/token"
	"github.com/cashd-network/cashd/internal/domain"
)

// ─── Request Bodies ─────────────────────────────────────────────────────────

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sendRequest struct {
	ToUsername  string `json:"to_username"`
	AmountCents int64  `json:"amount_cents"`
	ClientID    string `json:"client_id"`
}

type gambleRequest struct {
	WagerCents int64 `json:"wager_cents"`
	Target     *int  `json:"target"`
}

type mintRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Supply int64  `json:"supply"`
}

type sendCoinRequest struct {
	Symbol     string `json:"symbol"`
	ToUsername string `json:"to_username"`
	Amount     int64  `json:"amount"`
	ClientID   string `json:"client_id"`
}

// decode reads a JSON body into v. Non-integer amounts fail here because
// the target fields are integers.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		}
		return false
	}
	return true
}

// ─── Accounts ───────────────────────────────────────────────────────────────

// POST /api/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.svc.Auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// POST /api/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.svc.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GET /api/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	p, err := s.svc.Ledger.Account(r.Context(), id.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":      p.Username,
		"balance_cents": p.Balance,
		"is_admin":      p.IsAdmin,
	})
}

// GET /api/history?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	entries, err := s.svc.Ledger.History(r.Context(), id.ID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": entries})
}

// GET /api/wagers?limit=N
func (s *Server) handleWagers(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	recs, err := s.svc.Wager.History(r.Context(), id.ID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wagers": recs})
}

// ─── Transfers ──────────────────────────────────────────────────────────────

// POST /api/send
//
// The request id comes from client_id or the Idempotency-Key header. When
// both are present they must agree.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req sendRequest
	if !s.decode(w, r, &req) {
		return
	}
	requestID, ok := requestIDFrom(w, r, req.ClientID)
	if !ok {
		return
	}
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "client_id or Idempotency-Key is required")
		return
	}

	res, err := s.svc.Ledger.Transfer(r.Context(), ledger.TransferRequest{
		RequestID:           requestID,
		SourceID:            id.ID,
		DestinationUsername: req.ToUsername,
		Amount:              req.AmountCents,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Wagers ─────────────────────────────────────────────────────────────────

// POST /api/gamble
func (s *Server) handleGamble(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req gambleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Target == nil {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	res, err := s.svc.Wager.Place(r.Context(), id.ID, req.WagerCents, *req.Target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Tokens ─────────────────────────────────────────────────────────────────

// POST /api/mint
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req mintRequest
	if !s.decode(w, r, &req) {
		return
	}
	tok, err := s.svc.Token.Mint(r.Context(), id.ID, req.Name, req.Symbol, req.Supply)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token_id": tok.ID, "token": tok})
}

// POST /api/send-coin
func (s *Server) handleSendCoin(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req sendCoinRequest
	if !s.decode(w, r, &req) {
		return
	}
	requestID, ok := requestIDFrom(w, r, req.ClientID)
	if !ok {
		return
	}
	res, err := s.svc.Token.Send(r.Context(), token.SendRequest{
		RequestID:           requestID,
		SenderID:            id.ID,
		Symbol:              req.Symbol,
		DestinationUsername: req.ToUsername,
		Amount:              req.Amount,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/coin-balance/{symbol}
func (s *Server) handleCoinBalance(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	symbol := domain.NormalizeSymbol(chi.URLParam(r, "symbol"))
	bal, err := s.svc.Token.BalanceOf(r.Context(), id.ID, symbol)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "balance": bal})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func requestIDFrom(w http.ResponseWriter, r *http.Request, bodyID string) (string, bool) {
	bodyID = strings.TrimSpace(bodyID)
	header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	switch {
	case header == "":
		return bodyID, true
	case bodyID == "" || bodyID == header:
		return header, true
	default:
		writeError(w, http.StatusBadRequest, "client_id and Idempotency-Key disagree")
		return "", false
	}
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
