// Package api provides the HTTP server for cashd. It is a thin JSON layer
// over the ledger, wager, token and auth services; no ledger rule lives here.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cashd-network/cashd/internal/app/auth"
	"github.com/cashd-network/cashd/internal/app/ledger"
	"github.com/cashd-network/cashd/internal/app/token"
	"github.com/cashd-network/cashd/internal/app/wager"
	"github.com/cashd-network/cashd/internal/domain"
)

// Version is reported by /api/version. Set by the cli package.
var Version = "dev"

// Options tunes the server.
type Options struct {
	RequestTimeout time.Duration // per-request deadline (default: 30s)
	MaxBodyBytes   int64         // request body cap (default: 64KiB)
	RatePerSecond  float64       // per-principal limit on mutating routes; 0 disables
	RateBurst      int
	EnableMetrics  bool
}

// Services are the engines the server fronts.
type Services struct {
	Auth   *auth.Service
	Ledger *ledger.Service
	Wager  *wager.Service
	Token  *token.Service
}

// Server is the cashd HTTP API server.
type Server struct {
	svc     Services
	opts    Options
	log     *logrus.Entry
	limiter *rateLimiter
}

// NewServer creates a new API server.
func NewServer(svc Services, opts Options, log *logrus.Entry) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 10
	}
	s := &Server{svc: svc, opts: opts, log: log}
	if opts.RatePerSecond > 0 {
		s.limiter = newRateLimiter(opts.RatePerSecond, opts.RateBurst)
	}
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/me", s.handleMe)
			r.Get("/history", s.handleHistory)
			r.Get("/wagers", s.handleWagers)
			r.Get("/coin-balance/{symbol}", s.handleCoinBalance)

			r.Group(func(r chi.Router) {
				r.Use(s.rateLimit)
				r.Post("/send", s.handleSend)
				r.Post("/gamble", s.handleGamble)
				r.Post("/mint", s.handleMint)
				r.Post("/send-coin", s.handleSendCoin)
			})
		})
	})

	if s.opts.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

// fail maps a service error onto a status code. Server errors are logged and
// their detail withheld from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
	}
	writeError(w, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRetryDenied):
		return http.StatusConflict, "store busy, request not applied; retry denied, resubmit manually"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable, "store busy, safe to retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "auth_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "transient"
	}
	return "error"
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
