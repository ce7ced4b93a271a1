// Package daemon wires cashd together: it opens the store once, builds the
// engines, seeds the administrator, serves HTTP and tears everything down
// in reverse order on shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cashd-network/cashd/internal/api"
	"github.com/cashd-network/cashd/internal/app/auth"
	"github.com/cashd-network/cashd/internal/app/ledger"
	"github.com/cashd-network/cashd/internal/app/token"
	"github.com/cashd-network/cashd/internal/app/wager"
	"github.com/cashd-network/cashd/internal/domain"
	"github.com/cashd-network/cashd/internal/infra/logging"
	"github.com/cashd-network/cashd/internal/infra/sqlite"
)

// Daemon owns the process-wide store handle and the services built on it.
type Daemon struct {
	cfg  Config
	home string
	log  *logrus.Logger
	db   *sqlite.DB

	Auth   *auth.Service
	Ledger *ledger.Service
	Wager  *wager.Service
	Token  *token.Service
}

// Option customizes a Daemon at construction.
type Option func(*options)

type options struct {
	rng domain.RandomSource
}

// WithRandomSource replaces the crypto-backed wager source.
func WithRandomSource(rng domain.RandomSource) Option {
	return func(o *options) { o.rng = rng }
}

// New validates cfg, opens the store under home and builds every service.
// The administrator is seeded when [admin].password is set.
func New(ctx context.Context, cfg Config, home string, log *logrus.Logger, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqlite.OpenWithOptions(cfg.StoreDir(home), sqlite.Options{
		BusyTimeout:  cfg.Store.BusyTimeout,
		MaxOpenConns: cfg.Store.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	d := &Daemon{cfg: cfg, home: home, log: log, db: db}
	if err := d.build(o); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.Admin.Password != "" {
		if _, err := d.Auth.SeedAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Balance); err != nil {
			db.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *Daemon) build(o options) error {
	var err error
	d.Auth, err = auth.New(auth.Config{
		Secret:         d.cfg.Auth.Secret,
		TokenTTL:       d.cfg.Auth.TokenTTL,
		BcryptCost:     d.cfg.Auth.BcryptCost,
		InitialBalance: d.cfg.Auth.InitialBalance,
	}, d.db, logging.Component(d.log, "auth"))
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	d.Ledger = ledger.New(ledger.Config{
		MaxAttempts:  d.cfg.Ledger.MaxAttempts,
		RetryBackoff: d.cfg.Ledger.RetryBackoff,
		HistoryLimit: d.cfg.Ledger.HistoryLimit,
	}, d.db, logging.Component(d.log, "ledger"))

	d.Wager, err = wager.New(wager.Config{
		MaxAmount:    d.cfg.Wager.MaxAmount,
		HouseEdgeBps: d.cfg.Wager.HouseEdgeBps,
	}, d.db, o.rng, logging.Component(d.log, "wager"))
	if err != nil {
		return fmt.Errorf("wager: %w", err)
	}

	d.Token = token.New(token.Config{
		MaxAttempts:  d.cfg.Ledger.MaxAttempts,
		RetryBackoff: d.cfg.Ledger.RetryBackoff,
	}, d.db, logging.Component(d.log, "token"))
	return nil
}

// Handler returns the HTTP handler serving every route.
func (d *Daemon) Handler() http.Handler {
	opts := api.Options{
		RequestTimeout: d.cfg.API.RequestTimeout,
		MaxBodyBytes:   d.cfg.API.MaxBodyBytes,
		EnableMetrics:  d.cfg.Telemetry.Metrics,
	}
	if d.cfg.RateLimit.Enabled {
		opts.RatePerSecond = d.cfg.RateLimit.PerSecond
		opts.RateBurst = d.cfg.RateLimit.Burst
	}
	srv := api.NewServer(api.Services{
		Auth:   d.Auth,
		Ledger: d.Ledger,
		Wager:  d.Wager,
		Token:  d.Token,
	}, opts, logging.Component(d.log, "api"))
	return srv.Handler()
}

// Serve listens on the configured address until ctx is cancelled, then
// drains in-flight requests.
func (d *Daemon) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.Addr(), err)
	}
	return d.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.log.WithField("addr", ln.Addr().String()).Info("cashd listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	d.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.API.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// DB exposes the store for maintenance commands.
func (d *Daemon) DB() *sqlite.DB { return d.db }

// Close releases the store. Call it after Serve returns.
func (d *Daemon) Close() error {
	return d.db.Close()
}
