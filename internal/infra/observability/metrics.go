// Package observability holds the Prometheus collectors for ledger
// operations. Collectors register on the default registry through promauto
// and are scraped at /metrics when [telemetry].metrics is on.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Transfer Metrics ───────────────────────────────────────────────────────

// TransfersTotal counts transfer calls by returned status. Replays of an
// already-stored request id are labelled replayed="true".
var TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "transfer",
	Name:      "requests_total",
	Help:      "Transfer calls by terminal status and whether the request id was replayed.",
}, []string{"status", "replayed"})

// TransferRetries counts atomic units re-run after a transient store failure.
var TransferRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "transfer",
	Name:      "retries_total",
	Help:      "Transfer atomic units retried after store contention.",
})

// TransferVolume sums completed transfer amounts in minor units.
var TransferVolume = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "transfer",
	Name:      "volume_minor_units_total",
	Help:      "Minor units moved by completed transfers.",
})

// ─── Wager Metrics ──────────────────────────────────────────────────────────

// WagersTotal counts wagers by result (win, loss, insufficient).
var WagersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "wager",
	Name:      "placed_total",
	Help:      "Wagers by result.",
}, []string{"result"})

// WagerStake sums settled wager amounts.
var WagerStake = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "wager",
	Name:      "stake_minor_units_total",
	Help:      "Minor units staked on settled wagers.",
})

// WagerPayout sums payouts returned to winners.
var WagerPayout = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "wager",
	Name:      "payout_minor_units_total",
	Help:      "Minor units paid out on winning wagers.",
})

// WagerTarget tracks the distribution of chosen thresholds.
var WagerTarget = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "cashd",
	Subsystem: "wager",
	Name:      "target",
	Help:      "Target thresholds chosen by players.",
	Buckets:   []float64{0, 5, 10, 25, 50, 75, 90, 99},
})

// ─── Token Metrics ──────────────────────────────────────────────────────────

// TokensMinted counts successful mints.
var TokensMinted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "token",
	Name:      "minted_total",
	Help:      "Tokens minted.",
})

// TokenSends counts token sends by status.
var TokenSends = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "token",
	Name:      "sends_total",
	Help:      "Token sends by terminal status.",
}, []string{"status"})

// ─── Store Metrics ──────────────────────────────────────────────────────────

// TransientFailures counts store contention errors by operation.
var TransientFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "store",
	Name:      "transient_failures_total",
	Help:      "Store contention or abort errors by operation.",
}, []string{"op"})

// ─── Auth Metrics ───────────────────────────────────────────────────────────

// AuthFailures counts rejected credentials by stage (login, token).
var AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cashd",
	Subsystem: "auth",
	Name:      "failures_total",
	Help:      "Rejected logins and bearer tokens.",
}, []string{"stage"})
