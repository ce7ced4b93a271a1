package daemon

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/cashd-network/cashd/internal/app/wager"
)

// ConfigFile is the name of the TOML file inside the home directory.
const ConfigFile = "config.toml"

// EnvPrefix prefixes every environment override, e.g. CASHD_API_PORT.
const EnvPrefix = "CASHD_"

// Config is the full daemon configuration. Precedence, lowest first:
// DefaultConfig, $CASHD_HOME/config.toml, .env files, the environment.
type Config struct {
	API       APIConfig       `toml:"api" envPrefix:"API_"`
	Store     StoreConfig     `toml:"store" envPrefix:"STORE_"`
	Auth      AuthConfig      `toml:"auth" envPrefix:"AUTH_"`
	Admin     AdminConfig     `toml:"admin" envPrefix:"ADMIN_"`
	Ledger    LedgerConfig    `toml:"ledger" envPrefix:"LEDGER_"`
	Wager     WagerConfig     `toml:"wager" envPrefix:"WAGER_"`
	RateLimit RateLimitConfig `toml:"ratelimit" envPrefix:"RATELIMIT_"`
	Log       LogConfig       `toml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `toml:"telemetry" envPrefix:"TELEMETRY_"`
}

type APIConfig struct {
	Host            string        `toml:"host" env:"HOST"`
	Port            int           `toml:"port" env:"PORT"`
	RequestTimeout  time.Duration `toml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `toml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

type StoreConfig struct {
	Dir          string        `toml:"dir" env:"DIR"` // empty: <home>/data
	BusyTimeout  time.Duration `toml:"busy_timeout" env:"BUSY_TIMEOUT"`
	MaxOpenConns int           `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
}

type AuthConfig struct {
	Secret         string        `toml:"secret" env:"SECRET"`
	TokenTTL       time.Duration `toml:"token_ttl" env:"TOKEN_TTL"`
	BcryptCost     int           `toml:"bcrypt_cost" env:"BCRYPT_COST"`
	InitialBalance int64         `toml:"initial_balance" env:"INITIAL_BALANCE"`
}

// AdminConfig seeds the administrator. An empty password skips seeding.
type AdminConfig struct {
	Username string `toml:"username" env:"USERNAME"`
	Password string `toml:"password" env:"PASSWORD"`
	Balance  int64  `toml:"balance" env:"BALANCE"`
}

type LedgerConfig struct {
	MaxAttempts  int           `toml:"max_attempts" env:"MAX_ATTEMPTS"`
	RetryBackoff time.Duration `toml:"retry_backoff" env:"RETRY_BACKOFF"`
	HistoryLimit int           `toml:"history_limit" env:"HISTORY_LIMIT"`
}

type WagerConfig struct {
	MaxAmount    int64 `toml:"max_amount" env:"MAX_AMOUNT"`
	HouseEdgeBps int64 `toml:"house_edge_bps" env:"HOUSE_EDGE_BPS"`
}

type RateLimitConfig struct {
	Enabled   bool    `toml:"enabled" env:"ENABLED"`
	PerSecond float64 `toml:"per_second" env:"PER_SECOND"`
	Burst     int     `toml:"burst" env:"BURST"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
}

type TelemetryConfig struct {
	Metrics bool `toml:"metrics" env:"METRICS"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    64 << 10,
		},
		Store: StoreConfig{
			BusyTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL:       7 * 24 * time.Hour,
			BcryptCost:     10,
			InitialBalance: 10000,
		},
		Admin: AdminConfig{
			Username: "Admin",
			Balance:  999999999,
		},
		Ledger: LedgerConfig{
			MaxAttempts:  3,
			RetryBackoff: 20 * time.Millisecond,
			HistoryLimit: 50,
		},
		Wager: WagerConfig{
			MaxAmount:    50000,
			HouseEdgeBps: 100,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerSecond: 5,
			Burst:     10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Metrics: true,
		},
	}
}

// Validate rejects values the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("api.request_timeout must be positive"))
	}
	if c.API.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("api.shutdown_timeout must be positive"))
	}
	if len(c.Auth.Secret) < 16 {
		errs = append(errs, fmt.Errorf("auth.secret must be at least 16 bytes (run `cashd init` or set %sAUTH_SECRET)", EnvPrefix))
	}
	if c.Auth.InitialBalance < 0 {
		errs = append(errs, fmt.Errorf("auth.initial_balance must not be negative"))
	}
	if c.Admin.Password != "" && c.Admin.Username == "" {
		errs = append(errs, fmt.Errorf("admin.username is required when admin.password is set"))
	}
	if c.Ledger.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("ledger.max_attempts must be at least 1"))
	}
	if c.Ledger.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("ledger.history_limit must be at least 1"))
	}
	if err := (wager.Config{MaxAmount: c.Wager.MaxAmount, HouseEdgeBps: c.Wager.HouseEdgeBps}).Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst < 1) {
		errs = append(errs, fmt.Errorf("ratelimit.per_second and ratelimit.burst must be positive when enabled"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// StoreDir resolves the data directory against home.
func (c Config) StoreDir(home string) string {
	if c.Store.Dir != "" {
		return c.Store.Dir
	}
	return filepath.Join(home, "data")
}

// ─── Loading ────────────────────────────────────────────────────────────────

// Home returns $CASHD_HOME, or ~/.cashd.
func Home() string {
	if h := os.Getenv("CASHD_HOME"); h != "" {
		return h
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".cashd"
	}
	return filepath.Join(dir, ".cashd")
}

// LoadConfig builds the configuration for home. A missing config file or
// .env file is not an error; a malformed one is.
func LoadConfig(home string) (Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(home, ConfigFile)
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	for _, f := range []string{".env", filepath.Join(home, ".env")} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// WriteConfig writes cfg as TOML to home, creating the directory. An
// existing file is left alone and reported by written=false.
func WriteConfig(home string, cfg Config) (written bool, err error) {
	if err := os.MkdirAll(home, 0o700); err != nil {
		return false, fmt.Errorf("create home: %w", err)
	}
	path := filepath.Join(home, ConfigFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// NewSecret returns a random hex signing key.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
