// Package auth is the credential provider in front of the ledger: it
// registers principals, checks passwords, issues and verifies bearer tokens,
// and seeds the administrator at startup. None of the ledger rules live here.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/cashd-network/cashd/internal/domain"
	"github.com/cashd-network/cashd/internal/infra/observability"
	"github.com/cashd-network/cashd/internal/infra/sqlite"
)

const (
	MaxUsernameLen = 32
	MaxPasswordLen = 72 // bcrypt ignores anything longer
)

// Config for the credential provider.
type Config struct {
	Secret         string        // HS256 signing key
	TokenTTL       time.Duration // bearer token lifetime (default: 7 days)
	BcryptCost     int           // default: bcrypt.DefaultCost
	InitialBalance int64         // minor units granted at registration (default: 10000)
}

// DefaultConfig returns defaults without a secret; the daemon must supply one.
func DefaultConfig() Config {
	return Config{
		TokenTTL:       7 * 24 * time.Hour,
		BcryptCost:     bcrypt.DefaultCost,
		InitialBalance: 10000,
	}
}

// Claims are the bearer token claims.
type Claims struct {
	UID      int64  `json:"uid"`
	Username string `json:"un"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Identity is an authenticated caller.
type Identity struct {
	ID       int64
	Username string
	IsAdmin  bool
}

// Session is what register and login return.
type Session struct {
	Token string            `json:"token"`
	User  *domain.Principal `json:"user"`
}

// Service issues and checks credentials.
type Service struct {
	db  *sqlite.DB
	cfg Config
	log *logrus.Entry
	now func() time.Time
}

// New creates the credential provider. An empty secret is rejected.
func New(cfg Config, db *sqlite.DB, log *logrus.Entry) (*Service, error) {
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("auth secret must be at least 16 bytes")
	}
	def := DefaultConfig()
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cfg.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if cfg.InitialBalance < 0 {
		return nil, fmt.Errorf("initial balance must not be negative")
	}
	return &Service{db: db, cfg: cfg, log: log, now: time.Now}, nil
}

// Register creates an ordinary principal with the configured starting
// balance and logs it in. A taken username is domain.ErrConflict.
func (s *Service) Register(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	p, err := s.db.CreatePrincipal(ctx, username, string(hash), s.cfg.InitialBalance, false)
	if errors.Is(err, domain.ErrConflict) {
		return nil, fmt.Errorf("username %q taken: %w", username, domain.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	s.log.WithField("principal", p.ID).Info("principal registered")
	return s.session(p)
}

// Login checks a password and returns a fresh token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}
	p, err := s.db.PrincipalByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		observability.AuthFailures.WithLabelValues("login").Inc()
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrAuth)
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PassHash), []byte(password)); err != nil {
		observability.AuthFailures.WithLabelValues("login").Inc()
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrAuth)
	}
	return s.session(p)
}

// Authenticate verifies a bearer token and returns the caller.
func (s *Service) Authenticate(token string) (Identity, error) {
	if token == "" {
		observability.AuthFailures.WithLabelValues("token").Inc()
		return Identity{}, fmt.Errorf("%w: missing token", domain.ErrAuth)
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.UID <= 0 {
		observability.AuthFailures.WithLabelValues("token").Inc()
		return Identity{}, fmt.Errorf("%w: bad token", domain.ErrAuth)
	}
	return Identity{ID: claims.UID, Username: claims.Username, IsAdmin: claims.Admin}, nil
}

// Issue signs a token for p.
func (s *Service) Issue(p *domain.Principal) (string, error) {
	now := s.now()
	claims := Claims{
		UID:      p.ID,
		Username: p.Username,
		Admin:    p.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// SeedAdmin makes sure the configured administrator exists. It runs once at
// initialization; login never special-cases the administrator.
func (s *Service) SeedAdmin(ctx context.Context, username, password string, balance int64) (*domain.Principal, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, fmt.Errorf("admin: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	p, created, err := s.db.EnsureAdmin(ctx, username, string(hash), balance)
	if err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}
	s.log.WithFields(logrus.Fields{"principal": p.ID, "created": created}).Info("administrator ready")
	return p, nil
}

func (s *Service) session(p *domain.Principal) (*Session, error) {
	token, err := s.Issue(p)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: p}, nil
}

func validateCredentials(username, password string) error {
	switch {
	case username == "" || password == "":
		return fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	case len(username) > MaxUsernameLen:
		return fmt.Errorf("%w: username longer than %d", domain.ErrInvalidInput, MaxUsernameLen)
	case len(password) > MaxPasswordLen:
		return fmt.Errorf("%w: password longer than %d bytes", domain.ErrInvalidInput, MaxPasswordLen)
	}
	for _, r := range username {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: username must not contain spaces", domain.ErrInvalidInput)
		}
	}
	return nil
}
