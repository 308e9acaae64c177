// Package ephemeral issues single-use tokens for password reset and email confirmation.
package ephemeral

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"ledgerd/internal/apperr"
	"ledgerd/internal/logging"
	"ledgerd/internal/metrics"
	"ledgerd/internal/models"
	"ledgerd/internal/store"

	"go.uber.org/zap"
)

const (
	DefaultResetTTL   = 30 * time.Minute
	DefaultConfirmTTL = 24 * time.Hour

	tokenBytes = 32
)

// Store persists token hashes. Insert runs on the caller's transaction. Consume
// must remove the row atomically and return apperr.ErrTokenInvalid when no row
// matches hash and purpose.
type Store interface {
	Insert(ctx context.Context, tx store.Execer, token models.EphemeralToken) error
	Consume(ctx context.Context, tokenHash string, purpose models.TokenPurpose) (models.EphemeralToken, error)
}

type Manager struct {
	store   Store
	ttls    map[models.TokenPurpose]time.Duration
	now     func() time.Time
	random  func([]byte) (int, error)
	logger  *logging.Logger
	metrics metrics.Collector
}

// NewManager uses resetTTL and confirmTTL as the per-purpose defaults; zero keeps the built-in ones.
func NewManager(store Store, resetTTL, confirmTTL time.Duration, logger *logging.Logger, collector metrics.Collector) *Manager {
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	if confirmTTL <= 0 {
		confirmTTL = DefaultConfirmTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &Manager{
		store: store,
		ttls: map[models.TokenPurpose]time.Duration{
			models.PurposePasswordReset:     resetTTL,
			models.PurposeEmailConfirmation: confirmTTL,
		},
		now:     time.Now,
		random:  rand.Read,
		logger:  logger.Named("ephemeral"),
		metrics: collector,
	}
}

// Issued is a freshly created token. Token is the only copy of the plaintext.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Create stores the hash of a new token inside tx and returns the plaintext.
func (m *Manager) Create(ctx context.Context, tx store.Execer, accountID string, purpose models.TokenPurpose, ttl time.Duration) (Issued, error) {
	def, ok := m.ttls[purpose]
	if !ok {
		return Issued{}, fmt.Errorf("unknown token purpose %q", purpose)
	}
	if ttl <= 0 {
		ttl = def
	}
	buf := make([]byte, tokenBytes)
	if _, err := m.random(buf); err != nil {
		return Issued{}, fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	now := m.now()
	expiresAt := now.Add(ttl)
	err := m.store.Insert(ctx, tx, models.EphemeralToken{
		TokenHash: Hash(token),
		AccountID: accountID,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		return Issued{}, fmt.Errorf("store token: %w", err)
	}
	m.metrics.RecordEphemeralToken(string(purpose), "created")
	return Issued{Token: token, ExpiresAt: expiresAt}, nil
}

// Consume returns the owning account id. A token is accepted at most once.
func (m *Manager) Consume(ctx context.Context, token string, purpose models.TokenPurpose) (string, error) {
	if token == "" {
		return "", apperr.ErrTokenInvalid
	}
	stored, err := m.store.Consume(ctx, Hash(token), purpose)
	if err != nil {
		if errors.Is(err, apperr.ErrTokenInvalid) {
			m.metrics.RecordEphemeralToken(string(purpose), "invalid")
		}
		return "", err
	}
	if !m.now().Before(stored.ExpiresAt) {
		m.metrics.RecordEphemeralToken(string(purpose), "expired")
		m.logger.Debug("expired token presented",
			zap.String("purpose", string(purpose)),
			zap.String("account_id", stored.AccountID),
		)
		return "", apperr.ErrTokenExpired
	}
	m.metrics.RecordEphemeralToken(string(purpose), "consumed")
	return stored.AccountID, nil
}

func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
