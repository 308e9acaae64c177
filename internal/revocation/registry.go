// Package revocation tracks logged-out bearer tokens in a durable store
// fronted by an in-process cache.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"ledgerd/internal/cache"
	"ledgerd/internal/logging"
	"ledgerd/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FallbackTTL bounds an entry whose token expiry cannot be read.
const FallbackTTL = time.Hour

// DurableStore is the source of truth for revocations. Keys are token hashes.
type DurableStore interface {
	Add(ctx context.Context, key string, expiresAt time.Time) error
	Exists(ctx context.Context, key string) (bool, error)
	Name() string
}

// ExpiryFunc extracts the expiry embedded in a token.
type ExpiryFunc func(token string) (time.Time, bool)

// Result is the answer of the in-process tier.
type Result int

const (
	// Unknown means the durable store must be consulted.
	Unknown Result = iota
	Revoked
	NotRevoked
)

func (r Result) String() string {
	switch r {
	case Revoked:
		return "revoked"
	case NotRevoked:
		return "not-revoked"
	default:
		return "unknown"
	}
}

type Config struct {
	CacheSize int
	// NegativeTTL caches "not revoked" answers locally. 0 disables it; other
	// instances' revocations become visible only after this delay.
	NegativeTTL time.Duration
}

type Registry struct {
	durable  DurableStore
	expiry   ExpiryFunc
	positive *cache.Memory[struct{}]
	negative *cache.Memory[struct{}]
	group    singleflight.Group
	// revocations counts local Revoke calls. A durable miss read before the
	// latest revocation is not cached.
	revocations atomic.Uint64
	cfg         Config
	now         func() time.Time
	logger      *logging.Logger
	metrics     metrics.Collector
}

func NewRegistry(durable DurableStore, expiry ExpiryFunc, cfg Config, logger *logging.Logger, collector metrics.Collector) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	cacheCfg := cache.Config{MaxSize: cfg.CacheSize, CleanupInterval: time.Minute}
	r := &Registry{
		durable:  durable,
		expiry:   expiry,
		positive: cache.NewMemory[struct{}](cacheCfg),
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.Named("revocation"),
		metrics:  collector,
	}
	if cfg.NegativeTTL > 0 {
		r.negative = cache.NewMemory[struct{}](cacheCfg)
	}
	return r
}

// Key is the stored form of a token.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Revoke writes to the durable store first, then the local cache.
// Tokens that are already expired need no entry.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	key := Key(token)
	expiresAt := r.expiresAt(token)
	if !r.now().Before(expiresAt) {
		r.logger.Debug("skipping revocation of expired token", zap.Time("expires_at", expiresAt))
		return nil
	}
	if err := r.durable.Add(ctx, key, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	r.revocations.Add(1)
	r.positive.SetUntil(key, struct{}{}, expiresAt)
	if r.negative != nil {
		r.negative.Delete(key)
	}
	r.logger.Info("token revoked",
		zap.String("store", r.durable.Name()),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

// IsRevoked answers from the cache when it can and from the durable store otherwise.
// A durable failure is returned, never treated as "not revoked".
func (r *Registry) IsRevoked(ctx context.Context, token string) (bool, error) {
	key := Key(token)
	switch r.check(key) {
	case Revoked:
		r.metrics.RecordRevocationLookup(metrics.TierCache, true)
		return true, nil
	case NotRevoked:
		r.metrics.RecordRevocationLookup(metrics.TierNegative, false)
		return false, nil
	}

	expiresAt := r.expiresAt(token)
	v, err, shared := r.group.Do(key, func() (any, error) {
		seen := r.revocations.Load()
		// Waiters share this lookup, so it outlives the first caller's context.
		revoked, err := r.durable.Exists(context.WithoutCancel(ctx), key)
		return durableAnswer{revoked: revoked, seen: seen}, err
	})
	if err != nil {
		r.logger.Warn("durable revocation lookup failed",
			zap.String("store", r.durable.Name()),
			zap.Error(err),
		)
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	answer := v.(durableAnswer)
	revoked := answer.revoked
	if revoked {
		r.positive.SetUntil(key, struct{}{}, expiresAt)
	} else if r.negative != nil && answer.seen == r.revocations.Load() {
		r.negative.Set(key, struct{}{}, r.cfg.NegativeTTL)
	}
	r.metrics.RecordRevocationLookup(metrics.TierDurable, revoked)
	if shared {
		r.logger.Debug("shared durable revocation lookup", zap.Bool("revoked", revoked))
	}
	return revoked, nil
}

type durableAnswer struct {
	revoked bool
	seen    uint64
}

// Forget drops all locally cached answers.
func (r *Registry) Forget() {
	r.positive.Purge()
	if r.negative != nil {
		r.negative.Purge()
	}
}

func (r *Registry) Close() {
	r.positive.Close()
	if r.negative != nil {
		r.negative.Close()
	}
}

func (r *Registry) check(key string) Result {
	if _, ok := r.positive.Get(key); ok {
		return Revoked
	}
	if r.negative != nil {
		if _, ok := r.negative.Get(key); ok {
			return NotRevoked
		}
	}
	return Unknown
}

func (r *Registry) expiresAt(token string) time.Time {
	if r.expiry != nil {
		if exp, ok := r.expiry(token); ok {
			return exp
		}
	}
	return r.now().Add(FallbackTTL)
}
