package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledgerd/internal/apperr"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

type slowStore struct{ *memStore }

func (s *slowStore) Exists(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestResilientStorePassesThrough(t *testing.T) {
	inner := newMemStore()
	rs := NewResilientStore(inner, DefaultResilientConfig(), nil, nil)
	ctx := context.Background()

	require.NoError(t, rs.Add(ctx, "k", time.Now().Add(time.Minute)))
	ok, err := rs.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "mem", rs.Name())
}

func TestResilientStoreOpensAfterFailures(t *testing.T) {
	inner := newMemStore()
	inner.err = errors.New("boom")
	cfg := DefaultResilientConfig()
	cfg.Breaker.ConsecutiveFailures = 3
	rs := NewResilientStore(inner, cfg, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rs.Exists(ctx, "k")
		require.ErrorIs(t, err, apperr.ErrUnavailable)
	}
	require.Equal(t, gobreaker.StateOpen, rs.State())

	_, err := rs.Exists(ctx, "k")
	require.ErrorIs(t, err, apperr.ErrUnavailable)
	require.Equal(t, 3, inner.readCount(), "open breaker must not reach the store")
}

func TestResilientStoreTimeout(t *testing.T) {
	cfg := DefaultResilientConfig()
	cfg.Timeout = 10 * time.Millisecond
	rs := NewResilientStore(&slowStore{memStore: newMemStore()}, cfg, nil, nil)

	_, err := rs.Exists(context.Background(), "k")
	require.ErrorIs(t, err, apperr.ErrUnavailable)
}
