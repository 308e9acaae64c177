package store

import (
	"context"
	"time"
)

// RevocationStore is the Postgres-backed durable tier of the revocation registry.
type RevocationStore struct {
	db DB
}

func NewRevocationStore(db DB) *RevocationStore {
	return &RevocationStore{db: db}
}

func (s *RevocationStore) Add(ctx context.Context, key string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_revocations (token_hash, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_hash) DO UPDATE
		SET expires_at = GREATEST(token_revocations.expires_at, EXCLUDED.expires_at)
	`, key, expiresAt)
	return err
}

// Exists ignores entries past their expiry even before they are purged.
func (s *RevocationStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM token_revocations WHERE token_hash = $1 AND expires_at > NOW())
	`, key)
	return exists, err
}

func (s *RevocationStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM token_revocations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *RevocationStore) Name() string {
	return "postgres"
}
