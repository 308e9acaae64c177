package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ledgerd/internal/apperr"
	"ledgerd/internal/models"
)

type EphemeralTokenStore struct {
	db DB
}

func NewEphemeralTokenStore(db DB) *EphemeralTokenStore {
	return &EphemeralTokenStore{db: db}
}

func (s *EphemeralTokenStore) Insert(ctx context.Context, tx Execer, token models.EphemeralToken) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ephemeral_tokens (token_hash, account_id, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
	`, token.TokenHash, token.AccountID, string(token.Purpose), token.ExpiresAt)
	return err
}

// Consume deletes the row in one statement so two concurrent callers cannot both
// receive it. Expired rows are deleted too; the caller compares ExpiresAt.
func (s *EphemeralTokenStore) Consume(ctx context.Context, tokenHash string, purpose models.TokenPurpose) (models.EphemeralToken, error) {
	var token models.EphemeralToken
	err := s.db.GetContext(ctx, &token, `
		DELETE FROM ephemeral_tokens
		WHERE token_hash = $1 AND purpose = $2
		RETURNING token_hash, account_id, purpose, expires_at, created_at
	`, tokenHash, string(purpose))
	if errors.Is(err, sql.ErrNoRows) {
		return models.EphemeralToken{}, apperr.ErrTokenInvalid
	}
	if err != nil {
		return models.EphemeralToken{}, err
	}
	return token, nil
}

func (s *EphemeralTokenStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ephemeral_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
