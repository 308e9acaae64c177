package auth

import (
	"context"
	"fmt"

	"ledgerd/internal/apperr"
	"ledgerd/internal/models"
)

type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type AccountLookup interface {
	GetByID(ctx context.Context, accountID string) (models.Account, error)
}

// Authenticator accepts a token only if it verifies, is not revoked and
// belongs to an active account.
type Authenticator struct {
	verifier TokenVerifier
	revoked  RevocationChecker
	accounts AccountLookup
}

func NewAuthenticator(verifier TokenVerifier, revoked RevocationChecker, accounts AccountLookup) *Authenticator {
	return &Authenticator{verifier: verifier, revoked: revoked, accounts: accounts}
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	revoked, err := a.revoked.IsRevoked(ctx, token)
	if err != nil {
		return Principal{}, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return Principal{}, apperr.ErrTokenRevoked
	}
	account, err := a.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		return Principal{}, err
	}
	if !account.Active {
		return Principal{}, fmt.Errorf("%w: account not activated", apperr.ErrAccessDenied)
	}
	return Principal{AccountID: account.ID, Email: account.Email, Roles: account.Roles}, nil
}
