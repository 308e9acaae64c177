package auth

import (
	"errors"
	"fmt"
	"time"

	"ledgerd/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of a login session token.
const DefaultTTL = time.Hour

type Claims struct {
	Email     string   `json:"email"`
	AccountID string   `json:"account_id"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 bearer tokens. It keeps no state besides the key.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, defaultTTL time.Duration) *Signer {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: defaultTTL, now: time.Now}
}

// Issue signs a token for the account. A zero ttl uses the signer default.
func (s *Signer) Issue(email, accountID string, roles []string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	issuedAt := s.now()
	claims := Claims{
		Email:     email,
		AccountID: accountID,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Signer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrTokenMalformed, err)
	}
	if !parsed.Valid || claims.AccountID == "" {
		return nil, apperr.ErrTokenMalformed
	}
	return claims, nil
}

// ExpiresAt returns the expiry of a correctly signed token, expired or not.
func (s *Signer) ExpiresAt(token string) (time.Time, bool) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (s *Signer) keyFunc(*jwt.Token) (any, error) {
	return s.secret, nil
}
