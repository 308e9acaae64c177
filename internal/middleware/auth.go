package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ledgerd/internal/apperr"
	"ledgerd/internal/auth"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	tokenKey     contextKey = "bearer_token"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(auth.Principal)
	return principal, ok
}

// TokenFromContext returns the raw bearer token that authenticated the request.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok
}

func WithPrincipal(ctx context.Context, principal auth.Principal, token string) context.Context {
	ctx = context.WithValue(ctx, principalKey, principal)
	return context.WithValue(ctx, tokenKey, token)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func Authenticate(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			principal, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				status, message := AuthFailure(err)
				writeError(w, status, message)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal, token)))
		})
	}
}

// AuthFailure maps an Authenticate error to a status and message. Errors that
// say nothing about the token are server faults.
func AuthFailure(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrUnavailable):
		return http.StatusServiceUnavailable, "authentication temporarily unavailable"
	case errors.Is(err, apperr.ErrTokenRevoked):
		return http.StatusUnauthorized, "token revoked"
	case errors.Is(err, apperr.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, apperr.ErrTokenMalformed),
		errors.Is(err, apperr.ErrTokenInvalid),
		errors.Is(err, apperr.ErrAccountNotFound):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, apperr.ErrAccessDenied):
		return http.StatusForbidden, "account not activated"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
