package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Wallet identity middleware. Signing, key custody, and the wallet-connection
// flow live outside this service; by the time a request arrives the caller
// holds a session token whose subject is their wallet address. This middleware
// only extracts and verifies that claim.

type walletKey struct{}

// WalletAddress retrieves the authenticated wallet address from the context.
func WalletAddress(ctx context.Context) string {
	if addr, ok := ctx.Value(walletKey{}).(string); ok {
		return addr
	}
	return ""
}

// WithWalletAddress injects a wallet address into the context. Exported for tests.
func WithWalletAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, walletKey{}, addr)
}

// WalletAuth validates the bearer session token and stores the wallet address
// (the token subject) in the request context. Requests without a valid token
// are rejected with 401.
func WalletAuth(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, "missing bearer token")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(signingKey), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				logger.WarnContext(r.Context(), "unauthorized request",
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				writeAuthError(w, "invalid session token")
				return
			}

			ctx := WithWalletAddress(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + desc + `"}`))
}
