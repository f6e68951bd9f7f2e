package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gosuda/convlog/internal/auth"
)

// Auth authenticates requests with either a Bearer JWT (signed with secret)
// or a static API key checked against the configured argon2id hash. Either
// credential alone is sufficient; mechanisms with empty configuration are
// skipped.
func Auth(jwtSecret, apiKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Try Bearer token first.
			if tok := extractBearer(r); tok != "" && jwtSecret != "" {
				if ctx, ok := authenticateJWT(r.Context(), tok, jwtSecret); ok {
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// Try API key.
			if key := r.Header.Get("X-API-Key"); key != "" && apiKeyHash != "" {
				if auth.VerifyAPIKey(key, apiKeyHash) {
					ctx := context.WithValue(r.Context(), ContextKeyClient, "api-key")
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}

func authenticateJWT(ctx context.Context, tokenStr, secret string) (context.Context, bool) {
	claims, err := auth.ValidateToken(secret, tokenStr)
	if err != nil {
		return ctx, false
	}

	client := claims.Client
	if client == "" {
		client = claims.Subject
	}

	return context.WithValue(ctx, ContextKeyClient, client), true
}
