package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

// AuthMiddleware verifies the HS256 bearer token issued by the identity
// collaborator and attaches the caller Identity to the context. The
// engine trusts the sub/role claims and never re-derives them.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing_token", "Authorization bearer token required")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token could not be verified")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid_token", "unexpected claims format")
				return
			}
			sub, _ := claims.GetSubject()
			role, _ := claims["role"].(string)
			if sub == "" || role == "" {
				writeError(w, http.StatusUnauthorized, "invalid_token", "sub and role claims are required")
				return
			}

			identity := scheduling.Identity{Subject: sub, Role: scheduling.Role(role)}
			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom returns the caller identity attached by AuthMiddleware.
func IdentityFrom(ctx context.Context) (scheduling.Identity, bool) {
	id, ok := ctx.Value(identityKey).(scheduling.Identity)
	return id, ok
}
