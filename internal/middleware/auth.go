package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/evidentium/custodia/internal/services"
)

type contextKey string

const actorKey contextKey = "actor"

// Actor identifies the authenticated staff member on a request. Audit
// entries attribute every sensitive access to one.
type Actor struct {
	UserID      int64
	DisplayName string
	Role        string
}

// NewAuthenticator returns a middleware that validates the staff session
// JWT and places the Actor in the request context.
func NewAuthenticator(jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
				http.Error(w, "malformed authorization header", http.StatusUnauthorized)
				return
			}

			claims := &services.StaffClaims{}
			token, err := jwt.ParseWithClaims(headerParts[1], claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return jwtSecret, nil
			})
			if err != nil || !token.Valid {
				log.Printf("[AuthMiddleware] Token rejected: %v", err)
				http.Error(w, "invalid session token", http.StatusUnauthorized)
				return
			}

			actor := Actor{
				UserID:      claims.UserID,
				DisplayName: claims.DisplayName,
				Role:        claims.Role,
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
