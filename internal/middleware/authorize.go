package middleware

import (
	"log"
	"net/http"

	"github.com/evidentium/custodia/internal/authz"
)

// RequireAction checks the actor's role against the permission matrix.
// Unknown roles and ungranted pairs deny.
func RequireAction(matrix *authz.Matrix, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if !matrix.Allowed(actor.Role, action) {
				log.Printf("[Authz] Denied %s for user %d (role %s)", action, actor.UserID, actor.Role)
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
