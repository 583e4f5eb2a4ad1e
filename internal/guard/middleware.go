package guard

import (
	"net/http"

	"github.com/stratus-console/stratus/internal/platform/httpx"
	"github.com/stratus-console/stratus/internal/shared"
)

// Middleware wires guard decisions into chi handler chains.
type Middleware struct {
	Guard *Guard
}

// Require protects a route with the given ability ids. The requirement is
// satisfied by possessing any one of them; with no ids, any user present in
// the projection passes.
func (m Middleware) Require(abilityIDs ...int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := m.Guard.Authorize(r.Context(), r.URL.Path, m.Guard.Token(r), abilityIDs)
			switch decision.Outcome {
			case Allow:
				ctx := r.Context()
				if decision.UserID != 0 {
					ctx = shared.ContextWithUserID(ctx, decision.UserID)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
			case DenyUnauthorized:
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			default:
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
			}
		})
	}
}

// Authenticate protects a route for any authenticated, projection-present
// user.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return m.Require()(next)
}
