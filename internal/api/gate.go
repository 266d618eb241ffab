package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/platform/httpx"
	"github.com/electcore/electcore/internal/policy"
	"github.com/electcore/electcore/internal/shared"
)

// Evaluator is the policy decision point consulted by the gate.
type Evaluator interface {
	Evaluate(ctx context.Context, principal identity.Principal, action string, resource policy.Resource, attrs map[string]string) (policy.Decision, error)
}

// Gate wires policy checks in front of HTTP handlers.
type Gate struct {
	Evaluator Evaluator
	Logger    *slog.Logger
}

// RequireAny lets the request through when any of the actions is allowed on
// resourceType. With no actions every request is forbidden.
func (g Gate) RequireAny(resourceType string, actions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := identity.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			denied := fmt.Errorf("%w: no action permits %s", shared.ErrForbidden, resourceType)
			for _, action := range actions {
				decision, err := g.Evaluator.Evaluate(r.Context(), principal, action, policy.Resource{Type: resourceType}, nil)
				if err != nil {
					if g.Logger != nil {
						g.Logger.Error("policy gate", slog.String("action", action), slog.Any("error", err))
					}
					httpx.RespondError(w, err)
					return
				}
				if decision.Allowed {
					next.ServeHTTP(w, r)
					return
				}
				denied = decision.Err()
			}
			httpx.RespondError(w, denied)
		})
	}
}
