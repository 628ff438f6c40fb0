package permissions

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/colegio-portal/colegio-portal/internal/observability"
	"github.com/colegio-portal/colegio-portal/internal/platform/httpx"
	"github.com/colegio-portal/colegio-portal/internal/shared"
)

// Middleware guards routes behind the authorization core itself: the
// actor needs canAccess on the named service, exactly like any other
// portal module. Every decision it takes is counted per service.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// RequireSession rejects requests without an authenticated session.
func (m Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.CurrentUserID(r); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireService ensures the current user can access the given portal
// service before the request reaches the handler.
func (m Middleware) RequireService(serviceKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.CurrentUserID(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			allowed, err := m.Service.CanAccess(r.Context(), userID, serviceKey)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("route guard", slog.String("service", serviceKey), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			m.Metrics.RecordDecision(serviceKey, allowed)
			if !allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient access for "+serviceKey)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CurrentUserID extracts the authenticated user from the session.
func (m Middleware) CurrentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse session user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}
