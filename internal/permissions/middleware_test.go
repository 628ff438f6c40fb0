package permissions

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-portal/colegio-portal/internal/authz"
	"github.com/colegio-portal/colegio-portal/internal/observability"
	"github.com/colegio-portal/colegio-portal/internal/shared"
)

func authedRequest(t *testing.T, method, target, body string, userID int64) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	sessions := shared.NewSessionManager(nil, "portal_session", "secret", time.Hour, false)
	sess, err := sessions.Load(req.Context(), req)
	require.NoError(t, err)
	sess.SetUser(strconv.FormatInt(userID, 10))
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestRequireServiceWithoutSession(t *testing.T) {
	guard := Middleware{Service: newTestService(newMockPorts())}
	protected := guard.RequireService("admisiones")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session")
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admisiones", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireServiceRecordsDecisions(t *testing.T) {
	ports := newMockPorts()
	svc := newTestService(ports)
	metrics := observability.NewMetrics()
	guard := Middleware{Service: svc, Metrics: metrics}

	protected := guard.RequireService("admisiones")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Hierarchy alone is not enough without a grant.
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/admisiones", "", 7))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ports.grants["admisiones"] = authz.Grant{UserID: 7, ServiceKey: "admisiones", Granted: true}
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/admisiones", "", 7))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	assert.Contains(t, body, `portal_access_decisions_total{outcome="denied",service="admisiones"} 1`)
	assert.Contains(t, body, `portal_access_decisions_total{outcome="allowed",service="admisiones"} 1`)
}
