package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/colegio-portal/colegio-portal/internal/shared"
)

type stubRepo struct {
	user       *User
	sessions   map[string]int64
	deletedIDs []string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.deletedIDs = append(s.deletedIDs, id)
	return nil
}

func newTestHandler(t *testing.T, repo *stubRepo) (*Handler, *shared.SessionManager) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "portal_session", "test-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, NewService(repo), sessions, csrf), sessions
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func requestWithSession(t *testing.T, sessions *shared.SessionManager, method, target, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	sess, err := sessions.Load(req.Context(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestHandleLoginSuccess(t *testing.T) {
	repo := &stubRepo{user: &User{
		ID:           7,
		Email:        "docente@colegio.edu",
		Name:         "Ana",
		RoleID:       "profesor",
		PasswordHash: hashPassword(t, "correcthorse"),
		IsActive:     true,
	}}
	handler, sessions := newTestHandler(t, repo)

	req := requestWithSession(t, sessions, http.MethodPost, "/api/v1/auth/login",
		`{"email":"docente@colegio.edu","password":"correcthorse"}`)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.UserID)
	assert.Equal(t, "profesor", resp.RoleID)
	assert.NotEmpty(t, resp.CSRFToken)
	assert.Len(t, repo.sessions, 1, "login session must be registered for audit")
}

func TestHandleLoginBadPassword(t *testing.T) {
	repo := &stubRepo{user: &User{
		ID:           7,
		Email:        "docente@colegio.edu",
		PasswordHash: hashPassword(t, "correcthorse"),
		IsActive:     true,
	}}
	handler, sessions := newTestHandler(t, repo)

	req := requestWithSession(t, sessions, http.MethodPost, "/api/v1/auth/login",
		`{"email":"docente@colegio.edu","password":"wrongwrong"}`)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, repo.sessions)
}

func TestHandleLoginInactiveAccount(t *testing.T) {
	repo := &stubRepo{user: &User{
		ID:           8,
		Email:        "baja@colegio.edu",
		PasswordHash: hashPassword(t, "correcthorse"),
		IsActive:     false,
	}}
	handler, sessions := newTestHandler(t, repo)

	req := requestWithSession(t, sessions, http.MethodPost, "/api/v1/auth/login",
		`{"email":"baja@colegio.edu","password":"correcthorse"}`)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLoginValidation(t *testing.T) {
	handler, sessions := newTestHandler(t, &stubRepo{})

	req := requestWithSession(t, sessions, http.MethodPost, "/api/v1/auth/login",
		`{"email":"not-an-email","password":"short"}`)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogoutDestroysSession(t *testing.T) {
	repo := &stubRepo{}
	handler, sessions := newTestHandler(t, repo)

	req := requestWithSession(t, sessions, http.MethodPost, "/api/v1/auth/logout", "")
	sess := shared.SessionFromContext(req.Context())
	sess.SetUser("7")
	rec := httptest.NewRecorder()
	handler.handleLogout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{sess.ID}, repo.deletedIDs)
}
