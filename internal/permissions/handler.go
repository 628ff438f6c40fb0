package permissions

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/colegio-portal/colegio-portal/internal/audit"
	"github.com/colegio-portal/colegio-portal/internal/authz"
	"github.com/colegio-portal/colegio-portal/internal/platform/httpx"
)

// PermisosServiceKey is the catalog key of the permission-management
// module itself; mutating other users' access requires it.
const PermisosServiceKey = "permisos"

// Handler exposes the query facade over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers facade routes. Preview reads an arbitrary
// user's effective permissions, so it carries the same guard as the
// per-user administration endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions/me", h.myPermissions)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireService(PermisosServiceKey))
		r.Post("/permissions/preview", h.preview)
	})
}

// MountUserRoutes registers the per-user administration endpoints on
// the users subrouter. Mutating another user's access is itself a
// guarded portal service.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireService(PermisosServiceKey))
		r.Get("/{id}/permissions", h.userPermissions)
		r.Put("/{id}/permissions", h.updateUserAccess)
		r.Get("/{id}/audit", h.userAuditHistory)
	})
}

type serviceDecisionResponse struct {
	HasPermission bool   `json:"hasPermission"`
	HasHierarchy  bool   `json:"hasHierarchy"`
	CanAccess     bool   `json:"canAccess"`
	ServiceName   string `json:"serviceName"`
	RequiredLevel string `json:"requiredLevel"`
}

type viewResponse struct {
	UserID          int64                              `json:"userId"`
	Role            string                             `json:"role"`
	Level           string                             `json:"hierarchyLevel"`
	Services        map[string]serviceDecisionResponse `json:"services"`
	AccessibleCount int                                `json:"accessibleCount"`
}

func toViewResponse(view authz.PermissionView) viewResponse {
	services := make(map[string]serviceDecisionResponse, len(view.Services))
	for key, d := range view.Services {
		services[key] = serviceDecisionResponse{
			HasPermission: d.HasPermission,
			HasHierarchy:  d.HasHierarchy,
			CanAccess:     d.CanAccess,
			ServiceName:   d.ServiceName,
			RequiredLevel: d.RequiredLevel.String(),
		}
	}
	return viewResponse{
		UserID:          view.UserID,
		Role:            view.RoleID,
		Level:           view.Level.String(),
		Services:        services,
		AccessibleCount: view.AccessibleCount,
	}
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.guard.CurrentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	view, err := h.service.UserPermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("my permissions", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViewResponse(view))
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	view, err := h.service.UserPermissions(r.Context(), targetID)
	if err != nil {
		h.logger.Error("user permissions", slog.Int64("user_id", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViewResponse(view))
}

type previewRequest struct {
	UserID    int64           `json:"userId" validate:"required,gt=0"`
	Overrides map[string]bool `json:"overrides" validate:"required,min=1"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	view, err := h.service.Preview(r.Context(), req.UserID, req.Overrides)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViewResponse(view))
}

type updateAccessRequest struct {
	Grants map[string]bool `json:"grants" validate:"required,min=1"`
	Reason string          `json:"reason" validate:"required"`
}

type updateAccessResponse struct {
	Success     bool              `json:"success"`
	UpdatedKeys []string          `json:"updatedKeys"`
	FailedKeys  map[string]string `json:"failedKeys,omitempty"`
}

func (h *Handler) updateUserAccess(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	actorID, ok := h.guard.CurrentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	var req updateAccessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	report, err := h.service.UpdateUserAccess(r.Context(), targetID, req.Grants, actorID, req.Reason)
	if err != nil {
		h.logger.Error("update user access", slog.Int64("target", targetID), slog.Int64("actor", actorID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if !report.Success {
		// Partial success still reports the applied keys.
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, updateAccessResponse{
		Success:     report.Success,
		UpdatedKeys: report.UpdatedKeys,
		FailedKeys:  report.FailedKeys,
	})
}

func (h *Handler) userAuditHistory(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	limit := audit.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := h.service.UserAuditHistory(r.Context(), targetID, limit)
	if err != nil {
		if errors.Is(err, authz.ErrInvalidLimit) {
			httpx.RespondError(w, err)
			return
		}
		h.logger.Error("user audit history", slog.Int64("user_id", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]audit.EntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, audit.ToEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func pathUserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
