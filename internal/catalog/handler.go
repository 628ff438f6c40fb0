package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/colegio-portal/colegio-portal/internal/authz"
	"github.com/colegio-portal/colegio-portal/internal/platform/httpx"
)

// Handler exposes the service catalog over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listServices)
	r.Get("/{key}", h.getService)
}

type serviceResponse struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	MinimumLevel string `json:"minimumHierarchyLevel"`
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.logger.Error("list services", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]serviceResponse, 0, len(services))
	for _, svc := range services {
		out = append(out, toResponse(svc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"services": out})
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service.GetService(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, authz.ErrUnknownService) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(svc))
}

func toResponse(svc authz.Service) serviceResponse {
	return serviceResponse{
		Key:          svc.Key,
		Name:         svc.Name,
		Description:  svc.Description,
		MinimumLevel: svc.MinimumLevel.String(),
	}
}
