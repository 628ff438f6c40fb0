package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colegio-portal/colegio-portal/internal/authz"
	"github.com/colegio-portal/colegio-portal/internal/platform/httpx"
)

// Handler exposes the audit timeline and export endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeline", h.timeline)
	r.Get("/export.csv", h.exportCSV)
}

// EntryResponse is the wire shape of one audit entry. Shared with the
// permissions facade so history payloads stay identical.
type EntryResponse struct {
	ID            string            `json:"id"`
	UserID        int64             `json:"userId"`
	ServiceKey    string            `json:"serviceKey"`
	Action        string            `json:"action"`
	ActorID       int64             `json:"actorId"`
	Reason        string            `json:"reason"`
	Timestamp     time.Time         `json:"timestamp"`
	PreviousState *authz.GrantState `json:"previousState,omitempty"`
	NewState      authz.GrantState  `json:"newState"`
}

// ToEntryResponse converts an audit entry into its wire shape.
func ToEntryResponse(entry authz.AuditEntry) EntryResponse {
	return EntryResponse{
		ID:            entry.ID,
		UserID:        entry.UserID,
		ServiceKey:    entry.ServiceKey,
		Action:        string(entry.Action),
		ActorID:       entry.ActorID,
		Reason:        entry.Reason,
		Timestamp:     entry.Timestamp,
		PreviousState: entry.PreviousState,
		NewState:      entry.NewState,
	}
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	entries := make([]EntryResponse, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, ToEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"paging": map[string]any{
			"page":     result.Paging.Page,
			"pageSize": result.Paging.PageSize,
			"hasNext":  result.Paging.HasNext,
		},
	})
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Export(r.Context(), parseFilters(r))
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="access-audit.csv"`)
	if err := WriteCSV(w, entries); err != nil {
		h.logger.Error("audit export write", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) TimelineFilters {
	q := r.URL.Query()
	filters := TimelineFilters{
		ServiceKey: q.Get("service"),
		Action:     q.Get("action"),
	}
	if v, err := strconv.ParseInt(q.Get("actor"), 10, 64); err == nil {
		filters.ActorID = v
	}
	if v, err := strconv.ParseInt(q.Get("user"), 10, 64); err == nil {
		filters.UserID = v
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("pageSize")); err == nil {
		filters.PageSize = v
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filters.From = t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filters.To = t
	}
	return filters
}
