package pricing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mercadoleve/mercadoleve/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers list comparison endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{listID}/totals", h.Totals)
	r.Get("/{listID}/compare", h.Compare)
	r.Get("/{listID}/supermarkets/{supermarketID}/found", h.Found)
	r.Get("/{listID}/supermarkets/{supermarketID}/missing", h.Missing)
}

func (h *Handler) Totals(w http.ResponseWriter, r *http.Request) {
	listID, ok := h.parseID(w, chi.URLParam(r, "listID"), "list")
	if !ok {
		return
	}
	rows, err := h.service.Totals(r.Context(), listID)
	h.respond(w, "totals", rows, err)
}

func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	listID, ok := h.parseID(w, chi.URLParam(r, "listID"), "list")
	if !ok {
		return
	}
	marketA, ok := h.parseID(w, r.URL.Query().Get("a"), "supermarket a")
	if !ok {
		return
	}
	marketB, ok := h.parseID(w, r.URL.Query().Get("b"), "supermarket b")
	if !ok {
		return
	}
	rows, err := h.service.Compare(r.Context(), listID, marketA, marketB)
	h.respond(w, "items", rows, err)
}

func (h *Handler) Found(w http.ResponseWriter, r *http.Request) {
	listID, supermarketID, ok := h.listAndMarket(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Found(r.Context(), listID, supermarketID)
	h.respond(w, "products", rows, err)
}

func (h *Handler) Missing(w http.ResponseWriter, r *http.Request) {
	listID, supermarketID, ok := h.listAndMarket(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Missing(r.Context(), listID, supermarketID)
	h.respond(w, "products", rows, err)
}

func (h *Handler) listAndMarket(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	listID, ok := h.parseID(w, chi.URLParam(r, "listID"), "list")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	supermarketID, ok := h.parseID(w, chi.URLParam(r, "supermarketID"), "supermarket")
	return listID, supermarketID, ok
}

func (h *Handler) parseID(w http.ResponseWriter, raw, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respond(w http.ResponseWriter, field string, rows any, err error) {
	if err != nil {
		h.logger.Error("pricing query failed", slog.String("result", field), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{field: rows})
}
