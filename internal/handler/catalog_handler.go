package handler

import (
	"net/http"

	"rugviz-be/internal/domain"
	"rugviz-be/internal/service"
	apperrors "rugviz-be/pkg/errors"
	"rugviz-be/pkg/logger"
)

// CatalogHandler serves the browsable rug and room catalogs
type CatalogHandler struct {
	catalog service.Catalog
	logger  *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog service.Catalog, logger *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// ListResponse wraps a catalog listing
type ListResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Count   int         `json:"count"`
}

// Rugs handles GET /api/rugs
func (h *CatalogHandler) Rugs(w http.ResponseWriter, r *http.Request) {
	rugs, err := h.catalog.Rugs(r.Context())
	if err != nil {
		writeError(w, apperrors.NewInternalError("Failed to load rug catalog", err), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Success: true, Data: rugs, Count: len(rugs)}, h.logger)
}

// Rooms handles GET /api/rooms with optional roomType, style and color filters
func (h *CatalogHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	filter := domain.RoomFilter{
		RoomType: r.URL.Query().Get("roomType"),
		Style:    r.URL.Query().Get("style"),
		Color:    r.URL.Query().Get("color"),
	}

	rooms, err := h.catalog.Rooms(r.Context(), filter)
	if err != nil {
		writeError(w, apperrors.NewInternalError("Failed to load room catalog", err), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Success: true, Data: rooms, Count: len(rooms)}, h.logger)
}

// Options handles GET /api/options
func (h *CatalogHandler) Options(w http.ResponseWriter, r *http.Request) {
	opts, err := h.catalog.Options(r.Context())
	if err != nil {
		writeError(w, apperrors.NewInternalError("Failed to load catalog options", err), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    opts,
	}, h.logger)
}
