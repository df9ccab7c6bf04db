package handler

import (
	"net/http"
	"time"

	"rugviz-be/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Redis     string    `json:"redis,omitempty"`
	Database  string    `json:"database,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   "rugviz-be",
	}

	if h.container.HasRedis() {
		response.Redis = "up"
		if err := h.container.GetRedisClient().Health(r.Context()); err != nil {
			response.Redis = "down"
		}
	}

	if db := h.container.GetDatabase(); db != nil {
		response.Database = "up"
		if err := db.Health(r.Context()); err != nil {
			response.Database = "down"
		}
	}

	writeJSON(w, http.StatusOK, response, logger)
}
