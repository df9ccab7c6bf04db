package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rugviz-be/internal/middleware"
	"rugviz-be/internal/repository"
	"rugviz-be/internal/service"
	apperrors "rugviz-be/pkg/errors"
	"rugviz-be/pkg/logger"
)

// maxSpreadsheetBytes caps admin spreadsheet uploads
const maxSpreadsheetBytes = 10 << 20 // 10 MB

// AdminHandler handles admin login and catalog imports
type AdminHandler struct {
	auth        *middleware.AdminAuth
	importer    service.Importer
	catalog     service.Catalog
	generations repository.GenerationRepository // may be nil
	tempDir     string
	logger      *logger.Logger
}

// NewAdminHandler creates a new admin handler. generations may be nil when
// no database is configured.
func NewAdminHandler(auth *middleware.AdminAuth, importer service.Importer, catalog service.Catalog, generations repository.GenerationRepository, tempDir string, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		auth:        auth,
		importer:    importer,
		catalog:     catalog,
		generations: generations,
		tempDir:     tempDir,
		logger:      logger,
	}
}

// loginRequest is the POST /api/admin/login body
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidationError("Request body must be JSON with username and password", nil), h.logger)
		return
	}

	token, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		h.logger.WithField("username", req.Username).Info("Admin login rejected")
		writeError(w, err, h.logger)
		return
	}

	h.auth.SetSessionCookie(w, token)
	h.logger.WithField("username", req.Username).Info("Admin logged in")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged in",
	}, h.logger)
}

// Logout handles POST /api/admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.ClearSessionCookie(w)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out",
	}, h.logger)
}

// Me handles GET /api/admin/me
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.AdminCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, apperrors.NewAuthenticationError("Not logged in"), h.logger)
		return
	}

	username, err := h.auth.Verify(cookie.Value)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"username": username,
	}, h.logger)
}

// UploadRooms handles POST /api/admin/upload-rooms
func (h *AdminHandler) UploadRooms(w http.ResponseWriter, r *http.Request) {
	h.runImport(w, r, "rooms", h.importer.ImportRooms)
}

// UploadRugs handles POST /api/admin/upload-rugs
func (h *AdminHandler) UploadRugs(w http.ResponseWriter, r *http.Request) {
	h.runImport(w, r, "rugs", h.importer.ImportRugs)
}

// runImport stages the uploaded spreadsheet, runs the import, and drops the
// catalog cache so clients see the new data immediately
func (h *AdminHandler) runImport(w http.ResponseWriter, r *http.Request, kind string, importFn func(ctx context.Context, path string) (int, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSpreadsheetBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeError(w, apperrors.NewValidationError("Upload must be multipart form data with a file field", nil), h.logger)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperrors.NewValidationError("Missing spreadsheet file", nil), h.logger)
		return
	}
	defer file.Close()

	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		writeError(w, apperrors.NewInternalError("Failed to prepare upload directory", err), h.logger)
		return
	}

	staged := filepath.Join(h.tempDir, "import-"+uuid.NewString()+".xlsx")
	out, err := os.Create(staged)
	if err != nil {
		writeError(w, apperrors.NewInternalError("Failed to store spreadsheet", err), h.logger)
		return
	}
	defer os.Remove(staged)

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		writeError(w, apperrors.NewInternalError("Failed to store spreadsheet", err), h.logger)
		return
	}
	out.Close()

	start := time.Now()
	count, err := importFn(r.Context(), staged)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	h.catalog.InvalidateCache(r.Context())

	h.logger.Info("Catalog import finished",
		zap.String("kind", kind),
		zap.Int("count", count),
		zap.Duration("duration", time.Since(start)))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   count,
	}, h.logger)
}

// Stats handles GET /api/admin/stats from the optional audit log
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.generations == nil {
		writeError(w, apperrors.NewNotFoundError("Generation statistics are not enabled"), h.logger)
		return
	}

	since := time.Now().UTC().Truncate(24 * time.Hour)
	stats, err := h.generations.GetStats(r.Context(), since)
	if err != nil {
		writeError(w, apperrors.NewInternalError("Failed to load generation statistics", err), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stats,
	}, h.logger)
}
