package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"rugviz-be/internal/domain"
	"rugviz-be/internal/repository"
	"rugviz-be/internal/service"
	"rugviz-be/internal/usage"
	apperrors "rugviz-be/pkg/errors"
	"rugviz-be/pkg/logger"
)

const (
	maxRoomImageBytes = 10 << 20 // 10 MB
	maxRugImageBytes  = 5 << 20  // 5 MB
	maxUploadBytes    = maxRoomImageBytes + maxRugImageBytes + (1 << 20)
)

// allowedImageTypes are the upload mime types the generation workflow accepts
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// UploadHandler handles the visitor-facing generation request
type UploadHandler struct {
	ledger      *usage.Ledger
	generator   service.Generator
	generations repository.GenerationRepository // may be nil
	tempDir     string
	logger      *logger.Logger
}

// NewUploadHandler creates a new upload handler. generations may be nil when
// no database is configured.
func NewUploadHandler(ledger *usage.Ledger, generator service.Generator, generations repository.GenerationRepository, tempDir string, logger *logger.Logger) *UploadHandler {
	return &UploadHandler{
		ledger:      ledger,
		generator:   generator,
		generations: generations,
		tempDir:     tempDir,
		logger:      logger,
	}
}

// Generate handles POST /upload: it stages the room and rug photos, checks
// the daily quota, calls the generation webhook, and records one use only
// after a verified success.
func (h *UploadHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, apperrors.NewValidationError("Upload must be multipart form data with room and rug images", nil), h.logger)
		return
	}

	h.ledger.EnsureIdentityCookie(w, r)

	if !h.ledger.IsAllowed(r) {
		h.logger.WithField("limit", h.ledger.DailyLimit()).Info("Generation rejected, daily quota reached")
		writeError(w, apperrors.NewRateLimitError("Daily generation limit reached. Please come back tomorrow."), h.logger)
		return
	}

	roomPath, err := h.saveUpload(r, "room", maxRoomImageBytes)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	defer os.Remove(roomPath)

	rugPath, err := h.saveUpload(r, "rug", maxRugImageBytes)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	defer os.Remove(rugPath)

	prompt := strings.TrimSpace(r.FormValue("prompt"))

	start := time.Now()
	image, err := h.generator.Generate(ctx, prompt, roomPath, rugPath)
	if err != nil {
		// A failed generation never consumes quota
		writeError(w, err, h.logger)
		return
	}
	duration := time.Since(start)

	count := h.ledger.RecordUse(r)
	h.audit(r, roomPath, rugPath, prompt, duration)

	h.logger.WithFields(map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
		"use_count":   count,
	}).Info("Generation completed")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "OK",
		"image":   image,
	}, h.logger)
}

// Usage handles GET /api/usage, reporting today's quota state for the client
func (h *UploadHandler) Usage(w http.ResponseWriter, r *http.Request) {
	h.ledger.EnsureIdentityCookie(w, r)

	used := h.ledger.CurrentCount(r)
	limit := h.ledger.DailyLimit()
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"limit":     limit,
		"used":      used,
		"remaining": remaining,
	}, h.logger)
}

// saveUpload validates one multipart image and stages it in the temp
// directory under a random name
func (h *UploadHandler) saveUpload(r *http.Request, field string, maxBytes int64) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", apperrors.NewValidationError("Missing "+field+" image", nil)
	}
	defer file.Close()

	if header.Size > maxBytes {
		return "", apperrors.NewValidationError(
			"The "+field+" image is too large",
			map[string]interface{}{"max_bytes": maxBytes})
	}

	contentType, err := sniffImageType(file, header)
	if err != nil {
		return "", err
	}
	if !allowedImageTypes[contentType] {
		return "", apperrors.NewValidationError(
			"Unsupported "+field+" image type, use JPEG, PNG, WebP or HEIC",
			map[string]interface{}{"type": contentType})
	}

	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		return "", apperrors.NewInternalError("Failed to prepare upload directory", err)
	}

	name := field + "-" + uuid.NewString() + extensionFor(contentType, header.Filename)
	dest := filepath.Join(h.tempDir, name)

	out, err := os.Create(dest)
	if err != nil {
		return "", apperrors.NewInternalError("Failed to store upload", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, io.LimitReader(file, maxBytes)); err != nil {
		os.Remove(dest)
		return "", apperrors.NewInternalError("Failed to store upload", err)
	}
	return dest, nil
}

// audit appends a generation record when the audit log is enabled. Failures
// are logged and never surfaced to the client.
func (h *UploadHandler) audit(r *http.Request, roomPath, rugPath, prompt string, duration time.Duration) {
	if h.generations == nil {
		return
	}

	keys := h.ledger.ResolveIdentityKeys(r)
	record := &domain.GenerationRecord{
		IdentityKey: keys[0],
		RoomFile:    filepath.Base(roomPath),
		RugFile:     filepath.Base(rugPath),
		PromptChars: len(prompt),
		DurationMS:  duration.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.generations.Create(r.Context(), record); err != nil {
		h.logger.WithError(err).Warn("Failed to write generation audit record")
	}
}

// sniffImageType determines the mime type of an upload, preferring content
// sniffing and falling back to the declared header for formats the sniffer
// does not know (HEIC/HEIF).
func sniffImageType(file multipart.File, header *multipart.FileHeader) (string, error) {
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", apperrors.NewInternalError("Failed to read upload", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", apperrors.NewInternalError("Failed to read upload", err)
	}

	sniffed := http.DetectContentType(buf[:n])
	if allowedImageTypes[sniffed] {
		return sniffed, nil
	}

	declared := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" {
		return declared, nil
	}
	return sniffed, nil
}

// extensionFor picks a file extension for the staged upload
func extensionFor(contentType, originalName string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	}
	if ext := strings.ToLower(filepath.Ext(originalName)); ext != "" {
		return ext
	}
	return ".bin"
}
