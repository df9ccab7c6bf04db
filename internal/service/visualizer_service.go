package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "rugviz-be/pkg/errors"
	"rugviz-be/pkg/logger"
)

// DefaultPrompt is sent to the generation webhook when the client does not
// supply one.
const DefaultPrompt = "Place the rug from the second image naturally on the floor of the room in the first image. Keep the room's lighting, perspective and furniture unchanged. The rug must keep its exact pattern, colors and proportions."

// maxWebhookResponse caps how much of the webhook reply is buffered
const maxWebhookResponse = 64 << 20 // 64 MB

// visualizerService calls an external generation webhook with links to the
// staged upload files and extracts the base64 image from whatever shape the
// webhook replies with.
type visualizerService struct {
	webhookURL    string
	publicBaseURL string
	client        *http.Client
	logger        *logger.Logger
}

// NewVisualizerService creates a Generator backed by an HTTP webhook. The
// timeout bounds the whole generation call, which routinely takes minutes.
func NewVisualizerService(webhookURL, publicBaseURL string, timeout time.Duration, logger *logger.Logger) Generator {
	return &visualizerService{
		webhookURL:    webhookURL,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Generate sends the room and rug file references to the webhook and returns
// the base64 image data from its response
func (s *visualizerService) Generate(ctx context.Context, prompt, roomPath, rugPath string) (string, error) {
	if s.webhookURL == "" {
		return "", apperrors.NewInternalError("Generation webhook is not configured", nil)
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"prompt":         prompt,
		"room_image_url": s.tempURL(roomPath),
		"rug_image_url":  s.tempURL(rugPath),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return "", apperrors.NewInternalError("Failed to build webhook request", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", apperrors.NewInternalError("Failed to build webhook request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, body)
	if err != nil {
		return "", apperrors.NewInternalError("Failed to build webhook request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	s.logger.Info("Calling generation webhook",
		zap.String("room_image", filepath.Base(roomPath)),
		zap.String("rug_image", filepath.Base(rugPath)))

	resp, err := s.client.Do(req)
	if err != nil {
		return "", apperrors.NewExternalError("Generation service is unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if err != nil {
		return "", apperrors.NewExternalError("Failed to read generation response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("Generation webhook returned an error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", summarize(data)))
		return "", apperrors.NewExternalError(
			fmt.Sprintf("Generation service returned status %d", resp.StatusCode), nil)
	}

	image, ok := extractBase64Image(data)
	if !ok {
		s.logger.Warn("Generation webhook returned no image",
			zap.String("body", summarize(data)))
		return "", apperrors.NewExternalError("Generation service returned no image", nil)
	}
	return image, nil
}

// tempURL builds the public URL the webhook fetches a staged upload from
func (s *visualizerService) tempURL(path string) string {
	return s.publicBaseURL + "/temp/" + filepath.Base(path)
}

// extractBase64Image pulls base64 image data out of a webhook response.
// Different workflow configurations reply with raw base64 text, a data URL,
// or JSON carrying the image under "data" or "image" (possibly nested in an
// array), so each shape is tried in turn.
func extractBase64Image(body []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", false
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		var decoded interface{}
		if err := json.Unmarshal(body, &decoded); err == nil {
			if img := imageFromJSON(decoded); img != "" {
				return stripDataURL(img), true
			}
			return "", false
		}
	}

	return stripDataURL(trimmed), true
}

// imageFromJSON walks a decoded JSON value looking for a "data" or "image"
// string field, descending into arrays and one level of nesting
func imageFromJSON(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []interface{}:
		for _, item := range val {
			if img := imageFromJSON(item); img != "" {
				return img
			}
		}
	case map[string]interface{}:
		for _, key := range []string{"data", "image"} {
			if inner, ok := val[key]; ok {
				if img := imageFromJSON(inner); img != "" {
					return img
				}
			}
		}
	}
	return ""
}

// stripDataURL removes a data:image/...;base64, prefix if present
func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, "base64,"); idx >= 0 {
			return s[idx+len("base64,"):]
		}
	}
	return s
}

// summarize truncates a response body for logging
func summarize(body []byte) string {
	const max = 300
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
