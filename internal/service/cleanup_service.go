package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"rugviz-be/pkg/logger"
)

const (
	cleanupInterval = 1 * time.Hour
	tempFileMaxAge  = 1 * time.Hour
)

// cleanupService periodically deletes stale files from the temp upload
// directory. Uploads only live there long enough for the generation webhook
// to fetch them, so anything older than an hour is leftover.
type cleanupService struct {
	tempDir string
	logger  *logger.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCleanupService creates a cleanup service for the temp upload directory
func NewCleanupService(tempDir string, logger *logger.Logger) CleanupService {
	return &cleanupService{
		tempDir: tempDir,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the periodic cleanup loop
func (s *cleanupService) Start(ctx context.Context) error {
	s.logger.Info("Starting temp file cleanup service",
		zap.String("dir", s.tempDir),
		zap.Duration("interval", cleanupInterval))

	go s.run()
	return nil
}

// Stop stops the cleanup loop
func (s *cleanupService) Stop(ctx context.Context) error {
	close(s.stopCh)

	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("Temp file cleanup service stopped")
	return nil
}

func (s *cleanupService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	// Sweep once at startup to clear anything left from a previous run
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep removes temp files older than tempFileMaxAge
func (s *cleanupService) sweep() {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Failed to read temp directory")
		}
		return
	}

	cutoff := time.Now().Add(-tempFileMaxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.tempDir, entry.Name())); err != nil {
			s.logger.WithError(err).Warn("Failed to remove temp file",
				zap.String("file", entry.Name()))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("Removed stale temp files", zap.Int("count", removed))
	}
}
