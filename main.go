package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"rugviz-be/internal/config"
	"rugviz-be/internal/container"
	"rugviz-be/internal/handler"
	"rugviz-be/internal/middleware"
	"rugviz-be/internal/service"
	"rugviz-be/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	container *container.Container
	cleanup   service.CleanupService
	server    *http.Server
	log       *logger.Logger
	mu        sync.Mutex
	closed    bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Stop the temp cleanup loop
	if r.cleanup != nil {
		if err := r.cleanup.Stop(ctx); err != nil {
			r.log.WithError(err).Error("Failed to stop cleanup service")
			errs = append(errs, fmt.Errorf("cleanup service shutdown: %w", err))
		}
	}

	// Close Redis and database connections
	if r.container != nil {
		r.container.Close()
	}

	if len(errs) > 0 {
		r.log.WithField("error_count", len(errs)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"daily_limit": cfg.DailyLimit,
	}).Info("Starting rugviz-be server")

	// Create dependency injection container
	ctx := context.Background()
	deps, err := container.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	// Start the temp file cleanup loop
	if err := deps.Cleanup.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start cleanup service")
	}

	// Setup router
	router := setupRouter(deps)

	// Generation requests stream large uploads and wait minutes on the
	// webhook, so the write timeout has to stay generous
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    5 * time.Minute,
		WriteTimeout:   cfg.GenerateTimeout + time.Minute,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Create resources manager for cleanup
	resources := &Resources{
		container: deps,
		cleanup:   deps.Cleanup,
		server:    server,
		log:       log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(deps *container.Container) *chi.Mux {
	cfg := deps.GetConfig()
	log := deps.GetLogger()

	r := chi.NewRouter()

	// Setup CORS middleware
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	// Setup middlewares
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps)
	uploadHandler := handler.NewUploadHandler(deps.Ledger, deps.Generator, deps.Generations, cfg.TempDir(), log)
	catalogHandler := handler.NewCatalogHandler(deps.Catalog, log)
	adminHandler := handler.NewAdminHandler(deps.AdminAuth, deps.Importer, deps.Catalog, deps.Generations, cfg.TempDir(), log)

	// Health check (no auth required)
	r.Get("/health", healthHandler.Check)

	// Generation endpoint, exempt from the request timeout because the
	// webhook call runs for minutes
	r.Post("/upload", uploadHandler.Generate)

	// Public API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(60 * time.Second))

		r.Get("/usage", uploadHandler.Usage)
		r.Get("/rugs", catalogHandler.Rugs)
		r.Get("/rooms", catalogHandler.Rooms)
		r.Get("/options", catalogHandler.Options)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", adminHandler.Login)
			r.Post("/logout", adminHandler.Logout)
			r.Get("/me", adminHandler.Me)

			// Import endpoints require a valid admin session
			r.Group(func(r chi.Router) {
				r.Use(deps.AdminAuth.RequireAdmin)

				r.Post("/upload-rooms", adminHandler.UploadRooms)
				r.Post("/upload-rugs", adminHandler.UploadRugs)
				r.Get("/stats", adminHandler.Stats)
			})
		})
	})

	// Static assets: catalog images, staged uploads for the webhook, and the
	// frontend bundle
	fileServer(r, "/images", http.Dir(cfg.ImagesDir))
	fileServer(r, "/temp", http.Dir(cfg.TempDir()))
	r.NotFound(spaHandler(cfg.PublicDir))

	return r
}

// fileServer mounts a directory under a URL prefix
func fileServer(r chi.Router, prefix string, root http.FileSystem) {
	fs := http.StripPrefix(prefix, http.FileServer(root))
	r.Get(prefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		fs.ServeHTTP(w, req)
	})
}

// spaHandler serves the frontend bundle, falling back to index.html for
// client-side routes
func spaHandler(publicDir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(publicDir))
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(publicDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(publicDir, "index.html"))
	}
}
