package container

import (
	"context"
	"time"

	"rugviz-be/internal/config"
	"rugviz-be/internal/middleware"
	"rugviz-be/internal/repository"
	"rugviz-be/internal/service"
	"rugviz-be/internal/usage"
	"rugviz-be/pkg/database"
	"rugviz-be/pkg/logger"
	"rugviz-be/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	Database    *database.PostgresDB
	Ledger      *usage.Ledger
	AdminAuth   *middleware.AdminAuth

	Generator   service.Generator
	Catalog     service.Catalog
	Importer    service.Importer
	Cleanup     service.CleanupService
	Generations repository.GenerationRepository
}

// New creates a new dependency injection container. Redis and Postgres are
// optional: the service runs without caching or the audit log when they are
// not configured.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	// Initialize PostgreSQL if a database URL is configured
	var db *database.PostgresDB
	var generations repository.GenerationRepository
	if cfg.DatabaseURL != "" {
		pg, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize database, proceeding without the audit log")
		} else {
			db = pg
			generations = repository.NewGenerationRepository(pg)
			log.Info("Database initialized successfully")
		}
	}

	// Usage ledger
	store, err := usage.NewFileStore(cfg.UsageStorePath, log)
	if err != nil {
		return nil, err
	}
	ledger := usage.NewLedger(store, usage.Options{
		DailyLimit:   cfg.DailyLimit,
		Mode:         usage.ParseIdentityMode(cfg.IdentityMode),
		Location:     loadLocation(cfg.UsageTimezone, log),
		CookieSecure: cfg.Environment == "production",
	}, log)

	// Admin auth
	adminAuth, err := middleware.NewAdminAuth(cfg.AdminUsername, cfg.AdminPassword, cfg.AdminJWTSecret, cfg.Environment == "production", log)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:      cfg,
		Logger:      log,
		RedisClient: redisClient,
		Database:    db,
		Ledger:      ledger,
		AdminAuth:   adminAuth,
		Generator:   service.NewVisualizerService(cfg.GenerateWebhookURL, cfg.PublicBaseURL, cfg.GenerateTimeout, log),
		Catalog:     service.NewCatalogService(cfg.StorageDir, cfg.ImagesDir, redisClient, log),
		Importer:    service.NewImporterService(cfg.StorageDir, cfg.ImagesDir, log),
		Cleanup:     service.NewCleanupService(cfg.TempDir(), log),
		Generations: generations,
	}, nil
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// GetDatabase returns the database (may be nil if not configured)
func (c *Container) GetDatabase() *database.PostgresDB {
	return c.Database
}

// loadLocation resolves the quota timezone, falling back to UTC when the
// name is unknown so day boundaries stay deterministic
func loadLocation(name string, log *logger.Logger) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).WithField("timezone", name).Warn("Unknown quota timezone, using UTC")
		return time.UTC
	}
	return loc
}

// Close releases the container's backends
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if c.Database != nil {
		c.Database.Close()
	}
}
