package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"rugviz-be/internal/repository"
	"rugviz-be/pkg/database"
)

const createGenerationRecords = `
CREATE TABLE IF NOT EXISTS generation_records (
	id BIGSERIAL PRIMARY KEY,
	identity_key TEXT NOT NULL,
	room_file TEXT NOT NULL,
	rug_file TEXT NOT NULL,
	prompt_chars INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_generation_records_created_at ON generation_records (created_at);
CREATE INDEX IF NOT EXISTS idx_generation_records_identity ON generation_records (identity_key);
`

const dropGenerationRecords = `DROP TABLE IF EXISTS generation_records;`

// defaultRetentionDays bounds how long audit rows are kept by "cleanup"
const defaultRetentionDays = 90

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go [up|drop|cleanup [days]]")
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "up":
		exec(ctx, dbURL, createGenerationRecords, "generation_records table is ready")
	case "drop":
		exec(ctx, dbURL, dropGenerationRecords, "generation_records table dropped")
	case "cleanup":
		days := defaultRetentionDays
		if len(os.Args) > 2 {
			parsed, err := strconv.Atoi(os.Args[2])
			if err != nil || parsed <= 0 {
				log.Fatalf("Invalid retention days: %s", os.Args[2])
			}
			days = parsed
		}
		cleanup(ctx, dbURL, days)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func exec(ctx context.Context, dbURL, query, done string) {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, query); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	fmt.Println(done)
}

// cleanup deletes audit rows older than the retention period
func cleanup(ctx context.Context, dbURL string, days int) {
	db, err := database.NewPostgresDB(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	deleted, err := repository.NewGenerationRepository(db).DeleteOldRecords(ctx, days)
	if err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}
	fmt.Printf("Deleted %d generation records older than %d days\n", deleted, days)
}
