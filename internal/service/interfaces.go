package service

import (
	"context"

	"rugviz-be/internal/domain"
)

// Generator produces a composite image from a room photo and a rug photo,
// returning the base64-encoded result
type Generator interface {
	Generate(ctx context.Context, prompt, roomPath, rugPath string) (string, error)
}

// Catalog supplies the browsable rug and room images and the wizard options
type Catalog interface {
	Rugs(ctx context.Context) ([]domain.RugImage, error)
	Rooms(ctx context.Context, filter domain.RoomFilter) ([]domain.RoomImage, error)
	Options(ctx context.Context) (*domain.CatalogOptions, error)

	// InvalidateCache drops any cached catalog responses after an import
	InvalidateCache(ctx context.Context)
}

// Importer ingests admin spreadsheet uploads into the catalog
type Importer interface {
	ImportRooms(ctx context.Context, xlsxPath string) (int, error)
	ImportRugs(ctx context.Context, xlsxPath string) (int, error)
}

// CleanupService removes stale temp upload files in the background
type CleanupService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
