package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"rugviz-be/internal/domain"
	"rugviz-be/pkg/logger"
	"rugviz-be/pkg/redis"
)

// CSV catalogs written by the importer
const (
	rugsCSV     = "rugs.csv"
	roomsCSV    = "rooms.csv"
	optionsJSON = "options.json"
)

// catalogService reads the CSV catalogs written by the admin importer,
// falling back to directory scans when no catalog exists yet. Responses are
// cached in Redis when a client is configured.
type catalogService struct {
	storageDir  string
	imagesDir   string
	redisClient *redis.Client // may be nil
	logger      *logger.Logger
}

// NewCatalogService creates a new catalog service. redisClient may be nil,
// in which case caching is skipped.
func NewCatalogService(storageDir, imagesDir string, redisClient *redis.Client, logger *logger.Logger) Catalog {
	return &catalogService{
		storageDir:  storageDir,
		imagesDir:   imagesDir,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Rugs returns the browsable rug images
func (s *catalogService) Rugs(ctx context.Context) ([]domain.RugImage, error) {
	if s.redisClient != nil {
		var cached []domain.RugImage
		if s.cacheGet(ctx, s.redisClient.KeyBuilder.KeyCatalogRugs(), &cached) {
			return cached, nil
		}
	}

	rugs, err := s.loadRugs()
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		s.cacheSet(ctx, s.redisClient.KeyBuilder.KeyCatalogRugs(), rugs)
	}
	return rugs, nil
}

func (s *catalogService) loadRugs() ([]domain.RugImage, error) {
	csvPath := filepath.Join(s.storageDir, rugsCSV)
	rows, err := readCSVRows(csvPath)
	if err == nil {
		rugs := make([]domain.RugImage, 0, len(rows))
		for _, row := range rows {
			// id,name,code,path
			if len(row) < 4 {
				continue
			}
			url := strings.TrimSpace(row[3])
			if url == "" {
				continue
			}
			name := row[1]
			code := row[2]
			filename := name
			if filename == "" {
				filename = code
			}
			if filename == "" {
				filename = path.Base(url)
			}
			rugs = append(rugs, domain.RugImage{
				Filename: filename,
				URL:      url,
				Name:     name,
				Code:     code,
			})
		}
		return rugs, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	// No catalog yet, scan the images directory
	files, err := scanImageDir(filepath.Join(s.imagesDir, "rugs"))
	if err != nil {
		return nil, err
	}
	rugs := make([]domain.RugImage, 0, len(files))
	for _, f := range files {
		rugs = append(rugs, domain.RugImage{
			Filename: f,
			URL:      "/images/rugs/" + f,
		})
	}
	return rugs, nil
}

// Rooms returns the browsable room images matching the filter
func (s *catalogService) Rooms(ctx context.Context, filter domain.RoomFilter) ([]domain.RoomImage, error) {
	cacheKey := ""
	if s.redisClient != nil {
		cacheKey = s.redisClient.KeyBuilder.KeyCatalogRooms(roomFilterHash(filter))
		var cached []domain.RoomImage
		if s.cacheGet(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	rooms, err := s.loadRooms(filter)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		s.cacheSet(ctx, cacheKey, rooms)
	}
	return rooms, nil
}

func (s *catalogService) loadRooms(filter domain.RoomFilter) ([]domain.RoomImage, error) {
	csvPath := filepath.Join(s.storageDir, roomsCSV)
	rows, err := readCSVRows(csvPath)
	if err == nil {
		rooms := make([]domain.RoomImage, 0, len(rows))
		for _, row := range rows {
			// id,room,style,tone,path
			if len(row) < 5 {
				continue
			}
			url := strings.TrimSpace(row[4])
			if url == "" {
				continue
			}
			img := domain.RoomImage{
				Filename: path.Base(url),
				URL:      url,
				RoomType: Slugify(row[1]),
				Style:    Slugify(row[2]),
				Color:    Slugify(row[3]),
				RawRoom:  row[1],
				RawStyle: row[2],
				RawTone:  row[3],
			}
			if !matchesFilter(img, filter) {
				continue
			}
			rooms = append(rooms, img)
		}
		return rooms, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	return s.scanRoomDirs(filter)
}

// scanRoomDirs is the fallback when no CSV catalog exists: one subdirectory
// per room type under images/rooms. Style and color are unknown in this
// layout, so only the room type filter applies.
func (s *catalogService) scanRoomDirs(filter domain.RoomFilter) ([]domain.RoomImage, error) {
	roomsDir := filepath.Join(s.imagesDir, "rooms")
	entries, err := os.ReadDir(roomsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.RoomImage{}, nil
		}
		return nil, err
	}

	wantType := Slugify(filter.RoomType)
	rooms := make([]domain.RoomImage, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subdir := entry.Name()
		if wantType != "" && Slugify(subdir) != wantType {
			continue
		}
		files, err := scanImageDir(filepath.Join(roomsDir, subdir))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			rooms = append(rooms, domain.RoomImage{
				Filename: f,
				URL:      "/images/rooms/" + subdir + "/" + f,
				RoomType: Slugify(subdir),
			})
		}
	}
	return rooms, nil
}

// Options returns the wizard choice lists from the last import, or the
// built-in defaults when no import has happened yet
func (s *catalogService) Options(ctx context.Context) (*domain.CatalogOptions, error) {
	if s.redisClient != nil {
		var cached domain.CatalogOptions
		if s.cacheGet(ctx, s.redisClient.KeyBuilder.KeyCatalogOptions(), &cached) {
			return &cached, nil
		}
	}

	opts, err := s.loadOptions()
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		s.cacheSet(ctx, s.redisClient.KeyBuilder.KeyCatalogOptions(), opts)
	}
	return opts, nil
}

func (s *catalogService) loadOptions() (*domain.CatalogOptions, error) {
	data, err := os.ReadFile(filepath.Join(s.storageDir, optionsJSON))
	if err != nil {
		if os.IsNotExist(err) {
			return defaultOptions(), nil
		}
		return nil, err
	}

	opts := &domain.CatalogOptions{}
	if err := json.Unmarshal(data, opts); err != nil {
		s.logger.WithError(err).Warn("options.json is corrupt, serving defaults")
		return defaultOptions(), nil
	}
	return opts, nil
}

// InvalidateCache drops all cached catalog responses
func (s *catalogService) InvalidateCache(ctx context.Context) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.InvalidatePattern(ctx, s.redisClient.KeyBuilder.KeyCatalogPattern()); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate catalog cache")
	}
}

func (s *catalogService) cacheGet(ctx context.Context, key string, out interface{}) bool {
	val, err := s.redisClient.Get(ctx, key)
	if err != nil || val == "" {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		s.logger.WithError(err).Warn("Failed to decode cached catalog entry")
		return false
	}
	return true
}

func (s *catalogService) cacheSet(ctx context.Context, key string, val interface{}) {
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := s.redisClient.Set(ctx, key, string(data), redis.TTLCatalog); err != nil {
		s.logger.WithError(err).Debug("Failed to cache catalog entry")
	}
}

// matchesFilter compares a room image against the filter on slug equality
func matchesFilter(img domain.RoomImage, filter domain.RoomFilter) bool {
	if filter.RoomType != "" && img.RoomType != Slugify(filter.RoomType) {
		return false
	}
	if filter.Style != "" && img.Style != Slugify(filter.Style) {
		return false
	}
	if filter.Color != "" && img.Color != Slugify(filter.Color) {
		return false
	}
	return true
}

// roomFilterHash builds a stable cache key suffix for a filter
func roomFilterHash(filter domain.RoomFilter) string {
	if filter.IsZero() {
		return "all"
	}
	return fmt.Sprintf("%s|%s|%s", Slugify(filter.RoomType), Slugify(filter.Style), Slugify(filter.Color))
}

// readCSVRows reads all data rows of a CSV catalog, skipping the header
func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if len(rows) <= 1 {
		return [][]string{}, nil
	}
	return rows[1:], nil
}

// scanImageDir lists the image files in a directory
func scanImageDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// defaultOptions are served before the first spreadsheet import
func defaultOptions() *domain.CatalogOptions {
	return &domain.CatalogOptions{
		Rooms:  []string{"Phòng khách", "Phòng ngủ", "Phòng làm việc", "Phòng bếp"},
		Styles: []string{"Hiện đại", "Cổ điển", "Tối giản", "Scandinavian"},
		Tones:  []string{"Trắng", "Xám", "Nâu", "Xanh", "Hồng", "Khác"},
	}
}
