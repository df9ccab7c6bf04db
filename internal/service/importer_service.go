package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"rugviz-be/internal/domain"
	apperrors "rugviz-be/pkg/errors"
	"rugviz-be/pkg/logger"
)

const (
	downloadTimeout  = 60 * time.Second
	maxDownloadBytes = 20 << 20 // 20 MB per image
)

// importerService ingests the admin spreadsheets: it downloads every linked
// image into the images directory and rewrites the CSV catalogs the public
// endpoints serve from.
type importerService struct {
	storageDir string
	imagesDir  string
	client     *http.Client
	logger     *logger.Logger
}

// NewImporterService creates an Importer writing into the given directories
func NewImporterService(storageDir, imagesDir string, logger *logger.Logger) Importer {
	return &importerService{
		storageDir: storageDir,
		imagesDir:  imagesDir,
		client:     &http.Client{Timeout: downloadTimeout},
		logger:     logger,
	}
}

// ImportRooms replaces the room catalog from a spreadsheet with columns
// id, room, style, tone, link. It also rewrites options.json with the
// distinct room, style and tone values seen in the sheet.
func (s *importerService) ImportRooms(ctx context.Context, xlsxPath string) (int, error) {
	rows, err := readSheetRows(xlsxPath)
	if err != nil {
		return 0, err
	}

	roomsDir := filepath.Join(s.imagesDir, "rooms")
	if err := s.resetDir(roomsDir); err != nil {
		return 0, apperrors.NewInternalError("Failed to reset rooms directory", err)
	}

	opts := &domain.CatalogOptions{}
	seen := map[string]map[string]bool{"rooms": {}, "styles": {}, "tones": {}}
	records := [][]string{{"id", "room", "style", "tone", "path"}}
	imported := 0

	for i, row := range rows {
		id, room, style, tone, link := cell(row, 0), cell(row, 1), cell(row, 2), cell(row, 3), cell(row, 4)
		if link == "" {
			continue
		}

		subdir := Slugify(room)
		if subdir == "" {
			subdir = "other"
		}
		filename := downloadName(id, i, link)
		localPath := filepath.Join(roomsDir, subdir, filename)

		if err := s.download(ctx, link, localPath); err != nil {
			s.logger.WithError(err).Warn("Skipping room row, download failed",
				zap.Int("row", i+2), zap.String("link", link))
			continue
		}

		records = append(records, []string{id, room, style, tone, "/images/rooms/" + subdir + "/" + filename})
		collectOption(&opts.Rooms, seen["rooms"], room)
		collectOption(&opts.Styles, seen["styles"], style)
		collectOption(&opts.Tones, seen["tones"], tone)
		imported++
	}

	if imported == 0 {
		return 0, apperrors.NewValidationError("Spreadsheet contained no importable rows", nil)
	}

	if err := writeCSV(filepath.Join(s.storageDir, roomsCSV), records); err != nil {
		return 0, apperrors.NewInternalError("Failed to write room catalog", err)
	}
	if err := writeJSON(filepath.Join(s.storageDir, optionsJSON), opts); err != nil {
		return 0, apperrors.NewInternalError("Failed to write catalog options", err)
	}

	s.logger.Info("Imported room catalog", zap.Int("rooms", imported))
	return imported, nil
}

// ImportRugs replaces the rug catalog from a spreadsheet with columns
// id, name, code, link
func (s *importerService) ImportRugs(ctx context.Context, xlsxPath string) (int, error) {
	rows, err := readSheetRows(xlsxPath)
	if err != nil {
		return 0, err
	}

	rugsDir := filepath.Join(s.imagesDir, "rugs")
	if err := s.resetDir(rugsDir); err != nil {
		return 0, apperrors.NewInternalError("Failed to reset rugs directory", err)
	}

	records := [][]string{{"id", "name", "code", "path"}}
	imported := 0

	for i, row := range rows {
		id, name, code, link := cell(row, 0), cell(row, 1), cell(row, 2), cell(row, 3)
		if link == "" {
			continue
		}

		filename := downloadName(id, i, link)
		if err := s.download(ctx, link, filepath.Join(rugsDir, filename)); err != nil {
			s.logger.WithError(err).Warn("Skipping rug row, download failed",
				zap.Int("row", i+2), zap.String("link", link))
			continue
		}

		records = append(records, []string{id, name, code, "/images/rugs/" + filename})
		imported++
	}

	if imported == 0 {
		return 0, apperrors.NewValidationError("Spreadsheet contained no importable rows", nil)
	}

	if err := writeCSV(filepath.Join(s.storageDir, rugsCSV), records); err != nil {
		return 0, apperrors.NewInternalError("Failed to write rug catalog", err)
	}

	s.logger.Info("Imported rug catalog", zap.Int("rugs", imported))
	return imported, nil
}

// resetDir clears and recreates a directory. The target must live under the
// images directory, so a misconfigured path can never wipe anything else.
func (s *importerService) resetDir(dir string) error {
	absImages, err := filepath.Abs(s.imagesDir)
	if err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absImages, absDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to reset %s outside images directory", dir)
	}

	if err := os.RemoveAll(absDir); err != nil {
		return err
	}
	return os.MkdirAll(absDir, 0o755)
}

// download fetches an image link into a local file
func (s *importerService) download(ctx context.Context, link, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxDownloadBytes)); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// readSheetRows reads the data rows of the first sheet, skipping the header
func readSheetRows(xlsxPath string) ([][]string, error) {
	f, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		return nil, apperrors.NewValidationError("File is not a readable spreadsheet", nil)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewValidationError("Spreadsheet has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewValidationError("Failed to read spreadsheet rows", nil)
	}
	if len(rows) <= 1 {
		return [][]string{}, nil
	}
	return rows[1:], nil
}

// cell returns a trimmed cell value, tolerating short rows
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// downloadName derives a stable local filename for a linked image
func downloadName(id string, rowIndex int, link string) string {
	ext := ".jpg"
	if u, err := url.Parse(link); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); e != "" && len(mime.TypeByExtension(e)) > 0 {
			ext = e
		}
	}

	base := Slugify(id)
	if base == "" {
		base = fmt.Sprintf("row-%d", rowIndex+1)
	}
	return base + ext
}

// collectOption appends a value the first time its slug is seen
func collectOption(list *[]string, seen map[string]bool, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	key := Slugify(value)
	if seen[key] {
		return
	}
	seen[key] = true
	*list = append(*list, value)
}

// writeCSV atomically replaces a catalog CSV
func writeCSV(dest string, records [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".catalog-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// writeJSON atomically replaces a JSON file
func writeJSON(dest string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".options-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
