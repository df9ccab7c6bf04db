package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeSheet builds a spreadsheet with a header row plus the given rows
func writeSheet(t *testing.T, dir string, rows [][]string) string {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, val))
		}
	}

	path := filepath.Join(dir, "import.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func newTestImporter(t *testing.T) (Importer, string, string, *httptest.Server) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("image-bytes"))
	}))
	t.Cleanup(srv.Close)

	storageDir := t.TempDir()
	imagesDir := t.TempDir()
	return NewImporterService(storageDir, imagesDir, testLogger(t)), storageDir, imagesDir, srv
}

func TestImportRugs(t *testing.T) {
	importer, storageDir, imagesDir, srv := newTestImporter(t)

	xlsx := writeSheet(t, t.TempDir(), [][]string{
		{"id", "name", "code", "link"},
		{"r1", "Persian Classic", "PC-01", srv.URL + "/pc-01.jpg"},
		{"r2", "No Link", "NL-02", ""},
		{"r3", "Broken Link", "BL-03", srv.URL + "/missing.jpg"},
	})

	count, err := importer.ImportRugs(context.Background(), xlsx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Downloaded image is in place
	data, err := os.ReadFile(filepath.Join(imagesDir, "rugs", "r1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	// The catalog lists exactly the imported row
	csvData, err := os.ReadFile(filepath.Join(storageDir, "rugs.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "Persian Classic")
	assert.Contains(t, string(csvData), "/images/rugs/r1.jpg")
	assert.NotContains(t, string(csvData), "No Link")
	assert.NotContains(t, string(csvData), "Broken Link")
}

func TestImportRooms(t *testing.T) {
	importer, storageDir, imagesDir, srv := newTestImporter(t)

	xlsx := writeSheet(t, t.TempDir(), [][]string{
		{"id", "room", "style", "tone", "link"},
		{"1", "Phòng khách", "Hiện đại", "Trắng", srv.URL + "/1.jpg"},
		{"2", "Phòng khách", "Cổ điển", "Xám", srv.URL + "/2.jpg"},
		{"3", "Phòng ngủ", "Hiện đại", "Trắng", srv.URL + "/3.jpg"},
	})

	count, err := importer.ImportRooms(context.Background(), xlsx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Images land in per-room-type subdirectories
	_, err = os.Stat(filepath.Join(imagesDir, "rooms", "phong-khach", "1.jpg"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(imagesDir, "rooms", "phong-ngu", "3.jpg"))
	require.NoError(t, err)

	// Options carry the distinct labels, deduplicated
	optData, err := os.ReadFile(filepath.Join(storageDir, "options.json"))
	require.NoError(t, err)
	assert.Contains(t, string(optData), "Phòng khách")
	assert.Contains(t, string(optData), "Phòng ngủ")
	assert.Contains(t, string(optData), "Cổ điển")

	csvData, err := os.ReadFile(filepath.Join(storageDir, "rooms.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "/images/rooms/phong-khach/1.jpg")
}

func TestImportReplacesPreviousCatalog(t *testing.T) {
	importer, _, imagesDir, srv := newTestImporter(t)

	// Something from an earlier import
	stale := filepath.Join(imagesDir, "rugs", "old.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	xlsx := writeSheet(t, t.TempDir(), [][]string{
		{"id", "name", "code", "link"},
		{"r1", "New Rug", "NR-01", srv.URL + "/nr-01.jpg"},
	})

	_, err := importer.ImportRugs(context.Background(), xlsx)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestImportRejectsEmptySheet(t *testing.T) {
	importer, _, _, _ := newTestImporter(t)

	xlsx := writeSheet(t, t.TempDir(), [][]string{
		{"id", "name", "code", "link"},
	})

	_, err := importer.ImportRugs(context.Background(), xlsx)
	require.Error(t, err)
}

func TestImportRejectsNonSpreadsheet(t *testing.T) {
	importer, _, _, _ := newTestImporter(t)

	bogus := filepath.Join(t.TempDir(), "not.xlsx")
	require.NoError(t, os.WriteFile(bogus, []byte("plain text"), 0o644))

	_, err := importer.ImportRugs(context.Background(), bogus)
	require.Error(t, err)
}
