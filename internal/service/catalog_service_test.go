package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rugviz-be/internal/domain"
	"rugviz-be/pkg/logger"
	"rugviz-be/pkg/redis"
)

func testLogger(t *testing.T) *logger.Logger {
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func newTestCatalog(t *testing.T) (Catalog, string, string) {
	storageDir := t.TempDir()
	imagesDir := t.TempDir()
	return NewCatalogService(storageDir, imagesDir, nil, testLogger(t)), storageDir, imagesDir
}

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRugsFromCSV(t *testing.T) {
	catalog, storageDir, _ := newTestCatalog(t)

	writeFile(t, filepath.Join(storageDir, "rugs.csv"),
		"id,name,code,path\n"+
			"1,Persian Classic,PC-01,/images/rugs/pc-01.jpg\n"+
			"2,,NR-02,/images/rugs/nr-02.jpg\n"+
			"3,No Path,NP-03,\n")

	rugs, err := catalog.Rugs(context.Background())
	require.NoError(t, err)
	require.Len(t, rugs, 2)

	assert.Equal(t, "Persian Classic", rugs[0].Name)
	assert.Equal(t, "/images/rugs/pc-01.jpg", rugs[0].URL)

	// Missing name falls back to the code
	assert.Equal(t, "NR-02", rugs[1].Filename)
}

func TestRugsFallbackDirectoryScan(t *testing.T) {
	catalog, _, imagesDir := newTestCatalog(t)

	writeFile(t, filepath.Join(imagesDir, "rugs", "a.jpg"), "x")
	writeFile(t, filepath.Join(imagesDir, "rugs", "b.webp"), "x")
	writeFile(t, filepath.Join(imagesDir, "rugs", "notes.txt"), "x")

	rugs, err := catalog.Rugs(context.Background())
	require.NoError(t, err)
	require.Len(t, rugs, 2)
	assert.Equal(t, "/images/rugs/a.jpg", rugs[0].URL)
}

func TestRugsEmptyWhenNothingExists(t *testing.T) {
	catalog, _, _ := newTestCatalog(t)

	rugs, err := catalog.Rugs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rugs)
}

func TestRoomsFiltering(t *testing.T) {
	catalog, storageDir, _ := newTestCatalog(t)

	writeFile(t, filepath.Join(storageDir, "rooms.csv"),
		"id,room,style,tone,path\n"+
			"1,Phòng khách,Hiện đại,Trắng,/images/rooms/phong-khach/1.jpg\n"+
			"2,Phòng khách,Cổ điển,Xám,/images/rooms/phong-khach/2.jpg\n"+
			"3,Phòng ngủ,Hiện đại,Trắng,/images/rooms/phong-ngu/3.jpg\n")

	tests := []struct {
		name     string
		filter   domain.RoomFilter
		expected int
	}{
		{name: "no filter returns everything", filter: domain.RoomFilter{}, expected: 3},
		{name: "slug filter", filter: domain.RoomFilter{RoomType: "phong-khach"}, expected: 2},
		{name: "raw label filter", filter: domain.RoomFilter{RoomType: "Phòng khách"}, expected: 2},
		{name: "combined filters", filter: domain.RoomFilter{RoomType: "phong-khach", Style: "hien-dai"}, expected: 1},
		{name: "tone filter", filter: domain.RoomFilter{Color: "trang"}, expected: 2},
		{name: "no match", filter: domain.RoomFilter{RoomType: "phong-bep"}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms, err := catalog.Rooms(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Len(t, rooms, tt.expected)
		})
	}
}

func TestRoomsKeepRawLabels(t *testing.T) {
	catalog, storageDir, _ := newTestCatalog(t)

	writeFile(t, filepath.Join(storageDir, "rooms.csv"),
		"id,room,style,tone,path\n"+
			"1,Phòng khách,Hiện đại,Trắng,/images/rooms/phong-khach/1.jpg\n")

	rooms, err := catalog.Rooms(context.Background(), domain.RoomFilter{})
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	assert.Equal(t, "phong-khach", rooms[0].RoomType)
	assert.Equal(t, "Phòng khách", rooms[0].RawRoom)
	assert.Equal(t, "hien-dai", rooms[0].Style)
}

func TestRoomsFallbackDirectoryScan(t *testing.T) {
	catalog, _, imagesDir := newTestCatalog(t)

	writeFile(t, filepath.Join(imagesDir, "rooms", "phong-khach", "1.jpg"), "x")
	writeFile(t, filepath.Join(imagesDir, "rooms", "phong-khach", "2.jpg"), "x")
	writeFile(t, filepath.Join(imagesDir, "rooms", "phong-ngu", "3.jpg"), "x")

	all, err := catalog.Rooms(context.Background(), domain.RoomFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	living, err := catalog.Rooms(context.Background(), domain.RoomFilter{RoomType: "phong-khach"})
	require.NoError(t, err)
	assert.Len(t, living, 2)
}

func TestOptionsDefaultsWhenMissing(t *testing.T) {
	catalog, _, _ := newTestCatalog(t)

	opts, err := catalog.Options(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, opts.Rooms)
	assert.NotEmpty(t, opts.Styles)
	assert.NotEmpty(t, opts.Tones)
}

func TestOptionsFromFile(t *testing.T) {
	catalog, storageDir, _ := newTestCatalog(t)

	writeFile(t, filepath.Join(storageDir, "options.json"),
		`{"rooms":["Phòng khách"],"styles":["Hiện đại"],"tones":["Trắng","Xám"]}`)

	opts, err := catalog.Options(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Phòng khách"}, opts.Rooms)
	assert.Equal(t, []string{"Trắng", "Xám"}, opts.Tones)
}

func TestCatalogCaching(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis.NewClient("redis://"+mr.Addr(), "staging", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	storageDir := t.TempDir()
	catalog := NewCatalogService(storageDir, t.TempDir(), client, testLogger(t))

	writeFile(t, filepath.Join(storageDir, "rugs.csv"),
		"id,name,code,path\n1,First,F-01,/images/rugs/f-01.jpg\n")

	rugs, err := catalog.Rugs(context.Background())
	require.NoError(t, err)
	require.Len(t, rugs, 1)

	// A rewritten CSV is invisible while the cache entry lives
	writeFile(t, filepath.Join(storageDir, "rugs.csv"),
		"id,name,code,path\n1,First,F-01,/images/rugs/f-01.jpg\n2,Second,S-02,/images/rugs/s-02.jpg\n")

	rugs, err = catalog.Rugs(context.Background())
	require.NoError(t, err)
	assert.Len(t, rugs, 1)

	// Invalidation, as done after an import, exposes the new catalog
	catalog.InvalidateCache(context.Background())

	rugs, err = catalog.Rugs(context.Background())
	require.NoError(t, err)
	assert.Len(t, rugs, 2)
}

func TestOptionsCorruptFileFallsBack(t *testing.T) {
	catalog, storageDir, _ := newTestCatalog(t)

	writeFile(t, filepath.Join(storageDir, "options.json"), "{broken")

	opts, err := catalog.Options(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, opts.Rooms)
}
