package datastore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/aleister1102/marketplace-monitor/internal/monitor"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	store, err := NewHistoryStore(filepath.Join(t.TempDir(), "nested", "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleResult(site string, start time.Time, success bool) monitor.CheckResult {
	result := monitor.CheckResult{
		RunID:     uuid.NewString(),
		Site:      site,
		Parser:    "nike",
		StartedAt: start,
		Duration:  1500 * time.Millisecond,
		Success:   success,
	}
	if success {
		result.Snapshots = []models.AvailabilitySnapshot{
			models.NewSnapshot("https://shop.example/a", start, map[string]bool{"10": true, "9": true, "11": false}),
			models.NewSnapshot("https://shop.example/b", start, map[string]bool{"10": true}),
		}
		result.Events = []models.ChangeEvent{{Site: site, Size: "US 10", NormalizedSize: "10"}}
		return result
	}
	result.Err = errors.New("HTTP 503")
	result.ConsecutiveFailures = 2
	result.Snapshots = []models.AvailabilitySnapshot{
		models.NewFailedSnapshot("https://shop.example/a", start, "HTTP 503"),
	}
	return result
}

func TestHistoryStore_RecordAndLastCheck(t *testing.T) {
	store := newTestStore(t)

	first := sampleResult("Nike", baseTime, false)
	second := sampleResult("Nike", baseTime.Add(5*time.Minute), true)
	other := sampleResult("Adidas", baseTime.Add(10*time.Minute), true)
	for _, r := range []monitor.CheckResult{first, second, other} {
		require.NoError(t, store.RecordCheck(r))
	}

	last, err := store.LastCheck("Nike")
	require.NoError(t, err)
	assert.Equal(t, second.RunID, last.RunID)
	assert.Equal(t, "nike", last.Parser)
	assert.True(t, last.Success)
	assert.Empty(t, last.Error)
	assert.Equal(t, 1, last.Events)
	assert.Equal(t, 1500*time.Millisecond, last.Duration)
	assert.True(t, second.StartedAt.Equal(last.StartedAt))
	assert.Equal(t, []string{"10", "9"}, last.AvailableSizes)
	require.Len(t, last.Snapshots, 2)
	assert.True(t, last.Snapshots[0].IsAvailable("9"))
}

func TestHistoryStore_LastCheckFailedCycle(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RecordCheck(sampleResult("Nike", baseTime, false)))

	last, err := store.LastCheck("Nike")
	require.NoError(t, err)
	assert.False(t, last.Success)
	assert.Equal(t, "HTTP 503", last.Error)
	assert.Equal(t, 2, last.ConsecutiveFailures)
	assert.Empty(t, last.AvailableSizes)
}

func TestHistoryStore_LastCheckNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LastCheck("Nowhere")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestHistoryStore_DuplicateRunIDRejected(t *testing.T) {
	store := newTestStore(t)
	result := sampleResult("Nike", baseTime, true)

	require.NoError(t, store.RecordCheck(result))
	assert.Error(t, store.RecordCheck(result))

	// the observer hook swallows the same failure
	assert.NotPanics(t, func() { store.OnCheck(result) })
}

func TestHistoryStore_Since(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.RecordCheck(sampleResult("Nike", baseTime.Add(time.Duration(i)*time.Hour), true)))
	}

	tests := []struct {
		name  string
		since time.Time
		want  int
	}{
		{name: "everything", since: time.Time{}, want: 4},
		{name: "inclusive bound", since: baseTime.Add(2 * time.Hour), want: 2},
		{name: "future", since: baseTime.Add(24 * time.Hour), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.Since(tt.since)
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
			for i := 1; i < len(records); i++ {
				assert.True(t, records[i-1].StartedAt.Before(records[i].StartedAt))
			}
		})
	}
}

func TestHistoryStore_Notifications(t *testing.T) {
	store := newTestStore(t)
	store.now = func() time.Time { return baseTime }

	event := models.ChangeEvent{
		Site:           "Nike",
		URL:            "https://shop.example/a",
		Size:           "US 10",
		NormalizedSize: "10",
		Product:        models.ProductInfo{Name: "Air Max 90", Price: "€139.99"},
	}
	store.OnNotification(event, true)
	store.OnNotification(models.ChangeEvent{Site: "Nike", URL: "https://shop.example/b", Size: "US 9"}, false)

	records, err := store.Notifications(baseTime)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Air Max 90", records[0].Product)
	assert.Equal(t, "€139.99", records[0].Price)
	assert.True(t, records[0].Delivered)
	assert.True(t, baseTime.Equal(records[0].SentAt))

	assert.Equal(t, "Unknown product", records[1].Product)
	assert.Equal(t, "N/A", records[1].Price)
	assert.False(t, records[1].Delivered)

	later, err := store.Notifications(baseTime.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestHistoryStore_ExportParquet(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RecordCheck(sampleResult("Nike", baseTime, false)))
	require.NoError(t, store.RecordCheck(sampleResult("Nike", baseTime.Add(time.Hour), true)))
	require.NoError(t, store.RecordCheck(sampleResult("Adidas", baseTime.Add(2*time.Hour), true)))

	compressions := []string{"zstd", "snappy", "gzip", "none", ""}
	for _, compression := range compressions {
		t.Run("compression "+compression, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "history.parquet")
			opts := DefaultExportOptions()
			opts.Compression = compression
			opts.RowGroupSize = 2

			written, err := store.ExportParquet(path, time.Time{}, opts)
			require.NoError(t, err)
			assert.Equal(t, 3, written)

			rows, err := parquet.ReadFile[ParquetCheckRecord](path)
			require.NoError(t, err)
			require.Len(t, rows, 3)

			assert.Equal(t, "Nike", rows[0].Site)
			assert.False(t, rows[0].Success)
			require.NotNil(t, rows[0].Error)
			assert.Equal(t, "HTTP 503", *rows[0].Error)
			assert.Equal(t, int32(2), rows[0].ConsecutiveFailures)

			assert.True(t, rows[1].Success)
			assert.Nil(t, rows[1].Error)
			assert.Equal(t, []string{"10", "9"}, rows[1].AvailableSizes)
			assert.Equal(t, baseTime.Add(time.Hour).UnixMilli(), rows[1].StartedAt)
			assert.Equal(t, int64(1500), rows[1].DurationMs)
			require.NotNil(t, rows[1].SnapshotsJSON)
			assert.Contains(t, *rows[1].SnapshotsJSON, "https://shop.example/b")

			assert.Equal(t, "Adidas", rows[2].Site)
		})
	}
}

func TestHistoryStore_ExportParquetSince(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RecordCheck(sampleResult("Nike", baseTime, true)))
	require.NoError(t, store.RecordCheck(sampleResult("Nike", baseTime.Add(time.Hour), true)))

	path := filepath.Join(t.TempDir(), "recent.parquet")
	written, err := store.ExportParquet(path, baseTime.Add(30*time.Minute), DefaultExportOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	rows, err := parquet.ReadFile[ParquetCheckRecord](path)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
