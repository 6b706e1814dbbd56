package baseline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionflow/internal/models"
)

func openTestSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "nested", "baseline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func storeContract(t *testing.T, s Store) {
	ctx := context.Background()
	points := history(alternating(25, 900, 1100), flat(0.5))
	require.NoError(t, s.StoreHistoricalData(ctx, points))

	got, err := s.GetHistoricalData(ctx, testKey, 20, lastDay)
	require.NoError(t, err)
	require.Len(t, got, 20)
	assert.Equal(t, "2025-03-09", got[0].Date)
	assert.Equal(t, "2025-03-28", got[19].Date)
	assert.True(t, got[0].Strike.Equal(points[5].Strike))
	assert.Equal(t, points[5].TotalVolume, got[0].TotalVolume)

	// same (date, key) replaces
	replaced := points[24]
	replaced.TotalVolume = 5000
	require.NoError(t, s.StoreHistoricalData(ctx, []models.HistoricalDataPoint{replaced}))
	got, err = s.GetHistoricalData(ctx, testKey, 1, lastDay)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5000), got[0].TotalVolume)

	// another window on the same date is its own point
	second := points[24]
	second.Window = "09:35"
	require.NoError(t, s.StoreHistoricalData(ctx, []models.HistoricalDataPoint{second}))
	got, err = s.GetHistoricalData(ctx, testKey, 1, lastDay)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(5000), got[0].TotalVolume)
	assert.Equal(t, "09:35", got[1].Window)
	assert.Equal(t, points[24].TotalVolume, got[1].TotalVolume)

	other := testKey
	other.TimeBucket = "10:00-10:30"
	got, err = s.GetHistoricalData(ctx, other, 20, lastDay)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.GetBaselineMetrics(ctx, testKey)
	assert.ErrorIs(t, err, ErrNotFound)

	b, ok := ComputeBaseline(testKey, points, 20, 5, lastDay)
	require.True(t, ok)
	require.NoError(t, s.StoreBaselineMetrics(ctx, *b))
	b.VolumeMean = 1234
	require.NoError(t, s.StoreBaselineMetrics(ctx, *b))

	stored, err := s.GetBaselineMetrics(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, 1234.0, stored.VolumeMean)
	assert.Equal(t, testKey, stored.Key)
	assert.True(t, stored.ComputedAt.Equal(lastDay))
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, openTestSQLite(t))
}

func TestSQLiteStoreReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.db")
	ctx := context.Background()

	s, err := OpenSQL(ctx, DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.StoreHistoricalData(ctx, history(alternating(5, 900, 1100), flat(0.5))))
	require.NoError(t, s.Close())

	s, err = OpenSQL(ctx, DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetHistoricalData(ctx, testKey, 20, lastDay)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestOpenSQLRejectsBadConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := OpenSQL(ctx, "mysql", "x")
	assert.Error(t, err)

	_, err = OpenSQL(ctx, DriverSQLite, "")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &SQLStore{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
