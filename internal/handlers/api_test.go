package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionflow/internal/instrumentation"
	"optionflow/internal/models"
)

type fakeSignals map[models.SeriesKey]models.Signal

func (f fakeSignals) Get(key models.SeriesKey) (models.Signal, bool) {
	s, ok := f[key]
	return s, ok
}

func (f fakeSignals) All() []models.Signal {
	out := make([]models.Signal, 0, len(f))
	for _, s := range f {
		out = append(out, s)
	}
	return out
}

type fakeQuality map[models.SeriesKey]models.MarketQualityMetrics

func (f fakeQuality) Assess(key models.SeriesKey) (models.MarketQualityMetrics, bool) {
	q, ok := f[key]
	return q, ok
}

type fakeBaselines map[models.BaselineKey]*models.BaselineMetrics

func (f fakeBaselines) GetBaselineMetrics(_ context.Context, key models.BaselineKey) *models.BaselineMetrics {
	return f[key]
}

var callKey = models.NewSeriesKey(decimal.NewFromInt(21000), models.Call)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	signals := fakeSignals{callKey: {
		ID:       "sig-1",
		Pressure: models.PressureMetrics{Strike: decimal.NewFromInt(21000), Type: models.Call, TotalVolume: 5},
	}}
	quality := fakeQuality{callKey: {MMParticipationRate: 0.25}}
	baselines := fakeBaselines{
		{Series: callKey, TimeBucket: "09:30-10:00"}: {SampleCount: 20, VolumeMean: 1000},
	}

	reg := prometheus.NewRegistry()
	instrumentation.NewMetrics(reg).RecordSignal("emitted")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAPI(signals, quality, baselines, logger).Router(time.Second, reg)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestRouter(t), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestGetSignal(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/signals/21000/C", http.StatusOK},
		{"/signals/21000.00/call", http.StatusOK},
		{"/signals/21000/P", http.StatusNotFound},
		{"/signals/abc/C", http.StatusBadRequest},
		{"/signals/-5/C", http.StatusBadRequest},
		{"/signals/21000/X", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	rec := get(t, h, "/signals/21000/C")
	var sig models.Signal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sig))
	assert.Equal(t, "sig-1", sig.ID)
	assert.Equal(t, int64(5), sig.Pressure.TotalVolume)
}

func TestListSignals(t *testing.T) {
	rec := get(t, newTestRouter(t), "/signals")
	require.Equal(t, http.StatusOK, rec.Code)

	var sigs []models.Signal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sigs))
	assert.Len(t, sigs, 1)
}

func TestGetQuality(t *testing.T) {
	h := newTestRouter(t)

	rec := get(t, h, "/quality/21000/C")
	require.Equal(t, http.StatusOK, rec.Code)
	var q models.MarketQualityMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, 0.25, q.MMParticipationRate)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/quality/20000/C").Code)
}

func TestGetBaseline(t *testing.T) {
	h := newTestRouter(t)

	rec := get(t, h, "/baselines/21000/C/09:30-10:00")
	require.Equal(t, http.StatusOK, rec.Code)
	var b models.BaselineMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, 20, b.SampleCount)

	rec = get(t, h, "/baselines/21000/C/10:00-10:30")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "baseline_not_found", e.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestRouter(t), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "optionflow_signals_total")
}

func TestTimeoutMiddlewarePassesDeadline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var hasDeadline bool
	h := TimeoutMiddleware(50*time.Millisecond, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, hasDeadline)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
