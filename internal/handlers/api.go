// Package handlers serves the read-only HTTP API over signals, market quality
// and baselines.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"optionflow/internal/models"
)

// SignalReader exposes the latest signal per series.
type SignalReader interface {
	Get(key models.SeriesKey) (models.Signal, bool)
	All() []models.Signal
}

// QualityReader exposes market-quality assessments.
type QualityReader interface {
	Assess(key models.SeriesKey) (models.MarketQualityMetrics, bool)
}

// BaselineReader looks up baselines. A nil result means none is available.
type BaselineReader interface {
	GetBaselineMetrics(ctx context.Context, key models.BaselineKey) *models.BaselineMetrics
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// API holds the readers behind the routes.
type API struct {
	signals   SignalReader
	quality   QualityReader
	baselines BaselineReader
	logger    *slog.Logger
}

// NewAPI creates an API.
func NewAPI(signals SignalReader, quality QualityReader, baselines BaselineReader, logger *slog.Logger) *API {
	return &API{
		signals:   signals,
		quality:   quality,
		baselines: baselines,
		logger:    logger.With("component", "http"),
	}
}

// Router builds the chi router. gatherer may be nil to skip /metrics.
func (a *API) Router(timeout time.Duration, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(a.logger))
	r.Use(TimeoutMiddleware(timeout, a.logger))

	r.Get("/healthz", a.health)
	r.Get("/signals", a.listSignals)
	r.Get("/signals/{strike}/{type}", a.getSignal)
	r.Get("/quality/{strike}/{type}", a.getQuality)
	r.Get("/baselines/{strike}/{type}/{bucket}", a.getBaseline)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *API) listSignals(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.signals.All())
}

func (a *API) getSignal(w http.ResponseWriter, r *http.Request) {
	key, ok := a.seriesParam(w, r)
	if !ok {
		return
	}
	sig, found := a.signals.Get(key)
	if !found {
		a.writeError(w, http.StatusNotFound, "signal_not_found", "no signal for "+key.String())
		return
	}
	a.writeJSON(w, http.StatusOK, sig)
}

func (a *API) getQuality(w http.ResponseWriter, r *http.Request) {
	key, ok := a.seriesParam(w, r)
	if !ok {
		return
	}
	q, found := a.quality.Assess(key)
	if !found {
		a.writeError(w, http.StatusNotFound, "quality_not_available", "no quotes recorded for "+key.String())
		return
	}
	a.writeJSON(w, http.StatusOK, q)
}

func (a *API) getBaseline(w http.ResponseWriter, r *http.Request) {
	series, ok := a.seriesParam(w, r)
	if !ok {
		return
	}
	key := models.BaselineKey{Series: series, TimeBucket: chi.URLParam(r, "bucket")}

	b := a.baselines.GetBaselineMetrics(r.Context(), key)
	if b == nil {
		a.writeError(w, http.StatusNotFound, "baseline_not_found", "no baseline for "+series.String()+" "+key.TimeBucket)
		return
	}
	a.writeJSON(w, http.StatusOK, b)
}

// seriesParam parses {strike}/{type}; it writes a 400 and returns false on bad input.
func (a *API) seriesParam(w http.ResponseWriter, r *http.Request) (models.SeriesKey, bool) {
	strike, err := decimal.NewFromString(chi.URLParam(r, "strike"))
	if err != nil || !strike.IsPositive() {
		a.writeError(w, http.StatusBadRequest, "invalid_strike", "strike must be a positive number")
		return models.SeriesKey{}, false
	}
	typ, err := models.ParseContractType(chi.URLParam(r, "type"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid_contract_type", err.Error())
		return models.SeriesKey{}, false
	}
	return models.NewSeriesKey(strike, typ), true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("json_encode_failed", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, code, message string) {
	a.writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
