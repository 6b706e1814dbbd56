package baseline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"optionflow/internal/metrics"
	"optionflow/internal/models"
)

// DefaultBucketSize is the width of a time-of-day bucket.
const DefaultBucketSize = 30 * time.Minute

// TimeBucket labels the time-of-day bucket containing t in loc, e.g.
// "09:30-10:00". size must divide a day evenly.
func TimeBucket(t time.Time, loc *time.Location, size time.Duration) string {
	local := t.In(loc)
	width := int(size / time.Minute)
	if width <= 0 {
		width = int(DefaultBucketSize / time.Minute)
	}
	minutes := local.Hour()*60 + local.Minute()
	start := minutes - minutes%width
	end := start + width
	return fmt.Sprintf("%02d:%02d-%02d:%02d", start/60, start%60, end/60, end%60)
}

// Summarizer turns finalized windows into HistoricalDataPoints held per
// market date until they are persisted. Each window is its own point,
// labelled with its time-of-day bucket. It is safe for concurrent use.
type Summarizer struct {
	loc  *time.Location
	size time.Duration

	mu   sync.Mutex
	days map[string]map[pointID]*models.HistoricalDataPoint
}

type pointID struct {
	key    models.BaselineKey
	window string
}

// NewSummarizer creates a Summarizer for the market timezone loc.
func NewSummarizer(loc *time.Location, size time.Duration) *Summarizer {
	if loc == nil {
		loc = time.UTC
	}
	if size <= 0 {
		size = DefaultBucketSize
	}
	return &Summarizer{loc: loc, size: size, days: make(map[string]map[pointID]*models.HistoricalDataPoint)}
}

// Bucket returns the time bucket of t.
func (s *Summarizer) Bucket(t time.Time) string {
	return TimeBucket(t, s.loc, s.size)
}

// Date returns the market date of t.
func (s *Summarizer) Date(t time.Time) string {
	return t.In(s.loc).Format(models.DateLayout)
}

// Window returns the HH:MM label of t in the market timezone.
func (s *Summarizer) Window(t time.Time) string {
	return t.In(s.loc).Format("15:04")
}

// Add records a finalized window. The same window added twice is folded
// into one point.
func (s *Summarizer) Add(m models.PressureMetrics) {
	date := s.Date(m.WindowStart)
	id := pointID{
		key:    models.BaselineKey{Series: m.Series(), TimeBucket: s.Bucket(m.WindowStart)},
		window: s.Window(m.WindowStart),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.days[date]
	if !ok {
		day = make(map[pointID]*models.HistoricalDataPoint)
		s.days[date] = day
	}
	p, ok := day[id]
	if !ok {
		p = &models.HistoricalDataPoint{
			Date:       date,
			Strike:     m.Strike,
			Type:       m.Type,
			TimeBucket: id.key.TimeBucket,
			Window:     id.window,
		}
		day[id] = p
	}

	p.TotalVolume += m.TotalVolume
	p.BuyVolume += m.BuyVolume
	p.SellVolume += m.SellVolume
	p.TradeCount += m.TradeCount()
	p.LargeTradeCount += m.LargeTradeCount()
}

// Close removes and returns the points of date, ordered by window then series.
func (s *Summarizer) Close(date string) []models.HistoricalDataPoint {
	s.mu.Lock()
	day := s.days[date]
	delete(s.days, date)
	s.mu.Unlock()

	return finish(day)
}

// CloseBefore removes and returns the points of every date before the
// market date of t.
func (s *Summarizer) CloseBefore(t time.Time) []models.HistoricalDataPoint {
	cutoff := s.Date(t)
	return s.closeWhere(func(d string) bool { return d < cutoff })
}

// Drain removes and returns every held point, today's included.
func (s *Summarizer) Drain() []models.HistoricalDataPoint {
	return s.closeWhere(func(string) bool { return true })
}

func (s *Summarizer) closeWhere(match func(date string) bool) []models.HistoricalDataPoint {
	s.mu.Lock()
	var dates []string
	for d := range s.days {
		if match(d) {
			dates = append(dates, d)
		}
	}
	s.mu.Unlock()

	sort.Strings(dates)
	var out []models.HistoricalDataPoint
	for _, d := range dates {
		out = append(out, s.Close(d)...)
	}
	return out
}

func finish(day map[pointID]*models.HistoricalDataPoint) []models.HistoricalDataPoint {
	out := make([]models.HistoricalDataPoint, 0, len(day))
	for _, totals := range day {
		p := *totals
		p.BuyPressureRatio, _, _ = metrics.FinalizePressure(p.BuyVolume, p.SellVolume, 0)
		if p.TradeCount > 0 {
			p.AvgTradeSize = float64(p.TotalVolume) / float64(p.TradeCount)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Window != out[j].Window {
			return out[i].Window < out[j].Window
		}
		return out[i].Key().Series.String() < out[j].Key().Series.String()
	})
	return out
}
