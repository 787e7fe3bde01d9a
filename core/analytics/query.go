package analytics

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/lotchurch/congregate/internal/metrics"
)

// Aggregation defaults and bounds.
const (
	DefaultWindowDays     = 90
	DefaultTimeSeriesDays = 30
	DefaultCityDays       = 30
	MaxDays               = 366
	DefaultTopLimit       = 10
	DefaultGeoLimit       = 12
	DefaultContentLimit   = 5
	MaxLimit              = 100
)

const dayLayout = "2006-01-02"

// Window is a half open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// TrailingDays is the window covering the last days days up to now, plus one day of slack.
func TrailingDays(now time.Time, days int) Window {
	return Window{
		Start: now.Add(-time.Duration(days) * 24 * time.Hour),
		End:   now.Add(24 * time.Hour),
	}
}

// ParseWindow reads start/end (YYYY-MM-DD) or days from q. Flipped bounds are
// swapped, end is inclusive of its whole day, and anything missing or unparsable
// falls back to the trailing DefaultWindowDays.
func ParseWindow(q url.Values, now time.Time) Window {
	now = now.UTC()

	if days, err := strconv.Atoi(q.Get("days")); err == nil && days > 0 && q.Get("start") == "" {
		return TrailingDays(now, min(days, MaxDays))
	}

	start, startOK := parseDay(q.Get("start"))
	end, endOK := parseDay(q.Get("end"))

	if startOK && endOK && end.Before(start) {
		start, end = end, start
	}

	w := TrailingDays(now, DefaultWindowDays)
	if startOK {
		w.Start = start
	}
	if endOK {
		w.End = end.AddDate(0, 0, 1)
	}
	return w
}

func parseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IntParam parses key from q, returning def when absent, unparsable or outside [1, upper].
func IntParam(q url.Values, key string, def, upper int) int {
	n, err := strconv.Atoi(q.Get(key))
	if err != nil || n < 1 || n > upper {
		return def
	}
	return n
}

// Dimension is a visit column that can be ranked.
type Dimension string

const (
	DimPath    Dimension = "path"
	DimReferer Dimension = "referer"
	DimCountry Dimension = "country"
	DimCity    Dimension = "city"
)

// Count is one grouped row. Label carries the companion column of a dimension:
// the country name for countries and the country code for cities.
type Count struct {
	Value string `db:"value" json:"value"`
	Label string `db:"label" json:"label,omitempty"`
	Count int    `db:"count" json:"count"`
}

// DayCount is one day of the time series as returned by the store.
type DayCount struct {
	Day       string `db:"day"`
	Pageviews int    `db:"pageviews"`
	Visitors  int    `db:"visitors"`
}

// ContentCount is one row of the most played content rollup.
type ContentCount struct {
	Slug  string `db:"slug" json:"slug"`
	Title string `db:"title" json:"title"`
	Count int    `db:"count" json:"count"`
}

// Reader runs the grouped queries behind the dashboard. Every visit query
// excludes bot traffic.
type Reader interface {
	DailyCounts(ctx context.Context, w Window) ([]DayCount, error)
	TopValues(ctx context.Context, dim Dimension, w Window, limit int) ([]Count, error)
	UserAgentCounts(ctx context.Context, w Window) ([]Count, error)
	TopEvents(ctx context.Context, name string, w Window, limit int) ([]ContentCount, error)
	EachVisit(ctx context.Context, w Window, fn func(Visit) error) error
}

// TimeSeries is the per day traffic of a trailing window.
type TimeSeries struct {
	Labels    []string `json:"labels"`
	Pageviews []int    `json:"pageviews"`
	Visitors  []int    `json:"visitors"`
}

// Dashboard computes rollups over stored visits and events.
type Dashboard struct {
	reader Reader
	now    func() time.Time
}

// NewDashboard creates a dashboard over r.
func NewDashboard(r Reader) *Dashboard {
	return &Dashboard{reader: r, now: time.Now}
}

// Now returns the dashboard clock.
func (d *Dashboard) Now() time.Time {
	return d.now()
}

// TimeSeries returns days consecutive days ending today (UTC), oldest first,
// with days without traffic filled with zeros.
func (d *Dashboard) TimeSeries(ctx context.Context, days int) (TimeSeries, error) {
	if days < 1 || days > MaxDays {
		days = DefaultTimeSeriesDays
	}
	defer observe("timeseries")()

	now := d.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	first := today.AddDate(0, 0, -(days - 1))

	// A failed query still yields a zero-filled series alongside the error.
	rows, err := d.reader.DailyCounts(ctx, Window{Start: first, End: today.AddDate(0, 0, 1)})

	byDay := make(map[string]DayCount, len(rows))
	for _, row := range rows {
		byDay[row.Day] = row
	}

	ts := TimeSeries{
		Labels:    make([]string, days),
		Pageviews: make([]int, days),
		Visitors:  make([]int, days),
	}
	for i := 0; i < days; i++ {
		label := first.AddDate(0, 0, i).Format(dayLayout)
		ts.Labels[i] = label
		ts.Pageviews[i] = byDay[label].Pageviews
		ts.Visitors[i] = byDay[label].Visitors
	}
	return ts, err
}

// Top ranks dim values by visit count, highest first, ties by value.
func (d *Dashboard) Top(ctx context.Context, dim Dimension, w Window, limit int) ([]Count, error) {
	if limit < 1 || limit > MaxLimit {
		limit = DefaultTopLimit
	}
	defer observe("top_" + string(dim))()

	rows, err := d.reader.TopValues(ctx, dim, w, limit)
	if err != nil || rows == nil {
		return []Count{}, err
	}
	return rows, nil
}

// Shares buckets the window's visits with c.
func (d *Dashboard) Shares(ctx context.Context, c Classifier, w Window) (Shares, error) {
	defer observe(c.Name)()

	counts, err := d.reader.UserAgentCounts(ctx, w)
	if err != nil {
		return c.Tally(nil), err
	}
	return c.Tally(counts), nil
}

// TopContent ranks content by play events.
func (d *Dashboard) TopContent(ctx context.Context, w Window, limit int) ([]ContentCount, error) {
	if limit < 1 || limit > MaxLimit {
		limit = DefaultContentLimit
	}
	defer observe("top_content")()

	rows, err := d.reader.TopEvents(ctx, PlayEvent, w, limit)
	if err != nil || rows == nil {
		return []ContentCount{}, err
	}
	return rows, nil
}

// Export streams the window's visits, newest first, including bot traffic.
func (d *Dashboard) Export(ctx context.Context, w Window, fn func(Visit) error) error {
	defer observe("export")()
	return d.reader.EachVisit(ctx, w, fn)
}

func observe(query string) func() {
	start := time.Now()
	return func() {
		metrics.DashboardQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	}
}
