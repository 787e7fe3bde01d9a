package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	days    []DayCount
	top     []Count
	agents  []Count
	content []ContentCount
	visits  []Visit
	err     error

	gotWindow Window
	gotDim    Dimension
	gotLimit  int
	gotEvent  string
}

func (f *fakeReader) DailyCounts(_ context.Context, w Window) ([]DayCount, error) {
	f.gotWindow = w
	return f.days, f.err
}

func (f *fakeReader) TopValues(_ context.Context, dim Dimension, w Window, limit int) ([]Count, error) {
	f.gotDim, f.gotWindow, f.gotLimit = dim, w, limit
	return f.top, f.err
}

func (f *fakeReader) UserAgentCounts(_ context.Context, w Window) ([]Count, error) {
	f.gotWindow = w
	return f.agents, f.err
}

func (f *fakeReader) TopEvents(_ context.Context, name string, w Window, limit int) ([]ContentCount, error) {
	f.gotEvent, f.gotWindow, f.gotLimit = name, w, limit
	return f.content, f.err
}

func (f *fakeReader) EachVisit(_ context.Context, w Window, fn func(Visit) error) error {
	f.gotWindow = w
	for _, v := range f.visits {
		if err := fn(v); err != nil {
			return err
		}
	}
	return f.err
}

func fixedDashboard(r Reader, now time.Time) *Dashboard {
	d := NewDashboard(r)
	d.now = func() time.Time { return now }
	return d
}

func TestTimeSeriesZeroFilled(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC)
	reader := &fakeReader{days: []DayCount{{Day: "2026-05-07", Pageviews: 1, Visitors: 1}}}

	ts, err := fixedDashboard(reader, now).TimeSeries(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-05-04", "2026-05-05", "2026-05-06", "2026-05-07", "2026-05-08", "2026-05-09", "2026-05-10"}, ts.Labels)
	assert.Equal(t, []int{0, 0, 0, 1, 0, 0, 0}, ts.Pageviews)
	assert.Equal(t, []int{0, 0, 0, 1, 0, 0, 0}, ts.Visitors)

	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), reader.gotWindow.Start)
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), reader.gotWindow.End)
}

func TestTimeSeriesDefaultsAndFailure(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{err: errors.New("no such table: visits")}

	ts, err := fixedDashboard(reader, now).TimeSeries(context.Background(), 0)
	assert.Error(t, err)
	assert.Len(t, ts.Labels, DefaultTimeSeriesDays)
	assert.Len(t, ts.Pageviews, DefaultTimeSeriesDays)
	assert.Equal(t, "2026-05-10", ts.Labels[DefaultTimeSeriesDays-1])
}

func TestTopClampsLimit(t *testing.T) {
	reader := &fakeReader{top: []Count{{Value: "/", Count: 5}, {Value: "/live", Count: 3}}}
	d := NewDashboard(reader)

	rows, err := d.Top(context.Background(), DimPath, Window{}, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, reader.gotLimit)
	assert.Equal(t, DimPath, reader.gotDim)

	_, _ = d.Top(context.Background(), DimReferer, Window{}, 5000)
	assert.Equal(t, DefaultTopLimit, reader.gotLimit)
}

func TestTopFailureYieldsEmptyRows(t *testing.T) {
	rows, err := NewDashboard(&fakeReader{err: errors.New("boom")}).Top(context.Background(), DimCity, Window{}, 3)
	assert.Error(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSharesUsesClassifier(t *testing.T) {
	reader := &fakeReader{agents: []Count{
		{Value: uaSafariIPhone, Count: 4},
		{Value: uaChromeWindows, Count: 6},
	}}

	shares, err := NewDashboard(reader).Shares(context.Background(), Devices, Window{})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 0, 6, 0}, shares.Values)
	assert.Equal(t, 10, shares.Total)
}

func TestTopContentQueriesPlays(t *testing.T) {
	reader := &fakeReader{content: []ContentCount{{Slug: "grace", Title: "Grace", Count: 9}}}

	rows, err := NewDashboard(reader).TopContent(context.Background(), Window{}, 0)
	require.NoError(t, err)
	assert.Equal(t, PlayEvent, reader.gotEvent)
	assert.Equal(t, DefaultContentLimit, reader.gotLimit)
	assert.Equal(t, "grace", rows[0].Slug)
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	day := func(d int) time.Time { return time.Date(2026, 6, d, 0, 0, 0, 0, time.UTC) }

	testCases := []struct {
		name  string
		query string
		start time.Time
		end   time.Time
	}{
		{"defaults", "", now.AddDate(0, 0, -90), now.AddDate(0, 0, 1)},
		{"explicit", "start=2026-06-01&end=2026-06-10", day(1), day(11)},
		{"flipped", "start=2026-06-10&end=2026-06-01", day(1), day(11)},
		{"bad start", "start=yesterday&end=2026-06-10", now.AddDate(0, 0, -90), day(11)},
		{"bad end", "start=2026-06-01&end=06/10/2026", day(1), now.AddDate(0, 0, 1)},
		{"days", "days=7", now.AddDate(0, 0, -7), now.AddDate(0, 0, 1)},
		{"bad days", "days=abc", now.AddDate(0, 0, -90), now.AddDate(0, 0, 1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)

			w := ParseWindow(q, now)
			assert.Equal(t, tc.start, w.Start)
			assert.Equal(t, tc.end, w.End)
		})
	}
}

func TestIntParam(t *testing.T) {
	q := url.Values{"limit": {"7"}, "neg": {"-3"}, "big": {"1000"}, "word": {"ten"}}

	assert.Equal(t, 7, IntParam(q, "limit", 10, MaxLimit))
	assert.Equal(t, 10, IntParam(q, "neg", 10, MaxLimit))
	assert.Equal(t, 10, IntParam(q, "big", 10, MaxLimit))
	assert.Equal(t, 10, IntParam(q, "word", 10, MaxLimit))
	assert.Equal(t, 10, IntParam(q, "missing", 10, MaxLimit))
}

func TestCityWindowDefaults(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	w := cityWindow(url.Values{}, now)
	assert.Equal(t, now.AddDate(0, 0, -DefaultCityDays), w.Start)

	w = cityWindow(url.Values{"days": {"3"}}, now)
	assert.Equal(t, now.AddDate(0, 0, -3), w.Start)
}

func TestWriteVisitsCSV(t *testing.T) {
	ts := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	reader := &fakeReader{visits: []Visit{
		{Timestamp: ts, Path: "/", Method: "GET", StatusCode: 200, ResponseMs: 12, VisitorID: "v1", UTM: UTM{Source: "ig"}},
		{Timestamp: ts, Path: "/live", Method: "GET", StatusCode: 500, IsBot: true, UserAgent: "x, \"quoted\""},
	}}

	var buf bytes.Buffer
	err := WriteVisitsCSV(context.Background(), NewDashboard(reader), Window{}, &buf)
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, exportHeader, records[0])
	assert.Equal(t, "2026-02-01 08:30", records[1][0])
	assert.Equal(t, "ig", records[1][13])
	assert.Equal(t, "x, \"quoted\"", records[2][9])
	assert.Equal(t, "true", records[2][16])
}

func TestWriteVisitsCSVReportsReaderError(t *testing.T) {
	var buf bytes.Buffer
	err := WriteVisitsCSV(context.Background(), NewDashboard(&fakeReader{err: errors.New("interrupted")}), Window{}, &buf)
	assert.EqualError(t, err, "interrupted")
	assert.Empty(t, buf.String(), "nothing is written before the query succeeds")
}
