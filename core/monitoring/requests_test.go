package monitoring

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCircularBuffer_Wraps(t *testing.T) {
	buffer := NewCircularBuffer(3)

	for i := 1; i <= 4; i++ {
		buffer.Add(RequestMetrics{Path: fmt.Sprintf("/p%d", i)})
	}

	all := buffer.GetAll()
	if len(all) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(all))
	}
	expected := []string{"/p2", "/p3", "/p4"}
	for i, path := range expected {
		if all[i].Path != path {
			t.Errorf("Expected item %d to be %s, got %s", i, path, all[i].Path)
		}
	}
}

func TestCircularBuffer_Empty(t *testing.T) {
	buffer := NewCircularBuffer(5)
	if got := buffer.GetAll(); len(got) != 0 {
		t.Errorf("Expected empty buffer, got %d items", len(got))
	}
}

func TestRequestStats_TrackRequest(t *testing.T) {
	rs := NewRequestStats()
	now := time.Now()

	rs.TrackRequest(RequestMetrics{Path: "/sermons/", StatusCode: 200, Duration: 10 * time.Millisecond, Timestamp: now})
	rs.TrackRequest(RequestMetrics{Path: "/sermons/", StatusCode: 404, Duration: 20 * time.Millisecond, Timestamp: now})
	rs.TrackRequest(RequestMetrics{Path: "/", StatusCode: 500, Duration: time.Millisecond, Timestamp: now})

	ps, ok := rs.GetPathStats("/sermons/")
	if !ok {
		t.Fatal("Expected stats for /sermons/")
	}
	if ps.TotalRequests != 2 {
		t.Errorf("Expected 2 requests, got %d", ps.TotalRequests)
	}
	if ps.TotalErrors != 1 {
		t.Errorf("Expected 1 error, got %d", ps.TotalErrors)
	}
	if ps.StatusCodeCount[404] != 1 {
		t.Errorf("Expected one 404, got %d", ps.StatusCodeCount[404])
	}

	// moving average: 10ms * 0.9 + 20ms * 0.1
	if diff := ps.AverageTime - 11*time.Millisecond; diff < -time.Microsecond || diff > time.Microsecond {
		t.Errorf("Expected average 11ms, got %v", ps.AverageTime)
	}

	if _, ok := rs.GetPathStats("/missing"); ok {
		t.Error("Expected no stats for unknown path")
	}

	if got := len(rs.GetRecentRequests()); got != 3 {
		t.Errorf("Expected 3 recent requests, got %d", got)
	}
}

func TestRequestStats_PathStatsCopy(t *testing.T) {
	rs := NewRequestStats()
	rs.TrackRequest(RequestMetrics{Path: "/", StatusCode: 200})

	ps, _ := rs.GetPathStats("/")
	ps.StatusCodeCount[200] = 99

	again, _ := rs.GetPathStats("/")
	if again.StatusCodeCount[200] != 1 {
		t.Errorf("Expected internal count to stay 1, got %d", again.StatusCodeCount[200])
	}
}

func TestRequestStats_Rate(t *testing.T) {
	rs := NewRequestStats()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := start
	rs.windowStart = start
	rs.now = func() time.Time { return current }

	for i := 0; i < 9; i++ {
		rs.TrackRequest(RequestMetrics{Path: "/"})
	}
	if rate := rs.GetRequestRate(); rate != 0 {
		t.Errorf("Expected no rate before the window closes, got %f", rate)
	}

	current = start.Add(5 * time.Second)
	rs.TrackRequest(RequestMetrics{Path: "/"})
	if rate := rs.GetRequestRate(); rate != 2 {
		t.Errorf("Expected rate 2/s, got %f", rate)
	}
}

func TestRequestStats_Summary(t *testing.T) {
	rs := NewRequestStats()
	for i := 0; i < 3; i++ {
		rs.TrackRequest(RequestMetrics{Path: "/live/", StatusCode: 200})
	}
	rs.TrackRequest(RequestMetrics{Path: "/give/", StatusCode: 502})
	rs.TrackRequest(RequestMetrics{Path: "/about/", StatusCode: 200})

	summary := rs.Summary(2)
	if summary.TotalRequests != 5 {
		t.Errorf("Expected 5 total requests, got %d", summary.TotalRequests)
	}
	if summary.TotalErrors != 1 {
		t.Errorf("Expected 1 error, got %d", summary.TotalErrors)
	}
	if len(summary.BusiestPaths) != 2 {
		t.Fatalf("Expected 2 busiest paths, got %d", len(summary.BusiestPaths))
	}
	if summary.BusiestPaths[0].Path != "/live/" {
		t.Errorf("Expected /live/ first, got %s", summary.BusiestPaths[0].Path)
	}
	// ties break by path
	if summary.BusiestPaths[1].Path != "/about/" {
		t.Errorf("Expected /about/ second, got %s", summary.BusiestPaths[1].Path)
	}
}

func TestRequestStats_Concurrent(t *testing.T) {
	rs := NewRequestStats()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				rs.TrackRequest(RequestMetrics{Path: "/", StatusCode: 200})
				_ = rs.Summary(5)
			}
		}()
	}
	wg.Wait()

	if got := rs.Summary(1).TotalRequests; got != 400 {
		t.Errorf("Expected 400 requests, got %d", got)
	}
}

func TestGetStatusString(t *testing.T) {
	tests := map[int]string{
		200: "SUCCESS",
		204: "SUCCESS",
		301: "REDIRECT",
		404: "WARN",
		500: "ERROR",
		100: "UNKNOWN",
	}
	for code, want := range tests {
		if got := GetStatusString(code); got != want {
			t.Errorf("GetStatusString(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(1500 * time.Microsecond); got != "1.50ms" {
		t.Errorf("Expected 1.50ms, got %s", got)
	}
	if got := FormatDuration(2500 * time.Millisecond); got != "2.50s" {
		t.Errorf("Expected 2.50s, got %s", got)
	}
}
