package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	recentRequestsSize = 100
	rateWindow         = 5 * time.Second
	// averageSmoothing weights the newest sample in the per-path moving average.
	averageSmoothing = 0.1
)

// RequestMetrics is one handled request
type RequestMetrics struct {
	Path       string
	Method     string
	StatusCode int
	Duration   time.Duration
	Timestamp  time.Time
}

// CircularBuffer keeps the last size requests
type CircularBuffer struct {
	mu     sync.RWMutex
	buffer []RequestMetrics
	size   int
	head   int
	count  int
}

// NewCircularBuffer creates a new circular buffer with given size
func NewCircularBuffer(size int) *CircularBuffer {
	return &CircularBuffer{
		buffer: make([]RequestMetrics, size),
		size:   size,
	}
}

// Add overwrites the oldest entry once the buffer is full
func (c *CircularBuffer) Add(item RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer[c.head] = item
	c.head = (c.head + 1) % c.size
	if c.count < c.size {
		c.count++
	}
}

// GetAll returns the buffered items oldest first
func (c *CircularBuffer) GetAll() []RequestMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]RequestMetrics, c.count)
	for i := 0; i < c.count; i++ {
		pos := (c.size + c.head - c.count + i) % c.size
		result[i] = c.buffer[pos]
	}
	return result
}

// PathStats holds statistics for a specific path
type PathStats struct {
	TotalRequests   int64
	TotalErrors     int64
	AverageTime     time.Duration
	LastAccessTime  time.Time
	StatusCodeCount map[int]int64
}

// RequestStats aggregates handled requests for the health endpoint
type RequestStats struct {
	mu             sync.RWMutex
	pathStats      map[string]*PathStats
	recentRequests *CircularBuffer
	totalRequests  int64
	totalErrors    int64
	requestRate    float64
	windowCount    int64
	windowStart    time.Time
	now            func() time.Time
}

// NewRequestStats creates a new RequestStats instance
func NewRequestStats() *RequestStats {
	return &RequestStats{
		pathStats:      make(map[string]*PathStats),
		recentRequests: NewCircularBuffer(recentRequestsSize),
		windowStart:    time.Now(),
		now:            time.Now,
	}
}

// TrackRequest records a handled request
func (rs *RequestStats) TrackRequest(m RequestMetrics) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	pathStat, exists := rs.pathStats[m.Path]
	if !exists {
		pathStat = &PathStats{StatusCodeCount: make(map[int]int64)}
		rs.pathStats[m.Path] = pathStat
	}

	pathStat.TotalRequests++
	rs.totalRequests++
	if m.StatusCode >= 400 {
		pathStat.TotalErrors++
		rs.totalErrors++
	}
	pathStat.StatusCodeCount[m.StatusCode]++
	pathStat.LastAccessTime = m.Timestamp

	if pathStat.TotalRequests == 1 {
		pathStat.AverageTime = m.Duration
	} else {
		pathStat.AverageTime = time.Duration(float64(pathStat.AverageTime)*(1-averageSmoothing) + float64(m.Duration)*averageSmoothing)
	}

	rs.recentRequests.Add(m)

	rs.windowCount++
	now := rs.now()
	if elapsed := now.Sub(rs.windowStart); elapsed >= rateWindow {
		rs.requestRate = float64(rs.windowCount) / elapsed.Seconds()
		rs.windowCount = 0
		rs.windowStart = now
	}
}

// GetRequestRate returns the request rate per second over the last full window
func (rs *RequestStats) GetRequestRate() float64 {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.requestRate
}

// GetRecentRequests returns the most recent requests
func (rs *RequestStats) GetRecentRequests() []RequestMetrics {
	return rs.recentRequests.GetAll()
}

// GetPathStats returns a copy of one path's statistics
func (rs *RequestStats) GetPathStats(path string) (PathStats, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	ps, ok := rs.pathStats[path]
	if !ok {
		return PathStats{}, false
	}
	out := *ps
	out.StatusCodeCount = make(map[int]int64, len(ps.StatusCodeCount))
	for code, n := range ps.StatusCodeCount {
		out.StatusCodeCount[code] = n
	}
	return out, true
}

// PathSummary is a busiest-path entry in a RequestSummary
type PathSummary struct {
	Path          string  `json:"path"`
	Requests      int64   `json:"requests"`
	Errors        int64   `json:"errors"`
	AverageTimeMs float64 `json:"average_time_ms"`
}

// RequestSummary is the JSON view of RequestStats
type RequestSummary struct {
	TotalRequests int64         `json:"total_requests"`
	TotalErrors   int64         `json:"total_errors"`
	RequestRate   float64       `json:"request_rate"`
	BusiestPaths  []PathSummary `json:"busiest_paths"`
}

// Summary reports totals and the top n paths by request count
func (rs *RequestStats) Summary(n int) RequestSummary {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	paths := make([]PathSummary, 0, len(rs.pathStats))
	for path, ps := range rs.pathStats {
		paths = append(paths, PathSummary{
			Path:          path,
			Requests:      ps.TotalRequests,
			Errors:        ps.TotalErrors,
			AverageTimeMs: float64(ps.AverageTime) / float64(time.Millisecond),
		})
	}
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Requests != paths[j].Requests {
			return paths[i].Requests > paths[j].Requests
		}
		return paths[i].Path < paths[j].Path
	})
	if len(paths) > n {
		paths = paths[:n]
	}

	return RequestSummary{
		TotalRequests: rs.totalRequests,
		TotalErrors:   rs.totalErrors,
		RequestRate:   rs.requestRate,
		BusiestPaths:  paths,
	}
}

// GetStatusString returns a string representation of the status code
func GetStatusString(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "ERROR"
	case statusCode >= 400:
		return "WARN"
	case statusCode >= 300:
		return "REDIRECT"
	case statusCode >= 200:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// FormatDuration returns a formatted duration string
func FormatDuration(d time.Duration) string {
	if d > time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}
