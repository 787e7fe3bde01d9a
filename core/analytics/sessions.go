package analytics

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionWindow is the idle time after which a visitor starts a new session.
const DefaultSessionWindow = 30 * time.Minute

type session struct {
	key      string
	lastSeen time.Time
}

// Sessions assigns session keys to visitors. A visitor keeps its key while
// consecutive requests arrive within the window.
type Sessions struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]session
	now     func() time.Time
}

// NewSessions creates a session table. A non-positive window uses DefaultSessionWindow.
func NewSessions(window time.Duration) *Sessions {
	if window <= 0 {
		window = DefaultSessionWindow
	}
	return &Sessions{
		window:  window,
		entries: make(map[string]session),
		now:     time.Now,
	}
}

// Key returns the current session key of visitorID, minting a new one if the
// previous session expired. Anonymous requests without a visitor id get "".
func (s *Sessions) Key(visitorID string) string {
	if visitorID == "" {
		return ""
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[visitorID]
	if !ok || now.Sub(entry.lastSeen) > s.window {
		entry.key = newSessionKey()
	}
	entry.lastSeen = now
	s.entries[visitorID] = entry
	return entry.key
}

// Len returns the number of tracked visitors.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions once per window until ctx is done.
func (s *Sessions) Run(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(s.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				logger.Debug("Cleaned up expired sessions",
					"removed", removed,
					"remaining", s.Len())
			}
		}
	}
}

func newSessionKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
