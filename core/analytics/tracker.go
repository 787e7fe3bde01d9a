package analytics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lotchurch/congregate/core/geo"
	"github.com/lotchurch/congregate/internal/metrics"
)

const (
	// CookieName holds the visitor identifier.
	CookieName = "v_id"
	// CookieMaxAge is two years in seconds.
	CookieMaxAge = 2 * 365 * 24 * 60 * 60
)

// DefaultExcludePrefixes are never recorded.
var DefaultExcludePrefixes = []string{
	"/admin/",
	"/static/",
	"/media/",
	"/favicon.ico",
	"/robots.txt",
	"/health",
	"/_/",
	"/api/",
	"/metrics",
	"/event/",
}

// Config controls ingestion.
type Config struct {
	StoreIP         bool
	IPHashSalt      string
	CookieSecure    bool
	ExcludePrefixes []string
	SessionWindow   time.Duration
}

// DefaultConfig returns the production defaults: hashed ips only and secure cookies.
func DefaultConfig() Config {
	return Config{
		CookieSecure:    true,
		ExcludePrefixes: DefaultExcludePrefixes,
		SessionWindow:   DefaultSessionWindow,
	}
}

// Tracker records one Visit per observed request and accepts collector events.
type Tracker struct {
	cfg      Config
	store    Store
	geo      geo.Resolver
	sessions *Sessions
	logger   *slog.Logger
	now      func() time.Time
}

// NewTracker wires a tracker. A nil resolver disables geo lookups.
func NewTracker(cfg Config, store Store, resolver geo.Resolver, logger *slog.Logger) *Tracker {
	if resolver == nil {
		resolver = geo.Nop{}
	}
	if cfg.ExcludePrefixes == nil {
		cfg.ExcludePrefixes = DefaultExcludePrefixes
	}
	return &Tracker{
		cfg:      cfg,
		store:    store,
		geo:      resolver,
		sessions: NewSessions(cfg.SessionWindow),
		logger:   logger,
		now:      time.Now,
	}
}

// Sessions exposes the session table so its sweeper can be started.
func (t *Tracker) Sessions() *Sessions {
	return t.sessions
}

// Excluded reports whether path falls under an excluded prefix.
func (t *Tracker) Excluded(path string) bool {
	for _, prefix := range t.cfg.ExcludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (t *Tracker) captureOptions() CaptureOptions {
	return CaptureOptions{StoreIP: t.cfg.StoreIP, Salt: t.cfg.IPHashSalt}
}

// Pending is an in-flight request observation.
type Pending struct {
	t         *Tracker
	meta      RequestMeta
	start     time.Time
	visitorID string
	minted    bool
}

// VisitorID returns the visitor identifier used for this request.
func (p *Pending) VisitorID() string { return p.visitorID }

// Minted reports whether the identifier was issued on this request.
func (p *Pending) Minted() bool { return p.minted }

// Begin starts observing r. It returns nil for excluded paths, which are left
// untouched. A newly minted visitor id is written to w right away since headers
// cannot change once the downstream handler starts writing.
func (t *Tracker) Begin(w http.ResponseWriter, r *http.Request) *Pending {
	if t.Excluded(r.URL.Path) {
		metrics.SkippedRequestsTotal.Inc()
		return nil
	}

	p := &Pending{
		t:     t,
		meta:  MetaFromRequest(r),
		start: t.now(),
	}

	p.visitorID = p.meta.VisitorCookie
	if p.visitorID == "" {
		p.visitorID = uuid.NewString()
		p.minted = true
		http.SetCookie(w, t.visitorCookie(p.visitorID))
		metrics.VisitorsMintedTotal.Inc()
	}

	return p
}

func (t *Tracker) visitorCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		Expires:  t.now().Add(CookieMaxAge * time.Second),
		HttpOnly: true,
		Secure:   t.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Outcome reports what happened to a recorded visit or event. Errors are
// informational; the response has already been produced.
type Outcome struct {
	Visit    Visit
	Event    Event
	GeoErr   error
	StoreErr error
}

// Finish builds and persists the Visit once the response status is known.
// The write outlives ctx cancellation, so a client that hangs up after the
// response still gets its visit recorded.
func (p *Pending) Finish(ctx context.Context, status int, userID string) Outcome {
	ctx = context.WithoutCancel(ctx)
	t := p.t
	meta := p.meta

	loc, geoErr := t.lookup(meta.ClientIP())
	now := t.now()

	visit := Capture(meta, Observation{
		Timestamp:  now,
		VisitorID:  p.visitorID,
		SessionKey: t.sessions.Key(p.visitorID),
		UserID:     userID,
		StatusCode: status,
		Latency:    now.Sub(p.start),
		Location:   loc,
	}, t.captureOptions())

	if visit.IsBot {
		metrics.BotVisitsTotal.Inc()
	}

	storeStart := time.Now()
	storeErr := t.store.InsertVisit(ctx, visit)
	metrics.IngestDuration.Observe(time.Since(storeStart).Seconds())

	if storeErr != nil {
		metrics.VisitsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		t.logger.Warn("Failed to record visit",
			"path", visit.Path,
			"status", status,
			"error", storeErr,
		)
	} else {
		metrics.VisitsTotal.WithLabelValues(metrics.ResultRecorded).Inc()
	}

	return Outcome{Visit: visit, GeoErr: geoErr, StoreErr: storeErr}
}

// Collect records a collector event for r. The visitor id is read from the
// cookie but never minted here. Like Finish, the write ignores ctx cancellation.
func (t *Tracker) Collect(ctx context.Context, r *http.Request, payload EventPayload, userID string) Outcome {
	ctx = context.WithoutCancel(ctx)
	meta := MetaFromRequest(r)
	loc, geoErr := t.lookup(meta.ClientIP())

	ev := CaptureEvent(meta, payload, Observation{
		Timestamp:  t.now(),
		VisitorID:  meta.VisitorCookie,
		SessionKey: t.sessions.Key(meta.VisitorCookie),
		UserID:     userID,
		Location:   loc,
	}, t.captureOptions())

	storeErr := t.store.InsertEvent(ctx, ev)
	if storeErr != nil {
		metrics.EventsTotal.WithLabelValues(EventLabel(ev.Name), metrics.ResultFailed).Inc()
		t.logger.Warn("Failed to record event",
			"event", ev.Name,
			"slug", ev.Slug,
			"error", storeErr,
		)
	} else {
		metrics.EventsTotal.WithLabelValues(EventLabel(ev.Name), metrics.ResultRecorded).Inc()
	}

	return Outcome{Event: ev, GeoErr: geoErr, StoreErr: storeErr}
}

// lookup resolves ip, degrading to an empty location on any failure.
func (t *Tracker) lookup(ip string) (geo.Location, error) {
	if ip == "" {
		return geo.Location{}, nil
	}

	loc, err := t.geo.Lookup(ip)
	switch {
	case err == nil:
		metrics.GeoLookupsTotal.WithLabelValues(metrics.ResultHit).Inc()
		return loc, nil
	case errors.Is(err, geo.ErrDisabled):
		metrics.GeoLookupsTotal.WithLabelValues(metrics.ResultDisabled).Inc()
	case errors.Is(err, geo.ErrNotFound), errors.Is(err, geo.ErrInvalidIP):
		metrics.GeoLookupsTotal.WithLabelValues(metrics.ResultMiss).Inc()
	default:
		metrics.GeoLookupsTotal.WithLabelValues(metrics.ResultError).Inc()
		t.logger.Debug("Geo lookup failed", "error", err)
	}
	return geo.Location{}, err
}

// Middleware records visits for a standard library handler chain.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pending := t.Begin(w, r)
		if pending == nil {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		pending.Finish(r.Context(), rec.Status(), "")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
