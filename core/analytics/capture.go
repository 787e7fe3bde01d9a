package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lotchurch/congregate/core/geo"
)

// ipHashLen is the number of hex characters kept from the sha256 digest.
const ipHashLen = 32

// RequestMeta is the framework independent view of a request the pipeline needs.
type RequestMeta struct {
	Method        string
	Path          string
	Query         url.Values
	UserAgent     string
	Referer       string
	ForwardedFor  string
	RemoteAddr    string
	VisitorCookie string
}

// MetaFromRequest extracts the request metadata from a standard request.
func MetaFromRequest(r *http.Request) RequestMeta {
	meta := RequestMeta{
		Method:       r.Method,
		Path:         r.URL.Path,
		Query:        r.URL.Query(),
		UserAgent:    r.UserAgent(),
		Referer:      r.Referer(),
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		RemoteAddr:   r.RemoteAddr,
	}
	if c, err := r.Cookie(CookieName); err == nil {
		meta.VisitorCookie = c.Value
	}
	return meta
}

// ClientIP returns the first X-Forwarded-For entry, falling back to the peer address.
func (m RequestMeta) ClientIP() string {
	if m.ForwardedFor != "" {
		first, _, _ := strings.Cut(m.ForwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if m.RemoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(m.RemoteAddr); err == nil {
		return host
	}
	return m.RemoteAddr
}

// HashIP returns the truncated hex sha256 of salt+ip, or "" for an empty ip.
func HashIP(ip, salt string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + ip))
	return hex.EncodeToString(sum[:])[:ipHashLen]
}

// ExtractUTM reads the utm_* campaign parameters.
func ExtractUTM(q url.Values) UTM {
	return UTM{
		Source:   truncate(q.Get("utm_source"), MaxUTM),
		Medium:   truncate(q.Get("utm_medium"), MaxUTM),
		Campaign: truncate(q.Get("utm_campaign"), MaxUTM),
		Term:     truncate(q.Get("utm_term"), MaxUTM),
		Content:  truncate(q.Get("utm_content"), MaxUTM),
	}
}

// CaptureOptions carries the privacy settings applied while building rows.
type CaptureOptions struct {
	StoreIP bool
	Salt    string
}

// Observation is what is known once the downstream handler has finished.
type Observation struct {
	Timestamp  time.Time
	VisitorID  string
	SessionKey string
	UserID     string
	StatusCode int
	Latency    time.Duration
	Location   geo.Location
}

// Capture builds the Visit for a request. It performs no I/O.
func Capture(meta RequestMeta, obs Observation, opts CaptureOptions) Visit {
	ip := meta.ClientIP()
	v := Visit{
		Timestamp:  obs.Timestamp.UTC(),
		SessionKey: truncate(obs.SessionKey, MaxSessionKey),
		VisitorID:  truncate(obs.VisitorID, MaxVisitorID),
		UserID:     obs.UserID,
		Path:       truncate(meta.Path, MaxPath),
		Method:     truncate(meta.Method, MaxMethod),
		StatusCode: obs.StatusCode,
		ResponseMs: obs.Latency.Milliseconds(),
		Referer:    truncate(meta.Referer, MaxReferer),
		UserAgent:  truncate(meta.UserAgent, MaxUserAgent),
		IPHash:     HashIP(ip, opts.Salt),
		UTM:        ExtractUTM(meta.Query),
		IsBot:      IsBot(meta.UserAgent),
		Geo:        truncateLocation(obs.Location),
	}
	if opts.StoreIP {
		v.IP = ip
	}
	return v
}

// CaptureEvent builds the Event for an accepted collector payload. It performs no I/O.
func CaptureEvent(meta RequestMeta, payload EventPayload, obs Observation, opts CaptureOptions) Event {
	ip := meta.ClientIP()
	ev := Event{
		Timestamp:  obs.Timestamp.UTC(),
		SessionKey: truncate(obs.SessionKey, MaxSessionKey),
		VisitorID:  truncate(obs.VisitorID, MaxVisitorID),
		UserID:     obs.UserID,
		Name:       truncate(payload.Event, MaxEventName),
		Slug:       truncate(payload.Slug, MaxSlug),
		Title:      truncate(payload.Title, MaxTitle),
		Path:       truncate(meta.Path, MaxPath),
		UserAgent:  truncate(meta.UserAgent, MaxUserAgent),
		IPHash:     HashIP(ip, opts.Salt),
		Geo:        truncateLocation(obs.Location),
	}
	if opts.StoreIP {
		ev.IP = ip
	}
	return ev
}
