package analytics

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/lotchurch/congregate/core/geo"
)

// Column limits of the visits and events collections. Longer values are truncated.
const (
	MaxSessionKey  = 40
	MaxVisitorID   = 36
	MaxPath        = 512
	MaxMethod      = 8
	MaxReferer     = 1024
	MaxUserAgent   = 500
	MaxIPHash      = 64
	MaxUTM         = 64
	MaxCountry     = 2
	MaxCountryName = 64
	MaxCity        = 64
	MaxEventName   = 32
	MaxSlug        = 160
	MaxTitle       = 256
)

// UTM holds the campaign parameters of a landing request.
type UTM struct {
	Source   string `json:"utm_source"`
	Medium   string `json:"utm_medium"`
	Campaign string `json:"utm_campaign"`
	Term     string `json:"utm_term"`
	Content  string `json:"utm_content"`
}

// Visit is one observed page request. Visits are written once and never updated.
type Visit struct {
	Timestamp  time.Time    `json:"ts"`
	SessionKey string       `json:"session_key"`
	VisitorID  string       `json:"visitor_id"`
	UserID     string       `json:"user"`
	Path       string       `json:"path"`
	Method     string       `json:"method"`
	StatusCode int          `json:"status_code"`
	ResponseMs int64        `json:"response_ms"`
	Referer    string       `json:"referer"`
	UserAgent  string       `json:"ua"`
	IP         string       `json:"ip,omitempty"`
	IPHash     string       `json:"ip_hash"`
	UTM        UTM          `json:"utm"`
	IsBot      bool         `json:"is_bot"`
	Geo        geo.Location `json:"geo"`
}

// Event is a client reported action such as a sermon play.
type Event struct {
	Timestamp  time.Time    `json:"ts"`
	SessionKey string       `json:"session_key"`
	VisitorID  string       `json:"visitor_id"`
	UserID     string       `json:"user"`
	Name       string       `json:"event"`
	Slug       string       `json:"slug"`
	Title      string       `json:"title"`
	Path       string       `json:"path"`
	UserAgent  string       `json:"ua"`
	IP         string       `json:"ip,omitempty"`
	IPHash     string       `json:"ip_hash"`
	Geo        geo.Location `json:"geo"`
}

// Store persists ingested rows.
type Store interface {
	InsertVisit(ctx context.Context, v Visit) error
	InsertEvent(ctx context.Context, ev Event) error
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func truncateLocation(loc geo.Location) geo.Location {
	return geo.Location{
		Country:     truncate(loc.Country, MaxCountry),
		CountryName: truncate(loc.CountryName, MaxCountryName),
		City:        truncate(loc.City, MaxCity),
	}
}
