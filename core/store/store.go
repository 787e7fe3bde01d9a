// Package store persists analytics rows in PocketBase collections and runs
// the dashboard rollups as grouped SQL over them.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lotchurch/congregate/core/analytics"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Store implements analytics.Store and analytics.Reader.
type Store struct {
	app core.App
}

var (
	_ analytics.Store  = (*Store)(nil)
	_ analytics.Reader = (*Store)(nil)
)

// New returns a store bound to app. EnsureCollections must have run.
func New(app core.App) *Store {
	return &Store{app: app}
}

// InsertVisit saves one visit row.
func (s *Store) InsertVisit(ctx context.Context, v analytics.Visit) error {
	collection, err := s.app.FindCachedCollectionByNameOrId(VisitsCollection)
	if err != nil {
		return fmt.Errorf("find %s collection: %w", VisitsCollection, err)
	}

	record := core.NewRecord(collection)
	record.Set("ts", v.Timestamp)
	record.Set("session_key", v.SessionKey)
	record.Set("visitor_id", v.VisitorID)
	record.Set("user", v.UserID)
	record.Set("path", v.Path)
	record.Set("method", v.Method)
	record.Set("status_code", v.StatusCode)
	record.Set("response_ms", v.ResponseMs)
	record.Set("referer", v.Referer)
	record.Set("ua", v.UserAgent)
	record.Set("ip", v.IP)
	record.Set("ip_hash", v.IPHash)
	record.Set("utm_source", v.UTM.Source)
	record.Set("utm_medium", v.UTM.Medium)
	record.Set("utm_campaign", v.UTM.Campaign)
	record.Set("utm_term", v.UTM.Term)
	record.Set("utm_content", v.UTM.Content)
	record.Set("is_bot", v.IsBot)
	record.Set("country", v.Geo.Country)
	record.Set("country_name", v.Geo.CountryName)
	record.Set("city", v.Geo.City)

	if err := s.app.SaveNoValidateWithContext(ctx, record); err != nil {
		return fmt.Errorf("save visit: %w", err)
	}
	return nil
}

// InsertEvent saves one event row.
func (s *Store) InsertEvent(ctx context.Context, ev analytics.Event) error {
	collection, err := s.app.FindCachedCollectionByNameOrId(EventsCollection)
	if err != nil {
		return fmt.Errorf("find %s collection: %w", EventsCollection, err)
	}

	record := core.NewRecord(collection)
	record.Set("ts", ev.Timestamp)
	record.Set("session_key", ev.SessionKey)
	record.Set("visitor_id", ev.VisitorID)
	record.Set("user", ev.UserID)
	record.Set("event", ev.Name)
	record.Set("slug", ev.Slug)
	record.Set("title", ev.Title)
	record.Set("path", ev.Path)
	record.Set("ua", ev.UserAgent)
	record.Set("ip", ev.IP)
	record.Set("ip_hash", ev.IPHash)
	record.Set("country", ev.Geo.Country)
	record.Set("country_name", ev.Geo.CountryName)
	record.Set("city", ev.Geo.City)

	if err := s.app.SaveNoValidateWithContext(ctx, record); err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// bound formats t the way DateField values are stored so range checks can
// compare text.
func bound(t time.Time) string {
	return t.UTC().Format(types.DefaultDateLayout)
}

func windowParams(w analytics.Window) dbx.Params {
	return dbx.Params{"from": bound(w.Start), "to": bound(w.End)}
}

// DailyCounts groups human visits by UTC day.
func (s *Store) DailyCounts(ctx context.Context, w analytics.Window) ([]analytics.DayCount, error) {
	var rows []analytics.DayCount
	err := s.app.DB().NewQuery(`
		SELECT substr(ts, 1, 10) AS day,
		       COUNT(*) AS pageviews,
		       COUNT(DISTINCT NULLIF(visitor_id, '')) AS visitors
		FROM visits
		WHERE is_bot = 0 AND ts >= {:from} AND ts < {:to}
		GROUP BY day
		ORDER BY day
	`).WithContext(ctx).Bind(windowParams(w)).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	return rows, nil
}

// dimensionSQL maps a dimension to its value column, companion label column,
// and whether empty values are dropped.
var dimensionSQL = map[analytics.Dimension]struct {
	value     string
	label     string
	skipEmpty bool
}{
	analytics.DimPath:    {value: "path", label: "''"},
	analytics.DimReferer: {value: "referer", label: "''", skipEmpty: true},
	analytics.DimCountry: {value: "country", label: "country_name", skipEmpty: true},
	analytics.DimCity:    {value: "city", label: "country", skipEmpty: true},
}

// TopValues ranks a visit dimension by human visit count.
func (s *Store) TopValues(ctx context.Context, dim analytics.Dimension, w analytics.Window, limit int) ([]analytics.Count, error) {
	col, ok := dimensionSQL[dim]
	if !ok {
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	where := "is_bot = 0 AND ts >= {:from} AND ts < {:to}"
	if col.skipEmpty {
		where += " AND " + col.value + " != ''"
	}

	params := windowParams(w)
	params["limit"] = limit

	var rows []analytics.Count
	err := s.app.DB().NewQuery(fmt.Sprintf(`
		SELECT %[1]s AS value, %[2]s AS label, COUNT(*) AS count
		FROM visits
		WHERE %[3]s
		GROUP BY %[1]s, %[2]s
		ORDER BY count DESC, value ASC
		LIMIT {:limit}
	`, col.value, col.label, where)).WithContext(ctx).Bind(params).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", dim, err)
	}
	return rows, nil
}

// UserAgentCounts groups human visits by user agent for bucketing.
func (s *Store) UserAgentCounts(ctx context.Context, w analytics.Window) ([]analytics.Count, error) {
	var rows []analytics.Count
	err := s.app.DB().NewQuery(`
		SELECT ua AS value, '' AS label, COUNT(*) AS count
		FROM visits
		WHERE is_bot = 0 AND ts >= {:from} AND ts < {:to}
		GROUP BY ua
	`).WithContext(ctx).Bind(windowParams(w)).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("user agent counts: %w", err)
	}
	return rows, nil
}

// TopEvents ranks content by the number of events called name.
func (s *Store) TopEvents(ctx context.Context, name string, w analytics.Window, limit int) ([]analytics.ContentCount, error) {
	params := windowParams(w)
	params["event"] = name
	params["limit"] = limit

	var rows []analytics.ContentCount
	err := s.app.DB().NewQuery(`
		SELECT slug, title, COUNT(*) AS count
		FROM events
		WHERE event = {:event} AND ts >= {:from} AND ts < {:to}
		GROUP BY slug, title
		ORDER BY count DESC, slug ASC
		LIMIT {:limit}
	`).WithContext(ctx).Bind(params).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("top events: %w", err)
	}
	return rows, nil
}

type visitRow struct {
	TS          string `db:"ts"`
	SessionKey  string `db:"session_key"`
	VisitorID   string `db:"visitor_id"`
	User        string `db:"user"`
	Path        string `db:"path"`
	Method      string `db:"method"`
	StatusCode  int    `db:"status_code"`
	ResponseMs  int64  `db:"response_ms"`
	Referer     string `db:"referer"`
	UA          string `db:"ua"`
	IP          string `db:"ip"`
	IPHash      string `db:"ip_hash"`
	UTMSource   string `db:"utm_source"`
	UTMMedium   string `db:"utm_medium"`
	UTMCampaign string `db:"utm_campaign"`
	UTMTerm     string `db:"utm_term"`
	UTMContent  string `db:"utm_content"`
	IsBot       bool   `db:"is_bot"`
	Country     string `db:"country"`
	CountryName string `db:"country_name"`
	City        string `db:"city"`
}

func (r visitRow) visit() analytics.Visit {
	v := analytics.Visit{
		SessionKey: r.SessionKey,
		VisitorID:  r.VisitorID,
		UserID:     r.User,
		Path:       r.Path,
		Method:     r.Method,
		StatusCode: r.StatusCode,
		ResponseMs: r.ResponseMs,
		Referer:    r.Referer,
		UserAgent:  r.UA,
		IP:         r.IP,
		IPHash:     r.IPHash,
		UTM: analytics.UTM{
			Source:   r.UTMSource,
			Medium:   r.UTMMedium,
			Campaign: r.UTMCampaign,
			Term:     r.UTMTerm,
			Content:  r.UTMContent,
		},
		IsBot: r.IsBot,
	}
	v.Geo.Country = r.Country
	v.Geo.CountryName = r.CountryName
	v.Geo.City = r.City
	if ts, err := types.ParseDateTime(r.TS); err == nil {
		v.Timestamp = ts.Time()
	}
	return v
}

// EachVisit walks the window's visits newest first, bots included.
func (s *Store) EachVisit(ctx context.Context, w analytics.Window, fn func(analytics.Visit) error) error {
	rows, err := s.app.DB().NewQuery(`
		SELECT ts, session_key, visitor_id, user, path, method, status_code, response_ms,
		       referer, ua, ip, ip_hash, utm_source, utm_medium, utm_campaign, utm_term,
		       utm_content, is_bot, country, country_name, city
		FROM visits
		WHERE ts >= {:from} AND ts < {:to}
		ORDER BY ts DESC
	`).WithContext(ctx).Bind(windowParams(w)).Rows()
	if err != nil {
		return fmt.Errorf("export visits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row visitRow
		if err := rows.ScanStruct(&row); err != nil {
			return fmt.Errorf("scan visit: %w", err)
		}
		if err := fn(row.visit()); err != nil {
			return err
		}
	}
	return rows.Err()
}
