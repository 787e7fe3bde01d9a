package analytics

import (
	"net/http"
	"net/url"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// RouteOptions configures the analytics endpoints.
type RouteOptions struct {
	// RequireAuth restricts the dashboard endpoints to superusers.
	RequireAuth bool
	// Cache, when set, wraps the JSON dashboard endpoints.
	Cache func(e *core.RequestEvent) error
}

var collectorMethods = []string{
	http.MethodPost,
	http.MethodGet,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

type dashboardHandlers struct {
	dashboard *Dashboard
}

// RegisterRoutes mounts the collector and the dashboard API. A nil tracker
// leaves the collector unmounted.
func RegisterRoutes(se *core.ServeEvent, tracker *Tracker, dashboard *Dashboard, opts RouteOptions) {
	// Explicit methods keep the pattern from overlapping the static GET catch-all.
	if tracker != nil {
		for _, method := range collectorMethods {
			se.Router.Route(method, "/event/{$}", tracker.HandleEvent)
		}
	}

	h := &dashboardHandlers{dashboard: dashboard}

	api := se.Router.Group("/api")
	if opts.RequireAuth {
		api.Bind(apis.RequireSuperuserAuth())
	}

	endpoints := map[string]func(*core.RequestEvent) error{
		"/timeseries/{$}":    h.timeseries,
		"/top-pages/{$}":     h.topPages,
		"/top-referrers/{$}": h.topReferrers,
		"/devices/{$}":       h.shares(Devices),
		"/os/{$}":            h.shares(OperatingSystems),
		"/browsers/{$}":      h.shares(Browsers),
		"/geo/countries/{$}": h.countries,
		"/geo/cities/{$}":    h.cities,
		"/top-sermons/{$}":   h.topSermons,
	}
	for path, action := range endpoints {
		route := api.GET(path, action)
		if opts.Cache != nil {
			route.BindFunc(opts.Cache)
		}
	}

	api.GET("/export/visits.csv", h.exportVisits)
}

// logFailure logs a failed rollup and marks the response no-store so the
// empty fallback rows are not cached.
func (h *dashboardHandlers) logFailure(e *core.RequestEvent, query string, err error) {
	if !e.Written() {
		e.Response.Header().Set("Cache-Control", "no-store")
	}
	e.App.Logger().Error("Dashboard query failed",
		"query", query,
		"path", e.Request.URL.Path,
		"error", err,
	)
}

func (h *dashboardHandlers) timeseries(e *core.RequestEvent) error {
	days := IntParam(e.Request.URL.Query(), "days", DefaultTimeSeriesDays, MaxDays)

	ts, err := h.dashboard.TimeSeries(e.Request.Context(), days)
	if err != nil {
		h.logFailure(e, "timeseries", err)
	}
	return e.JSON(http.StatusOK, ts)
}

func (h *dashboardHandlers) top(e *core.RequestEvent, dim Dimension, w Window, def int) []Count {
	limit := IntParam(e.Request.URL.Query(), "limit", def, MaxLimit)

	rows, err := h.dashboard.Top(e.Request.Context(), dim, w, limit)
	if err != nil {
		h.logFailure(e, "top_"+string(dim), err)
	}
	return rows
}

func (h *dashboardHandlers) window(e *core.RequestEvent) Window {
	return ParseWindow(e.Request.URL.Query(), h.dashboard.Now())
}

type pageRow struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

func (h *dashboardHandlers) topPages(e *core.RequestEvent) error {
	rows := h.top(e, DimPath, h.window(e), DefaultTopLimit)

	out := make([]pageRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, pageRow{Path: r.Value, Count: r.Count})
	}
	return e.JSON(http.StatusOK, map[string]any{"rows": out})
}

type refererRow struct {
	Referer string `json:"referer"`
	Count   int    `json:"count"`
}

func (h *dashboardHandlers) topReferrers(e *core.RequestEvent) error {
	rows := h.top(e, DimReferer, h.window(e), DefaultTopLimit)

	out := make([]refererRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, refererRow{Referer: r.Value, Count: r.Count})
	}
	return e.JSON(http.StatusOK, map[string]any{"rows": out})
}

type countryRow struct {
	Country     string `json:"country"`
	CountryName string `json:"country_name"`
	Count       int    `json:"count"`
}

func (h *dashboardHandlers) countries(e *core.RequestEvent) error {
	rows := h.top(e, DimCountry, h.window(e), DefaultGeoLimit)

	out := make([]countryRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, countryRow{Country: r.Value, CountryName: r.Label, Count: r.Count})
	}
	return e.JSON(http.StatusOK, map[string]any{"rows": out})
}

type cityRow struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Count   int    `json:"count"`
}

func (h *dashboardHandlers) cities(e *core.RequestEvent) error {
	rows := h.top(e, DimCity, cityWindow(e.Request.URL.Query(), h.dashboard.Now()), DefaultGeoLimit)

	out := make([]cityRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, cityRow{Country: r.Label, City: r.Value, Count: r.Count})
	}
	return e.JSON(http.StatusOK, map[string]any{"rows": out})
}

// cityWindow defaults to the last DefaultCityDays days instead of the general window.
func cityWindow(q url.Values, now time.Time) Window {
	if q.Get("start") == "" && q.Get("end") == "" {
		return TrailingDays(now.UTC(), IntParam(q, "days", DefaultCityDays, MaxDays))
	}
	return ParseWindow(q, now)
}

func (h *dashboardHandlers) shares(c Classifier) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		shares, err := h.dashboard.Shares(e.Request.Context(), c, h.window(e))
		if err != nil {
			h.logFailure(e, c.Name, err)
		}
		return e.JSON(http.StatusOK, shares)
	}
}

func (h *dashboardHandlers) topSermons(e *core.RequestEvent) error {
	limit := IntParam(e.Request.URL.Query(), "limit", DefaultContentLimit, MaxLimit)

	rows, err := h.dashboard.TopContent(e.Request.Context(), h.window(e), limit)
	if err != nil {
		h.logFailure(e, "top_content", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"rows": rows})
}
