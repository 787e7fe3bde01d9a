package sermons

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// SearchLimit caps search results.
const SearchLimit = 30

// Detail is the JSON shape of a single sermon.
type Detail struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Speaker     string   `json:"speaker"`
	Cover       string   `json:"cover"`
	Audio       string   `json:"audio"`
	DurationS   int      `json:"duration_s"`
	DurationHM  string   `json:"duration_hm"`
	DateDisplay string   `json:"date_display"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	AbsoluteURL string   `json:"absolute_url"`
}

// Summary is one search hit.
type Summary struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Speaker   string `json:"speaker"`
	Date      string `json:"date"`
	DurationS int    `json:"duration_s"`
	Cover     string `json:"cover"`
	Audio     string `json:"audio"`
}

// PagePath is the public page of a sermon.
func PagePath(slug string) string {
	return "/stream/past/" + slug + "/"
}

// RegisterRoutes mounts the public sermon endpoints.
func RegisterRoutes(se *core.ServeEvent) {
	se.Router.GET("/api/sermons/{$}", handleSearch)
	se.Router.GET("/api/sermons/list/{$}", handleList)
	se.Router.GET("/api/sermons/summary/{$}", handleSummary)
	se.Router.GET("/api/sermons/{slug}", handleDetail)
}

func handleDetail(e *core.RequestEvent) error {
	record, err := e.App.FindFirstRecordByData(CollectionName, "slug", e.Request.PathValue("slug"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e.NotFoundError("Sermon not found.", nil)
		}
		return e.InternalServerError("Failed to load sermon.", err)
	}

	return e.JSON(http.StatusOK, detailFromRecord(record, absoluteURL(e, record.GetString("slug"))))
}

func displayDate(record *core.Record) string {
	if d := record.GetDateTime("date"); !d.IsZero() {
		return d.Time().Format("Jan 2, 2006")
	}
	return ""
}

func detailFromRecord(record *core.Record, absolute string) Detail {
	duration := record.GetInt("duration_s")
	return Detail{
		Slug:        record.GetString("slug"),
		Title:       record.GetString("title"),
		Speaker:     record.GetString("speaker"),
		Cover:       record.GetString("cover"),
		Audio:       record.GetString("audio"),
		DurationS:   duration,
		DurationHM:  FormatDuration(duration),
		DateDisplay: displayDate(record),
		Tags:        TagsList(record.GetString("tags")),
		Description: record.GetString("description"),
		AbsoluteURL: absolute,
	}
}

func absoluteURL(e *core.RequestEvent, slug string) string {
	scheme := "http"
	if e.IsTLS() || strings.EqualFold(e.Request.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + e.Request.Host + PagePath(slug)
}

func handleSearch(e *core.RequestEvent) error {
	q := strings.TrimSpace(e.Request.URL.Query().Get("q"))

	query := e.App.RecordQuery(CollectionName).
		OrderBy("date DESC", "created DESC").
		Limit(SearchLimit)
	if q != "" {
		query.AndWhere(dbx.Or(
			dbx.Like("title", q),
			dbx.Like("speaker", q),
			dbx.Like("tags", q),
		))
	}

	records := []*core.Record{}
	if err := query.All(&records); err != nil {
		return e.InternalServerError("Failed to search sermons.", err)
	}

	results := make([]Summary, 0, len(records))
	for _, r := range records {
		results = append(results, summaryFromRecord(r))
	}
	return e.JSON(http.StatusOK, map[string]any{"results": results})
}

func summaryFromRecord(record *core.Record) Summary {
	date := ""
	if d := record.GetDateTime("date"); !d.IsZero() {
		date = d.Time().Format("2006-01-02")
	}
	return Summary{
		ID:        record.Id,
		Slug:      record.GetString("slug"),
		Title:     record.GetString("title"),
		Speaker:   record.GetString("speaker"),
		Date:      date,
		DurationS: record.GetInt("duration_s"),
		Cover:     record.GetString("cover"),
		Audio:     record.GetString("audio"),
	}
}
