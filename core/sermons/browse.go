package sermons

import (
	"math/rand/v2"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const (
	// PageSize is the number of sermons per list page.
	PageSize = 12

	// TagCloudLimit caps both tag lists of the sidebar summary.
	TagCloudLimit = 18
	// RecentWindow is how many of the newest sermons feed recent_tags.
	RecentWindow = 40
	// PickPool is how many of the newest sermons the random picks come from.
	PickPool = 100
	// Picks is the number of random picks.
	Picks = 5

	pickTextLimit = 15
)

// ListItem is one sermon card on a list page.
type ListItem struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Speaker     string   `json:"speaker"`
	DateDisplay string   `json:"date_display"`
	DurationHM  string   `json:"duration_hm"`
	Tags        []string `json:"tags"`
	Cover       string   `json:"cover"`
	AbsoluteURL string   `json:"absolute_url"`
}

// ListPage is the response of the list endpoint. The filters are echoed back
// as they were applied.
type ListPage struct {
	Items   []ListItem `json:"items"`
	Page    int        `json:"page"`
	Pages   int        `json:"pages"`
	HasNext bool       `json:"has_next"`
	HasPrev bool       `json:"has_prev"`
	Q       string     `json:"q"`
	Tag     string     `json:"tag"`
	Year    string     `json:"year"`
	Speaker string     `json:"speaker"`
}

// TagCount is a lower-cased tag with its number of sermons.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Pick is a shortened sermon card for the sidebar.
type Pick struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Speaker     string `json:"speaker"`
	DateDisplay string `json:"date_display"`
	DurationHM  string `json:"duration_hm"`
	Cover       string `json:"cover"`
}

// SidebarSummary is the response of the summary endpoint.
type SidebarSummary struct {
	TopTags     []TagCount `json:"top_tags"`
	RecentTags  []TagCount `json:"recent_tags"`
	RandomItems []Pick     `json:"random_items"`
}

// ListFilters narrows the sermon list.
type ListFilters struct {
	Q       string
	Tag     string
	Year    string
	Speaker string
}

// ParseListFilters reads the list filters from a query string. A leading "#"
// on the tag is dropped and a year that is not all digits is ignored.
func ParseListFilters(get func(string) string) ListFilters {
	return ListFilters{
		Q:       strings.TrimSpace(get("q")),
		Tag:     strings.TrimLeft(strings.TrimSpace(get("tag")), "#"),
		Year:    strings.TrimSpace(get("year")),
		Speaker: strings.TrimSpace(get("speaker")),
	}
}

// Tokens splits the search text into words. Each word has to match.
func (f ListFilters) Tokens() []string {
	return strings.Fields(strings.ReplaceAll(f.Q, "#", " "))
}

func (f ListFilters) expressions() []dbx.Expression {
	exprs := []dbx.Expression{}
	for _, token := range f.Tokens() {
		exprs = append(exprs, dbx.Or(
			dbx.Like("title", token),
			dbx.Like("speaker", token),
			dbx.Like("tags", token),
			dbx.Like("description", token),
		))
	}
	if f.Tag != "" {
		exprs = append(exprs, dbx.Like("tags", f.Tag))
	}
	if isYear(f.Year) {
		exprs = append(exprs, dbx.Like("date", f.Year+"-").Match(false, true))
	}
	if f.Speaker != "" {
		exprs = append(exprs, dbx.Like("speaker", f.Speaker))
	}
	return exprs
}

func isYear(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PageBounds clamps requested into [1, pages] and returns the page count for
// total rows. An empty result still has one page.
func PageBounds(requested, total int) (page, pages int) {
	pages = (total + PageSize - 1) / PageSize
	if pages < 1 {
		pages = 1
	}
	page = requested
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	return page, pages
}

func handleList(e *core.RequestEvent) error {
	query := e.Request.URL.Query()
	filters := ParseListFilters(query.Get)
	exprs := filters.expressions()

	requested, err := strconv.Atoi(query.Get("page"))
	if err != nil {
		requested = 1
	}

	total, err := e.App.CountRecords(CollectionName, exprs...)
	if err != nil {
		return e.InternalServerError("Failed to list sermons.", err)
	}
	page, pages := PageBounds(requested, int(total))

	q := e.App.RecordQuery(CollectionName).
		OrderBy("date DESC", "created DESC").
		Offset(int64((page - 1) * PageSize)).
		Limit(PageSize)
	for _, expr := range exprs {
		q.AndWhere(expr)
	}

	records := []*core.Record{}
	if err := q.All(&records); err != nil {
		return e.InternalServerError("Failed to list sermons.", err)
	}

	items := make([]ListItem, 0, len(records))
	for _, r := range records {
		slug := r.GetString("slug")
		items = append(items, ListItem{
			Slug:        slug,
			Title:       r.GetString("title"),
			Speaker:     r.GetString("speaker"),
			DateDisplay: displayDate(r),
			DurationHM:  FormatDuration(r.GetInt("duration_s")),
			Tags:        TagsList(r.GetString("tags")),
			Cover:       r.GetString("cover"),
			AbsoluteURL: absoluteURL(e, slug),
		})
	}

	return e.JSON(http.StatusOK, ListPage{
		Items:   items,
		Page:    page,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
		Q:       filters.Q,
		Tag:     filters.Tag,
		Year:    filters.Year,
		Speaker: filters.Speaker,
	})
}

// CountTags tallies lower-cased tags across rows of comma separated tags,
// most used first. Ties keep first-seen order.
func CountTags(rows []string, limit int) []TagCount {
	index := map[string]int{}
	out := []TagCount{}
	for _, row := range rows {
		for _, tag := range TagsList(row) {
			tag = strings.ToLower(tag)
			if i, ok := index[tag]; ok {
				out[i].Count++
				continue
			}
			index[tag] = len(out)
			out = append(out, TagCount{Name: tag, Count: 1})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func handleSummary(e *core.RequestEvent) error {
	var all []string
	err := e.App.DB().Select("tags").From(CollectionName).Column(&all)
	if err != nil {
		return e.InternalServerError("Failed to summarize sermons.", err)
	}

	var recent []string
	err = e.App.DB().Select("tags").From(CollectionName).
		OrderBy("date DESC", "created DESC").
		Limit(RecentWindow).
		Column(&recent)
	if err != nil {
		return e.InternalServerError("Failed to summarize sermons.", err)
	}

	pool := []*core.Record{}
	err = e.App.RecordQuery(CollectionName).
		OrderBy("date DESC", "created DESC").
		Limit(PickPool).
		All(&pool)
	if err != nil {
		return e.InternalServerError("Failed to summarize sermons.", err)
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > Picks {
		pool = pool[:Picks]
	}

	picks := make([]Pick, 0, len(pool))
	for _, r := range pool {
		picks = append(picks, Pick{
			Slug:        r.GetString("slug"),
			Title:       clip(r.GetString("title"), pickTextLimit),
			Speaker:     clip(r.GetString("speaker"), pickTextLimit),
			DateDisplay: displayDate(r),
			DurationHM:  FormatDuration(r.GetInt("duration_s")),
			Cover:       r.GetString("cover"),
		})
	}

	return e.JSON(http.StatusOK, SidebarSummary{
		TopTags:     CountTags(all, TagCloudLimit),
		RecentTags:  CountTags(recent, TagCloudLimit),
		RandomItems: picks,
	})
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
