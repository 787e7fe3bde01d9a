package sermons

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSermons(t *testing.T) *tests.TestApp {
	t.Helper()

	testApp, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(testApp.Cleanup)

	require.NoError(t, EnsureCollection(testApp))
	BindHooks(testApp)
	return testApp
}

func createSermon(t *testing.T, app core.App, fields map[string]any) *core.Record {
	t.Helper()

	collection, err := app.FindCollectionByNameOrId(CollectionName)
	require.NoError(t, err)

	record := core.NewRecord(collection)
	record.Load(fields)
	require.NoError(t, app.Save(record))
	return record
}

func newSermonServer(t *testing.T, app core.App) http.Handler {
	t.Helper()

	r, err := apis.NewRouter(app)
	require.NoError(t, err)

	RegisterRoutes(&core.ServeEvent{App: app, Router: r})

	mux, err := r.BuildMux()
	require.NoError(t, err)
	return mux
}

func TestEnsureCollectionIdempotent(t *testing.T) {
	testApp := setupSermons(t)
	require.NoError(t, EnsureCollection(testApp))

	collection, err := testApp.FindCollectionByNameOrId(CollectionName)
	require.NoError(t, err)
	assert.NotNil(t, collection.Fields.GetByName("duration_s"))
	assert.NotNil(t, collection.ViewRule)
}

func TestSlugAssignedOnCreate(t *testing.T) {
	testApp := setupSermons(t)

	first := createSermon(t, testApp, map[string]any{"title": "Grace Upon Grace"})
	second := createSermon(t, testApp, map[string]any{"title": "Grace upon grace!"})
	third := createSermon(t, testApp, map[string]any{"title": "Custom", "slug": "kept-as-is"})
	untitled := createSermon(t, testApp, map[string]any{"title": "???"})

	assert.Equal(t, "grace-upon-grace", first.GetString("slug"))
	assert.Equal(t, "grace-upon-grace-2", second.GetString("slug"))
	assert.Equal(t, "kept-as-is", third.GetString("slug"))
	assert.Equal(t, "sermon", untitled.GetString("slug"))
}

func TestSlugRestoredOnUpdate(t *testing.T) {
	testApp := setupSermons(t)

	record := createSermon(t, testApp, map[string]any{"title": "Living Water"})
	record.Set("slug", "")
	require.NoError(t, testApp.Save(record))

	// the record itself does not count as a collision
	assert.Equal(t, "living-water", record.GetString("slug"))
}

func TestDetailEndpoint(t *testing.T) {
	testApp := setupSermons(t)
	createSermon(t, testApp, map[string]any{
		"title":       "The Good Shepherd",
		"speaker":     "Pastor Amani",
		"date":        "2026-03-08 00:00:00.000Z",
		"tags":        "psalms, comfort,",
		"duration_s":  3725,
		"description": "Psalm 23",
		"audio":       "https://cdn.example.org/audio/shepherd.mp3",
	})

	h := newSermonServer(t, testApp)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sermons/the-good-shepherd", nil)
	req.Host = "church.example"
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got Detail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "The Good Shepherd", got.Title)
	assert.Equal(t, "Pastor Amani", got.Speaker)
	assert.Equal(t, 3725, got.DurationS)
	assert.Equal(t, "1:02:05", got.DurationHM)
	assert.Equal(t, "Mar 8, 2026", got.DateDisplay)
	assert.Equal(t, []string{"psalms", "comfort"}, got.Tags)
	assert.Equal(t, "http://church.example/stream/past/the-good-shepherd/", got.AbsoluteURL)
}

func TestDetailNotFound(t *testing.T) {
	testApp := setupSermons(t)
	h := newSermonServer(t, testApp)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sermons/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	testApp := setupSermons(t)
	createSermon(t, testApp, map[string]any{"title": "Faith that Moves", "speaker": "Grace Wanjiru", "date": "2026-01-04 00:00:00.000Z"})
	createSermon(t, testApp, map[string]any{"title": "Hope Renewed", "speaker": "John Otieno", "tags": "hope, advent", "date": "2026-01-11 00:00:00.000Z"})
	createSermon(t, testApp, map[string]any{"title": "Amazing Grace", "speaker": "John Otieno", "date": "2026-01-18 00:00:00.000Z"})

	h := newSermonServer(t, testApp)

	search := func(target string) []Summary {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Results []Summary `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Results
	}

	all := search("/api/sermons/")
	require.Len(t, all, 3)
	assert.Equal(t, "amazing-grace", all[0].Slug)
	assert.Equal(t, "2026-01-18", all[0].Date)

	grace := search("/api/sermons/?q=grace")
	require.Len(t, grace, 2)
	assert.Equal(t, "Amazing Grace", grace[0].Title)
	assert.Equal(t, "Faith that Moves", grace[1].Title)

	advent := search("/api/sermons/?q=ADVENT")
	require.Len(t, advent, 1)
	assert.Equal(t, "hope-renewed", advent[0].Slug)

	assert.Empty(t, search("/api/sermons/?q=nothing"))
}
