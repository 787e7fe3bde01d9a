package store

import (
	"github.com/lotchurch/congregate/core/analytics"

	"github.com/pocketbase/pocketbase/core"
)

// Collection names.
const (
	VisitsCollection = "visits"
	EventsCollection = "events"
)

// EnsureCollections creates the visits and events collections when missing.
func EnsureCollections(app core.App) error {
	if err := ensure(app, VisitsCollection, visitsCollection); err != nil {
		return err
	}
	return ensure(app, EventsCollection, eventsCollection)
}

func ensure(app core.App, name string, build func() *core.Collection) error {
	existing, _ := app.FindCollectionByNameOrId(name)
	if existing != nil {
		app.Logger().Debug("Collection already exists",
			"id", existing.Id,
			"name", existing.Name)
		return nil
	}

	collection := build()
	if err := app.Save(collection); err != nil {
		app.Logger().Error("Failed to create collection", "name", name, "error", err)
		return err
	}

	app.Logger().Info("Created collection", "name", name)
	return nil
}

func visitsCollection() *core.Collection {
	collection := core.NewBaseCollection(VisitsCollection)

	collection.Fields.Add(&core.DateField{Name: "ts", Required: true})
	collection.Fields.Add(&core.TextField{Name: "session_key", Max: analytics.MaxSessionKey})
	collection.Fields.Add(&core.TextField{Name: "visitor_id", Max: analytics.MaxVisitorID})
	collection.Fields.Add(&core.TextField{Name: "user"})
	collection.Fields.Add(&core.TextField{Name: "path", Max: analytics.MaxPath})
	collection.Fields.Add(&core.TextField{Name: "method", Max: analytics.MaxMethod})
	collection.Fields.Add(&core.NumberField{Name: "status_code", OnlyInt: true})
	collection.Fields.Add(&core.NumberField{Name: "response_ms", OnlyInt: true})
	collection.Fields.Add(&core.TextField{Name: "referer", Max: analytics.MaxReferer})
	collection.Fields.Add(&core.TextField{Name: "ua", Max: analytics.MaxUserAgent})
	collection.Fields.Add(&core.TextField{Name: "ip"})
	collection.Fields.Add(&core.TextField{Name: "ip_hash", Max: analytics.MaxIPHash})
	for _, name := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"} {
		collection.Fields.Add(&core.TextField{Name: name, Max: analytics.MaxUTM})
	}
	collection.Fields.Add(&core.BoolField{Name: "is_bot"})
	addGeoFields(collection)
	collection.Fields.Add(&core.AutodateField{Name: "created", OnCreate: true})

	collection.AddIndex("idx_visits_ts", false, "ts", "")
	collection.AddIndex("idx_visits_path", false, "path", "")
	collection.AddIndex("idx_visits_visitor_id", false, "visitor_id", "")
	collection.AddIndex("idx_visits_is_bot_ts", false, "is_bot, ts", "")
	collection.AddIndex("idx_visits_country", false, "country", "")

	return collection
}

func eventsCollection() *core.Collection {
	collection := core.NewBaseCollection(EventsCollection)

	collection.Fields.Add(&core.DateField{Name: "ts", Required: true})
	collection.Fields.Add(&core.TextField{Name: "session_key", Max: analytics.MaxSessionKey})
	collection.Fields.Add(&core.TextField{Name: "visitor_id", Max: analytics.MaxVisitorID})
	collection.Fields.Add(&core.TextField{Name: "user"})
	collection.Fields.Add(&core.TextField{Name: "event", Required: true, Max: analytics.MaxEventName})
	collection.Fields.Add(&core.TextField{Name: "slug", Max: analytics.MaxSlug})
	collection.Fields.Add(&core.TextField{Name: "title", Max: analytics.MaxTitle})
	collection.Fields.Add(&core.TextField{Name: "path", Max: analytics.MaxPath})
	collection.Fields.Add(&core.TextField{Name: "ua", Max: analytics.MaxUserAgent})
	collection.Fields.Add(&core.TextField{Name: "ip"})
	collection.Fields.Add(&core.TextField{Name: "ip_hash", Max: analytics.MaxIPHash})
	addGeoFields(collection)
	collection.Fields.Add(&core.AutodateField{Name: "created", OnCreate: true})

	collection.AddIndex("idx_events_ts", false, "ts", "")
	collection.AddIndex("idx_events_event", false, "event", "")
	collection.AddIndex("idx_events_slug", false, "slug", "")

	return collection
}

func addGeoFields(collection *core.Collection) {
	collection.Fields.Add(&core.TextField{Name: "country", Max: analytics.MaxCountry})
	collection.Fields.Add(&core.TextField{Name: "country_name", Max: analytics.MaxCountryName})
	collection.Fields.Add(&core.TextField{Name: "city", Max: analytics.MaxCity})
}
