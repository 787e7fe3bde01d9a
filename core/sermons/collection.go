package sermons

import (
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// CollectionName is the sermons collection.
const CollectionName = "sermons"

// EnsureCollection creates the sermons collection when missing.
func EnsureCollection(app core.App) error {
	existing, _ := app.FindCollectionByNameOrId(CollectionName)
	if existing != nil {
		app.Logger().Debug("Collection already exists",
			"id", existing.Id,
			"name", existing.Name)
		return nil
	}

	collection := core.NewBaseCollection(CollectionName)

	// public read, superuser writes
	collection.ListRule = new(string)
	collection.ViewRule = new(string)

	collection.Fields.Add(&core.TextField{Name: "title", Required: true, Max: 200})
	collection.Fields.Add(&core.TextField{Name: "slug", Max: MaxSlug})
	collection.Fields.Add(&core.TextField{Name: "speaker", Max: 120})
	collection.Fields.Add(&core.DateField{Name: "date"})
	collection.Fields.Add(&core.TextField{Name: "description"})
	collection.Fields.Add(&core.TextField{Name: "tags", Max: 200})
	collection.Fields.Add(&core.URLField{Name: "cover"})
	collection.Fields.Add(&core.URLField{Name: "audio"})
	collection.Fields.Add(&core.NumberField{Name: "duration_s", OnlyInt: true, Min: new(float64)})
	collection.Fields.Add(&core.AutodateField{Name: "created", OnCreate: true})
	collection.Fields.Add(&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true})

	collection.AddIndex("idx_sermons_slug", true, "slug", "")
	collection.AddIndex("idx_sermons_title", false, "title", "")
	collection.AddIndex("idx_sermons_speaker", false, "speaker", "")
	collection.AddIndex("idx_sermons_date", false, "date", "")

	if err := app.Save(collection); err != nil {
		app.Logger().Error("Failed to create collection", "name", CollectionName, "error", err)
		return err
	}

	app.Logger().Info("Created collection", "name", CollectionName)
	return nil
}

// BindHooks fills in a unique slug whenever a sermon is saved without one.
func BindHooks(app core.App) {
	assign := func(e *core.RecordEvent) error {
		if e.Record.GetString("slug") == "" {
			slug, err := assignSlug(e.App, e.Record)
			if err != nil {
				return err
			}
			e.Record.Set("slug", slug)
		}
		return e.Next()
	}

	app.OnRecordCreate(CollectionName).BindFunc(assign)
	app.OnRecordUpdate(CollectionName).BindFunc(assign)
}

func assignSlug(app core.App, record *core.Record) (string, error) {
	taken := func(slug string) (bool, error) {
		exprs := []dbx.Expression{dbx.HashExp{"slug": slug}}
		if record.Id != "" {
			exprs = append(exprs, dbx.Not(dbx.HashExp{"id": record.Id}))
		}
		n, err := app.CountRecords(CollectionName, exprs...)
		if err != nil {
			return false, fmt.Errorf("count slugs: %w", err)
		}
		return n > 0, nil
	}
	return UniqueSlug(Slugify(record.GetString("title")), taken)
}
