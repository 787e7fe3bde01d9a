package main

import (
	"github.com/lotchurch/congregate/core/sermons"
	"github.com/lotchurch/congregate/core/server"
	"github.com/lotchurch/congregate/core/store"

	"github.com/pocketbase/pocketbase/core"
)

// registerCollections creates the visits, events and sermons collections on
// serve and installs the sermon slug hooks.
func registerCollections(app core.App) {
	sermons.BindHooks(app)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if err := ensureCollections(e.App); err != nil {
			return err
		}
		return e.Next()
	})
}

// ensureCollections is idempotent; existing collections are left untouched.
func ensureCollections(app core.App) error {
	if err := store.EnsureCollections(app); err != nil {
		app.Logger().Error("Failed to create analytics collections", "error", err)
		return server.NewDatabaseError("ensure_collections", "failed to create analytics collections", err)
	}

	if err := sermons.EnsureCollection(app); err != nil {
		app.Logger().Error("Failed to create sermons collection", "error", err)
		return server.NewDatabaseError("ensure_collections", "failed to create sermons collection", err)
	}

	return nil
}
