package main

import (
	"context"
	"errors"

	"github.com/lotchurch/congregate/core/analytics"
	"github.com/lotchurch/congregate/core/geo"
	"github.com/lotchurch/congregate/core/sermons"
	"github.com/lotchurch/congregate/core/server"
	"github.com/lotchurch/congregate/core/store"
	"github.com/lotchurch/congregate/internal/cache"
	"github.com/lotchurch/congregate/internal/config"

	"github.com/pocketbase/pocketbase/core"
)

// pipeline holds the analytics components built for one serve.
type pipeline struct {
	cfg       *config.Config
	tracker   *analytics.Tracker
	dashboard *analytics.Dashboard
	cache     *cache.ResponseCache
	closeGeo  func() error
	cancel    context.CancelFunc
}

// newPipeline builds the tracker, dashboard and response cache. Geo and redis
// failures degrade to the no-op resolver and the disabled cache.
func newPipeline(app core.App, cfg *config.Config) *pipeline {
	logger := app.Logger()

	resolver, closeGeo, err := geo.Open(cfg.Analytics.GeoIP.Enabled, cfg.Analytics.GeoIP.DBPath)
	if err != nil {
		logger.Warn("Geo lookups disabled",
			"error", server.NewDependencyError("geoip_open", "failed to open geo database", err),
			"path", cfg.Analytics.GeoIP.DBPath,
		)
	}

	responseCache, err := cache.New(cfg.Redis.URL, cfg.Dashboard.CacheTTL, logger)
	if err != nil {
		logger.Warn("Dashboard cache disabled",
			"error", server.NewDependencyError("redis_connect", "failed to connect to redis", err),
		)
		responseCache, _ = cache.New("", cfg.Dashboard.CacheTTL, logger)
	}

	st := store.New(app)

	p := &pipeline{
		cfg:       cfg,
		dashboard: analytics.NewDashboard(st),
		cache:     responseCache,
		closeGeo:  closeGeo,
		cancel:    func() {},
	}
	if cfg.Analytics.Enabled {
		p.tracker = analytics.NewTracker(cfg.Analytics.Tracker(), st, resolver, logger)
	}
	return p
}

// bind mounts the ingestion middleware and every JSON endpoint.
func (p *pipeline) bind(se *core.ServeEvent) {
	if p.tracker != nil {
		p.tracker.Bind(se)

		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		go p.tracker.Sessions().Run(ctx, se.App.Logger())
	}

	analytics.RegisterRoutes(se, p.tracker, p.dashboard, analytics.RouteOptions{
		RequireAuth: p.cfg.Dashboard.RequireAuth,
		Cache:       p.cache.Handle,
	})
	sermons.RegisterRoutes(se)

	se.App.Logger().Info("Analytics pipeline ready",
		"ingestion", p.tracker != nil,
		"geo", p.cfg.Analytics.GeoIP.Enabled,
		"cache", p.cache.Enabled(),
		"dashboard_auth", p.cfg.Dashboard.RequireAuth,
	)
}

func (p *pipeline) close() error {
	p.cancel()
	return errors.Join(p.cache.Close(), p.closeGeo())
}

// registerPipeline builds the pipeline on serve and releases it on terminate.
func registerPipeline(app core.App, cfg *config.Config) {
	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		p := newPipeline(se.App, cfg)
		p.bind(se)

		app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
			if err := p.close(); err != nil {
				app.Logger().Warn("Failed to release analytics pipeline", "error", err)
			}
			return e.Next()
		})

		return se.Next()
	})
}
