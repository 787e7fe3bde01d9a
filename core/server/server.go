package server

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/lotchurch/congregate/core/monitoring"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultPublicDir = "./pb_public"

// Server wraps PocketBase with request stats, health and metrics endpoints
type Server struct {
	app      *pocketbase.PocketBase
	stats    *ServerStats
	requests *monitoring.RequestStats
	options  *options
}

// ServerStats tracks server metrics
type ServerStats struct {
	StartTime          time.Time
	TotalRequests      atomic.Uint64
	ActiveConnections  atomic.Int32
	LastRequestTime    atomic.Int64 // Unix timestamp
	TotalErrors        atomic.Uint64
	AverageRequestTime atomic.Int64 // nanoseconds
}

// StatsSnapshot is a point-in-time copy of ServerStats
type StatsSnapshot struct {
	StartTime          time.Time `json:"start_time"`
	UptimeSecs         int64     `json:"uptime_secs"`
	TotalRequests      uint64    `json:"total_requests"`
	ActiveConnections  int32     `json:"active_connections"`
	LastRequestTime    int64     `json:"last_request_time"`
	TotalErrors        uint64    `json:"total_errors"`
	AverageRequestTime float64   `json:"average_request_time_ms"`
}

// Snapshot copies the counters
func (st *ServerStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		StartTime:          st.StartTime,
		UptimeSecs:         int64(time.Since(st.StartTime).Seconds()),
		TotalRequests:      st.TotalRequests.Load(),
		ActiveConnections:  st.ActiveConnections.Load(),
		LastRequestTime:    st.LastRequestTime.Load(),
		TotalErrors:        st.TotalErrors.Load(),
		AverageRequestTime: float64(st.AverageRequestTime.Load()) / float64(time.Millisecond),
	}
}

// New creates a server instance. Options args used for precision setup - pocketbase.Config and pocketbase.Pocketbase instance injection.
func New(create_options ...Option) *Server {
	var (
		opts    *options = &options{metrics: true}
		pb_conf *pocketbase.Config
		pb_app  *pocketbase.PocketBase
	)

	for _, opt := range create_options {
		opt(opts)
	}
	if opts.config != nil {
		pb_conf = opts.config
	} else {
		pb_conf = &pocketbase.Config{
			DefaultDev: opts.developer_mode,
		}
	}

	if opts.pocketbase != nil {
		pb_app = opts.pocketbase
		if opts.developer_mode && !pb_app.App.IsDev() {
			pb_app.Logger().Warn("cannot change developer mode for pocketbase.Pocketbase, cause you already pass instance of *pocketbase.Pocketbase with unchecked dev mode flag")
		}
	} else {
		pb_app = pocketbase.NewWithConfig(*pb_conf)
	}

	return &Server{
		app:      pb_app,
		options:  opts,
		requests: monitoring.NewRequestStats(),
		stats: &ServerStats{
			StartTime: time.Now(),
		},
	}
}

// Start initializes and starts the server
func (s *Server) Start() error {
	app := s.app

	app.OnBootstrap().BindFunc(func(e *core.BootstrapEvent) error {
		app.Logger().Info("🌱 Server bootstrapping",
			"time", time.Now(),
			"pid", os.Getpid(),
		)

		if err := e.Next(); err != nil {
			return NewInternalError("bootstrap_initialization", "Failed to initialize core resources", err)
		}

		app.Logger().Info("✨ Server bootstrap complete",
			"time", time.Now(),
			"pid", os.Getpid(),
			"db_path", app.DataDir(),
		)

		return nil
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		app.Logger().Info("🚀 Server initialized",
			"start_time", s.stats.StartTime,
			"pid", os.Getpid(),
			"db_path", app.DataDir(),
		)

		s.bindRoutes(e)

		return e.Next()
	})

	app.Logger().Debug("Starting server with args", "args", app.RootCmd.Flags().Args())

	if err := app.Start(); err != nil {
		return NewInternalError("server_start", "Failed to start server", err)
	}
	return nil
}

// bindRoutes installs the stats middleware, health, metrics and static routes.
func (s *Server) bindRoutes(e *core.ServeEvent) {
	e.Router.BindFunc(s.trackRequest)

	s.RegisterHealthRoute(e)

	if s.options.metrics {
		e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
	}

	publicDirPath := s.resolvePublicDir()
	s.app.Logger().Info("Serving static files from", "path", publicDirPath)
	e.Router.GET("/{path...}", apis.Static(os.DirFS(publicDirPath), false))
}

func (s *Server) trackRequest(c *core.RequestEvent) error {
	start := time.Now()
	s.stats.ActiveConnections.Add(1)
	s.stats.TotalRequests.Add(1)

	err := c.Next()

	s.stats.ActiveConnections.Add(-1)
	s.stats.LastRequestTime.Store(time.Now().Unix())

	duration := time.Since(start).Nanoseconds()
	oldAvg := s.stats.AverageRequestTime.Load()
	totalReqs := s.stats.TotalRequests.Load()
	if totalReqs > 1 {
		newAvg := (oldAvg*(int64(totalReqs)-1) + duration) / int64(totalReqs)
		s.stats.AverageRequestTime.Store(newAvg)
	} else {
		s.stats.AverageRequestTime.Store(duration)
	}

	if err != nil {
		s.stats.TotalErrors.Add(1)
	}

	return err
}

// resolvePublicDir prefers the configured directory, then pb_public in the
// working directory, then pb_public near the executable.
func (s *Server) resolvePublicDir() string {
	if s.options.public_dir != "" {
		return s.options.public_dir
	}

	if _, err := os.Stat(defaultPublicDir); err == nil {
		return defaultPublicDir
	}

	exePath, err := os.Executable()
	if err != nil {
		return defaultPublicDir
	}

	exeDir := filepath.Dir(exePath)
	for _, path := range []string{
		filepath.Join(exeDir, "pb_public"),
		filepath.Join(exeDir, "../pb_public"),
		filepath.Join(exeDir, "../../pb_public"),
	} {
		if _, err := os.Stat(path); err == nil {
			s.app.Logger().Info("Using pb_public from absolute path", "path", path)
			return path
		}
	}
	return defaultPublicDir
}

// App returns the underlying PocketBase instance
func (s *Server) App() *pocketbase.PocketBase {
	return s.app
}

// Stats returns the current server statistics
func (s *Server) Stats() *ServerStats {
	return s.stats
}

// Requests returns the per-path request statistics fed by the request logger
func (s *Server) Requests() *monitoring.RequestStats {
	return s.requests
}
