package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lotchurch/congregate/core/monitoring"
	"github.com/lotchurch/congregate/core/server"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/security"
)

type contextKey string

const (
	TraceIDHeader = "X-Trace-ID"

	// RequestIDKey carries the trace id in the request context
	RequestIDKey contextKey = "request_id"
)

// LogContext holds contextual information for logging
type LogContext struct {
	TraceID    string
	StartTime  time.Time
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	UserAgent  string
	IP         string
}

// shouldExcludeFromLogging returns true if the path should be excluded from logging
func shouldExcludeFromLogging(path string) bool {
	switch path {
	case "/service-worker.js", "/favicon.ico", "/manifest.json", "/robots.txt", "/metrics":
		return true
	}
	return false
}

// TraceID returns the trace id stored on ctx, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func contextLogger(ctx context.Context, app core.App, data map[string]any) *slog.Logger {
	logger := app.Logger()
	if id := TraceID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	for key, value := range data {
		logger = logger.With(key, value)
	}
	return logger
}

// InfoWithContext logs an info message with context data using PocketBase's logger
func InfoWithContext(ctx context.Context, app core.App, message string, data map[string]any) {
	contextLogger(ctx, app, data).Info(message)
}

// ErrorWithContext logs an error message with context data using PocketBase's logger
func ErrorWithContext(ctx context.Context, app core.App, message string, err error, data map[string]any) {
	logger := contextLogger(ctx, app, data)
	if err != nil {
		logger = logger.With("error", err.Error())
	}
	logger.Error(message)
}

// SetupLogging configures logging using PocketBase's logger
func SetupLogging(srv *server.Server) {
	app := srv.App()

	appLogger := app.Logger().With(
		"pid", os.Getpid(),
		"start_time", time.Now().Format(time.RFC3339),
	)

	appLogger.Info("Application starting up",
		"event", "app_startup",
	)

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		stats := srv.Stats().Snapshot()
		appLogger.Info("Application shutting down",
			"event", "app_shutdown",
			"is_restart", e.IsRestart,
			"uptime", time.Since(stats.StartTime).Round(time.Second).String(),
			"total_requests", stats.TotalRequests,
			"avg_request_time_ms", stats.AverageRequestTime,
		)
		return e.Next()
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		BindRequestLogging(srv, e)
		return e.Next()
	})
}

// BindRequestLogging installs the error handler, trace ids, per-path request
// stats and the request log line on the router.
func BindRequestLogging(srv *server.Server, e *core.ServeEvent) {
	app := e.App
	requestStats := srv.Requests()

	SetupErrorHandler(app, e)

	e.Router.BindFunc(func(c *core.RequestEvent) error {
		defer func() {
			RecoverFromPanic(app, c)
		}()

		traceID := security.RandomString(18)
		c.Request.Header.Set(TraceIDHeader, traceID)
		c.Response.Header().Set(TraceIDHeader, traceID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDKey, traceID))

		start := time.Now()

		err := c.Next()

		logCtx := LogContext{
			TraceID:    traceID,
			StartTime:  start,
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: statusCode(c, err),
			Duration:   time.Since(start),
			UserAgent:  c.Request.UserAgent(),
			IP:         c.RealIP(),
		}

		if shouldExcludeFromLogging(logCtx.Path) {
			return err
		}

		requestStats.TrackRequest(monitoring.RequestMetrics{
			Path:       logCtx.Path,
			Method:     logCtx.Method,
			StatusCode: logCtx.StatusCode,
			Duration:   logCtx.Duration,
			Timestamp:  logCtx.StartTime,
		})

		requestLogger := app.Logger().WithGroup("request").With(
			"trace_id", logCtx.TraceID,
			"method", logCtx.Method,
			"path", logCtx.Path,
			"status", fmt.Sprintf("%d [%s]", logCtx.StatusCode, monitoring.GetStatusString(logCtx.StatusCode)),
			"duration", monitoring.FormatDuration(logCtx.Duration),
			"ip", logCtx.IP,
			"user_agent", logCtx.UserAgent,
			"content_length", c.Request.ContentLength,
			"request_rate", requestStats.GetRequestRate(),
		)

		requestLogger.Debug("Request processed",
			"event", "http_request",
		)

		return err
	})
}

// statusCode reads the written status, falling back to the status the
// error handler will answer with when the handler failed before writing.
func statusCode(c *core.RequestEvent, err error) int {
	if status := c.Status(); status != 0 {
		return status
	}
	if err != nil {
		code, _, _, _ := classify(err)
		return code
	}
	return 200
}
