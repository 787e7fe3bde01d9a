package logging

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/lotchurch/congregate/core/monitoring"
	"github.com/lotchurch/congregate/core/server"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

// ErrorResponse defines standardized error response
type ErrorResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
	Operation  string `json:"operation,omitempty"`
	StatusCode int    `json:"status_code"`
	TraceID    string `json:"trace_id"`
}

// classify maps an error to the status code, type, operation and message
// the error handler answers with.
func classify(err error) (int, string, string, string) {
	statusCode := http.StatusInternalServerError
	errorType := "internal_error"
	operation := "unknown"
	message := err.Error()

	var apiErr *router.ApiError
	if errors.As(err, &apiErr) {
		return apiErr.Status, "api_error", operation, apiErr.Message
	}

	var srvErr *server.ServerError
	if errors.As(err, &srvErr) {
		errorType = srvErr.Type
		operation = srvErr.Op
		message = srvErr.Message
		if srvErr.StatusCode > 0 {
			statusCode = srvErr.StatusCode
		}
	}

	var monErr *monitoring.MonitoringError
	if errors.As(err, &monErr) {
		errorType = monErr.Type
		operation = monErr.Op
		message = monErr.Message
		if monErr.Type == monitoring.ErrTypeTimeout {
			statusCode = http.StatusGatewayTimeout
		}
	}

	return statusCode, errorType, operation, message
}

// SetupErrorHandler configures global error handling. PocketBase API errors
// pass through untouched so the admin UI keeps its error shape.
func SetupErrorHandler(app core.App, e *core.ServeEvent) {
	e.Router.BindFunc(func(c *core.RequestEvent) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		var apiErr *router.ApiError
		if errors.As(err, &apiErr) {
			return err
		}

		if c.Written() {
			ErrorWithContext(c.Request.Context(), app, "Request error after response was written", err, map[string]any{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			})
			return nil
		}

		traceID := c.Request.Header.Get(TraceIDHeader)
		statusCode, errorType, operation, message := classify(err)

		ErrorWithContext(c.Request.Context(), app, "Request error", err, map[string]any{
			"trace_id":    traceID,
			"error_type":  errorType,
			"operation":   operation,
			"status_code": statusCode,
			"path":        c.Request.URL.Path,
			"method":      c.Request.Method,
		})

		return c.JSON(statusCode, ErrorResponse{
			Status:     "error",
			Message:    message,
			Type:       errorType,
			Operation:  operation,
			StatusCode: statusCode,
			TraceID:    traceID,
		})
	})
}

// RecoverFromPanic recovers from panics and returns a 500 response
func RecoverFromPanic(app core.App, c *core.RequestEvent) {
	if r := recover(); r != nil {
		traceID := c.Request.Header.Get(TraceIDHeader)

		app.Logger().Error("Panic recovered",
			"event", "panic",
			"trace_id", traceID,
			"error", r,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"stack", string(debug.Stack()),
		)

		if c.Written() {
			return
		}

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Status:     "error",
			Message:    "Internal server error",
			Type:       "panic",
			Operation:  "request_handler",
			StatusCode: http.StatusInternalServerError,
			TraceID:    traceID,
		})
	}
}
