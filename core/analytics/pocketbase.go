package analytics

import (
	"errors"
	"net/http"

	"github.com/lotchurch/congregate/internal/metrics"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

// Bind registers the visit middleware on the PocketBase router.
func (t *Tracker) Bind(se *core.ServeEvent) {
	se.Router.BindFunc(t.handle)
}

func (t *Tracker) handle(e *core.RequestEvent) error {
	pending := t.Begin(e.Response, e.Request)
	if pending == nil {
		return e.Next()
	}

	err := e.Next()

	pending.Finish(e.Request.Context(), responseStatus(e, err), authID(e))

	return err
}

// responseStatus is the status the client sees. Handler errors are rendered
// by the router after middlewares unwind, so they are mapped here.
func responseStatus(e *core.RequestEvent, err error) int {
	if err != nil && !e.Written() {
		var apiErr *router.ApiError
		if errors.As(err, &apiErr) {
			return apiErr.Status
		}
		return http.StatusInternalServerError
	}
	if status := e.Status(); status > 0 {
		return status
	}
	return http.StatusOK
}

func authID(e *core.RequestEvent) string {
	if e.Auth == nil {
		return ""
	}
	return e.Auth.Id
}

// HandleEvent serves POST /event/.
func (t *Tracker) HandleEvent(e *core.RequestEvent) error {
	if e.Request.Method != http.MethodPost {
		return e.String(http.StatusBadRequest, "POST only")
	}

	payload, err := ParseEventPayload(e.Request.Body)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("", metrics.ResultRejected).Inc()
		return e.String(http.StatusBadRequest, "Missing event")
	}

	t.Collect(e.Request.Context(), e.Request, payload, authID(e))

	return e.NoContent(http.StatusNoContent)
}

// EventHandler is the standard library form of HandleEvent.
func (t *Tracker) EventHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusBadRequest)
			return
		}

		payload, err := ParseEventPayload(r.Body)
		if err != nil {
			metrics.EventsTotal.WithLabelValues("", metrics.ResultRejected).Inc()
			http.Error(w, "Missing event", http.StatusBadRequest)
			return
		}

		t.Collect(r.Context(), r, payload, "")
		w.WriteHeader(http.StatusNoContent)
	})
}
