package analytics

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// PlayEvent is the event name counted by the most played content rollup.
const PlayEvent = "play"

// OtherEvent labels collector metrics for every name outside KnownEvents.
const OtherEvent = "other"

// KnownEvents are the event names given their own metrics label. Names are
// client supplied, so everything else shares OtherEvent.
var KnownEvents = map[string]bool{
	PlayEvent: true,
}

// EventLabel maps an event name onto the bounded metrics label set.
func EventLabel(name string) string {
	if KnownEvents[name] {
		return name
	}
	return OtherEvent
}

// maxEventBody bounds the collector request body.
const maxEventBody = 16 << 10

var (
	// ErrMalformedEvent is returned for bodies that are not a JSON object.
	ErrMalformedEvent = errors.New("malformed event payload")
	// ErrMissingEvent is returned when the event name is empty after normalization.
	ErrMissingEvent = errors.New("missing event")
)

// EventPayload is the collector request body.
type EventPayload struct {
	Event string `json:"event"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// ParseEventPayload decodes and normalizes a collector body. The event name is
// trimmed and lower-cased; slug and title are kept as sent and truncated on capture.
func ParseEventPayload(body io.Reader) (EventPayload, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxEventBody))
	if err != nil {
		return EventPayload{}, ErrMalformedEvent
	}

	var payload EventPayload
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return EventPayload{}, ErrMalformedEvent
		}
	}

	payload.Event = strings.ToLower(strings.TrimSpace(payload.Event))
	if payload.Event == "" {
		return EventPayload{}, ErrMissingEvent
	}
	return payload, nil
}
