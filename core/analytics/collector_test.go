package analytics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventPayload(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		event   string
		wantErr error
	}{
		{"lower-cased and trimmed", `{"event": "  PLAY "}`, "play", nil},
		{"with slug and title", `{"event":"download","slug":"a","title":"B"}`, "download", nil},
		{"unknown fields ignored", `{"event":"share","extra":1}`, "share", nil},
		{"empty event", `{"event": ""}`, "", ErrMissingEvent},
		{"missing event", `{"slug": "x"}`, "", ErrMissingEvent},
		{"empty body", ``, "", ErrMissingEvent},
		{"null body", `null`, "", ErrMissingEvent},
		{"truncated json", `{"event": "play"`, "", ErrMalformedEvent},
		{"wrong type", `{"event": 5}`, "", ErrMalformedEvent},
		{"array body", `["play"]`, "", ErrMalformedEvent},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := ParseEventPayload(strings.NewReader(tc.body))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.event, payload.Event)
		})
	}
}

func TestParseEventPayloadKeepsSlugAndTitle(t *testing.T) {
	payload, err := ParseEventPayload(strings.NewReader(`{"event":"Play","slug":"sunday-service","title":"Sunday Service"}`))
	require.NoError(t, err)
	assert.Equal(t, "sunday-service", payload.Slug)
	assert.Equal(t, "Sunday Service", payload.Title)
}
