package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounterVecsAcceptLabels(t *testing.T) {
	before := testutil.ToFloat64(VisitsTotal.WithLabelValues(ResultRecorded))
	VisitsTotal.WithLabelValues(ResultRecorded).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(VisitsTotal.WithLabelValues(ResultRecorded)))

	before = testutil.ToFloat64(EventsTotal.WithLabelValues("play", ResultRecorded))
	EventsTotal.WithLabelValues("play", ResultRecorded).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(EventsTotal.WithLabelValues("play", ResultRecorded)))
}

func TestGeoLookupResults(t *testing.T) {
	for _, result := range []string{ResultHit, ResultMiss, ResultDisabled, ResultError} {
		before := testutil.ToFloat64(GeoLookupsTotal.WithLabelValues(result))
		GeoLookupsTotal.WithLabelValues(result).Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(GeoLookupsTotal.WithLabelValues(result)), result)
	}
}
