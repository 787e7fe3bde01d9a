package geo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopLookup(t *testing.T) {
	loc, err := Nop{}.Lookup("8.8.8.8")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.True(t, loc.IsZero())
}

func TestLocationIsZero(t *testing.T) {
	assert.True(t, Location{}.IsZero())
	assert.False(t, Location{City: "Lagos"}.IsZero())
	assert.False(t, Location{Country: "NG"}.IsZero())
}

func TestOpenDisabled(t *testing.T) {
	resolver, closeFn, err := Open(false, "/does/not/matter.mmdb")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, resolver)
	assert.NoError(t, closeFn())
}

func TestOpenWithoutPath(t *testing.T) {
	resolver, _, err := Open(true, "")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, resolver)
}

func TestOpenMissingDatabaseFallsBack(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "GeoLite2-City.mmdb")

	resolver, closeFn, err := Open(true, missing)
	assert.Error(t, err)
	assert.IsType(t, Nop{}, resolver)
	assert.NoError(t, closeFn())

	_, err = resolver.Lookup("1.1.1.1")
	assert.ErrorIs(t, err, ErrDisabled)
}
