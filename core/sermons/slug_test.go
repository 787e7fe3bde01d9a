package sermons

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	testCases := []struct {
		title string
		want  string
	}{
		{"Grace Upon Grace", "grace-upon-grace"},
		{"  Faith, Hope & Love!  ", "faith-hope-love"},
		{"Él es Fiel", "el-es-fiel"},
		{"Crème brûlée -- Sunday", "creme-brulee-sunday"},
		{"under_score", "under_score"},
		{"Psalm 23:1-6", "psalm-231-6"},
		{"???", "sermon"},
		{"日曜礼拝", "sermon"},
		{"", "sermon"},
	}

	for _, tc := range testCases {
		t.Run(tc.title, func(t *testing.T) {
			assert.Equal(t, tc.want, Slugify(tc.title))
		})
	}
}

func TestUniqueSlugFirstFree(t *testing.T) {
	used := map[string]bool{"grace": true, "grace-2": true}

	slug, err := UniqueSlug("grace", func(s string) (bool, error) { return used[s], nil })
	require.NoError(t, err)
	assert.Equal(t, "grace-3", slug)
}

func TestUniqueSlugTrimsToLimit(t *testing.T) {
	base := strings.Repeat("a", 300)

	slug, err := UniqueSlug(base, func(string) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Len(t, slug, MaxSlug)

	slug, err = UniqueSlug(base, func(s string) (bool, error) { return len(s) == MaxSlug && !strings.Contains(s, "-"), nil })
	require.NoError(t, err)
	assert.Len(t, slug, MaxSlug)
	assert.True(t, strings.HasSuffix(slug, "-2"))
}

func TestUniqueSlugExhausted(t *testing.T) {
	calls := 0
	_, err := UniqueSlug("grace", func(string) (bool, error) {
		calls++
		return true, nil
	})
	assert.ErrorIs(t, err, ErrSlugExhausted)
	assert.Equal(t, MaxSlugAttempts, calls)
}

func TestUniqueSlugPropagatesErrors(t *testing.T) {
	boom := errors.New("database is locked")
	_, err := UniqueSlug("grace", func(string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "0:00", FormatDuration(-5))
	assert.Equal(t, "0:59", FormatDuration(59))
	assert.Equal(t, "42:07", FormatDuration(42*60+7))
	assert.Equal(t, "1:00:00", FormatDuration(3600))
	assert.Equal(t, "1:05:09", FormatDuration(3600+5*60+9))
}

func TestTagsList(t *testing.T) {
	assert.Equal(t, []string{"grace", "faith"}, TagsList(" grace, ,faith ,"))
	assert.Equal(t, []string{}, TagsList(""))
}
