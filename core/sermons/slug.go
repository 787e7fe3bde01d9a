// Package sermons keeps the bookkeeping fields of sermon records (slug,
// duration, tags) and serves them as JSON.
package sermons

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxSlug is the stored slug length.
	MaxSlug = 220
	// MaxSlugAttempts bounds the numbered suffixes tried for a taken slug.
	MaxSlugAttempts = 50

	fallbackSlug = "sermon"
)

// ErrSlugExhausted is returned when every suffix up to MaxSlugAttempts is taken.
var ErrSlugExhausted = errors.New("no free slug")

var (
	slugInvalid   = regexp.MustCompile(`[^\w\s-]`)
	slugSeparator = regexp.MustCompile(`[-\s]+`)
)

// Slugify lower-cases title, folds accents to ASCII, drops punctuation and
// joins words with hyphens. An empty result becomes "sermon".
func Slugify(title string) string {
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, title)
	if err != nil {
		folded = title
	}

	ascii := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, folded)

	s := slugInvalid.ReplaceAllString(strings.ToLower(ascii), "")
	s = slugSeparator.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.Trim(s, "-_")
	if s == "" {
		return fallbackSlug
	}
	return s
}

func trimSlug(base string, suffixLen int) string {
	if limit := MaxSlug - suffixLen; len(base) > limit {
		return base[:limit]
	}
	return base
}

// UniqueSlug returns the first free slug among base, base-2 ... base-50,
// trimming base so the result fits MaxSlug. taken reports whether a
// candidate is already used.
func UniqueSlug(base string, taken func(slug string) (bool, error)) (string, error) {
	if base == "" {
		base = fallbackSlug
	}

	candidate := trimSlug(base, 0)
	for attempt := 1; attempt <= MaxSlugAttempts; attempt++ {
		if attempt > 1 {
			suffix := fmt.Sprintf("-%d", attempt)
			candidate = trimSlug(base, len(suffix)) + suffix
		}

		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for %q after %d attempts", ErrSlugExhausted, base, MaxSlugAttempts)
}

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	m, s := seconds/60, seconds%60
	h, m := m/60, m%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// TagsList splits a comma separated tag string, dropping blanks.
func TagsList(tags string) []string {
	out := []string{}
	for _, tag := range strings.Split(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
