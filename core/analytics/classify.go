package analytics

import (
	"regexp"
)

var botPattern = regexp.MustCompile(`(?i)bot|crawl|spider|slurp|bingpreview|crawler|facebookexternalhit|whatsapp|telegram|curl|python-requests|fetch|monitoring|headless|lighthouse|pagespeed|prerender|pingdom|go-http-client|wget`)

// IsBot reports whether the user agent looks automated.
func IsBot(userAgent string) bool {
	return botPattern.MatchString(userAgent)
}

// Rule attributes user agents matching Pattern to Bucket.
type Rule struct {
	Bucket  string
	Pattern *regexp.Regexp
}

// Classifier partitions user agents into buckets.
// Rules are tried in order and the first match wins; anything unmatched lands in Residual.
// Labels fixes the order buckets are reported in, independent of evaluation order.
type Classifier struct {
	Name     string
	Labels   []string
	Rules    []Rule
	Residual string
}

// Classify returns the bucket for a single user agent.
func (c Classifier) Classify(userAgent string) string {
	for _, rule := range c.Rules {
		if rule.Pattern.MatchString(userAgent) {
			return rule.Bucket
		}
	}
	return c.Residual
}

// Shares is a bucketed distribution. Values line up with Labels and sum to Total.
type Shares struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
	Total  int      `json:"total"`
}

// Tally folds per user agent counts into the classifier's buckets.
func (c Classifier) Tally(counts []Count) Shares {
	index := make(map[string]int, len(c.Labels))
	for i, label := range c.Labels {
		index[label] = i
	}

	shares := Shares{
		Labels: append([]string(nil), c.Labels...),
		Values: make([]int, len(c.Labels)),
	}
	for _, row := range counts {
		shares.Values[index[c.Classify(row.Value)]] += row.Count
		shares.Total += row.Count
	}
	return shares
}

func rule(bucket, pattern string) Rule {
	return Rule{Bucket: bucket, Pattern: regexp.MustCompile(`(?i)` + pattern)}
}

// Devices buckets by form factor. Tablets are checked first since tablet
// user agents frequently carry mobile markers as well.
var Devices = Classifier{
	Name:   "devices",
	Labels: []string{"Mobile", "Tablet", "Desktop", "Other"},
	Rules: []Rule{
		rule("Tablet", `ipad|tablet`),
		rule("Mobile", `mobile|iphone|android`),
		rule("Desktop", `windows|macintosh|linux`),
	},
	Residual: "Other",
}

// OperatingSystems buckets by platform. Android and iOS agents also mention
// Linux and Mac OS X respectively, so they are matched before the desktop systems.
var OperatingSystems = Classifier{
	Name:   "os",
	Labels: []string{"Android", "iOS", "Windows", "macOS", "Linux", "Other"},
	Rules: []Rule{
		rule("Android", `android`),
		rule("iOS", `iphone|ipad|ipod|\bios\b`),
		rule("Windows", `windows nt`),
		rule("macOS", `macintosh|mac os x`),
		rule("Linux", `linux`),
	},
	Residual: "Other",
}

// Browsers buckets by browser family. Derived browsers announce their engine
// too (Edge and Opera say Chrome, Chrome says Safari), hence the order.
var Browsers = Classifier{
	Name:   "browsers",
	Labels: []string{"Chrome", "Safari", "Edge", "Firefox", "Opera", "Other"},
	Rules: []Rule{
		rule("Edge", `edg/|edge/|edga/|edgios/`),
		rule("Opera", `opera|opr/`),
		rule("Firefox", `firefox|fxios`),
		rule("Chrome", `chrome|crios|chromium`),
		rule("Safari", `safari`),
	},
	Residual: "Other",
}
