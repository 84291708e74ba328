// Package dates normalizes the heterogeneous date inputs coming from the
// intake form into canonical ISO YYYY-MM-DD strings.
package dates

import (
	"regexp"
	"strings"
	"time"
)

var (
	isoRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	europeanRe = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
)

// Layouts tried by the generic fallback, most specific first.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// Normalize converts v to a canonical YYYY-MM-DD string. It accepts ISO dates
// unchanged, rewrites European DD.MM.YYYY input with zero padding, and falls
// back to generic parsing for anything else. The second return value is false
// when v is empty, unparseable, or not a valid calendar date. Normalize never
// panics and has no side effects.
func Normalize(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if isoRe.MatchString(v) {
		// Already canonical in shape; still reject day 32 and friends.
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return "", false
		}
		return v, true
	}
	if m := europeanRe.FindStringSubmatch(v); m != nil {
		day, month, year := pad2(m[1]), pad2(m[2]), m[3]
		iso := year + "-" + month + "-" + day
		if _, err := time.Parse("2006-01-02", iso); err != nil {
			return "", false
		}
		return iso, true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
