// Package deadline evaluates registration deadlines found as free-form text.
// Parsing is deliberately conservative: only a fixed, ordered list of layouts
// plus two loose fallback patterns are accepted, and anything else is treated
// as "not expired". An event whose date the parser cannot handle stays active
// forever; changing that is a product decision, not a bug fix.
package deadline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// layouts accepted for deadline text, tried in order
var layouts = []string{
	"2 Jan 2006 15:04",    // "31 Dec 2026 23:59"
	"2 January 2006 15:04", // "31 December 2026 23:59"
	"2006-01-02 15:04:05",  // "2026-12-31 23:59:00"
	"2006-01-02",           // "2026-12-31"
	"2/1/2006",             // "31/12/2026"
	"2.1.2006",             // "31.12.2026"
}

var (
	// "31 Dec 2026" or "31 December 2026", optionally followed by "23:59"
	monthNameRe = regexp.MustCompile(`(?i)(\d{1,2})\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+(\d{4})(?:\s+(\d{1,2}):(\d{2}))?`)
	// "2026-12-31", optionally followed by "23:59"
	isoRe = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})(?:\s+(\d{1,2}):(\d{2}))?`)
)

var monthNums = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Parse attempts to interpret deadline text as a point in time. A leading
// label such as "Deadline:" is stripped first. Returns false if no accepted
// layout or fallback pattern matches. All times are interpreted as UTC.
func Parse(text string) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}

	// strip leading label, e.g. "Deadline: 31 Dec 2026 23:59"
	if idx := strings.LastIndex(text, "Deadline:"); idx != -1 {
		text = text[idx+len("Deadline:"):]
	}
	text = strings.TrimSpace(text)

	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return ts, true
		}
	}

	// loose fallbacks for dates embedded in surrounding text,
	// missing time defaults to end of day
	if m := monthNameRe.FindStringSubmatch(text); m != nil {
		month, ok := monthNums[strings.ToLower(m[2])[:3]]
		if ok {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			hour, minute := 23, 59
			if m[4] != "" {
				hour, _ = strconv.Atoi(m[4])
				minute, _ = strconv.Atoi(m[5])
			}
			return time.Date(year, month, day, hour, minute, 0, 0, time.UTC), true
		}
	}

	if m := isoRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		hour, minute := 23, 59
		if m[4] != "" {
			hour, _ = strconv.Atoi(m[4])
			minute, _ = strconv.Atoi(m[5])
		}
		if month >= 1 && month <= 12 {
			return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), true
		}
	}

	return time.Time{}, false
}

// IsExpired reports whether the deadline, plus a grace buffer in days, has
// passed now. Unparsable text is never expired (fail-open): silently dropping
// an event from the feed over a formatting surprise is worse than keeping it.
func IsExpired(text string, bufferDays int, now time.Time) bool {
	ts, ok := Parse(text)
	if !ok {
		return false
	}
	return now.After(ts.Add(time.Duration(bufferDays) * 24 * time.Hour))
}
