package textnorm

import (
	"regexp"
	"strconv"
	"time"
)

// Matches 24.03.15, 2024.03.15, 2024-03-15 and 2024 03 15 style release dates.
var dateRegex = regexp.MustCompile(`\b(\d{4}|\d{2})[._\- ](\d{2})[._\- ](\d{2})\b`)

// ExtractDate finds the first calendar date embedded in a release title.
func ExtractDate(title string) (time.Time, bool) {
	for _, m := range dateRegex.FindAllStringSubmatch(title, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if len(m[1]) == 2 {
			year += 2000
		}
		if d, ok := makeDate(year, month, day); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// SameDay reports whether both dates are set and fall on the same calendar day.
func SameDay(a, b *time.Time) bool {
	if a == nil || b == nil || a.IsZero() || b.IsZero() {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func makeDate(year, month, day int) (time.Time, bool) {
	if year < 1970 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
