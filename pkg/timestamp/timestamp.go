package timestamp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// Matches dates like 20240115, 2024-01-15, 2024_01_15.
	dateRegexp = regexp.MustCompile(`(\d{4})[-_]?(\d{2})[-_]?(\d{2})`)
	// Matches times like 143000, 14-30-00, 14_30_00, 14:30:00. Only applied to
	// the part of the filename after the date match so the date digits can
	// never be mistaken for a time.
	timeRegexp = regexp.MustCompile(`(\d{2})[-_:]?(\d{2})[-_:]?(\d{2})`)
)

// ParseFilename extracts an embedded calendar date, and optionally a time of
// day, from a screenshot filename. It returns the parsed timestamp, whether a
// usable time of day was present, and whether a valid date was found at all.
// Matches with out-of-range components are treated as no match.
func ParseFilename(name string) (ts time.Time, hasTime, ok bool) {
	m := dateRegexp.FindStringSubmatchIndex(name)
	if m == nil {
		return time.Time{}, false, false
	}

	year := atoi(name[m[2]:m[3]])
	month := atoi(name[m[4]:m[5]])
	day := atoi(name[m[6]:m[7]])
	if year < 2000 || year > 2099 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false, false
	}

	ts = time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)

	if tm := timeRegexp.FindStringSubmatch(name[m[1]:]); tm != nil {
		hour := atoi(tm[1])
		minute := atoi(tm[2])
		second := atoi(tm[3])
		if hour >= 0 && hour < 24 && minute >= 0 && minute < 60 && second >= 0 && second < 60 {
			ts = time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local)
			hasTime = true
		}
	}

	return ts, hasTime, true
}

// Resolve derives the absolute timestamp for a reading. A full date+time in
// the filename wins outright; a date-only filename keeps its date but takes
// the time of day from the reading's on-screen time string; a filename with
// no date falls back to the context date combined with the on-screen time.
// Unresolvable time components default to zero, so the worst case is midnight
// of the context date. Resolve never fails.
func Resolve(filename string, contextDate time.Time, readingTime string) time.Time {
	if ts, hasTime, ok := ParseFilename(filename); ok {
		if hasTime {
			return ts
		}
		return withTimeOfDay(ts, readingTime)
	}
	return withTimeOfDay(contextDate, readingTime)
}

// withTimeOfDay overwrites only the time-of-day components of base.
func withTimeOfDay(base time.Time, timeOfDay string) time.Time {
	hour, minute, second := parseTimeOfDay(timeOfDay)
	return time.Date(base.Year(), base.Month(), base.Day(), hour, minute, second, 0, base.Location())
}

// parseTimeOfDay parses an on-screen "H:MM" or "H:MM:SS" string. Components
// that are missing or out of range resolve to zero.
func parseTimeOfDay(s string) (hour, minute, second int) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, 0, 0
	}
	if h := atoi(parts[0]); h >= 0 && h < 24 {
		hour = h
	}
	if m := atoi(parts[1]); m >= 0 && m < 60 {
		minute = m
	}
	if len(parts) > 2 {
		if sec := atoi(parts[2]); sec >= 0 && sec < 60 {
			second = sec
		}
	}
	return hour, minute, second
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}
