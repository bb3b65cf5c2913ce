// Package clock centralizes time-of-day parsing and local/UTC conversion.
//
// All conversions interpret the time-of-day on "today's date" in the relevant
// zone. DST policy: a nonexistent local time (spring-forward gap) normalizes
// forward to the post-transition wall clock; an ambiguous local time
// (fall-back repeat) resolves to the first occurrence. Both follow time.Date
// normalization semantics.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	perr "chime/internal/platform/errors"
)

// Weekday abbreviations in evaluation order, Monday first
var weekdayAbbrevs = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// AllDays is the default weekday mask covering every day
const AllDays = "Mon,Tue,Wed,Thu,Fri,Sat,Sun"

// TimeOfDay is a wall-clock time with second resolution
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// String renders the canonical HH:MM:SS form
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS with range-checked components
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, perr.Validationf("invalid time %q: want HH:MM or HH:MM:SS", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return TimeOfDay{}, perr.Validationf("invalid time %q: bad component %q", s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, perr.Validationf("invalid time %q: bad component %q", s, p)
		}
		nums[i] = n
	}
	t := TimeOfDay{Hour: nums[0], Minute: nums[1], Second: nums[2]}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return TimeOfDay{}, perr.Validationf("invalid time %q: out of range", s)
	}
	return t, nil
}

// LoadZone resolves an IANA zone name to a location
func LoadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, perr.Validationf("invalid timezone %q", name)
	}
	return loc, nil
}

// LocalToUTC interprets t on now's date in zone and returns the UTC time-of-day.
// Alarms near midnight can land on the previous or next UTC day; only the
// wall-clock component is returned
func LocalToUTC(t TimeOfDay, zone string, now time.Time) (TimeOfDay, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return TimeOfDay{}, err
	}
	local := now.In(loc)
	instant := time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, t.Second, 0, loc)
	u := instant.UTC()
	return TimeOfDay{Hour: u.Hour(), Minute: u.Minute(), Second: u.Second()}, nil
}

// UTCToLocal interprets t on now's UTC date and returns the time-of-day in zone
func UTCToLocal(t TimeOfDay, zone string, now time.Time) (TimeOfDay, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return TimeOfDay{}, err
	}
	u := now.UTC()
	instant := time.Date(u.Year(), u.Month(), u.Day(), t.Hour, t.Minute, t.Second, 0, time.UTC)
	l := instant.In(loc)
	return TimeOfDay{Hour: l.Hour(), Minute: l.Minute(), Second: l.Second()}, nil
}

// UTCInstantToday returns the full UTC instant of t on now's UTC date
func UTCInstantToday(t TimeOfDay, now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), t.Hour, t.Minute, t.Second, 0, time.UTC)
}

// WeekdayAbbrev returns the three-letter weekday label of now in zone
func WeekdayAbbrev(now time.Time, zone string) (string, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return "", err
	}
	return now.In(loc).Weekday().String()[:3], nil
}

// NormalizeDays validates and canonicalizes a comma-separated weekday mask.
// Empty input defaults to all seven days
func NormalizeDays(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return AllDays, nil
	}
	seen := make(map[string]bool, 7)
	for _, raw := range strings.Split(s, ",") {
		d := strings.TrimSpace(raw)
		if d == "" {
			continue
		}
		ok := false
		for _, w := range weekdayAbbrevs {
			if strings.EqualFold(d, w) {
				seen[w] = true
				ok = true
				break
			}
		}
		if !ok {
			return "", perr.Validationf("invalid weekday %q: want three-letter Mon..Sun", d)
		}
	}
	if len(seen) == 0 {
		return "", perr.Validationf("empty weekday mask %q", s)
	}
	out := make([]string, 0, len(seen))
	for _, w := range weekdayAbbrevs {
		if seen[w] {
			out = append(out, w)
		}
	}
	return strings.Join(out, ","), nil
}

// DayInMask reports whether day (three-letter label) is in the comma mask
func DayInMask(day, mask string) bool {
	for _, d := range strings.Split(mask, ",") {
		if strings.EqualFold(strings.TrimSpace(d), day) {
			return true
		}
	}
	return false
}
