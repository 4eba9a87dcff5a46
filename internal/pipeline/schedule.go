package pipeline

import (
	"strconv"
	"strings"
	"time"
)

// MatchCheckTime reports whether now falls within the tolerance window of one
// of the configured times-of-day, and which one. Sundays are skipped when
// configured, matching the warehouse's reporting calendar.
func MatchCheckTime(now time.Time, checkTimes []string, toleranceMin int, skipSunday bool) (string, bool) {
	if skipSunday && now.Weekday() == time.Sunday {
		return "", false
	}
	nowMin := now.Hour()*60 + now.Minute()
	for _, ct := range checkTimes {
		target, ok := parseClock(ct)
		if !ok {
			continue
		}
		diff := nowMin - target
		if diff < 0 {
			diff = -diff
		}
		if diff <= toleranceMin {
			return ct, true
		}
	}
	return "", false
}

// WindowAround builds the candidate time window centered on a check time for
// the current day.
func WindowAround(now time.Time, checkTime string, halfWidthMin int) *TimeWindow {
	target, ok := parseClock(checkTime)
	if !ok {
		return nil
	}
	center := time.Date(now.Year(), now.Month(), now.Day(), target/60, target%60, 0, 0, now.Location())
	return &TimeWindow{
		Start: center.Add(-time.Duration(halfWidthMin) * time.Minute),
		End:   center.Add(time.Duration(halfWidthMin) * time.Minute),
	}
}

func parseClock(value string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, false
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
