package jobs

import (
	"time"

	"github.com/ecocomply/compliance_backend/models"
)

// Pure calendar arithmetic shared by every reconciler. All passes classify
// through these functions so a deadline never reads RED in one report and
// AMBER in another.

const defaultTimezone = "Europe/London"

func locationFor(timezone string) *time.Location {
	if timezone == "" {
		timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// civilDate rebuilds the instant's local calendar date at UTC midnight, so
// subtracting two of them always yields whole 24h days regardless of DST.
func civilDate(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysRemaining counts calendar days from now until the target date in the
// given timezone. A target later today is 0; yesterday is -1.
func DaysRemaining(targetDate, now time.Time, loc *time.Location) int {
	diff := civilDate(targetDate, loc).Sub(civilDate(now, loc))
	return int(diff.Hours() / 24)
}

// CriticalityFor buckets days remaining. Boundaries are closed on the RED
// and AMBER side: 7 is RED, 30 is AMBER, 31 is GREEN. Negative days stay RED.
func CriticalityFor(daysRemaining int) models.ClockCriticality {
	switch {
	case daysRemaining <= 7:
		return models.ClockCriticalityRed
	case daysRemaining <= 30:
		return models.ClockCriticalityAmber
	default:
		return models.ClockCriticalityGreen
	}
}

func ClockStatusFor(daysRemaining int) models.ClockStatus {
	if daysRemaining < 0 {
		return models.ClockStatusOverdue
	}
	return models.ClockStatusActive
}

// Classify computes the full classification for one target date.
func Classify(targetDate, now time.Time, loc *time.Location) (int, models.ClockCriticality, models.ClockStatus) {
	d := DaysRemaining(targetDate, now, loc)
	return d, CriticalityFor(d), ClockStatusFor(d)
}

// startOfDay returns midnight today in the given timezone, the cutoff used
// by the overdue task sweep.
func startOfDay(now time.Time, loc *time.Location) time.Time {
	lt := now.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
