package queue

import (
	"fmt"
	"math"
	"time"
)

const (
	minutesInDay          = 1440
	minutesInAlmostTwoDay = 2520
	minutesInMonth        = 43200
	minutesInTwoMonths    = 86400
)

// WaitTime renders how long ago arrival was relative to now, e.g. "45 minutes
// ago" or "about 2 hours ago". A zero arrival renders "Unknown".
func WaitTime(arrival, now time.Time) string {
	if arrival.IsZero() {
		return "Unknown"
	}
	if arrival.After(now) {
		return "in " + distance(now, arrival)
	}
	return distance(arrival, now) + " ago"
}

// distance follows the bucket boundaries of the date-fns formatDistance
// helper so wait times read the same as the front-end's.
func distance(earlier, later time.Time) string {
	seconds := math.Trunc(later.Sub(earlier).Seconds())
	minutes := int(roundHalfUp(seconds / 60))

	switch {
	case minutes < 2:
		if minutes == 0 {
			return "less than a minute"
		}
		return "1 minute"
	case minutes < 45:
		return fmt.Sprintf("%d minutes", minutes)
	case minutes < 90:
		return "about 1 hour"
	case minutes < minutesInDay:
		return plural(int(roundHalfUp(float64(minutes)/60)), "about 1 hour", "about %d hours")
	case minutes < minutesInAlmostTwoDay:
		return "1 day"
	case minutes < minutesInMonth:
		return plural(int(roundHalfUp(float64(minutes)/minutesInDay)), "1 day", "%d days")
	case minutes < minutesInTwoMonths:
		return plural(int(roundHalfUp(float64(minutes)/minutesInMonth)), "about 1 month", "about %d months")
	}

	months := monthsBetween(earlier, later)
	if months < 12 {
		return plural(int(roundHalfUp(float64(minutes)/minutesInMonth)), "1 month", "%d months")
	}
	years := months / 12
	switch rem := months % 12; {
	case rem < 3:
		return plural(years, "about 1 year", "about %d years")
	case rem < 9:
		return plural(years, "over 1 year", "over %d years")
	default:
		return plural(years+1, "almost 1 year", "almost %d years")
	}
}

// monthsBetween counts whole calendar months from earlier to later.
func monthsBetween(earlier, later time.Time) int {
	months := (later.Year()-earlier.Year())*12 + int(later.Month()-earlier.Month())
	if months > 0 && later.AddDate(0, -months, 0).Before(earlier) {
		months--
	}
	return months
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return fmt.Sprintf(many, n)
}
