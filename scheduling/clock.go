package scheduling

import (
	"fmt"
	"time"
)

const (
	clockLayout = "15:04"
	dateLayout  = "2006-01-02"
	endOfDay    = 24 * 60 * 60
)

// parseClock turns "HH:MM" into seconds since midnight. "24:00" is accepted
// as the end of the day.
func parseClock(s string) (int, error) {
	if s == "24:00" {
		return endOfDay, nil
	}
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, use HH:MM", s)
	}
	return t.Hour()*3600 + t.Minute()*60, nil
}

func formatClock(seconds int) string {
	if seconds >= endOfDay {
		return "24:00"
	}
	return fmt.Sprintf("%02d:%02d", seconds/3600, seconds%3600/60)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// secondsOfDay measures t from the local midnight of day, so a time on the
// following day reads as more than 24h.
func secondsOfDay(day, t time.Time) int {
	days := int(midnight(t).Sub(midnight(day)).Hours()+12) / 24
	return days*endOfDay + t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// at returns the instant on the local date of day at the given clock time.
func at(day time.Time, seconds int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, seconds, 0, day.Location())
}
