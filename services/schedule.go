package services

import (
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	// DefaultReminderLead is how long before the end the reminder fires.
	DefaultReminderLead = 5 * time.Minute
)

// EndsAt combines an end date and clock time in loc.
func EndsAt(date, clock string, loc *time.Location) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, invalid("end date and time are required")
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, invalid("invalid end date/time %q %q", date, clock)
	}
	return t, nil
}

// ReminderAt is the single instant the reminder fires for a listing ending at end.
func ReminderAt(end time.Time, lead time.Duration) time.Time {
	return end.Add(-lead)
}

func validDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

func validClock(s string) bool {
	_, err := time.Parse(ClockLayout, s)
	return err == nil
}
