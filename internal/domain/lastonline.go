package domain

import (
	"fmt"
	"time"
)

const (
	LabelLastOnline      = "Last online:"
	LabelTimeSinceOnline = "Time since last online:"
	ValueNever           = "Never"
	ValueJustNow         = "Just now"
)

// Elapsed is a duration split into clock components. Hours are not capped.
type Elapsed struct {
	Hours   int64
	Minutes int64
	Seconds int64
}

// String formats the elapsed time as HH:MM:SS
func (e Elapsed) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", e.Hours, e.Minutes, e.Seconds)
}

// SinceLastOnline returns the time elapsed between lastOnline (unix seconds)
// and now. ok is false when lastOnline is unset or lies in the future.
func SinceLastOnline(lastOnline int64, now time.Time) (Elapsed, bool) {
	if lastOnline == 0 {
		return Elapsed{}, false
	}

	diff := now.Unix() - lastOnline
	if diff < 0 {
		return Elapsed{}, false
	}

	return Elapsed{
		Hours:   diff / 3600,
		Minutes: (diff % 3600) / 60,
		Seconds: diff % 60,
	}, true
}

// LastOnlineText returns the label and value the profile clock displays
func LastOnlineText(lastOnline int64, now time.Time) (label, value string) {
	if lastOnline == 0 {
		return LabelLastOnline, ValueNever
	}
	elapsed, ok := SinceLastOnline(lastOnline, now)
	if !ok {
		return LabelLastOnline, ValueJustNow
	}
	return LabelTimeSinceOnline, elapsed.String()
}
