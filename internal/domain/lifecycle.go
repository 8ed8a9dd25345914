package domain

import (
	"fmt"
	"time"
)

type LifecycleState string

const (
	Scheduled LifecycleState = "scheduled"
	Live      LifecycleState = "live"
	Closed    LifecycleState = "closed"
)

func ParseLifecycleState(s string) (LifecycleState, bool) {
	switch LifecycleState(s) {
	case Scheduled, Live, Closed:
		return LifecycleState(s), true
	}
	return "", false
}

// StateAt derives the lifecycle state from the fixed schedule. startsAt is inclusive,
// endsAt exclusive.
func StateAt(now, startsAt, endsAt time.Time) LifecycleState {
	switch {
	case now.Before(startsAt):
		return Scheduled
	case now.Before(endsAt):
		return Live
	default:
		return Closed
	}
}

// Remaining is the time until the next boundary, zero once closed.
func Remaining(now, startsAt, endsAt time.Time) time.Duration {
	switch StateAt(now, startsAt, endsAt) {
	case Scheduled:
		return startsAt.Sub(now)
	case Live:
		return endsAt.Sub(now)
	default:
		return 0
	}
}

func Countdown(now, startsAt, endsAt time.Time) string {
	switch StateAt(now, startsAt, endsAt) {
	case Scheduled:
		return "Starts in " + humanDuration(startsAt.Sub(now))
	case Live:
		return "Ends in " + humanDuration(endsAt.Sub(now))
	default:
		return "Ended"
	}
}

// humanDuration keeps the two most significant units.
func humanDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Truncate(time.Second)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	secs := int(d % time.Minute / time.Second)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
