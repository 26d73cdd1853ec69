package cognition

import (
	"math/rand"
	"time"
)

// DefaultJitter spreads cycles by ±20% of the interval.
const DefaultJitter = 0.2

// JitteredInterval returns base scaled by a random factor in [1-jitter, 1+jitter].
func JitteredInterval(base time.Duration, jitter float64, rnd *rand.Rand) time.Duration {
	if base <= 0 || jitter <= 0 {
		return base
	}
	if jitter > 1 {
		jitter = 1
	}
	factor := 1 - jitter + 2*jitter*rnd.Float64()
	return time.Duration(float64(base) * factor)
}

// ActiveHours is a daily window in which the agent posts. The window may wrap midnight.
type ActiveHours struct {
	Start    int // hour of day, inclusive
	End      int // hour of day, exclusive
	Location *time.Location
}

// DefaultActiveHours runs from 08:00 through the 02:00 hour, local time.
func DefaultActiveHours() ActiveHours {
	return ActiveHours{Start: 8, End: 3, Location: time.Local}
}

// Contains reports whether t falls inside the window. Equal bounds mean always active.
func (a ActiveHours) Contains(t time.Time) bool {
	if a.Start == a.End {
		return true
	}
	if a.Location != nil {
		t = t.In(a.Location)
	}
	h := t.Hour()
	if a.Start < a.End {
		return h >= a.Start && h < a.End
	}
	return h >= a.Start || h < a.End
}
