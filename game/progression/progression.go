// Package progression holds the pure XP, level and streak transitions.
// Nothing here touches storage: callers apply these functions to a user
// snapshot inside whatever transaction scope they need.
package progression

import (
	"errors"
	"math"
	"time"

	"github.com/modelquest/server/model"
)

// ErrNegativeXP is returned when an XP delta is negative. XP only grows.
var ErrNegativeXP = errors.New("progression: xp amount must be non-negative")

// LevelForXP derives the display level from total XP:
// floor(sqrt(xp/100)) + 1.
func LevelForXP(xp int) int {
	if xp < 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(xp)/100))) + 1
}

// AddXP adds amount to the user's XP and recomputes the level from the new
// total. Level is never incremented directly, so it cannot regress relative
// to XP history.
func AddXP(u *model.User, amount int) error {
	if amount < 0 {
		return ErrNegativeXP
	}
	u.XP += amount
	u.Level = LevelForXP(u.XP)
	return nil
}

// UpdateStreak advances the daily streak for activity at now.
// Same calendar day leaves the streak unchanged, a consecutive day extends
// it, a gap resets it to 1. A now earlier than the last activity (clock
// skew, backfill) is treated as same-day. last_activity is refreshed in
// every branch.
func UpdateStreak(u *model.User, now time.Time) {
	switch {
	case u.LastActivityAt == nil:
		u.CurrentStreak = 1
	default:
		switch d := calendarDays(*u.LastActivityAt, now); {
		case d == 1:
			u.CurrentStreak++
		case d > 1:
			u.CurrentStreak = 1
		}
		// d <= 0: same day (or clock moved backward), streak unchanged.
	}
	ts := now
	u.LastActivityAt = &ts
}

// calendarDays counts whole calendar days between two instants in UTC.
func calendarDays(from, to time.Time) int {
	f := from.UTC()
	t := to.UTC()
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(td.Sub(fd) / (24 * time.Hour))
}
