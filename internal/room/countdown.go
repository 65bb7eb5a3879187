package room

import (
	"fmt"
	"time"
)

const (
	CountdownInactive = "UNACTIVE"
	CountdownUpdating = "UPDATING"
)

// Countdown formats the time left until an agent's next scheduled day.
// urgent is set in the final hour and once the cooldown has elapsed.
func Countdown(lastActive *time.Time, now time.Time, cooldown time.Duration) (text string, urgent bool) {
	if lastActive == nil {
		return CountdownInactive, false
	}
	remaining := lastActive.Add(cooldown).Sub(now)
	if remaining <= 0 {
		return CountdownUpdating, true
	}
	ms := remaining.Milliseconds()
	h := ms / 3_600_000
	m := (ms % 3_600_000) / 60_000
	sec := (ms % 60_000) / 1_000
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec), h == 0
}
