package phasetimer

import "time"

// Remaining returns the whole seconds left in a phase that started at
// startMillis (epoch ms) and lasts durationSec seconds, as
// max(0, floor(duration - elapsed)). A start time in the future counts as no
// time elapsed, so the result never exceeds the phase duration.
func Remaining(now time.Time, startMillis int64, durationSec int) int {
	if durationSec <= 0 {
		return 0
	}
	elapsed := now.UnixMilli() - startMillis
	if elapsed < 0 {
		elapsed = 0
	}
	left := int64(durationSec)*1000 - elapsed
	if left <= 0 {
		return 0
	}
	return int(left / 1000)
}
