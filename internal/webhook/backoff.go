package webhook

import "time"

const backoffCeiling = 3600 * time.Second

// Backoff returns the delay before retrying after failed attempt n (0-based):
// 60s, 120s, 240s, ... clamped at one hour.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 60 * time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffCeiling {
			return backoffCeiling
		}
	}
	if d > backoffCeiling {
		return backoffCeiling
	}
	return d
}
