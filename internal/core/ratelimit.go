package core

import (
	"time"

	"golang.org/x/time/rate"
)

const maxSendBurst = 10

// newRateLimiter allows perMinute sends per minute with a small burst.
// A non-positive limit disables throttling.
func newRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), min(perMinute, maxSendBurst))
}
