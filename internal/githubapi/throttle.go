package githubapi

import (
	"net/http"
	"strconv"
	"time"
)

// RateInfo carries the rate-limit state parsed from one GitHub response.
type RateInfo struct {
	Remaining        int
	ResetUnix        int64
	RetryAfter       time.Duration
	SecondaryLimited bool
}

// ThrottleDecision tells the request client whether the next call may
// proceed and, if not, how long to pause first.
type ThrottleDecision struct {
	Allow   bool
	WaitFor time.Duration
	Reason  string
}

// ThrottlePolicy evaluates throttle decisions from parsed rate-limit state.
type ThrottlePolicy struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	Now                   func() time.Time
}

// ParseRateInfo extracts rate-limit and retry state from response headers.
// GitHub signals secondary limits with 429 or with 403 plus Retry-After.
func ParseRateInfo(header http.Header, statusCode int) RateInfo {
	info := RateInfo{
		Remaining: headerInt(header, "X-RateLimit-Remaining"),
		ResetUnix: headerInt64(header, "X-RateLimit-Reset"),
	}

	if seconds := headerInt(header, "Retry-After"); seconds > 0 {
		info.RetryAfter = time.Duration(seconds) * time.Second
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		info.SecondaryLimited = true
	case statusCode == http.StatusForbidden && info.RetryAfter > 0:
		info.SecondaryLimited = true
	}

	return info
}

// Evaluate decides whether calls may continue or should pause.
func (p ThrottlePolicy) Evaluate(info RateInfo) ThrottleDecision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if info.SecondaryLimited {
		waitFor := max(p.SecondaryLimitBackoff, info.RetryAfter)
		return ThrottleDecision{Allow: false, WaitFor: waitFor, Reason: "secondary_limit"}
	}

	if info.Remaining >= p.MinRemainingThreshold {
		return ThrottleDecision{Allow: true, Reason: "within_budget"}
	}

	resetAt := time.Unix(info.ResetUnix, 0)
	if !resetAt.After(now) {
		return ThrottleDecision{Allow: true, Reason: "reset_elapsed"}
	}

	return ThrottleDecision{
		Allow:   false,
		WaitFor: resetAt.Sub(now) + p.MinResetBuffer,
		Reason:  "remaining_below_threshold",
	}
}

func headerInt(header http.Header, key string) int {
	parsed, err := strconv.Atoi(header.Get(key))
	if err != nil {
		return 0
	}
	return parsed
}

func headerInt64(header http.Header, key string) int64 {
	parsed, err := strconv.ParseInt(header.Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
