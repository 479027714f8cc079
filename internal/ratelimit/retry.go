package ratelimit

import (
	"regexp"
	"strconv"
	"time"
)

// FallbackRetryDelay is the default terminal wait when a 429 body carries no
// parseable retry hint.
const FallbackRetryDelay = 60 * time.Second

// retryPattern tolerates both "Xm Y.Ys" and "Y.Ys" forms, e.g.
// "Please try again in 1m30.5s" or "Please try again in 7.66s".
var retryPattern = regexp.MustCompile(`(?:(\d+)m)?(\d+(?:\.\d+)?)s`)

// RetryHint extracts the wait duration from a provider rate-limit error
// message. It returns false when the message carries no parseable hint;
// callers pick their own fallback wait.
func RetryHint(message string) (time.Duration, bool) {
	return parseRetryText(message)
}

func parseRetryText(s string) (time.Duration, bool) {
	m := retryPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	var total float64
	if m[1] != "" {
		minutes, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		total += float64(minutes) * 60
	}

	seconds, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, false
	}
	total += seconds

	if total <= 0 {
		return 0, false
	}
	return time.Duration(total * float64(time.Second)), true
}
