package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Rate-limit hint bounds. Provider-suggested waits are capped so a single
// request never stalls for minutes, and a missing hint gets a modest default.
const (
	maxRetryAfterHint     = 30 * time.Second
	defaultRetryAfterHint = 10 * time.Second
)

// Keywords in the provider's 429 message that indicate a daily quota rather
// than a burst limit. The message format is not a stable contract; this list
// is pinned by tests against known example messages.
var perDayKeywords = []string{"per day", "rpd", "requests per day", "tokens per day"}

// retryAfterPattern extracts the numeric hint from messages like
// "Please try again in 20s." or "try again in 1.337s".
var retryAfterPattern = regexp.MustCompile(`try again in (\d+(?:\.\d+)?)\s*s`)

// ParseRateLimitMessage classifies a provider 429 message into a limit scope
// and a suggested wait. All knowledge of the provider's message wording lives
// here so a format change only requires updating one place.
func ParseRateLimitMessage(message string) (RateLimitScope, time.Duration) {
	lower := strings.ToLower(message)

	for _, kw := range perDayKeywords {
		if strings.Contains(lower, kw) {
			// A daily limit cannot recover within this request; the wait is
			// irrelevant but kept populated for logging.
			return ScopePerDay, defaultRetryAfterHint
		}
	}

	retryAfter := defaultRetryAfterHint
	if m := retryAfterPattern.FindStringSubmatch(lower); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
			retryAfter = time.Duration(secs * float64(time.Second))
			if retryAfter > maxRetryAfterHint {
				retryAfter = maxRetryAfterHint
			}
		}
	}

	return ScopePerMinute, retryAfter
}
