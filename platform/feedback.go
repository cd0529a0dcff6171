package platform

import (
	"net/http"
	"strconv"
	"time"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/ratelimit"
)

// FeedbackFromHeaders extracts rate-limit feedback from response
// headers. It understands, in order of preference:
//
//   - the Mastodon convention: X-RateLimit-Remaining plus
//     X-RateLimit-Reset as an RFC 3339 timestamp
//   - the IETF draft convention: RateLimit-Remaining plus
//     RateLimit-Reset as delta seconds
//   - Retry-After (delta seconds or an HTTP date), treated as an
//     exhausted window
//
// The second return is false when no convention matched.
func FeedbackFromHeaders(h http.Header) (ratelimit.Feedback, bool) {
	return feedbackFromHeadersAt(h, time.Now())
}

func feedbackFromHeadersAt(h http.Header, now time.Time) (ratelimit.Feedback, bool) {
	if fb, ok := mastodonFeedback(h); ok {
		return fb, true
	}
	if fb, ok := ietfFeedback(h, now); ok {
		return fb, true
	}
	if fb, ok := retryAfterFeedback(h, now); ok {
		return fb, true
	}
	return ratelimit.Feedback{}, false
}

// mastodonFeedback parses the X-RateLimit-* pair Mastodon and Pixelfed
// send on every API response.
func mastodonFeedback(h http.Header) (ratelimit.Feedback, bool) {
	rem := h.Get("X-RateLimit-Remaining")
	reset := h.Get("X-RateLimit-Reset")
	if rem == "" || reset == "" {
		return ratelimit.Feedback{}, false
	}

	remaining, err := strconv.Atoi(rem)
	if err != nil {
		return ratelimit.Feedback{}, false
	}
	resetAt, err := time.Parse(time.RFC3339, reset)
	if err != nil {
		return ratelimit.Feedback{}, false
	}

	return ratelimit.Feedback{Remaining: remaining, ResetAt: resetAt}, true
}

// ietfFeedback parses the draft RateLimit-* headers, where the reset is
// a delta in seconds.
func ietfFeedback(h http.Header, now time.Time) (ratelimit.Feedback, bool) {
	rem := h.Get("RateLimit-Remaining")
	reset := h.Get("RateLimit-Reset")
	if rem == "" || reset == "" {
		return ratelimit.Feedback{}, false
	}

	remaining, err := strconv.Atoi(rem)
	if err != nil {
		return ratelimit.Feedback{}, false
	}
	seconds, err := strconv.Atoi(reset)
	if err != nil || seconds < 0 {
		return ratelimit.Feedback{}, false
	}

	return ratelimit.Feedback{Remaining: remaining, ResetAt: now.Add(time.Duration(seconds) * time.Second)}, true
}

// retryAfterFeedback interprets Retry-After as a fully exhausted window
// that reopens when the delay elapses.
func retryAfterFeedback(h http.Header, now time.Time) (ratelimit.Feedback, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return ratelimit.Feedback{}, false
	}

	if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
		return ratelimit.Feedback{Remaining: 0, ResetAt: now.Add(time.Duration(seconds) * time.Second)}, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return ratelimit.Feedback{Remaining: 0, ResetAt: at}, true
	}

	return ratelimit.Feedback{}, false
}
