package platform

import (
	"net/http"
	"testing"
	"time"
)

func headers(kv ...string) http.Header {
	h := make(http.Header)
	for i := 0; i < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestFeedbackFromHeaders_Mastodon(t *testing.T) {
	h := headers(
		"X-RateLimit-Remaining", "7",
		"X-RateLimit-Reset", "2026-03-29T12:05:00.000000Z",
	)

	fb, ok := FeedbackFromHeaders(h)
	if !ok {
		t.Fatal("expected feedback")
	}
	if fb.Remaining != 7 {
		t.Errorf("Remaining = %d, want 7", fb.Remaining)
	}
	want := time.Date(2026, 3, 29, 12, 5, 0, 0, time.UTC)
	if !fb.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", fb.ResetAt, want)
	}
}

func TestFeedbackFromHeaders_IETFDraft(t *testing.T) {
	now := time.Date(2026, 3, 29, 12, 0, 0, 0, time.UTC)
	h := headers(
		"RateLimit-Remaining", "3",
		"RateLimit-Reset", "30",
	)

	fb, ok := feedbackFromHeadersAt(h, now)
	if !ok {
		t.Fatal("expected feedback")
	}
	if fb.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3", fb.Remaining)
	}
	if want := now.Add(30 * time.Second); !fb.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", fb.ResetAt, want)
	}
}

func TestFeedbackFromHeaders_RetryAfterSeconds(t *testing.T) {
	now := time.Date(2026, 3, 29, 12, 0, 0, 0, time.UTC)
	h := headers("Retry-After", "120")

	fb, ok := feedbackFromHeadersAt(h, now)
	if !ok {
		t.Fatal("expected feedback")
	}
	if fb.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0 for Retry-After", fb.Remaining)
	}
	if want := now.Add(2 * time.Minute); !fb.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", fb.ResetAt, want)
	}
}

func TestFeedbackFromHeaders_RetryAfterHTTPDate(t *testing.T) {
	h := headers("Retry-After", "Sun, 29 Mar 2026 12:10:00 GMT")

	fb, ok := FeedbackFromHeaders(h)
	if !ok {
		t.Fatal("expected feedback")
	}
	want := time.Date(2026, 3, 29, 12, 10, 0, 0, time.UTC)
	if !fb.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", fb.ResetAt, want)
	}
}

func TestFeedbackFromHeaders_MastodonWinsOverOthers(t *testing.T) {
	h := headers(
		"X-RateLimit-Remaining", "9",
		"X-RateLimit-Reset", "2026-03-29T12:05:00Z",
		"RateLimit-Remaining", "1",
		"RateLimit-Reset", "5",
		"Retry-After", "60",
	)

	fb, ok := FeedbackFromHeaders(h)
	if !ok {
		t.Fatal("expected feedback")
	}
	if fb.Remaining != 9 {
		t.Errorf("Remaining = %d, want 9 from the Mastodon headers", fb.Remaining)
	}
}

func TestFeedbackFromHeaders_NoMatch(t *testing.T) {
	cases := []struct {
		name string
		h    http.Header
	}{
		{"empty", headers()},
		{"unrelated", headers("Content-Type", "application/json")},
		{"mastodon remaining only", headers("X-RateLimit-Remaining", "5")},
		{"mastodon bad remaining", headers("X-RateLimit-Remaining", "many", "X-RateLimit-Reset", "2026-03-29T12:05:00Z")},
		{"mastodon bad reset", headers("X-RateLimit-Remaining", "5", "X-RateLimit-Reset", "soon")},
		{"ietf negative reset", headers("RateLimit-Remaining", "5", "RateLimit-Reset", "-1")},
		{"retry-after garbage", headers("Retry-After", "whenever")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := FeedbackFromHeaders(tc.h); ok {
				t.Error("expected no feedback")
			}
		})
	}
}
