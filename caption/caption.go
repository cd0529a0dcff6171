// Package caption implements the Vedfolnir work unit: scanning a user's
// posts for images without alt text, generating captions with the
// configured generator, and publishing them back to the instance. Every
// remote call is paced through the rate limiter and executed under the
// retry engine.
package caption

import "errors"

// Kind is the task kind the caption work unit registers under.
const Kind = "caption_generation"

// DefaultMaxPosts is the per-run post cap applied when Settings leaves
// MaxPosts unset.
const DefaultMaxPosts = 50

// Settings is the JSON payload of a caption task.
type Settings struct {
	// Target is the instance being processed, e.g. "mastodon.example".
	// It selects the rate-limit buckets for every API call of the run.
	Target string `json:"target"`

	// UserID identifies the account whose posts are scanned.
	UserID string `json:"user_id"`

	// MaxPosts caps how many posts one run examines. Zero applies
	// DefaultMaxPosts.
	MaxPosts int `json:"max_posts,omitempty"`

	// Concurrency bounds how many images are captioned at once. Zero
	// applies the processor's width, which defaults to sequential.
	Concurrency int `json:"concurrency,omitempty"`
}

func (s Settings) validate() error {
	if s.Target == "" {
		return errors.New("caption: settings missing target")
	}

	if s.UserID == "" {
		return errors.New("caption: settings missing user_id")
	}

	return nil
}
