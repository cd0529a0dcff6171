package platform

import (
	"context"
	"fmt"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/ratelimit"
)

// Operation classes used for rate-limit dimensioning. Work units pass
// these as ratelimit.Dimensions.Operation so per-operation buckets line
// up with the calls a Client actually makes.
const (
	OpListStatuses = "statuses.list"
	OpUpdateMedia  = "media.update"
)

// Image is one media attachment lacking a description.
type Image struct {
	// MediaID identifies the attachment on the platform.
	MediaID string `json:"media_id"`

	// URL is where the image bytes can be fetched.
	URL string `json:"url"`
}

// Post is a status containing images that miss alt text.
type Post struct {
	// ID identifies the status on the platform.
	ID string `json:"id"`

	// URL is the status permalink.
	URL string `json:"url,omitempty"`

	// Images are the attachments without descriptions.
	Images []Image `json:"images"`
}

// Response carries call metadata a Client method returns alongside its
// result.
type Response struct {
	// Feedback is the rate-limit state parsed from response headers,
	// nil when the server sent none. Callers forward it to
	// ratelimit.Limiter.UpdateFromFeedback.
	Feedback *ratelimit.Feedback
}

// Client is the minimal Fediverse platform surface the orchestration
// core needs. Implementations wrap a concrete Mastodon or Pixelfed
// client and should return *APIError for failed API calls so the retry
// engine can classify them.
type Client interface {
	// ListPostsMissingAltText returns up to maxPosts of the user's
	// posts that contain images without descriptions.
	ListPostsMissingAltText(ctx context.Context, userID string, maxPosts int) ([]Post, *Response, error)

	// UpdateMediaDescription publishes a caption for one attachment.
	UpdateMediaDescription(ctx context.Context, mediaID, description string) (*Response, error)
}

// Generator produces captions for images.
type Generator interface {
	// GenerateCaption describes the image. Implementations typically
	// fetch the bytes at img.URL and run a vision model over them.
	GenerateCaption(ctx context.Context, img Image) (string, error)
}

// APIError is a failed platform API call carrying the HTTP status code.
// The retry engine finds it with errors.As anywhere in a wrap chain and
// classifies it against the policy's status-code allowlist.
type APIError struct {
	// Status is the HTTP status code of the failed call.
	Status int

	// Message is the server-provided detail, if any.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform: api error: status %d", e.Status)
	}
	return fmt.Sprintf("platform: api error: status %d: %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status code of the failed call.
func (e *APIError) StatusCode() int { return e.Status }
