// Package platform defines the boundary to external systems: the
// Fediverse instance API and the caption generator.
//
// Vedfolnir never owns a wire protocol. Hosts supply [Client] and
// [Generator] implementations wrapping their concrete Mastodon or
// Pixelfed clients and vision backends; this package gives those
// implementations the vocabulary the orchestration core understands:
//
//   - [APIError] carries the HTTP status code so the retry engine can
//     classify failures via its status-code allowlist.
//   - [Response] carries the rate-limit state a call's response
//     reported, normalized into ratelimit.Feedback.
//   - [FeedbackFromHeaders] parses the common rate-limit header
//     conventions (Mastodon X-RateLimit-*, IETF draft RateLimit-*,
//     Retry-After) so implementations don't have to.
package platform
