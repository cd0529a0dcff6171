package caption

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/platform"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/ratelimit"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/retry"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/worker"
)

// generateLabel is the retry-stats label for generator calls. They are
// not per-target: one generator serves every instance.
const generateLabel = "generator/caption"

// Processor executes caption runs. Construct one with NewProcessor and
// register its Definition with a worker registry.
type Processor struct {
	client    platform.Client
	generator platform.Generator
	limiter   *ratelimit.Limiter
	retrier   *retry.Engine
	policy    retry.Policy
	logger    *slog.Logger

	maxPosts int
	width    int
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithRetryPolicy replaces the default policy applied to platform and
// generator calls.
func WithRetryPolicy(pol retry.Policy) Option {
	return func(p *Processor) {
		p.policy = pol
	}
}

// WithMaxPosts sets the post cap applied when a task's settings leave
// MaxPosts unset.
func WithMaxPosts(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxPosts = n
		}
	}
}

// WithImageConcurrency sets the default image fan-out width. The
// default is 1: images are captioned one at a time.
func WithImageConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.width = n
		}
	}
}

// NewProcessor creates a Processor over a platform client and a caption
// generator. Remote calls are admitted through limiter and executed
// under retrier.
func NewProcessor(client platform.Client, generator platform.Generator, limiter *ratelimit.Limiter, retrier *retry.Engine, opts ...Option) *Processor {
	p := &Processor{
		client:    client,
		generator: generator,
		limiter:   limiter,
		retrier:   retrier,
		policy:    retry.DefaultPolicy(),
		logger:    slog.Default(),
		maxPosts:  DefaultMaxPosts,
		width:     1,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Definition returns the typed work definition for this processor,
// ready to register with a worker registry.
func (p *Processor) Definition(opts ...task.Option) *worker.Definition[Settings] {
	return worker.NewDefinition(Kind, p.Process, opts...)
}

// Process runs one caption task: list the user's posts missing alt
// text, then generate and publish a caption for every image found.
func (p *Processor) Process(ctx context.Context, run *worker.Run, settings Settings) error {
	if err := settings.validate(); err != nil {
		return err
	}

	maxPosts := settings.MaxPosts
	if maxPosts <= 0 {
		maxPosts = p.maxPosts
	}

	width := settings.Concurrency
	if width <= 0 {
		width = p.width
	}

	if err := run.Checkpoint(ctx); err != nil {
		return err
	}

	posts, err := p.listPosts(ctx, settings, maxPosts)
	if err != nil {
		return err
	}

	images := collectImages(posts)
	total := len(images)

	p.logger.Debug("caption run listed posts",
		slog.String("target", settings.Target),
		slog.String("user_id", settings.UserID),
		slog.Int("posts", len(posts)),
		slog.Int("images", total),
	)

	if total == 0 {
		p.setProgress(ctx, run, 100, "no images need captions")

		return nil
	}

	p.setProgress(ctx, run, 0, fmt.Sprintf("found %d images missing alt text", total))

	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(width)

	for _, img := range images {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			// Cancellation is observed between images: each image
			// re-checks the store before any remote call.
			if err := run.Checkpoint(gctx); err != nil {
				return err
			}

			if err := p.captionImage(gctx, settings.Target, img); err != nil {
				return err
			}

			n := done.Add(1)
			p.setProgress(gctx, run, int(n)*100/total, fmt.Sprintf("captioned %d of %d images", n, total))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	p.setProgress(ctx, run, 100, fmt.Sprintf("captioned %d images", total))

	return nil
}

// listPosts admits and executes the post listing call.
func (p *Processor) listPosts(ctx context.Context, s Settings, maxPosts int) ([]platform.Post, error) {
	dims := ratelimit.Dimensions{Target: s.Target, Operation: platform.OpListStatuses}
	if _, err := p.limiter.WaitIfNeeded(ctx, dims); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s on %s: %w", platform.OpListStatuses, s.Target, err)
	}

	posts, err := retry.Do(ctx, p.retrier, s.Target+"/"+platform.OpListStatuses, p.policy, func(ctx context.Context) ([]platform.Post, error) {
		posts, resp, err := p.client.ListPostsMissingAltText(ctx, s.UserID, maxPosts)
		p.applyFeedback(dims, resp)

		return posts, err
	})
	if err != nil {
		return nil, fmt.Errorf("list posts on %s: %w", s.Target, err)
	}

	return posts, nil
}

// captionImage generates a caption for one image and publishes it as
// the media description.
func (p *Processor) captionImage(ctx context.Context, target string, img platform.Image) error {
	caption, err := retry.Do(ctx, p.retrier, generateLabel, p.policy, func(ctx context.Context) (string, error) {
		return p.generator.GenerateCaption(ctx, img)
	})
	if err != nil {
		return fmt.Errorf("generate caption for media %s: %w", img.MediaID, err)
	}

	dims := ratelimit.Dimensions{Target: target, Operation: platform.OpUpdateMedia}
	if _, err := p.limiter.WaitIfNeeded(ctx, dims); err != nil {
		return fmt.Errorf("rate limit wait for %s on %s: %w", platform.OpUpdateMedia, target, err)
	}

	err = p.retrier.Execute(ctx, target+"/"+platform.OpUpdateMedia, p.policy, func(ctx context.Context) error {
		resp, callErr := p.client.UpdateMediaDescription(ctx, img.MediaID, caption)
		p.applyFeedback(dims, resp)

		return callErr
	})
	if err != nil {
		return fmt.Errorf("publish caption for media %s: %w", img.MediaID, err)
	}

	p.logger.Debug("caption published",
		slog.String("target", target),
		slog.String("media_id", img.MediaID),
	)

	return nil
}

// applyFeedback forwards server-reported quota state to the limiter.
// Error responses carry feedback too, e.g. a 429 with Retry-After.
func (p *Processor) applyFeedback(dims ratelimit.Dimensions, resp *platform.Response) {
	if resp == nil || resp.Feedback == nil {
		return
	}

	p.limiter.UpdateFromFeedback(dims, *resp.Feedback)
}

// setProgress records advisory progress; failures are logged, never
// escalated.
func (p *Processor) setProgress(ctx context.Context, run *worker.Run, percent int, message string) {
	if err := run.SetProgress(ctx, percent, message); err != nil {
		p.logger.Debug("progress update failed", slog.Any("error", err))
	}
}

func collectImages(posts []platform.Post) []platform.Image {
	var images []platform.Image
	for _, post := range posts {
		images = append(images, post.Images...)
	}

	return images
}
