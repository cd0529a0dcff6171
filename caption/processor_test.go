package caption_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/caption"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/platform"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/queue"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/ratelimit"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/retry"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store/memory"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/worker"
)

// fakeClient is an in-memory platform.Client.
type fakeClient struct {
	mu    sync.Mutex
	posts []platform.Post

	listResp  *platform.Response
	listFails int
	listCalls int

	updateResp  *platform.Response
	updateErr   error
	updateCalls int
	updated     map[string]string
	onUpdate    func(mediaID string)
}

func (c *fakeClient) ListPostsMissingAltText(_ context.Context, _ string, maxPosts int) ([]platform.Post, *platform.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listCalls++
	if c.listFails > 0 {
		c.listFails--
		return nil, c.listResp, &platform.APIError{Status: 500, Message: "instance hiccup"}
	}

	posts := c.posts
	if maxPosts < len(posts) {
		posts = posts[:maxPosts]
	}
	return posts, c.listResp, nil
}

func (c *fakeClient) UpdateMediaDescription(_ context.Context, mediaID, description string) (*platform.Response, error) {
	c.mu.Lock()
	onUpdate := c.onUpdate
	c.mu.Unlock()
	if onUpdate != nil {
		onUpdate(mediaID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.updateCalls++
	if c.updateErr != nil {
		return c.updateResp, c.updateErr
	}

	if c.updated == nil {
		c.updated = make(map[string]string)
	}
	c.updated[mediaID] = description
	return c.updateResp, nil
}

func (c *fakeClient) listCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listCalls
}

func (c *fakeClient) updateCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateCalls
}

func (c *fakeClient) description(mediaID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.updated[mediaID]
	return d, ok
}

// fakeGenerator produces deterministic captions and tracks fan-out.
type fakeGenerator struct {
	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	err         error
	delay       time.Duration
}

func (g *fakeGenerator) GenerateCaption(_ context.Context, img platform.Image) (string, error) {
	g.mu.Lock()
	g.calls++
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	err := g.err
	delay := g.delay
	g.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()

	if err != nil {
		return "", err
	}
	return "alt text for " + img.MediaID, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGenerator) peakInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInFlight
}

// ────────────────────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────────────────────

func openLimiter(t *testing.T, maxWait time.Duration) *ratelimit.Limiter {
	t.Helper()
	lim, err := ratelimit.New(ratelimit.Config{
		Global:             ratelimit.Rate{Capacity: 1000, PerSecond: 5000},
		PerOperation:       ratelimit.Rate{Capacity: 1000, PerSecond: 5000},
		PerTarget:          ratelimit.Rate{Capacity: 1000, PerSecond: 5000},
		PerTargetOperation: ratelimit.Rate{Capacity: 1000, PerSecond: 5000},
		MaxWait:            maxWait,
	})
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	return lim
}

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	return p
}

// newCaptionRun admits and claims a caption task, returning a live Run.
func newCaptionRun(t *testing.T, ownerID string) (*worker.Run, *queue.Service, *task.Task) {
	t.Helper()
	svc, err := queue.NewService(memory.New())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Enqueue(context.Background(), ownerID, caption.Kind, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := svc.NextReady(context.Background(), id.NewWorkerID())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimable task")
	}
	return worker.NewRun(claimed, svc, nil), svc, claimed
}

func postsFixture() []platform.Post {
	return []platform.Post{
		{ID: "post-1", URL: "https://mastodon.example/@photographer/1", Images: []platform.Image{
			{MediaID: "media-1", URL: "https://files.mastodon.example/media-1.jpg"},
			{MediaID: "media-2", URL: "https://files.mastodon.example/media-2.jpg"},
		}},
		{ID: "post-2", URL: "https://mastodon.example/@photographer/2", Images: []platform.Image{
			{MediaID: "media-3", URL: "https://files.mastodon.example/media-3.jpg"},
		}},
	}
}

func singleImageFixture() []platform.Post {
	return []platform.Post{
		{ID: "post-1", Images: []platform.Image{{MediaID: "media-1"}}},
	}
}

func testSettings() caption.Settings {
	return caption.Settings{Target: "mastodon.example", UserID: "user-1"}
}

func newTestProcessor(t *testing.T, client *fakeClient, gen *fakeGenerator, opts ...caption.Option) *caption.Processor {
	t.Helper()
	opts = append([]caption.Option{caption.WithRetryPolicy(fastPolicy())}, opts...)
	return caption.NewProcessor(client, gen, openLimiter(t, 0), retry.New(), opts...)
}

// ────────────────────────────────────────────────────────────────────────────
// Tests
// ────────────────────────────────────────────────────────────────────────────

func TestProcessor_CaptionsAllImages(t *testing.T) {
	client := &fakeClient{posts: postsFixture()}
	gen := &fakeGenerator{}
	proc := newTestProcessor(t, client, gen)
	run, svc, claimed := newCaptionRun(t, "user-1")

	if err := proc.Process(context.Background(), run, testSettings()); err != nil {
		t.Fatalf("process: %v", err)
	}

	if gen.callCount() != 3 {
		t.Errorf("generator calls = %d, want 3", gen.callCount())
	}
	if client.updateCallCount() != 3 {
		t.Errorf("update calls = %d, want 3", client.updateCallCount())
	}
	for _, mediaID := range []string{"media-1", "media-2", "media-3"} {
		got, ok := client.description(mediaID)
		if !ok {
			t.Errorf("no description published for %s", mediaID)
			continue
		}
		if want := "alt text for " + mediaID; got != want {
			t.Errorf("description for %s = %q, want %q", mediaID, got, want)
		}
	}

	stored, err := svc.Get(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Progress.Percent != 100 {
		t.Errorf("progress = %d, want 100", stored.Progress.Percent)
	}
	if stored.Progress.Message != "captioned 3 images" {
		t.Errorf("progress message = %q", stored.Progress.Message)
	}
}

func TestProcessor_NoImages(t *testing.T) {
	client := &fakeClient{}
	gen := &fakeGenerator{}
	proc := newTestProcessor(t, client, gen)
	run, svc, claimed := newCaptionRun(t, "user-1")

	if err := proc.Process(context.Background(), run, testSettings()); err != nil {
		t.Fatalf("process: %v", err)
	}

	if gen.callCount() != 0 {
		t.Errorf("generator calls = %d, want 0", gen.callCount())
	}

	stored, err := svc.Get(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Progress.Percent != 100 {
		t.Errorf("progress = %d, want 100", stored.Progress.Percent)
	}
	if stored.Progress.Message != "no images need captions" {
		t.Errorf("progress message = %q", stored.Progress.Message)
	}
}

func TestProcessor_SettingsValidation(t *testing.T) {
	cases := []struct {
		name     string
		settings caption.Settings
		want     string
	}{
		{"missing target", caption.Settings{UserID: "user-1"}, "missing target"},
		{"missing user id", caption.Settings{Target: "mastodon.example"}, "missing user_id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{posts: postsFixture()}
			proc := newTestProcessor(t, client, &fakeGenerator{})
			run, _, _ := newCaptionRun(t, "user-1")

			err := proc.Process(context.Background(), run, tc.settings)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
			if client.listCallCount() != 0 {
				t.Errorf("list calls = %d, want 0", client.listCallCount())
			}
		})
	}
}

func TestProcessor_RetriesTransientListFailure(t *testing.T) {
	client := &fakeClient{posts: singleImageFixture(), listFails: 2}
	proc := newTestProcessor(t, client, &fakeGenerator{})
	run, _, _ := newCaptionRun(t, "user-1")

	if err := proc.Process(context.Background(), run, testSettings()); err != nil {
		t.Fatalf("process: %v", err)
	}

	if client.listCallCount() != 3 {
		t.Errorf("list calls = %d, want 3", client.listCallCount())
	}
	if client.updateCallCount() != 1 {
		t.Errorf("update calls = %d, want 1", client.updateCallCount())
	}
}

func TestProcessor_GeneratorFailure(t *testing.T) {
	client := &fakeClient{posts: singleImageFixture()}
	gen := &fakeGenerator{err: errors.New("vision model rejected input")}
	proc := newTestProcessor(t, client, gen)
	run, _, _ := newCaptionRun(t, "user-1")

	err := proc.Process(context.Background(), run, testSettings())
	if err == nil || !strings.Contains(err.Error(), "generate caption for media media-1") {
		t.Fatalf("err = %v, want generate failure", err)
	}
	if client.updateCallCount() != 0 {
		t.Errorf("update calls = %d, want 0", client.updateCallCount())
	}
}

func TestProcessor_TerminalPublishFailure(t *testing.T) {
	client := &fakeClient{
		posts:     singleImageFixture(),
		updateErr: &platform.APIError{Status: 403, Message: "forbidden"},
	}
	proc := newTestProcessor(t, client, &fakeGenerator{})
	run, _, _ := newCaptionRun(t, "user-1")

	err := proc.Process(context.Background(), run, testSettings())
	if err == nil || !strings.Contains(err.Error(), "publish caption for media media-1") {
		t.Fatalf("err = %v, want publish failure", err)
	}

	// 403 is not retryable: exactly one call.
	if client.updateCallCount() != 1 {
		t.Errorf("update calls = %d, want 1", client.updateCallCount())
	}
}

func TestProcessor_CancelObservedBetweenImages(t *testing.T) {
	client := &fakeClient{posts: postsFixture()}
	gen := &fakeGenerator{}
	proc := newTestProcessor(t, client, gen)
	run, svc, claimed := newCaptionRun(t, "user-1")

	var once sync.Once
	client.onUpdate = func(string) {
		once.Do(func() {
			if _, err := svc.Cancel(context.Background(), claimed.ID, "user-1"); err != nil {
				t.Errorf("cancel: %v", err)
			}
		})
	}

	err := proc.Process(context.Background(), run, testSettings())
	if !errors.Is(err, vedfolnir.ErrTaskCancelled) {
		t.Fatalf("err = %v, want ErrTaskCancelled", err)
	}

	// The first image was already in flight; nothing after it starts.
	if client.updateCallCount() != 1 {
		t.Errorf("update calls = %d, want 1", client.updateCallCount())
	}
	if gen.callCount() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.callCount())
	}
}

func TestProcessor_ConcurrencyBounded(t *testing.T) {
	posts := []platform.Post{
		{ID: "post-1", Images: []platform.Image{
			{MediaID: "media-1"}, {MediaID: "media-2"}, {MediaID: "media-3"},
			{MediaID: "media-4"}, {MediaID: "media-5"}, {MediaID: "media-6"},
		}},
	}
	client := &fakeClient{posts: posts}
	gen := &fakeGenerator{delay: 2 * time.Millisecond}
	proc := newTestProcessor(t, client, gen)
	run, _, _ := newCaptionRun(t, "user-1")

	settings := testSettings()
	settings.Concurrency = 3

	if err := proc.Process(context.Background(), run, settings); err != nil {
		t.Fatalf("process: %v", err)
	}

	if client.updateCallCount() != 6 {
		t.Errorf("update calls = %d, want 6", client.updateCallCount())
	}
	if peak := gen.peakInFlight(); peak > 3 {
		t.Errorf("peak in-flight generations = %d, want <= 3", peak)
	}
}

func TestProcessor_FeedbackThrottlesNextRun(t *testing.T) {
	client := &fakeClient{
		posts: singleImageFixture(),
		listResp: &platform.Response{
			Feedback: &ratelimit.Feedback{Remaining: 0, ResetAt: time.Now().Add(time.Hour)},
		},
	}
	lim := openLimiter(t, 25*time.Millisecond)
	proc := caption.NewProcessor(client, &fakeGenerator{}, lim, retry.New(), caption.WithRetryPolicy(fastPolicy()))

	run1, _, _ := newCaptionRun(t, "user-1")
	if err := proc.Process(context.Background(), run1, testSettings()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The exhausted-window feedback from the first run's listing must
	// throttle the second run's listing.
	run2, _, _ := newCaptionRun(t, "user-2")
	err := proc.Process(context.Background(), run2, testSettings())
	if !errors.Is(err, ratelimit.ErrWaitBudgetExceeded) {
		t.Fatalf("err = %v, want ErrWaitBudgetExceeded", err)
	}
}

func TestProcessor_Definition(t *testing.T) {
	proc := newTestProcessor(t, &fakeClient{}, &fakeGenerator{})

	def := proc.Definition(task.WithPriority(7))
	if def.Kind != caption.Kind {
		t.Errorf("kind = %q, want %q", def.Kind, caption.Kind)
	}
	if def.Opts.Priority != 7 {
		t.Errorf("priority = %d, want 7", def.Opts.Priority)
	}

	reg := worker.NewRegistry()
	worker.RegisterDefinition(reg, def)
	if _, ok := reg.Get(caption.Kind); !ok {
		t.Error("definition not registered")
	}
}
