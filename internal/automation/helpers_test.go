package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubPublisher struct {
	name    string
	mu      sync.Mutex
	calls   int
	publish func(ctx context.Context) (*platform.Result, error)
}

func (p *stubPublisher) Name() string { return p.name }

func (p *stubPublisher) Publish(ctx context.Context, creds models.Credentials, content platform.Content) (*platform.Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.publish(ctx)
}

func (p *stubPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *stubPublisher) VerifyConnection(ctx context.Context, creds models.Credentials) (bool, error) {
	return true, nil
}

func (p *stubPublisher) GetAnalytics(ctx context.Context, creds models.Credentials, externalPostID string) (*platform.Analytics, error) {
	return &platform.Analytics{}, nil
}

func succeeding(name, id string) *stubPublisher {
	return &stubPublisher{name: name, publish: func(ctx context.Context) (*platform.Result, error) {
		return &platform.Result{ExternalPostID: id, PostedAt: t0}, nil
	}}
}

func failing(name, msg string) *stubPublisher {
	return &stubPublisher{name: name, publish: func(ctx context.Context) (*platform.Result, error) {
		return nil, &platform.APIError{Platform: name, StatusCode: 500, Body: msg}
	}}
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []*models.PostingJob
}

func (n *recordingNotifier) NotifyPostOutcome(ctx context.Context, job *models.PostingJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, job.Clone())
}

func (n *recordingNotifier) NotifyWeeklyReport(ctx context.Context, report *models.WeeklyReport, archiveURL string) {
}

func (n *recordingNotifier) NotifyRenewal(ctx context.Context, sub *models.Subscription) {}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.outcomes)
}

type harness struct {
	clock       *fakeClock
	jobs        *repository.MemoryPostingJobRepository
	subscribers *repository.MemorySubscriberRepository
	subs        *repository.MemorySubscriptionRepository
	registry    *platform.Registry
	notifier    *recordingNotifier
	status      *Status
	dispatcher  *Dispatcher
	scheduler   *Scheduler
}

func newHarness(t *testing.T, publishers ...platform.Publisher) *harness {
	t.Helper()
	h := &harness{
		clock:    &fakeClock{now: t0},
		jobs:     repository.NewMemoryPostingJobRepository(),
		registry: platform.NewRegistry(publishers...),
		notifier: &recordingNotifier{},
		status:   NewStatus(5),
	}
	h.jobs.SetClock(h.clock.Now)

	creds := map[string]models.Credentials{}
	for _, name := range []string{"facebook", "instagram", "twitter"} {
		creds[name] = models.Credentials{Platform: name, AccountID: name + "-acct", AccessToken: "tok"}
	}
	h.subscribers = repository.NewMemorySubscriberRepository(
		&models.Subscriber{ID: "acme", Name: "Acme", IsActive: true, Credentials: creds},
		&models.Subscriber{ID: "globex", Name: "Globex", IsActive: true, Credentials: creds},
	)
	h.subs = repository.NewMemorySubscriptionRepository(
		&models.Subscription{ID: "s1", SubscriberID: "acme", PlanID: "starter", Status: models.SubscriptionActive},
		&models.Subscription{ID: "s2", SubscriberID: "globex", PlanID: "starter", Status: models.SubscriptionActive},
	)

	plans, err := config.LoadPlans("")
	require.NoError(t, err)
	quota := service.NewQuotaService(plans, h.subs)

	h.dispatcher = NewDispatcher(h.jobs, h.subscribers, quota, h.registry, h.notifier, h.clock, DispatcherConfig{
		PublishTimeout: 200 * time.Millisecond,
		LeaseDuration:  10 * time.Minute,
	})
	h.scheduler = NewScheduler(h.jobs, h.dispatcher, h.status, h.clock, SchedulerConfig{Concurrency: 4, BatchSize: 50})
	return h
}

func (h *harness) addJob(t *testing.T, id, subscriberID string, platforms ...string) *models.PostingJob {
	t.Helper()
	job := &models.PostingJob{
		ID:           id,
		SubscriberID: subscriberID,
		Text:         "hello",
		ScheduledFor: h.clock.Now(),
		Platforms:    map[string]*models.PlatformTarget{},
		Status:       models.JobStatusPending,
		MaxRetries:   models.DefaultMaxRetries,
	}
	for _, p := range platforms {
		job.Platforms[p] = &models.PlatformTarget{Enabled: true}
	}
	require.NoError(t, h.jobs.Create(context.Background(), job))
	return job
}

func (h *harness) get(t *testing.T, id string) *models.PostingJob {
	t.Helper()
	job, err := h.jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}
