package job

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

// Thursday.
var t0 = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type countingContent struct {
	mu    sync.Mutex
	calls int
	media string
}

func (c *countingContent) Generate(ctx context.Context, subscriber *models.Subscriber, contentType models.ContentType, customPrompt string) service.GeneratedContent {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	content := service.FallbackContent(subscriber, contentType)
	content.MediaURL = c.media
	return content
}

type analyticsPublisher struct {
	name      string
	analytics *platform.Analytics
	err       error
	media     bool
}

func (p *analyticsPublisher) Name() string { return p.name }

func (p *analyticsPublisher) Publish(ctx context.Context, creds models.Credentials, content platform.Content) (*platform.Result, error) {
	return &platform.Result{ExternalPostID: p.name + "-1", PostedAt: time.Now()}, nil
}

func (p *analyticsPublisher) VerifyConnection(ctx context.Context, creds models.Credentials) (bool, error) {
	return true, nil
}

func (p *analyticsPublisher) GetAnalytics(ctx context.Context, creds models.Credentials, externalPostID string) (*platform.Analytics, error) {
	return p.analytics, p.err
}

func (p *analyticsPublisher) RequiresMedia() bool { return p.media }

type recordingNotifier struct {
	mu       sync.Mutex
	reports  []*models.WeeklyReport
	urls     []string
	renewals []*models.Subscription
}

func (n *recordingNotifier) NotifyPostOutcome(ctx context.Context, job *models.PostingJob) {}

func (n *recordingNotifier) NotifyWeeklyReport(ctx context.Context, report *models.WeeklyReport, archiveURL string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, report)
	n.urls = append(n.urls, archiveURL)
}

func (n *recordingNotifier) NotifyRenewal(ctx context.Context, sub *models.Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := *sub
	n.renewals = append(n.renewals, &c)
}

func connected(platforms ...string) map[string]models.Credentials {
	creds := map[string]models.Credentials{}
	for _, p := range platforms {
		creds[p] = models.Credentials{Platform: p, AccountID: p + "-acct", AccessToken: "token"}
	}
	return creds
}

func subscription(subscriberID string, posts int, next time.Time) *models.Subscription {
	return &models.Subscription{
		ID:                 "sub-" + subscriberID,
		SubscriberID:       subscriberID,
		PlanID:             "starter",
		BillingCycle:       models.BillingMonthly,
		Status:             models.SubscriptionActive,
		Current:            models.UsageCounters{Posts: posts},
		CurrentPeriodStart: next.AddDate(0, -1, 0),
		CurrentPeriodEnd:   next,
		NextBillingDate:    next,
	}
}

func quotaFor(t *testing.T, subs repository.SubscriptionRepository) service.QuotaService {
	t.Helper()
	plans, err := config.LoadPlans("")
	require.NoError(t, err)
	return service.NewQuotaService(plans, subs)
}

func testRegistry() *platform.Registry {
	return platform.NewRegistry(
		&analyticsPublisher{name: "facebook", analytics: &platform.Analytics{Likes: 4, Comments: 1, Shares: 1, Engagement: 6}},
		&analyticsPublisher{name: "instagram", media: true},
		&analyticsPublisher{name: "twitter", analytics: &platform.Analytics{Likes: 2, Engagement: 2}},
	)
}
