package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archiveStore struct {
	keys []string
	err  error
}

func (s *archiveStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func postedJob(id string, at time.Time, targets map[string]*models.PlatformTarget, status models.JobStatus) *models.PostingJob {
	return &models.PostingJob{
		ID:           id,
		SubscriberID: "acme",
		Text:         "hello",
		ScheduledFor: at,
		Platforms:    targets,
		Status:       status,
		MaxRetries:   3,
	}
}

func TestWeeklyReport(t *testing.T) {
	ctx := context.Background()
	jobs := repository.NewMemoryPostingJobRepository()
	for _, j := range []*models.PostingJob{
		postedJob("j1", t0.Add(-24*time.Hour), map[string]*models.PlatformTarget{
			"facebook":  {Enabled: true, Posted: true, ExternalPostID: "fb-1"},
			"twitter":   {Enabled: true, Posted: true, ExternalPostID: "tw-1"},
			"instagram": {Enabled: true, LastError: "media required"},
		}, models.JobStatusPosted),
		postedJob("j2", t0.Add(-48*time.Hour), map[string]*models.PlatformTarget{
			"facebook": {Enabled: true, Posted: true, ExternalPostID: "fb-2"},
		}, models.JobStatusPosted),
		postedJob("j3", t0.Add(-72*time.Hour), map[string]*models.PlatformTarget{
			"twitter": {Enabled: true, LastError: "boom"},
		}, models.JobStatusFailed),
		// outside the window
		postedJob("j4", t0.Add(-10*24*time.Hour), map[string]*models.PlatformTarget{
			"facebook": {Enabled: true, Posted: true, ExternalPostID: "fb-0"},
		}, models.JobStatusPosted),
		// upcoming
		postedJob("j5", t0.Add(time.Hour), map[string]*models.PlatformTarget{
			"facebook": {Enabled: true},
		}, models.JobStatusPending),
	} {
		require.NoError(t, jobs.Create(ctx, j))
	}

	subscribers := repository.NewMemorySubscriberRepository(
		&models.Subscriber{ID: "acme", IsActive: true, Credentials: connected("facebook", "twitter")},
	)
	store := &archiveStore{}
	notifier := &recordingNotifier{}
	reportJob := NewWeeklyReportJob(subscribers, jobs, testRegistry(), store, notifier, &fixedClock{now: t0}, "", time.Second, 2)

	summary, err := reportJob.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1}, summary)

	require.Len(t, notifier.reports, 1)
	report := notifier.reports[0]
	assert.Equal(t, 2, report.PostsPublished)
	assert.Equal(t, 1, report.PostsFailed)
	assert.Equal(t, models.PlatformMetrics{Posts: 2, Likes: 8, Comments: 2, Shares: 2, Engagement: 12}, *report.ByPlatform["facebook"])
	assert.Equal(t, models.PlatformMetrics{Posts: 1, Likes: 2, Engagement: 2}, *report.ByPlatform["twitter"])
	assert.NotContains(t, report.ByPlatform, "instagram")
	assert.Equal(t, models.PlatformMetrics{Posts: 3, Likes: 10, Comments: 2, Shares: 2, Engagement: 14}, report.Totals)

	assert.Equal(t, []string{"reports/acme/2026-10-15.json"}, store.keys)
	assert.Equal(t, []string{"https://cdn.example.com/reports/acme/2026-10-15.json"}, notifier.urls)
}

func TestWeeklyReportToleratesAnalyticsAndArchiveFailures(t *testing.T) {
	ctx := context.Background()
	jobs := repository.NewMemoryPostingJobRepository()
	require.NoError(t, jobs.Create(ctx, postedJob("j1", t0.Add(-time.Hour), map[string]*models.PlatformTarget{
		"facebook": {Enabled: true, Posted: true, ExternalPostID: "fb-1"},
	}, models.JobStatusPosted)))

	registry := platform.NewRegistry(&analyticsPublisher{name: "facebook", err: errors.New("rate limited")})
	subscribers := repository.NewMemorySubscriberRepository(
		&models.Subscriber{ID: "acme", IsActive: true, Credentials: connected("facebook")},
	)
	notifier := &recordingNotifier{}
	reportJob := NewWeeklyReportJob(subscribers, jobs, registry, &archiveStore{err: errors.New("bucket gone")},
		notifier, &fixedClock{now: t0}, "", time.Second, 2)

	summary, err := reportJob.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1}, summary)
	require.Len(t, notifier.reports, 1)
	assert.Equal(t, models.PlatformMetrics{Posts: 1}, *notifier.reports[0].ByPlatform["facebook"])
	assert.Equal(t, []string{""}, notifier.urls)
}

func TestBillingRollover(t *testing.T) {
	ctx := context.Background()
	due := subscription("acme", 12, t0.Add(-time.Hour))
	overdue := subscription("globex", 5, t0.AddDate(0, -1, -1))
	future := subscription("initech", 7, t0.AddDate(0, 0, 3))
	subs := repository.NewMemorySubscriptionRepository(due, overdue, future)
	notifier := &recordingNotifier{}

	billing := NewBillingRolloverJob(subs, quotaFor(t, subs), notifier, &fixedClock{now: t0}, 2)
	summary, err := billing.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 2}, summary)
	assert.Len(t, notifier.renewals, 2)

	acme, err := subs.GetBySubscriberID(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 12, acme.Previous.Posts)
	assert.Zero(t, acme.Current.Posts)
	assert.Equal(t, due.NextBillingDate.AddDate(0, 1, 0), acme.NextBillingDate)

	globex, err := subs.GetBySubscriberID(ctx, "globex")
	require.NoError(t, err)
	assert.True(t, globex.NextBillingDate.After(t0), "overdue cycles are caught up")
	assert.Zero(t, globex.Current.Posts)

	initech, err := subs.GetBySubscriberID(ctx, "initech")
	require.NoError(t, err)
	assert.Equal(t, 7, initech.Current.Posts)

	summary, err = billing.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary, "a second run finds nothing due")
}

func TestRetentionCleanup(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: t0.AddDate(0, 0, -40)}
	jobs := repository.NewMemoryPostingJobRepository()
	jobs.SetClock(clock.Now)

	require.NoError(t, jobs.Create(ctx, postedJob("old-failed", clock.now, nil, models.JobStatusFailed)))
	require.NoError(t, jobs.Create(ctx, postedJob("old-posted", clock.now, nil, models.JobStatusPosted)))
	clock.now = t0.AddDate(0, 0, -5)
	require.NoError(t, jobs.Create(ctx, postedJob("recent-failed", clock.now, nil, models.JobStatusFailed)))
	clock.now = t0

	cleanup := NewRetentionCleanupJob(jobs, clock, 30*24*time.Hour)
	summary, err := cleanup.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1}, summary)

	for id, kept := range map[string]bool{"old-failed": false, "old-posted": true, "recent-failed": true} {
		job, err := jobs.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, kept, job != nil, id)
	}

	_, err = NewRetentionCleanupJob(jobs, clock, 0).Run(ctx)
	assert.Error(t, err)
}
