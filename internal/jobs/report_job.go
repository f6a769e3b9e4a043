package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/automation"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const reportWindow = 7 * 24 * time.Hour

type WeeklyReportJob struct {
	subscribers  repository.SubscriberRepository
	jobs         repository.PostingJobRepository
	registry     *platform.Registry
	store        service.ObjectStore
	notifier     queue.Notifier
	clock        automation.Clock
	secretKey    string
	fetchTimeout time.Duration
	concurrency  int
}

// NewWeeklyReportJob archives reports through store when it is non-nil.
func NewWeeklyReportJob(
	subscribers repository.SubscriberRepository,
	jobs repository.PostingJobRepository,
	registry *platform.Registry,
	store service.ObjectStore,
	notifier queue.Notifier,
	clock automation.Clock,
	secretKey string,
	fetchTimeout time.Duration,
	concurrency int) *WeeklyReportJob {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &WeeklyReportJob{
		subscribers:  subscribers,
		jobs:         jobs,
		registry:     registry,
		store:        store,
		notifier:     notifier,
		clock:        clock,
		secretKey:    secretKey,
		fetchTimeout: fetchTimeout,
		concurrency:  concurrency,
	}
}

func (j *WeeklyReportJob) Run(ctx context.Context) (Summary, error) {
	subscribers, err := j.subscribers.ListActive(ctx)
	if err != nil {
		slog.Info(err.Error())
		return Summary{}, fmt.Errorf("listing active subscribers: %w", err)
	}

	now := j.clock.Now()
	summary := forEach(ctx, "weekly_report", j.concurrency, subscribers,
		func(s *models.Subscriber) string { return s.ID },
		func(ctx context.Context, s *models.Subscriber) (outcome, error) {
			report, err := j.Build(ctx, s, now)
			if err != nil {
				return outcomeFailed, err
			}

			var archiveURL string
			if j.store != nil {
				archiveURL, err = service.ArchiveReport(ctx, j.store, report)
				if err != nil {
					slog.Error("archiving weekly report", "subscriber", s.ID, "error", err)
				}
			}
			j.notifier.NotifyWeeklyReport(ctx, report, archiveURL)
			return outcomeProcessed, nil
		})
	return summary, nil
}

// Build aggregates the last seven days of a subscriber's jobs. Analytics
// that cannot be fetched leave the counts at zero for that post.
func (j *WeeklyReportJob) Build(ctx context.Context, subscriber *models.Subscriber, now time.Time) (*models.WeeklyReport, error) {
	since := now.Add(-reportWindow)
	jobs, err := j.jobs.ListSince(ctx, subscriber.ID, since)
	if err != nil {
		return nil, fmt.Errorf("listing jobs since %s: %w", since.Format(time.RFC3339), err)
	}

	report := &models.WeeklyReport{
		SubscriberID: subscriber.ID,
		PeriodStart:  since,
		PeriodEnd:    now,
		ByPlatform:   map[string]*models.PlatformMetrics{},
		GeneratedAt:  now,
	}

	for _, job := range jobs {
		if job.ScheduledFor.After(now) {
			continue
		}
		switch job.Status {
		case models.JobStatusPosted:
			report.PostsPublished++
		case models.JobStatusFailed:
			report.PostsFailed++
			continue
		default:
			continue
		}

		for _, name := range job.EnabledPlatforms() {
			target := job.Platforms[name]
			if !target.Posted {
				continue
			}
			m := report.ByPlatform[name]
			if m == nil {
				m = &models.PlatformMetrics{}
				report.ByPlatform[name] = m
			}
			m.Posts++

			analytics, err := j.analytics(ctx, subscriber, name, target.ExternalPostID)
			if err != nil {
				slog.Warn("analytics unavailable", "subscriber", subscriber.ID, "job", job.ID, "platform", name, "error", err)
				continue
			}
			m.Likes += analytics.Likes
			m.Comments += analytics.Comments
			m.Shares += analytics.Shares
			m.Engagement += analytics.Engagement
		}
	}

	for _, m := range report.ByPlatform {
		report.Totals.Posts += m.Posts
		report.Totals.Likes += m.Likes
		report.Totals.Comments += m.Comments
		report.Totals.Shares += m.Shares
		report.Totals.Engagement += m.Engagement
	}
	return report, nil
}

var errNoAnalyticsSource = errors.New("no publisher or credentials for platform")

func (j *WeeklyReportJob) analytics(ctx context.Context, subscriber *models.Subscriber, name, externalID string) (*platform.Analytics, error) {
	publisher, ok := j.registry.Get(name)
	creds, connected := subscriber.Credentials[name]
	if !ok || !connected || externalID == "" {
		return nil, errNoAnalyticsSource
	}
	creds, err := utils.DecryptCredentials(creds, j.secretKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, j.fetchTimeout)
	defer cancel()
	return publisher.GetAnalytics(ctx, creds, externalID)
}
