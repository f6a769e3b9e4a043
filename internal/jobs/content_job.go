package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/automation"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var weekdayContent = map[time.Weekday]models.ContentType{
	time.Monday:    models.ContentPromotional,
	time.Tuesday:   models.ContentEducational,
	time.Wednesday: models.ContentBehindScenes,
	time.Thursday:  models.ContentProductShowcase,
	time.Friday:    models.ContentCustomerStory,
	time.Saturday:  models.ContentTips,
	time.Sunday:    models.ContentNews,
}

// ContentTypeFor picks the content type of an automated post from the
// subscriber-local weekday.
func ContentTypeFor(day time.Weekday) models.ContentType {
	return weekdayContent[day]
}

type clockTime struct{ hour, minute int }

var postingTimes = map[string]clockTime{
	"restaurant":            {11, 30},
	"cafe":                  {8, 0},
	"retail":                {12, 0},
	"ecommerce":             {19, 0},
	"fitness":               {6, 30},
	"salon":                 {10, 0},
	"beauty":                {10, 0},
	"real_estate":           {9, 0},
	"professional_services": {8, 30},
	"healthcare":            {9, 30},
	"education":             {16, 0},
}

var defaultPostingTime = clockTime{10, 0}

// PostingTime is the local time of day automated posts go out for a business
// type.
func PostingTime(businessType string) (hour, minute int) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(businessType)), " ", "_")
	t, ok := postingTimes[key]
	if !ok {
		t = defaultPostingTime
	}
	return t.hour, t.minute
}

// NextPostingTime returns today's posting time in loc, or tomorrow's when it
// is not strictly after now.
func NextPostingTime(now time.Time, businessType string, loc *time.Location) time.Time {
	now = now.In(loc)
	hour, minute := PostingTime(businessType)
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
	if !at.After(now) {
		at = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, loc)
	}
	return at
}

type DailyContentJob struct {
	subscribers repository.SubscriberRepository
	jobs        repository.PostingJobRepository
	quota       service.QuotaService
	content     service.ContentService
	registry    *platform.Registry
	clock       automation.Clock
	loc         *time.Location
	maxRetries  int
	concurrency int
}

func NewDailyContentJob(
	subscribers repository.SubscriberRepository,
	jobs repository.PostingJobRepository,
	quota service.QuotaService,
	content service.ContentService,
	registry *platform.Registry,
	clock automation.Clock,
	loc *time.Location,
	maxRetries, concurrency int) *DailyContentJob {
	if loc == nil {
		loc = time.UTC
	}
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	return &DailyContentJob{
		subscribers: subscribers,
		jobs:        jobs,
		quota:       quota,
		content:     content,
		registry:    registry,
		clock:       clock,
		loc:         loc,
		maxRetries:  maxRetries,
		concurrency: concurrency,
	}
}

func (j *DailyContentJob) Run(ctx context.Context) (Summary, error) {
	subscribers, err := j.subscribers.ListAutoContentEnabled(ctx)
	if err != nil {
		slog.Info(err.Error())
		return Summary{}, fmt.Errorf("listing auto content subscribers: %w", err)
	}

	summary := forEach(ctx, "daily_content", j.concurrency, subscribers,
		func(s *models.Subscriber) string { return s.ID }, j.generate)
	slog.Info("daily content run finished", "created", summary.Processed, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (j *DailyContentJob) generate(ctx context.Context, subscriber *models.Subscriber) (outcome, error) {
	if !subscriber.IsActive || !subscriber.AutoContentEnabled {
		return outcomeSkipped, nil
	}

	loc := subscriber.Location(j.loc)
	now := j.clock.Now().In(loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	count, err := j.jobs.CountAutomatedSince(ctx, subscriber.ID, startOfDay)
	if err != nil {
		return outcomeFailed, fmt.Errorf("counting today's automated posts: %w", err)
	}
	if count > 0 {
		return outcomeSkipped, nil
	}

	ok, err := j.quota.CanGenerate(ctx, subscriber.ID, models.ResourcePosts)
	if err != nil {
		return outcomeFailed, err
	}
	if !ok {
		slog.Info("daily content skipped, post quota reached", "subscriber", subscriber.ID)
		return outcomeSkipped, nil
	}

	contentType := ContentTypeFor(now.Weekday())
	generated := j.content.Generate(ctx, subscriber, contentType, "")

	var media []models.MediaRef
	if generated.MediaURL != "" {
		media = []models.MediaRef{{Type: "image", URL: generated.MediaURL}}
	}

	targets := j.targets(subscriber, len(media) > 0)
	if len(targets) == 0 {
		slog.Info("daily content skipped, no usable platform connected", "subscriber", subscriber.ID)
		return outcomeSkipped, nil
	}

	id, err := gonanoid.New()
	if err != nil {
		return outcomeFailed, err
	}

	job := &models.PostingJob{
		ID:           id,
		SubscriberID: subscriber.ID,
		Text:         generated.Text,
		Media:        media,
		Hashtags:     generated.Hashtags,
		AIGenerated:  true,
		ContentType:  contentType,
		ScheduledFor: NextPostingTime(now, subscriber.BusinessType, loc).UTC(),
		Timezone:     loc.String(),
		Platforms:    targets,
		Status:       models.JobStatusPending,
		MaxRetries:   j.maxRetries,
		IsAutomated:  true,
	}
	if err := j.jobs.Create(ctx, job); err != nil {
		return outcomeFailed, fmt.Errorf("creating automated post: %w", err)
	}
	if err := j.quota.RecordUsage(ctx, subscriber.ID, models.ResourcePosts, 1); err != nil {
		slog.Error("recording automated post usage", "subscriber", subscriber.ID, "job", job.ID, "error", err)
	}

	metrics.AutomatedJobsCreated.Inc()
	slog.Info("automated post created", "subscriber", subscriber.ID, "job", job.ID,
		"content_type", contentType, "scheduled_for", job.ScheduledFor)
	return outcomeProcessed, nil
}

// targets enables every connected platform that has a publisher and accepts
// the content.
func (j *DailyContentJob) targets(subscriber *models.Subscriber, hasMedia bool) map[string]*models.PlatformTarget {
	targets := map[string]*models.PlatformTarget{}
	for name := range subscriber.Credentials {
		p, ok := j.registry.Get(name)
		if !ok {
			continue
		}
		if !hasMedia && platform.RequiresMedia(p) {
			continue
		}
		targets[name] = &models.PlatformTarget{Enabled: true}
	}
	return targets
}
