package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/utils"
)

type Outcome string

const (
	OutcomePosted  Outcome = "posted"
	OutcomeRetry   Outcome = "retry"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

var (
	ErrNoPublisher   = errors.New("no publisher registered")
	ErrNoCredentials = errors.New("no connected account")
)

type DispatcherConfig struct {
	PublishTimeout time.Duration
	LeaseDuration  time.Duration
	// SecretKey decrypts stored platform tokens; empty means plaintext.
	SecretKey string
}

type Dispatcher struct {
	jobs        repository.PostingJobRepository
	subscribers repository.SubscriberRepository
	quota       service.QuotaService
	registry    *platform.Registry
	notifier    queue.Notifier
	clock       Clock
	cfg         DispatcherConfig
}

func NewDispatcher(
	jobs repository.PostingJobRepository,
	subscribers repository.SubscriberRepository,
	quota service.QuotaService,
	registry *platform.Registry,
	notifier queue.Notifier,
	clock Clock,
	cfg DispatcherConfig) *Dispatcher {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 10 * time.Minute
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if notifier == nil {
		notifier = queue.LogNotifier{}
	}
	return &Dispatcher{
		jobs:        jobs,
		subscribers: subscribers,
		quota:       quota,
		registry:    registry,
		notifier:    notifier,
		clock:       clock,
		cfg:         cfg,
	}
}

type DispatchResult struct {
	Outcome Outcome
	Job     *models.PostingJob
}

type publishOutcome struct {
	platform string
	result   *platform.Result
	err      error
}

// Dispatch claims job, publishes it to every enabled target that has not
// been posted yet and persists the aggregated result. The returned error is
// only set for store failures; platform errors become job data.
func (d *Dispatcher) Dispatch(ctx context.Context, job *models.PostingJob) (*DispatchResult, error) {
	claimedAt := d.clock.Now()
	leaseUntil := claimedAt.Add(d.cfg.LeaseDuration)
	claimed, err := d.jobs.Claim(ctx, job.ID, claimedAt, leaseUntil)
	if err != nil {
		return nil, fmt.Errorf("claiming job %s: %w", job.ID, err)
	}
	if !claimed {
		metrics.JobsDispatched.WithLabelValues(string(OutcomeSkipped)).Inc()
		return &DispatchResult{Outcome: OutcomeSkipped, Job: job}, nil
	}

	job = job.Clone()
	if job.MaxRetries <= 0 {
		job.MaxRetries = models.DefaultMaxRetries
	}
	if job.Status == models.JobStatusProcessing {
		slog.Info("resuming job after expired processing lease", "job", job.ID)
		job.ErrorLog = append(job.ErrorLog, models.ErrorEntry{
			Message:    "processing lease expired; dispatch resumed",
			Timestamp:  claimedAt,
			RetryCount: job.RetryCount,
		})
	}
	job.Status = models.JobStatusProcessing
	job.LeaseExpiresAt = &leaseUntil

	enabled := job.EnabledPlatforms()
	if len(enabled) == 0 {
		job.Status = models.JobStatusFailed
		job.ErrorLog = append(job.ErrorLog, models.ErrorEntry{
			Message:    "no enabled platforms",
			Timestamp:  claimedAt,
			RetryCount: job.RetryCount,
		})
		return d.finish(ctx, job, OutcomeFailed)
	}

	var pending []string
	for _, name := range enabled {
		if !job.Platforms[name].Posted {
			pending = append(pending, name)
		}
	}
	for _, out := range d.publishAll(ctx, job, pending) {
		target := job.Platforms[out.platform]
		if out.err != nil {
			target.LastError = out.err.Error()
			continue
		}
		postedAt := out.result.PostedAt
		if postedAt.IsZero() {
			postedAt = d.clock.Now()
		}
		target.Posted = true
		target.ExternalPostID = out.result.ExternalPostID
		target.PostedAt = &postedAt
		target.LastError = ""
	}

	now := d.clock.Now()
	if job.AnyPosted() {
		job.Status = models.JobStatusPosted
		job.PostedAt = &now
		if err := d.quota.RecordPublished(ctx, job.SubscriberID); err != nil {
			slog.Info("failed to record published post", "job", job.ID, "error", err)
		}
		return d.finish(ctx, job, OutcomePosted)
	}

	job.RetryCount++
	summary := failureSummary(job)
	if job.RetryCount < job.MaxRetries {
		delay := RetryDelay(job.RetryCount)
		job.ScheduledFor = now.Add(delay)
		job.Status = models.JobStatusPending
		job.ErrorLog = append(job.ErrorLog, models.ErrorEntry{
			Message:    fmt.Sprintf("all platforms failed, retrying in %s: %s", delay, summary),
			Timestamp:  now,
			RetryCount: job.RetryCount,
		})
		return d.finish(ctx, job, OutcomeRetry)
	}

	job.Status = models.JobStatusFailed
	job.ErrorLog = append(job.ErrorLog, models.ErrorEntry{
		Message:    fmt.Sprintf("retries exhausted after %d attempts: %s", job.RetryCount, summary),
		Timestamp:  now,
		RetryCount: job.RetryCount,
	})
	return d.finish(ctx, job, OutcomeFailed)
}

func (d *Dispatcher) finish(ctx context.Context, job *models.PostingJob, outcome Outcome) (*DispatchResult, error) {
	job.LeaseExpiresAt = nil
	result := &DispatchResult{Outcome: outcome, Job: job}
	if err := d.jobs.Save(ctx, job); err != nil {
		return result, fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	metrics.JobsDispatched.WithLabelValues(string(outcome)).Inc()
	d.notifier.NotifyPostOutcome(ctx, job)
	return result, nil
}

// publishAll runs one publish per platform concurrently and waits for all of
// them. Results keep the order of names.
func (d *Dispatcher) publishAll(ctx context.Context, job *models.PostingJob, names []string) []publishOutcome {
	results := make([]publishOutcome, len(names))
	if len(names) == 0 {
		return results
	}

	subscriber, err := d.subscribers.GetByID(ctx, job.SubscriberID)
	if err == nil && subscriber == nil {
		err = fmt.Errorf("subscriber %s not found", job.SubscriberID)
	}
	if err != nil {
		for i, name := range names {
			results[i] = publishOutcome{platform: name, err: err}
		}
		return results
	}

	content := platform.Content{Text: job.Text, Media: job.Media, Hashtags: job.Hashtags}
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			res, err := d.publishOne(ctx, subscriber, name, content)
			results[i] = publishOutcome{platform: name, result: res, err: err}
		}(i, name)
	}
	wg.Wait()
	return results
}

// publishOne bounds a single adapter call by the publish timeout even when
// the adapter ignores its context, and turns panics into errors.
func (d *Dispatcher) publishOne(ctx context.Context, subscriber *models.Subscriber, name string, content platform.Content) (*platform.Result, error) {
	pub, ok := d.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoPublisher)
	}
	stored, ok := subscriber.Credentials[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoCredentials)
	}
	creds, err := utils.DecryptCredentials(stored, d.cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()

	type reply struct {
		res *platform.Result
		err error
	}
	done := make(chan reply, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("%s publisher panicked: %v", name, r)}
			}
		}()
		res, err := pub.Publish(ctx, creds, content)
		done <- reply{res: res, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		r = reply{err: fmt.Errorf("%s publish timed out: %w", name, ctx.Err())}
	}
	metrics.PublishDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if r.err == nil && (r.res == nil || r.res.ExternalPostID == "") {
		r.err = fmt.Errorf("%s returned no post id", name)
	}
	if r.err != nil {
		metrics.PlatformPublishes.WithLabelValues(name, "error").Inc()
		return nil, r.err
	}
	metrics.PlatformPublishes.WithLabelValues(name, "success").Inc()
	return r.res, nil
}

func failureSummary(job *models.PostingJob) string {
	names := job.EnabledPlatforms()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if msg := job.Platforms[name].LastError; msg != "" {
			parts = append(parts, name+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}
