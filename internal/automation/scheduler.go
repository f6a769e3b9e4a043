package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"golang.org/x/sync/errgroup"
)

type SchedulerConfig struct {
	Concurrency int
	BatchSize   int
}

type Scheduler struct {
	jobs       repository.PostingJobRepository
	dispatcher *Dispatcher
	status     *Status
	clock      Clock
	cfg        SchedulerConfig
}

func NewScheduler(jobs repository.PostingJobRepository, dispatcher *Dispatcher, status *Status, clock Clock, cfg SchedulerConfig) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if status == nil {
		status = NewStatus(0)
	}
	return &Scheduler{
		jobs:       jobs,
		dispatcher: dispatcher,
		status:     status,
		clock:      clock,
		cfg:        cfg,
	}
}

// Tick dispatches every due job once. It returns false without doing
// anything when another tick still holds the running flag.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.status.TryStart() {
		slog.Info("scheduler tick skipped, previous tick still running")
		metrics.SchedulerTicks.WithLabelValues("skipped").Inc()
		return false
	}
	startedAt := s.clock.Now()
	timer := time.Now()
	defer func() {
		s.status.Finish(startedAt)
		metrics.TickDuration.Observe(time.Since(timer).Seconds())
	}()

	due, err := s.jobs.FindDueJobs(ctx, startedAt, s.cfg.BatchSize)
	if err != nil {
		slog.Error("scheduler tick aborted", "error", err)
		s.status.RecordError("finding due jobs: "+err.Error(), startedAt)
		metrics.SchedulerTicks.WithLabelValues("aborted").Inc()
		return true
	}
	if len(due) > 0 {
		slog.Info("dispatching due jobs", "count", len(due))
	}
	s.dispatchAll(ctx, due)
	metrics.SchedulerTicks.WithLabelValues("completed").Inc()
	return true
}

// RunNow is the operator trigger; it obeys the same overlap guard as Tick.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	return s.Tick(ctx)
}

func (s *Scheduler) Status() StatusSnapshot {
	return s.status.Snapshot()
}

func (s *Scheduler) dispatchAll(ctx context.Context, jobs []*models.PostingJob) []*DispatchResult {
	results := make([]*DispatchResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = s.dispatchOne(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// dispatchOne isolates a single job: errors and panics are recorded in the
// status and never reach the other jobs of the tick.
func (s *Scheduler) dispatchOne(ctx context.Context, job *models.PostingJob) (result *DispatchResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch panicked", "job", job.ID, "panic", r)
			s.status.RecordFailure(job.ID, fmt.Sprintf("dispatch panicked: %v", r), s.clock.Now())
			result = nil
		}
	}()

	result, err := s.dispatcher.Dispatch(ctx, job)
	if err != nil {
		slog.Error("dispatch failed", "job", job.ID, "error", err)
		s.status.RecordFailure(job.ID, err.Error(), s.clock.Now())
		return result
	}

	switch result.Outcome {
	case OutcomePosted:
		s.status.RecordSuccess()
	case OutcomeRetry, OutcomeFailed:
		s.status.RecordFailure(job.ID, lastErrorMessage(result.Job), s.clock.Now())
	}
	return result
}

func lastErrorMessage(job *models.PostingJob) string {
	if n := len(job.ErrorLog); n > 0 {
		return job.ErrorLog[n-1].Message
	}
	return "job " + job.ID + " failed"
}

type RetrySummary struct {
	Reset    int `json:"reset"`
	Posted   int `json:"posted"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
}

// RetryFailedPosts resets failed jobs, for one subscriber when subscriberID is
// set, to pending with a fresh retry budget and dispatches them right away.
func (s *Scheduler) RetryFailedPosts(ctx context.Context, subscriberID string) (*RetrySummary, error) {
	failed, err := s.jobs.ListFailed(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("listing failed jobs: %w", err)
	}

	now := s.clock.Now()
	reset := make([]*models.PostingJob, 0, len(failed))
	for _, job := range failed {
		job.Status = models.JobStatusPending
		job.RetryCount = 0
		job.ScheduledFor = now
		job.LeaseExpiresAt = nil
		for _, target := range job.Platforms {
			if target != nil && !target.Posted {
				target.LastError = ""
			}
		}
		job.ErrorLog = append(job.ErrorLog, models.ErrorEntry{
			Message:   "manual retry requested",
			Timestamp: now,
		})
		if err := s.jobs.Save(ctx, job); err != nil {
			slog.Error("failed to reset job", "job", job.ID, "error", err)
			s.status.RecordError("resetting job "+job.ID+": "+err.Error(), now)
			continue
		}
		reset = append(reset, job)
	}

	summary := &RetrySummary{Reset: len(reset)}
	for _, result := range s.dispatchAll(ctx, reset) {
		if result == nil {
			continue
		}
		switch result.Outcome {
		case OutcomePosted:
			summary.Posted++
		case OutcomeRetry:
			summary.Retrying++
		case OutcomeFailed:
			summary.Failed++
		}
	}
	slog.Info("retried failed posts", "subscriber", subscriberID, "reset", summary.Reset, "posted", summary.Posted)
	return summary, nil
}
