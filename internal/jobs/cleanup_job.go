package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/automation"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

// RetentionCleanupJob deletes failed jobs that have not changed for longer
// than the retention age.
type RetentionCleanupJob struct {
	jobs  repository.PostingJobRepository
	clock automation.Clock
	age   time.Duration
}

func NewRetentionCleanupJob(jobs repository.PostingJobRepository, clock automation.Clock, age time.Duration) *RetentionCleanupJob {
	return &RetentionCleanupJob{jobs: jobs, clock: clock, age: age}
}

func (j *RetentionCleanupJob) Run(ctx context.Context) (Summary, error) {
	if j.age <= 0 {
		return Summary{}, fmt.Errorf("retention age must be positive, got %s", j.age)
	}
	cutoff := j.clock.Now().Add(-j.age)
	deleted, err := j.jobs.DeleteOlderThan(ctx, models.JobStatusFailed, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return Summary{}, fmt.Errorf("deleting failed jobs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	slog.Info("retention cleanup finished", "deleted", deleted, "cutoff", cutoff)
	return Summary{Processed: int(deleted)}, nil
}
