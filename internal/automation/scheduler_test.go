package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickLeavesNoJobProcessing(t *testing.T) {
	h := newHarness(t,
		succeeding("facebook", "fb1"),
		failing("twitter", "down"),
	)
	for i := 0; i < 12; i++ {
		owner := "acme"
		if i%2 == 1 {
			owner = "globex"
		}
		platforms := []string{"twitter"}
		if i%3 == 0 {
			platforms = append(platforms, "facebook")
		}
		h.addJob(t, fmt.Sprintf("job%02d", i), owner, platforms...)
	}
	future := h.addJob(t, "later", "acme", "facebook")
	future.ScheduledFor = t0.Add(time.Hour)
	require.NoError(t, h.jobs.Save(context.Background(), future))

	require.True(t, h.scheduler.Tick(context.Background()))

	for i := 0; i < 12; i++ {
		job := h.get(t, fmt.Sprintf("job%02d", i))
		assert.NotEqual(t, models.JobStatusProcessing, job.Status)
		assert.Equal(t, []string{"acme", "globex"}[i%2], job.SubscriberID, "no cross writes")
		if i%3 == 0 {
			assert.Equal(t, models.JobStatusPosted, job.Status)
		} else {
			assert.Equal(t, models.JobStatusPending, job.Status)
			assert.Equal(t, 1, job.RetryCount)
		}
	}
	assert.Equal(t, models.JobStatusPending, h.get(t, "later").Status)
	assert.Equal(t, 0, h.get(t, "later").RetryCount)

	snap := h.scheduler.Status()
	assert.False(t, snap.IsRunning)
	assert.Equal(t, int64(12), snap.TotalProcessed)
	assert.Equal(t, int64(4), snap.SuccessCount)
	assert.Equal(t, int64(8), snap.FailureCount)
	assert.Len(t, snap.RecentErrors, 5, "error ring is bounded")
	require.NotNil(t, snap.LastRunAt)
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := &stubPublisher{name: "facebook", publish: func(ctx context.Context) (*platform.Result, error) {
		close(entered)
		<-release
		return &platform.Result{ExternalPostID: "fb1"}, nil
	}}
	h := newHarness(t, blocking)
	h.dispatcher.cfg.PublishTimeout = 5 * time.Second
	h.addJob(t, "job1", "acme", "facebook")

	done := make(chan bool)
	go func() { done <- h.scheduler.Tick(context.Background()) }()

	<-entered
	assert.True(t, h.scheduler.Status().IsRunning)
	assert.False(t, h.scheduler.Tick(context.Background()), "second tick must be a no-op")
	assert.False(t, h.scheduler.RunNow(context.Background()))

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, 1, blocking.Calls())
	assert.Equal(t, models.JobStatusPosted, h.get(t, "job1").Status)
	assert.False(t, h.scheduler.Status().IsRunning)
}

type brokenStore struct {
	*repository.MemoryPostingJobRepository
	fail bool
}

func (s *brokenStore) FindDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.PostingJob, error) {
	if s.fail {
		return nil, errors.New("connection refused")
	}
	return s.MemoryPostingJobRepository.FindDueJobs(ctx, now, limit)
}

func TestTickAbortsOnStoreFailureAndRecovers(t *testing.T) {
	h := newHarness(t, succeeding("facebook", "fb1"))
	h.addJob(t, "job1", "acme", "facebook")
	store := &brokenStore{MemoryPostingJobRepository: h.jobs, fail: true}
	scheduler := NewScheduler(store, h.dispatcher, h.status, h.clock, SchedulerConfig{})

	assert.True(t, scheduler.Tick(context.Background()))
	snap := scheduler.Status()
	require.Len(t, snap.RecentErrors, 1)
	assert.Contains(t, snap.RecentErrors[0].Message, "connection refused")
	assert.Zero(t, snap.TotalProcessed)
	assert.Equal(t, models.JobStatusPending, h.get(t, "job1").Status)

	store.fail = false
	assert.True(t, scheduler.Tick(context.Background()))
	assert.Equal(t, models.JobStatusPosted, h.get(t, "job1").Status)
}

func TestRetryFailedPosts(t *testing.T) {
	var healthy bool
	fb := &stubPublisher{name: "facebook", publish: func(ctx context.Context) (*platform.Result, error) {
		if healthy {
			return &platform.Result{ExternalPostID: "fb1"}, nil
		}
		return nil, errors.New("token expired")
	}}
	h := newHarness(t, fb)
	ctx := context.Background()
	for _, id := range []string{"a1", "a2"} {
		job := h.addJob(t, id, "acme", "facebook")
		job.MaxRetries = 1
		require.NoError(t, h.jobs.Save(ctx, job))
	}
	g := h.addJob(t, "g1", "globex", "facebook")
	g.MaxRetries = 1
	require.NoError(t, h.jobs.Save(ctx, g))

	require.True(t, h.scheduler.Tick(ctx))
	for _, id := range []string{"a1", "a2", "g1"} {
		require.Equal(t, models.JobStatusFailed, h.get(t, id).Status)
	}

	healthy = true
	h.clock.Advance(time.Minute)
	summary, err := h.scheduler.RetryFailedPosts(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, &RetrySummary{Reset: 2, Posted: 2}, summary)

	a1 := h.get(t, "a1")
	assert.Equal(t, models.JobStatusPosted, a1.Status)
	assert.Equal(t, 0, a1.RetryCount)
	assert.Empty(t, a1.Platforms["facebook"].LastError)
	assert.Equal(t, models.JobStatusFailed, h.get(t, "g1").Status, "other subscribers untouched")

	summary, err = h.scheduler.RetryFailedPosts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Reset)
	assert.Equal(t, models.JobStatusPosted, h.get(t, "g1").Status)
}
