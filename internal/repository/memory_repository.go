package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// The memory repositories back local runs without POSTGRES_URI and the
// package tests of the automation layer. They copy on every read and write so
// callers never share state with the store.

type MemoryPostingJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*models.PostingJob
	now  func() time.Time
}

func NewMemoryPostingJobRepository() *MemoryPostingJobRepository {
	return &MemoryPostingJobRepository{jobs: map[string]*models.PostingJob{}, now: time.Now}
}

func (r *MemoryPostingJobRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryPostingJobRepository) Create(ctx context.Context, job *models.PostingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := r.now()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *MemoryPostingJobRepository) GetByID(ctx context.Context, id string) (*models.PostingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return job.Clone(), nil
}

func isDue(job *models.PostingJob, now time.Time) bool {
	switch job.Status {
	case models.JobStatusPending:
		return !job.ScheduledFor.After(now)
	case models.JobStatusProcessing:
		return job.LeaseExpiresAt != nil && !job.LeaseExpiresAt.After(now)
	}
	return false
}

func (r *MemoryPostingJobRepository) FindDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.PostingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.PostingJob
	for _, job := range r.jobs {
		if isDue(job, now) {
			due = append(due, job.Clone())
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ScheduledFor.Before(due[k].ScheduledFor) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryPostingJobRepository) Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || !isDue(job, now) {
		return false, nil
	}
	lease := leaseUntil
	job.Status = models.JobStatusProcessing
	job.LeaseExpiresAt = &lease
	job.UpdatedAt = now
	return true, nil
}

func (r *MemoryPostingJobRepository) Save(ctx context.Context, job *models.PostingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %s not found", job.ID)
	}
	job.UpdatedAt = r.now()
	job.CreatedAt = existing.CreatedAt
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *MemoryPostingJobRepository) filter(keep func(*models.PostingJob) bool) []*models.PostingJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostingJob
	for _, job := range r.jobs {
		if keep(job) {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ScheduledFor.Before(out[k].ScheduledFor) })
	return out
}

func (r *MemoryPostingJobRepository) ListBySubscriber(ctx context.Context, subscriberID string) ([]*models.PostingJob, error) {
	return r.filter(func(j *models.PostingJob) bool { return j.SubscriberID == subscriberID }), nil
}

func (r *MemoryPostingJobRepository) ListFailed(ctx context.Context, subscriberID string) ([]*models.PostingJob, error) {
	return r.filter(func(j *models.PostingJob) bool {
		return j.Status == models.JobStatusFailed && (subscriberID == "" || j.SubscriberID == subscriberID)
	}), nil
}

func (r *MemoryPostingJobRepository) ListSince(ctx context.Context, subscriberID string, since time.Time) ([]*models.PostingJob, error) {
	return r.filter(func(j *models.PostingJob) bool {
		return j.SubscriberID == subscriberID && !j.ScheduledFor.Before(since)
	}), nil
}

func (r *MemoryPostingJobRepository) CountAutomatedSince(ctx context.Context, subscriberID string, since time.Time) (int, error) {
	jobs := r.filter(func(j *models.PostingJob) bool {
		return j.SubscriberID == subscriberID && j.IsAutomated && !j.CreatedAt.Before(since)
	})
	return len(jobs), nil
}

func (r *MemoryPostingJobRepository) DeleteOlderThan(ctx context.Context, status models.JobStatus, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, job := range r.jobs {
		if job.Status == status && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *MemoryPostingJobRepository) Remove(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, nil
	}
	if job.Status == models.JobStatusProcessing && job.LeaseExpiresAt != nil && job.LeaseExpiresAt.After(now) {
		return false, nil
	}
	delete(r.jobs, id)
	return true, nil
}

type MemorySubscriberRepository struct {
	mu          sync.RWMutex
	subscribers map[string]*models.Subscriber
}

func NewMemorySubscriberRepository(subscribers ...*models.Subscriber) *MemorySubscriberRepository {
	r := &MemorySubscriberRepository{subscribers: map[string]*models.Subscriber{}}
	for _, s := range subscribers {
		r.Put(s)
	}
	return r
}

func (r *MemorySubscriberRepository) Put(s *models.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.subscribers[s.ID] = &c
}

func (r *MemorySubscriberRepository) GetByID(ctx context.Context, id string) (*models.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subscribers[id]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r *MemorySubscriberRepository) ListAutoContentEnabled(ctx context.Context) ([]*models.Subscriber, error) {
	return r.list(func(s *models.Subscriber) bool { return s.IsActive && s.AutoContentEnabled }), nil
}

func (r *MemorySubscriberRepository) ListActive(ctx context.Context) ([]*models.Subscriber, error) {
	return r.list(func(s *models.Subscriber) bool { return s.IsActive }), nil
}

func (r *MemorySubscriberRepository) list(keep func(*models.Subscriber) bool) []*models.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Subscriber
	for _, s := range r.subscribers {
		if keep(s) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

type MemorySubscriptionRepository struct {
	mu   sync.Mutex
	subs map[string]*models.Subscription // keyed by subscriber id
}

func NewMemorySubscriptionRepository(subs ...*models.Subscription) *MemorySubscriptionRepository {
	r := &MemorySubscriptionRepository{subs: map[string]*models.Subscription{}}
	for _, s := range subs {
		c := *s
		r.subs[s.SubscriberID] = &c
	}
	return r
}

func (r *MemorySubscriptionRepository) GetBySubscriberID(ctx context.Context, subscriberID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[subscriberID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r *MemorySubscriptionRepository) ListDueForBilling(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Subscription
	for _, s := range r.subs {
		if s.Status == models.SubscriptionActive && !s.NextBillingDate.After(now) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].NextBillingDate.Before(out[k].NextBillingDate) })
	return out, nil
}

func (r *MemorySubscriptionRepository) IncrementUsage(ctx context.Context, subscriberID string, resource models.Resource, amount int) error {
	if _, err := usageColumn(resource); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[subscriberID]
	if !ok {
		return fmt.Errorf("no rows affected; subscription for subscriber %s may not exist", subscriberID)
	}
	s.Current.Add(resource, amount)
	s.Lifetime.Add(resource, amount)
	return nil
}

func (r *MemorySubscriptionRepository) IncrementPublished(ctx context.Context, subscriberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[subscriberID]
	if !ok {
		return fmt.Errorf("no rows affected; subscription for subscriber %s may not exist", subscriberID)
	}
	s.PostsPublished++
	return nil
}

func (r *MemorySubscriptionRepository) Rollover(ctx context.Context, sub *models.Subscription, expectedNextBilling time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[sub.SubscriberID]
	if !ok || s.ID != sub.ID || !s.NextBillingDate.Equal(expectedNextBilling) {
		return false, nil
	}
	s.Previous = s.Current
	s.Current = models.UsageCounters{}
	s.CurrentPeriodStart = sub.CurrentPeriodStart
	s.CurrentPeriodEnd = sub.CurrentPeriodEnd
	s.NextBillingDate = sub.NextBillingDate
	s.BillingRetryCount = 0

	sub.Previous = s.Previous
	sub.Current = s.Current
	sub.BillingRetryCount = 0
	return true, nil
}
