package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
)

const (
	TaskTypePostOutcome  = "notify:post_outcome"
	TaskTypeWeeklyReport = "notify:weekly_report"
	TaskTypeRenewal      = "notify:renewal"

	NotificationQueue = "notifications"
)

type PlatformOutcome struct {
	Posted         bool   `json:"posted"`
	ExternalPostID string `json:"external_post_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

type PostOutcomePayload struct {
	SubscriberID string                     `json:"subscriber_id"`
	JobID        string                     `json:"job_id"`
	Status       models.JobStatus           `json:"status"`
	RetryCount   int                        `json:"retry_count"`
	ScheduledFor time.Time                  `json:"scheduled_for"`
	Platforms    map[string]PlatformOutcome `json:"platforms"`
}

type WeeklyReportPayload struct {
	Report     models.WeeklyReport `json:"report"`
	ArchiveURL string              `json:"archive_url,omitempty"`
}

type RenewalPayload struct {
	SubscriberID    string    `json:"subscriber_id"`
	SubscriptionID  string    `json:"subscription_id"`
	PlanID          string    `json:"plan_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	NextBillingDate time.Time `json:"next_billing_date"`
}

// Notifier is fire-and-forget: failures are logged, never returned.
type Notifier interface {
	NotifyPostOutcome(ctx context.Context, job *models.PostingJob)
	NotifyWeeklyReport(ctx context.Context, report *models.WeeklyReport, archiveURL string)
	NotifyRenewal(ctx context.Context, sub *models.Subscription)
}

// Enqueuer is the part of *asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type AsynqNotifier struct {
	client Enqueuer
}

func NewAsynqNotifier(client Enqueuer) *AsynqNotifier {
	return &AsynqNotifier{client: client}
}

func PostOutcomeFromJob(job *models.PostingJob) PostOutcomePayload {
	payload := PostOutcomePayload{
		SubscriberID: job.SubscriberID,
		JobID:        job.ID,
		Status:       job.Status,
		RetryCount:   job.RetryCount,
		ScheduledFor: job.ScheduledFor,
		Platforms:    make(map[string]PlatformOutcome, len(job.Platforms)),
	}
	for name, target := range job.Platforms {
		if target == nil || !target.Enabled {
			continue
		}
		payload.Platforms[name] = PlatformOutcome{
			Posted:         target.Posted,
			ExternalPostID: target.ExternalPostID,
			Error:          target.LastError,
		}
	}
	return payload
}

func (n *AsynqNotifier) NotifyPostOutcome(ctx context.Context, job *models.PostingJob) {
	n.enqueue(ctx, TaskTypePostOutcome, PostOutcomeFromJob(job))
}

func (n *AsynqNotifier) NotifyWeeklyReport(ctx context.Context, report *models.WeeklyReport, archiveURL string) {
	n.enqueue(ctx, TaskTypeWeeklyReport, WeeklyReportPayload{Report: *report, ArchiveURL: archiveURL})
}

func (n *AsynqNotifier) NotifyRenewal(ctx context.Context, sub *models.Subscription) {
	n.enqueue(ctx, TaskTypeRenewal, RenewalPayload{
		SubscriberID:    sub.SubscriberID,
		SubscriptionID:  sub.ID,
		PlanID:          sub.PlanID,
		PeriodStart:     sub.CurrentPeriodStart,
		PeriodEnd:       sub.CurrentPeriodEnd,
		NextBillingDate: sub.NextBillingDate,
	})
}

func (n *AsynqNotifier) enqueue(ctx context.Context, taskType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Info(err.Error())
		metrics.NotificationsSent.WithLabelValues(taskType, "error").Inc()
		return
	}

	task := asynq.NewTask(taskType, data)
	_, err = n.client.EnqueueContext(ctx, task, asynq.Queue(NotificationQueue), asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
	if err != nil {
		slog.Info("failed to enqueue notification", "type", taskType, "error", err)
		metrics.NotificationsSent.WithLabelValues(taskType, "error").Inc()
		return
	}
	metrics.NotificationsSent.WithLabelValues(taskType, "enqueued").Inc()
}

// LogNotifier only logs; it stands in when no Redis is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyPostOutcome(ctx context.Context, job *models.PostingJob) {
	slog.Info("post outcome", "job", job.ID, "subscriber", job.SubscriberID, "status", job.Status, "retry_count", job.RetryCount)
}

func (LogNotifier) NotifyWeeklyReport(ctx context.Context, report *models.WeeklyReport, archiveURL string) {
	slog.Info("weekly report", "subscriber", report.SubscriberID, "published", report.PostsPublished,
		"failed", report.PostsFailed, "archive", archiveURL)
}

func (LogNotifier) NotifyRenewal(ctx context.Context, sub *models.Subscription) {
	slog.Info("subscription renewed", "subscriber", sub.SubscriberID, "next_billing", sub.NextBillingDate)
}
