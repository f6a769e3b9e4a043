package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/automation"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
)

// maxCatchUpCycles bounds how many overdue cycles one run rolls for a single
// subscription.
const maxCatchUpCycles = 24

type BillingRolloverJob struct {
	subs        repository.SubscriptionRepository
	quota       service.QuotaService
	notifier    queue.Notifier
	clock       automation.Clock
	concurrency int
}

func NewBillingRolloverJob(subs repository.SubscriptionRepository, quota service.QuotaService, notifier queue.Notifier, clock automation.Clock, concurrency int) *BillingRolloverJob {
	return &BillingRolloverJob{subs: subs, quota: quota, notifier: notifier, clock: clock, concurrency: concurrency}
}

func (j *BillingRolloverJob) Run(ctx context.Context) (Summary, error) {
	now := j.clock.Now()
	due, err := j.subs.ListDueForBilling(ctx, now)
	if err != nil {
		slog.Info(err.Error())
		return Summary{}, fmt.Errorf("listing subscriptions due for billing: %w", err)
	}

	summary := forEach(ctx, "billing_rollover", j.concurrency, due,
		func(s *models.Subscription) string { return s.ID },
		func(ctx context.Context, sub *models.Subscription) (outcome, error) {
			rolled := 0
			for rolled < maxCatchUpCycles {
				applied, err := j.quota.RolloverBillingCycle(ctx, sub, now)
				if err != nil {
					return outcomeFailed, err
				}
				if !applied {
					break
				}
				rolled++
			}
			if rolled == 0 {
				return outcomeSkipped, nil
			}

			slog.Info("billing cycle rolled over", "subscription", sub.ID, "subscriber", sub.SubscriberID,
				"cycles", rolled, "next_billing_date", sub.NextBillingDate)
			j.notifier.NotifyRenewal(ctx, sub)
			return outcomeProcessed, nil
		})
	return summary, nil
}
