package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

var (
	ErrQuotaExceeded  = errors.New("monthly quota exceeded")
	ErrNoSubscription = errors.New("subscriber has no subscription")
)

type QuotaService interface {
	// CanGenerate reports whether the current-period counter for resource is
	// below the plan limit.
	CanGenerate(ctx context.Context, subscriberID string, resource models.Resource) (bool, error)
	// CanConsume reports whether amount more of resource fits under the plan
	// limit for the current period.
	CanConsume(ctx context.Context, subscriberID string, resource models.Resource, amount int) (bool, error)
	RecordUsage(ctx context.Context, subscriberID string, resource models.Resource, amount int) error
	RecordPublished(ctx context.Context, subscriberID string) error
	// RolloverBillingCycle reports whether the subscription moved to its next
	// cycle. It is a no-op before NextBillingDate or when another caller has
	// already rolled the same cycle.
	RolloverBillingCycle(ctx context.Context, sub *models.Subscription, now time.Time) (bool, error)
	Usage(ctx context.Context, subscriberID string, now time.Time) (*UsageSummary, error)
}

type quotaService struct {
	plans *config.PlanCatalog
	subs  repository.SubscriptionRepository
}

func NewQuotaService(plans *config.PlanCatalog, subs repository.SubscriptionRepository) QuotaService {
	return &quotaService{plans: plans, subs: subs}
}

func (s *quotaService) CanGenerate(ctx context.Context, subscriberID string, resource models.Resource) (bool, error) {
	return s.CanConsume(ctx, subscriberID, resource, 1)
}

func (s *quotaService) CanConsume(ctx context.Context, subscriberID string, resource models.Resource, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("usage amount must be positive, got %d", amount)
	}
	sub, err := s.subs.GetBySubscriberID(ctx, subscriberID)
	if err != nil {
		return false, fmt.Errorf("loading subscription: %w", err)
	}
	if sub == nil || sub.Status != models.SubscriptionActive {
		return false, nil
	}

	plan, ok := s.plans.Get(sub.PlanID)
	if !ok {
		return false, fmt.Errorf("unknown plan %q for subscriber %s", sub.PlanID, subscriberID)
	}
	if sub.Current.Get(resource)+amount <= PlanLimit(plan, resource) {
		return true, nil
	}
	metrics.QuotaDenials.WithLabelValues(string(resource)).Inc()
	return false, nil
}

func (s *quotaService) RecordUsage(ctx context.Context, subscriberID string, resource models.Resource, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("usage amount must be positive, got %d", amount)
	}
	if err := s.subs.IncrementUsage(ctx, subscriberID, resource, amount); err != nil {
		return fmt.Errorf("recording %s usage: %w", resource, err)
	}
	return nil
}

func (s *quotaService) RecordPublished(ctx context.Context, subscriberID string) error {
	if err := s.subs.IncrementPublished(ctx, subscriberID); err != nil {
		return fmt.Errorf("recording published post: %w", err)
	}
	return nil
}

func (s *quotaService) RolloverBillingCycle(ctx context.Context, sub *models.Subscription, now time.Time) (bool, error) {
	if sub == nil {
		return false, ErrNoSubscription
	}
	if now.Before(sub.NextBillingDate) {
		return false, nil
	}

	expected := sub.NextBillingDate
	next := *sub
	next.CurrentPeriodStart = expected
	next.CurrentPeriodEnd = AddBillingCycle(expected, sub.BillingCycle, sub.AnchorDay())
	next.NextBillingDate = next.CurrentPeriodEnd

	applied, err := s.subs.Rollover(ctx, &next, expected)
	if err != nil {
		return false, fmt.Errorf("rolling over subscription %s: %w", sub.ID, err)
	}
	if !applied {
		slog.Info("billing cycle already rolled over", "subscription", sub.ID, "next_billing", expected)
		return false, nil
	}
	*sub = next
	return true, nil
}

type UsageSummary struct {
	PlanID           string               `json:"plan_id"`
	Current          models.UsageCounters `json:"current"`
	Limits           models.UsageCounters `json:"limits"`
	PostsPercentage  float64              `json:"posts_percentage"`
	DaysUntilRenewal int                  `json:"days_until_renewal"`
}

func (s *quotaService) Usage(ctx context.Context, subscriberID string, now time.Time) (*UsageSummary, error) {
	sub, err := s.subs.GetBySubscriberID(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNoSubscription
	}
	plan, ok := s.plans.Get(sub.PlanID)
	if !ok {
		return nil, fmt.Errorf("unknown plan %q", sub.PlanID)
	}
	return &UsageSummary{
		PlanID:  sub.PlanID,
		Current: sub.Current,
		Limits: models.UsageCounters{
			Posts:  plan.MonthlyPosts,
			Videos: plan.MonthlyVideos,
			Images: plan.MonthlyImages,
		},
		PostsPercentage:  UsagePercentage(sub, plan, models.ResourcePosts),
		DaysUntilRenewal: DaysUntilRenewal(sub, now),
	}, nil
}

func PlanLimit(plan config.Plan, resource models.Resource) int {
	switch resource {
	case models.ResourcePosts:
		return plan.MonthlyPosts
	case models.ResourceVideos:
		return plan.MonthlyVideos
	case models.ResourceImages:
		return plan.MonthlyImages
	}
	return 0
}

// UsagePercentage is current usage of resource as a percentage of the plan
// limit, rounded to two decimals. A zero limit reads as 100 when anything was
// used and 0 otherwise.
func UsagePercentage(sub *models.Subscription, plan config.Plan, resource models.Resource) float64 {
	used := sub.Current.Get(resource)
	limit := PlanLimit(plan, resource)
	if limit <= 0 {
		if used > 0 {
			return 100
		}
		return 0
	}
	return math.Round(float64(used)*10000/float64(limit)) / 100
}

// DaysUntilRenewal counts whole days, rounded up, until NextBillingDate.
func DaysUntilRenewal(sub *models.Subscription, now time.Time) int {
	remaining := sub.NextBillingDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// AddBillingCycle advances t by one billing cycle onto anchorDay. Days past
// the end of the target month clamp to its last day, so an anchor of 31 goes
// Jan 31, Feb 28, Mar 31. A non-positive anchorDay uses t's day.
func AddBillingCycle(t time.Time, cycle models.BillingCycle, anchorDay int) time.Time {
	months := 1
	switch cycle {
	case models.BillingQuarterly:
		months = 3
	case models.BillingYearly:
		months = 12
	}

	year, month, day := t.Date()
	if anchorDay > 0 {
		day = anchorDay
	}
	firstOfTarget := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	hour, minute, sec := t.Clock()
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}
