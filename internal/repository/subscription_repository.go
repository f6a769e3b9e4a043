package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type SubscriptionRepository interface {
	GetBySubscriberID(ctx context.Context, subscriberID string) (*models.Subscription, error)
	ListDueForBilling(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	// IncrementUsage adds amount to the current-period and lifetime counters
	// of resource in a single statement.
	IncrementUsage(ctx context.Context, subscriberID string, resource models.Resource, amount int) error
	IncrementPublished(ctx context.Context, subscriberID string) error
	// Rollover copies current usage into previous, zeroes current and moves
	// the billing pointers. It only applies while next_billing_date still
	// equals expectedNextBilling and reports whether a row changed.
	Rollover(ctx context.Context, sub *models.Subscription, expectedNextBilling time.Time) (bool, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `id, subscriber_id, plan_id, billing_cycle, status,
	current_posts, current_videos, current_images,
	previous_posts, previous_videos, previous_images,
	lifetime_posts, lifetime_videos, lifetime_images,
	posts_published, current_period_start, current_period_end, next_billing_date,
	billing_retry_count, billing_anchor_day, created_at, updated_at`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var s models.Subscription
	var cycle string
	err := row.Scan(&s.ID, &s.SubscriberID, &s.PlanID, &cycle, &s.Status,
		&s.Current.Posts, &s.Current.Videos, &s.Current.Images,
		&s.Previous.Posts, &s.Previous.Videos, &s.Previous.Images,
		&s.Lifetime.Posts, &s.Lifetime.Videos, &s.Lifetime.Images,
		&s.PostsPublished, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.NextBillingDate,
		&s.BillingRetryCount, &s.BillingAnchorDay, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.BillingCycle = models.BillingCycle(cycle)
	return &s, nil
}

func (r *subscriptionRepository) GetBySubscriberID(ctx context.Context, subscriberID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE subscriber_id = $1`
	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, subscriberID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sub, nil
}

func (r *subscriptionRepository) ListDueForBilling(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE status = 'active' AND next_billing_date <= $1
		ORDER BY next_billing_date`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return subs, nil
}

func usageColumn(resource models.Resource) (string, error) {
	switch resource {
	case models.ResourcePosts, models.ResourceVideos, models.ResourceImages:
		return string(resource), nil
	}
	return "", fmt.Errorf("unknown resource %q", resource)
}

func (r *subscriptionRepository) IncrementUsage(ctx context.Context, subscriberID string, resource models.Resource, amount int) error {
	column, err := usageColumn(resource)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE subscriptions
		SET current_%[1]s = current_%[1]s + $1,
			lifetime_%[1]s = lifetime_%[1]s + $1,
			updated_at = $2
		WHERE subscriber_id = $3
	`, column)
	result, err := r.db.ExecContext(ctx, query, amount, time.Now(), subscriberID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOneRow(result, "subscription for subscriber "+subscriberID)
}

func (r *subscriptionRepository) IncrementPublished(ctx context.Context, subscriberID string) error {
	query := `UPDATE subscriptions SET posts_published = posts_published + 1, updated_at = $1 WHERE subscriber_id = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now(), subscriberID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOneRow(result, "subscription for subscriber "+subscriberID)
}

func (r *subscriptionRepository) Rollover(ctx context.Context, sub *models.Subscription, expectedNextBilling time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET previous_posts = current_posts,
			previous_videos = current_videos,
			previous_images = current_images,
			current_posts = 0,
			current_videos = 0,
			current_images = 0,
			current_period_start = $1,
			current_period_end = $2,
			next_billing_date = $3,
			billing_retry_count = 0,
			updated_at = $4
		WHERE id = $5 AND next_billing_date = $6
		RETURNING previous_posts, previous_videos, previous_images
	`
	err := r.db.QueryRowContext(ctx, query, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.NextBillingDate,
		time.Now(), sub.ID, expectedNextBilling).Scan(&sub.Previous.Posts, &sub.Previous.Videos, &sub.Previous.Images)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	sub.Current = models.UsageCounters{}
	sub.BillingRetryCount = 0
	return true, nil
}

func expectOneRow(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		err = fmt.Errorf("no rows affected; %s may not exist", what)
		slog.Info(err.Error())
		return err
	}
	return nil
}
