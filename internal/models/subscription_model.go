package models

import (
	"time"
)

type BillingCycle string

const (
	BillingMonthly   BillingCycle = "monthly"
	BillingQuarterly BillingCycle = "quarterly"
	BillingYearly    BillingCycle = "yearly"
)

const (
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

type Resource string

const (
	ResourcePosts  Resource = "posts"
	ResourceVideos Resource = "videos"
	ResourceImages Resource = "images"
)

type UsageCounters struct {
	Posts  int `json:"posts"`
	Videos int `json:"videos"`
	Images int `json:"images"`
}

func (u UsageCounters) Get(r Resource) int {
	switch r {
	case ResourcePosts:
		return u.Posts
	case ResourceVideos:
		return u.Videos
	case ResourceImages:
		return u.Images
	}
	return 0
}

func (u *UsageCounters) Add(r Resource, n int) {
	switch r {
	case ResourcePosts:
		u.Posts += n
	case ResourceVideos:
		u.Videos += n
	case ResourceImages:
		u.Images += n
	}
}

type Subscription struct {
	ID                 string        `db:"id" json:"id"`
	SubscriberID       string        `db:"subscriber_id" json:"subscriber_id"`
	PlanID             string        `db:"plan_id" json:"plan_id"`
	BillingCycle       BillingCycle  `db:"billing_cycle" json:"billing_cycle"`
	Status             string        `db:"status" json:"status"`
	Current            UsageCounters `json:"current"`
	Previous           UsageCounters `json:"previous"`
	Lifetime           UsageCounters `json:"lifetime"`
	PostsPublished     int           `db:"posts_published" json:"posts_published"`
	CurrentPeriodStart time.Time     `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   time.Time     `db:"current_period_end" json:"current_period_end"`
	NextBillingDate    time.Time     `db:"next_billing_date" json:"next_billing_date"`
	BillingRetryCount  int           `db:"billing_retry_count" json:"billing_retry_count"`
	// BillingAnchorDay is the day of month billing renews on; month-end
	// clamping never moves it. Zero falls back to NextBillingDate's day.
	BillingAnchorDay int       `db:"billing_anchor_day" json:"billing_anchor_day"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

func (s *Subscription) AnchorDay() int {
	if s.BillingAnchorDay > 0 {
		return s.BillingAnchorDay
	}
	return s.NextBillingDate.Day()
}
