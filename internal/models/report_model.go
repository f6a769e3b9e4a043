package models

import "time"

type PlatformMetrics struct {
	Posts      int `json:"posts"`
	Likes      int `json:"likes"`
	Comments   int `json:"comments"`
	Shares     int `json:"shares"`
	Engagement int `json:"engagement"`
}

type WeeklyReport struct {
	SubscriberID   string                      `json:"subscriber_id"`
	PeriodStart    time.Time                   `json:"period_start"`
	PeriodEnd      time.Time                   `json:"period_end"`
	PostsPublished int                         `json:"posts_published"`
	PostsFailed    int                         `json:"posts_failed"`
	Totals         PlatformMetrics             `json:"totals"`
	ByPlatform     map[string]*PlatformMetrics `json:"by_platform"`
	GeneratedAt    time.Time                   `json:"generated_at"`
}
