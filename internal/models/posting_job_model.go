package models

import (
	"sort"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusPosted     JobStatus = "posted"
	JobStatusFailed     JobStatus = "failed"
)

type ContentType string

const (
	ContentPromotional     ContentType = "promotional"
	ContentEducational     ContentType = "educational"
	ContentBehindScenes    ContentType = "behind_scenes"
	ContentProductShowcase ContentType = "product_showcase"
	ContentCustomerStory   ContentType = "customer_story"
	ContentTips            ContentType = "tips"
	ContentNews            ContentType = "news"
)

const DefaultMaxRetries = 3

type MediaRef struct {
	Type string `json:"type"` // image, video
	URL  string `json:"url"`
}

type PlatformTarget struct {
	Enabled        bool       `json:"enabled"`
	Posted         bool       `json:"posted"`
	ExternalPostID string     `json:"external_post_id,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

type ErrorEntry struct {
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

type PostingJob struct {
	ID           string                     `db:"id" json:"id"`
	SubscriberID string                     `db:"subscriber_id" json:"subscriber_id"`
	Text         string                     `db:"text" json:"text"`
	Media        []MediaRef                 `db:"media" json:"media"`
	Hashtags     []string                   `db:"hashtags" json:"hashtags"`
	AIGenerated  bool                       `db:"ai_generated" json:"ai_generated"`
	ContentType  ContentType                `db:"content_type" json:"content_type"`
	ScheduledFor time.Time                  `db:"scheduled_for" json:"scheduled_for"`
	Timezone     string                     `db:"timezone" json:"timezone"`
	Platforms    map[string]*PlatformTarget `db:"platforms" json:"platforms"`
	Status       JobStatus                  `db:"status" json:"status"`
	RetryCount   int                        `db:"retry_count" json:"retry_count"`
	MaxRetries   int                        `db:"max_retries" json:"max_retries"`
	ErrorLog     []ErrorEntry               `db:"error_log" json:"error_log"`
	IsAutomated  bool                       `db:"is_automated" json:"is_automated"`
	PostedAt     *time.Time                 `db:"posted_at" json:"posted_at,omitempty"`
	// LeaseExpiresAt is set while the job is processing; an expired lease
	// makes the job due again.
	LeaseExpiresAt *time.Time `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// EnabledPlatforms returns the names of enabled targets in a stable order.
func (j *PostingJob) EnabledPlatforms() []string {
	names := make([]string, 0, len(j.Platforms))
	for name, target := range j.Platforms {
		if target != nil && target.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (j *PostingJob) AnyPosted() bool {
	for _, target := range j.Platforms {
		if target != nil && target.Enabled && target.Posted {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without sharing target
// pointers.
func (j *PostingJob) Clone() *PostingJob {
	c := *j
	c.Media = append([]MediaRef(nil), j.Media...)
	c.Hashtags = append([]string(nil), j.Hashtags...)
	c.ErrorLog = append([]ErrorEntry(nil), j.ErrorLog...)
	if j.Platforms != nil {
		c.Platforms = make(map[string]*PlatformTarget, len(j.Platforms))
		for name, target := range j.Platforms {
			if target == nil {
				continue
			}
			t := *target
			c.Platforms[name] = &t
		}
	}
	return &c
}
