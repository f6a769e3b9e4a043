package models

import "time"

type Credentials struct {
	Platform     string    `db:"platform" json:"platform"`
	AccountID    string    `db:"account_id" json:"account_id"`
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	ExpiresAt    time.Time `db:"token_expires_at" json:"token_expires_at"`
}

type Subscriber struct {
	ID                 string                 `db:"id" json:"id"`
	Name               string                 `db:"name" json:"name"`
	Email              string                 `db:"email" json:"email"`
	BusinessType       string                 `db:"business_type" json:"business_type"`
	Timezone           string                 `db:"timezone" json:"timezone"`
	AutoContentEnabled bool                   `db:"auto_content_enabled" json:"auto_content_enabled"`
	IsActive           bool                   `db:"is_active" json:"is_active"`
	Credentials        map[string]Credentials `db:"-" json:"credentials"`
	CreatedAt          time.Time              `db:"created_at" json:"created_at"`
}

// Location resolves the subscriber's timezone, falling back to fallback.
func (s *Subscriber) Location(fallback *time.Location) *time.Location {
	if s.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}
