package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

const facebookCaptionLimit = 63206

type facebookPublisher struct {
	api *apiClient
}

func NewFacebookPublisher(baseURL string, httpClient *http.Client, requestsPerSecond float64) Publisher {
	return &facebookPublisher{api: newAPIClient("facebook", baseURL, httpClient, requestsPerSecond)}
}

func (p *facebookPublisher) Name() string { return "facebook" }

// Publish posts the first image as a photo when one is attached, otherwise a
// plain feed post. Facebook pages take one photo per post.
func (p *facebookPublisher) Publish(ctx context.Context, creds models.Credentials, content Content) (*Result, error) {
	if creds.AccountID == "" {
		return nil, ErrNoAccount
	}
	message := composeCaption(content.Text, content.Hashtags, 0, facebookCaptionLimit)

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if images := mediaOfType(content.Media, "image"); len(images) > 0 {
		payload := map[string]any{
			"url":          images[0].URL,
			"caption":      message,
			"access_token": creds.AccessToken,
		}
		if err := p.api.do(ctx, http.MethodPost, creds.AccountID+"/photos", "", payload, &result); err != nil {
			return nil, fmt.Errorf("failed to post photo on Facebook: %w", err)
		}
	} else {
		payload := map[string]any{
			"message":      message,
			"access_token": creds.AccessToken,
		}
		if err := p.api.do(ctx, http.MethodPost, creds.AccountID+"/feed", "", payload, &result); err != nil {
			return nil, fmt.Errorf("failed to post on Facebook: %w", err)
		}
	}

	id := result.PostID
	if id == "" {
		id = result.ID
	}
	if id == "" {
		return nil, errors.New("no post ID returned from Facebook")
	}
	return &Result{ExternalPostID: id, PostedAt: time.Now()}, nil
}

func (p *facebookPublisher) VerifyConnection(ctx context.Context, creds models.Credentials) (bool, error) {
	var me struct {
		ID string `json:"id"`
	}
	path := "me?fields=id&access_token=" + url.QueryEscape(creds.AccessToken)
	if err := p.api.do(ctx, http.MethodGet, path, "", nil, &me); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return false, nil
		}
		return false, err
	}
	return me.ID != "", nil
}

func (p *facebookPublisher) GetAnalytics(ctx context.Context, creds models.Credentials, externalPostID string) (*Analytics, error) {
	var stats struct {
		Likes struct {
			Summary struct {
				TotalCount int `json:"total_count"`
			} `json:"summary"`
		} `json:"likes"`
		Comments struct {
			Summary struct {
				TotalCount int `json:"total_count"`
			} `json:"summary"`
		} `json:"comments"`
		Shares struct {
			Count int `json:"count"`
		} `json:"shares"`
	}
	query := url.Values{}
	query.Set("fields", "likes.summary(true),comments.summary(true),shares")
	query.Set("access_token", creds.AccessToken)
	if err := p.api.do(ctx, http.MethodGet, externalPostID+"?"+query.Encode(), "", nil, &stats); err != nil {
		return nil, fmt.Errorf("failed to fetch Facebook analytics: %w", err)
	}

	a := &Analytics{
		Likes:    stats.Likes.Summary.TotalCount,
		Comments: stats.Comments.Summary.TotalCount,
		Shares:   stats.Shares.Count,
	}
	a.Engagement = a.Likes + a.Comments + a.Shares
	return a, nil
}
