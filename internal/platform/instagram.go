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

const (
	instagramCaptionLimit = 2200
	instagramMaxHashtags  = 30
	instagramCarouselMax  = 10
)

type instagramPublisher struct {
	api *apiClient
}

func NewInstagramPublisher(baseURL string, httpClient *http.Client, requestsPerSecond float64) Publisher {
	return &instagramPublisher{api: newAPIClient("instagram", baseURL, httpClient, requestsPerSecond)}
}

func (p *instagramPublisher) Name() string { return "instagram" }

func (p *instagramPublisher) RequiresMedia() bool { return true }

// Publish creates a media container (or a carousel of up to ten) and
// publishes it. Instagram rejects posts without media.
func (p *instagramPublisher) Publish(ctx context.Context, creds models.Credentials, content Content) (*Result, error) {
	if creds.AccountID == "" {
		return nil, ErrNoAccount
	}
	media := make([]models.MediaRef, 0, len(content.Media))
	for _, m := range content.Media {
		if m.URL != "" {
			media = append(media, m)
		}
	}
	if len(media) == 0 {
		return nil, ErrMediaRequired
	}
	if len(media) > instagramCarouselMax {
		media = media[:instagramCarouselMax]
	}
	caption := composeCaption(content.Text, content.Hashtags, instagramMaxHashtags, instagramCaptionLimit)

	var containerID string
	var err error
	if len(media) == 1 {
		containerID, err = p.createContainer(ctx, creds, mediaPayload(media[0], map[string]any{"caption": caption}))
		if err != nil {
			return nil, fmt.Errorf("failed to create Instagram media container: %w", err)
		}
	} else {
		children := make([]string, 0, len(media))
		for _, m := range media {
			childID, err := p.createContainer(ctx, creds, mediaPayload(m, map[string]any{"is_carousel_item": true}))
			if err != nil {
				return nil, fmt.Errorf("failed to create Instagram carousel item: %w", err)
			}
			children = append(children, childID)
		}
		containerID, err = p.createContainer(ctx, creds, map[string]any{
			"media_type": "CAROUSEL",
			"caption":    caption,
			"children":   children,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Instagram carousel: %w", err)
		}
	}

	var published struct {
		ID string `json:"id"`
	}
	payload := map[string]any{
		"creation_id":  containerID,
		"access_token": creds.AccessToken,
	}
	if err := p.api.do(ctx, http.MethodPost, creds.AccountID+"/media_publish", "", payload, &published); err != nil {
		return nil, fmt.Errorf("failed to publish Instagram media: %w", err)
	}
	if published.ID == "" {
		return nil, errors.New("no media ID returned from Instagram")
	}
	return &Result{ExternalPostID: published.ID, PostedAt: time.Now()}, nil
}

func mediaPayload(m models.MediaRef, extra map[string]any) map[string]any {
	payload := map[string]any{}
	if m.Type == "video" {
		payload["media_type"] = "REELS"
		payload["video_url"] = m.URL
	} else {
		payload["image_url"] = m.URL
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

func (p *instagramPublisher) createContainer(ctx context.Context, creds models.Credentials, payload map[string]any) (string, error) {
	payload["access_token"] = creds.AccessToken
	var result struct {
		ID string `json:"id"`
	}
	if err := p.api.do(ctx, http.MethodPost, creds.AccountID+"/media", "", payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errors.New("no container ID returned from Instagram")
	}
	return result.ID, nil
}

func (p *instagramPublisher) VerifyConnection(ctx context.Context, creds models.Credentials) (bool, error) {
	var me struct {
		ID string `json:"id"`
	}
	path := "me?fields=id,username&access_token=" + url.QueryEscape(creds.AccessToken)
	if err := p.api.do(ctx, http.MethodGet, path, "", nil, &me); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return false, nil
		}
		return false, err
	}
	return me.ID != "", nil
}

func (p *instagramPublisher) GetAnalytics(ctx context.Context, creds models.Credentials, externalPostID string) (*Analytics, error) {
	var stats struct {
		LikeCount     int `json:"like_count"`
		CommentsCount int `json:"comments_count"`
	}
	query := url.Values{}
	query.Set("fields", "like_count,comments_count")
	query.Set("access_token", creds.AccessToken)
	if err := p.api.do(ctx, http.MethodGet, externalPostID+"?"+query.Encode(), "", nil, &stats); err != nil {
		return nil, fmt.Errorf("failed to fetch Instagram analytics: %w", err)
	}
	return &Analytics{
		Likes:      stats.LikeCount,
		Comments:   stats.CommentsCount,
		Engagement: stats.LikeCount + stats.CommentsCount,
	}, nil
}
