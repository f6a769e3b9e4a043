package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

const twitterCharLimit = 280

type twitterPublisher struct {
	api *apiClient
}

func NewTwitterPublisher(baseURL string, httpClient *http.Client, requestsPerSecond float64) Publisher {
	return &twitterPublisher{api: newAPIClient("twitter", baseURL, httpClient, requestsPerSecond)}
}

func (p *twitterPublisher) Name() string { return "twitter" }

// Publish posts a text tweet. Attached media goes out as a trailing link
// since uploads need the v1.1 media endpoint.
func (p *twitterPublisher) Publish(ctx context.Context, creds models.Credentials, content Content) (*Result, error) {
	text := composeCaption(content.Text, content.Hashtags, 0, 0)
	link := ""
	if len(content.Media) > 0 && content.Media[0].URL != "" {
		link = content.Media[0].URL
	}
	text = fitTweet(text, link)

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	payload := map[string]any{"text": text}
	if err := p.api.do(ctx, http.MethodPost, "tweets", creds.AccessToken, payload, &result); err != nil {
		return nil, fmt.Errorf("failed to post tweet: %w", err)
	}
	if result.Data.ID == "" {
		return nil, errors.New("no tweet ID returned from Twitter")
	}
	return &Result{ExternalPostID: result.Data.ID, PostedAt: time.Now()}, nil
}

// fitTweet keeps link intact and cuts text so the whole tweet fits.
func fitTweet(text, link string) string {
	if link == "" {
		return truncate(text, twitterCharLimit)
	}
	room := twitterCharLimit - len([]rune(link)) - 1
	if room <= 0 {
		return truncate(link, twitterCharLimit)
	}
	text = strings.TrimSpace(truncate(text, room))
	if text == "" {
		return link
	}
	return text + " " + link
}

func (p *twitterPublisher) VerifyConnection(ctx context.Context, creds models.Credentials) (bool, error) {
	var me struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.api.do(ctx, http.MethodGet, "users/me", creds.AccessToken, nil, &me); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return false, nil
		}
		return false, err
	}
	return me.Data.ID != "", nil
}

func (p *twitterPublisher) GetAnalytics(ctx context.Context, creds models.Credentials, externalPostID string) (*Analytics, error) {
	var result struct {
		Data struct {
			PublicMetrics struct {
				LikeCount    int `json:"like_count"`
				ReplyCount   int `json:"reply_count"`
				RetweetCount int `json:"retweet_count"`
				QuoteCount   int `json:"quote_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	path := "tweets/" + externalPostID + "?tweet.fields=public_metrics"
	if err := p.api.do(ctx, http.MethodGet, path, creds.AccessToken, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch tweet metrics: %w", err)
	}

	m := result.Data.PublicMetrics
	return &Analytics{
		Likes:      m.LikeCount,
		Comments:   m.ReplyCount,
		Shares:     m.RetweetCount + m.QuoteCount,
		Engagement: m.LikeCount + m.ReplyCount + m.RetweetCount + m.QuoteCount,
	}, nil
}
