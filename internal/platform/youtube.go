package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	youtubeTitleLimit       = 100
	youtubeDescriptionLimit = 5000
)

type youtubePublisher struct {
	oauth    *oauth2.Config
	http     *http.Client
	endpoint string
}

// NewYoutubePublisher uploads through the Data API. endpoint overrides the
// API base URL when non-empty.
func NewYoutubePublisher(clientID, clientSecret, endpoint string, httpClient *http.Client) Publisher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &youtubePublisher{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		http:     httpClient,
		endpoint: endpoint,
	}
}

func (p *youtubePublisher) Name() string { return "youtube" }

func (p *youtubePublisher) RequiresMedia() bool { return true }

func (p *youtubePublisher) service(ctx context.Context, creds models.Credentials) (*youtube.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiresAt,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, p.oauth.TokenSource(ctx, token)))}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	return youtube.NewService(ctx, opts...)
}

// Publish streams the first attached video from its URL into videos.insert.
func (p *youtubePublisher) Publish(ctx context.Context, creds models.Credentials, content Content) (*Result, error) {
	videos := mediaOfType(content.Media, "video")
	if len(videos) == 0 {
		return nil, ErrMediaRequired
	}

	svc, err := p.service(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("error creating YouTube service: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videos[0].URL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating download request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error downloading video: status %d", resp.StatusCode)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(content.Text),
			Description: composeCaption(content.Text, content.Hashtags, 0, youtubeDescriptionLimit),
			Tags:        content.Hashtags,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{PrivacyStatus: "public"},
	}
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(resp.Body).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("error uploading video: %w", err)
	}
	return &Result{ExternalPostID: uploaded.Id, PostedAt: time.Now()}, nil
}

// videoTitle uses the first line of text as the title.
func videoTitle(text string) string {
	title := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	if title == "" {
		title = "New video"
	}
	return truncate(title, youtubeTitleLimit)
}

func (p *youtubePublisher) VerifyConnection(ctx context.Context, creds models.Credentials) (bool, error) {
	svc, err := p.service(ctx, creds)
	if err != nil {
		return false, err
	}
	channels, err := svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return false, nil
		}
		return false, err
	}
	return len(channels.Items) > 0, nil
}

func (p *youtubePublisher) GetAnalytics(ctx context.Context, creds models.Credentials, externalPostID string) (*Analytics, error) {
	svc, err := p.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	list, err := svc.Videos.List([]string{"statistics"}).Id(externalPostID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch YouTube statistics: %w", err)
	}
	if len(list.Items) == 0 || list.Items[0].Statistics == nil {
		return nil, fmt.Errorf("video %s not found", externalPostID)
	}

	stats := list.Items[0].Statistics
	a := &Analytics{
		Likes:    int(stats.LikeCount),
		Comments: int(stats.CommentCount),
	}
	a.Engagement = a.Likes + a.Comments
	return a, nil
}
