package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/sashabaranov/go-openai"
)

type GeneratedContent struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags"`
	MediaURL string   `json:"media_url,omitempty"`
}

// ContentService writes captions for automated posts. Generate never fails:
// any model error yields a template caption.
type ContentService interface {
	Generate(ctx context.Context, subscriber *models.Subscriber, contentType models.ContentType, customPrompt string) GeneratedContent
}

type contentService struct {
	client *openai.Client
	model  string
}

// NewContentService uses OpenAI when apiKey is set. baseURL overrides the API
// endpoint when non-empty.
func NewContentService(apiKey, model, baseURL string) ContentService {
	s := &contentService{model: model}
	if s.model == "" {
		s.model = openai.GPT4oMini
	}
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		s.client = openai.NewClientWithConfig(cfg)
	}
	return s
}

func (s *contentService) Generate(ctx context.Context, subscriber *models.Subscriber, contentType models.ContentType, customPrompt string) GeneratedContent {
	if s.client == nil {
		return FallbackContent(subscriber, contentType)
	}

	content, err := s.generate(ctx, subscriber, contentType, customPrompt)
	if err != nil {
		slog.Warn("content generation failed, using fallback", "subscriber", subscriber.ID, "content_type", contentType, "error", err)
		return FallbackContent(subscriber, contentType)
	}
	return content
}

func (s *contentService) generate(ctx context.Context, subscriber *models.Subscriber, contentType models.ContentType, customPrompt string) (GeneratedContent, error) {
	prompt := fmt.Sprintf(
		"Write one %s social media post for %q, a %s business. Keep it under 200 words.",
		strings.ReplaceAll(string(contentType), "_", " "), subscriber.Name, businessLabel(subscriber.BusinessType),
	)
	if customPrompt != "" {
		prompt += " " + customPrompt
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: `You write social media posts for small businesses. Reply with JSON: {"text": string, "hashtags": [string]}.`},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.8,
	}
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return GeneratedContent{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return GeneratedContent{}, fmt.Errorf("OpenAI returned no choices")
	}

	var out GeneratedContent
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return GeneratedContent{}, fmt.Errorf("decoding generated content: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)
	if out.Text == "" {
		return GeneratedContent{}, fmt.Errorf("generated content is empty")
	}
	return out, nil
}

var fallbackTemplates = map[models.ContentType]string{
	models.ContentPromotional:     "Something new is waiting for you at %s. Visit us this week!",
	models.ContentEducational:     "Did you know? The team at %s is always happy to share what we know. Ask us anything!",
	models.ContentBehindScenes:    "A look behind the scenes at %s. This is where the work happens.",
	models.ContentProductShowcase: "Meet one of our favourites at %s. Made with care for you.",
	models.ContentCustomerStory:   "Our customers make %s what it is. Thank you for your trust!",
	models.ContentTips:            "Quick tip from %s: small steps every day add up.",
	models.ContentNews:            "News from %s: stay tuned for updates this week.",
}

func FallbackContent(subscriber *models.Subscriber, contentType models.ContentType) GeneratedContent {
	template, ok := fallbackTemplates[contentType]
	if !ok {
		template = fallbackTemplates[models.ContentPromotional]
	}
	name := subscriber.Name
	if name == "" {
		name = "our business"
	}

	hashtags := []string{"smallbusiness", "supportlocal"}
	if bt := strings.ReplaceAll(strings.ToLower(subscriber.BusinessType), " ", ""); bt != "" {
		hashtags = append(hashtags, bt)
	}
	return GeneratedContent{Text: fmt.Sprintf(template, name), Hashtags: hashtags}
}

func businessLabel(businessType string) string {
	if businessType == "" {
		return "local"
	}
	return strings.ReplaceAll(businessType, "_", " ")
}
