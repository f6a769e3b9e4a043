package platform

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/maheshrc27/postflow/internal/models"
)

var (
	ErrMediaRequired   = errors.New("media is required for this platform")
	ErrUnsupportedType = errors.New("unsupported media type for this platform")
	ErrNoAccount       = errors.New("credentials carry no account id")
)

// Content is the platform-neutral payload a publisher maps onto its API.
type Content struct {
	Text     string
	Media    []models.MediaRef
	Hashtags []string
}

type Result struct {
	ExternalPostID string
	PostedAt       time.Time
}

type Analytics struct {
	Likes      int `json:"likes"`
	Comments   int `json:"comments"`
	Shares     int `json:"shares"`
	Engagement int `json:"engagement"`
}

// Publisher hides one social platform's API behind a uniform contract.
// Credentials passed in are already decrypted.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, creds models.Credentials, content Content) (*Result, error)
	VerifyConnection(ctx context.Context, creds models.Credentials) (bool, error)
	GetAnalytics(ctx context.Context, creds models.Credentials, externalPostID string) (*Analytics, error)
}

// RequiresMedia reports whether p refuses text-only content.
func RequiresMedia(p Publisher) bool {
	m, ok := p.(interface{ RequiresMedia() bool })
	return ok && m.RequiresMedia()
}

type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher, len(publishers))}
	for _, p := range publishers {
		r.Register(p)
	}
	return r
}

// Register adds p under its name, replacing any previous publisher.
func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Name()] = p
}

func (r *Registry) Get(name string) (Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// composeCaption appends hashtags to text and cuts the result to limit runes.
func composeCaption(text string, hashtags []string, maxTags, limit int) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))

	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}
	if maxTags > 0 && len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	if len(tags) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Join(tags, " "))
	}
	return truncate(b.String(), limit)
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func mediaOfType(media []models.MediaRef, kind string) []models.MediaRef {
	var out []models.MediaRef
	for _, m := range media {
		if m.Type == kind && m.URL != "" {
			out = append(out, m)
		}
	}
	return out
}
