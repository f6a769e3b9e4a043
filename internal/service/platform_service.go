package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// Connection is one connected social account and whether its token still
// works against the platform.
type Connection struct {
	Platform  string    `json:"platform"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"token_expires_at"`
	Supported bool      `json:"supported"`
	Verified  bool      `json:"verified"`
	Error     string    `json:"error,omitempty"`
}

type PlatformService interface {
	// List returns the subscriber's connected accounts, verified in parallel.
	List(ctx context.Context, subscriberID string) ([]Connection, error)
}

type platformService struct {
	subscribers repository.SubscriberRepository
	registry    *platform.Registry
	secretKey   string
	timeout     time.Duration
}

func NewPlatformService(subscribers repository.SubscriberRepository, registry *platform.Registry, secretKey string, timeout time.Duration) PlatformService {
	return &platformService{
		subscribers: subscribers,
		registry:    registry,
		secretKey:   secretKey,
		timeout:     timeout,
	}
}

func (s *platformService) List(ctx context.Context, subscriberID string) ([]Connection, error) {
	subscriber, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("loading subscriber %s: %w", subscriberID, err)
	}
	if subscriber == nil {
		return nil, ErrSubscriberInactive
	}

	names := make([]string, 0, len(subscriber.Credentials))
	for name := range subscriber.Credentials {
		names = append(names, name)
	}
	sort.Strings(names)

	connections := make([]Connection, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		stored := subscriber.Credentials[name]
		connections[i] = Connection{Platform: name, AccountID: stored.AccountID, ExpiresAt: stored.ExpiresAt}

		publisher, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		connections[i].Supported = true

		g.Go(func() error {
			c := &connections[i]
			creds, err := utils.DecryptCredentials(stored, s.secretKey)
			if err != nil {
				slog.Info(err.Error())
				c.Error = "stored token is unreadable"
				return nil
			}

			vctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()
			c.Verified, err = publisher.VerifyConnection(vctx, creds)
			if err != nil {
				c.Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return connections, nil
}
