package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

type SubscriberRepository interface {
	GetByID(ctx context.Context, id string) (*models.Subscriber, error)
	ListAutoContentEnabled(ctx context.Context) ([]*models.Subscriber, error)
	ListActive(ctx context.Context) ([]*models.Subscriber, error)
}

type subscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) SubscriberRepository {
	return &subscriberRepository{db: db}
}

const subscriberColumns = `id, name, email, business_type, timezone, auto_content_enabled, is_active, created_at`

func (r *subscriberRepository) GetByID(ctx context.Context, id string) (*models.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`

	var s models.Subscriber
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.Email, &s.BusinessType,
		&s.Timezone, &s.AutoContentEnabled, &s.IsActive, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	if err := r.attachCredentials(ctx, []*models.Subscriber{&s}); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subscriberRepository) ListAutoContentEnabled(ctx context.Context) ([]*models.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE auto_content_enabled = TRUE AND is_active = TRUE`
	return r.list(ctx, query)
}

func (r *subscriberRepository) ListActive(ctx context.Context) ([]*models.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE is_active = TRUE`
	return r.list(ctx, query)
}

func (r *subscriberRepository) list(ctx context.Context, query string) ([]*models.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var subscribers []*models.Subscriber
	for rows.Next() {
		var s models.Subscriber
		err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.BusinessType, &s.Timezone,
			&s.AutoContentEnabled, &s.IsActive, &s.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		subscribers = append(subscribers, &s)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if err := r.attachCredentials(ctx, subscribers); err != nil {
		return nil, err
	}
	return subscribers, nil
}

// attachCredentials loads connected social accounts for all subscribers in
// one query.
func (r *subscriberRepository) attachCredentials(ctx context.Context, subscribers []*models.Subscriber) error {
	if len(subscribers) == 0 {
		return nil
	}

	ids := make([]string, 0, len(subscribers))
	byID := make(map[string]*models.Subscriber, len(subscribers))
	for _, s := range subscribers {
		s.Credentials = map[string]models.Credentials{}
		ids = append(ids, s.ID)
		byID[s.ID] = s
	}

	query := `SELECT subscriber_id, platform, account_id, access_token, refresh_token, token_expires_at
		FROM social_accounts
		WHERE subscriber_id = ANY($1) AND account_status = 'active'`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var subscriberID string
		var c models.Credentials
		if err := rows.Scan(&subscriberID, &c.Platform, &c.AccountID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt); err != nil {
			slog.Info(err.Error())
			return err
		}
		if s, ok := byID[subscriberID]; ok {
			s.Credentials[c.Platform] = c
		}
	}
	return rows.Err()
}
