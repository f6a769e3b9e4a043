package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

type PostingJobRepository interface {
	Create(ctx context.Context, job *models.PostingJob) error
	GetByID(ctx context.Context, id string) (*models.PostingJob, error)
	// FindDueJobs returns pending jobs scheduled at or before now plus
	// processing jobs whose lease has expired.
	FindDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.PostingJob, error)
	// Claim moves a due job to processing with a lease. It reports false when
	// the job is no longer claimable.
	Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error)
	Save(ctx context.Context, job *models.PostingJob) error
	ListBySubscriber(ctx context.Context, subscriberID string) ([]*models.PostingJob, error)
	// ListFailed lists failed jobs, for every subscriber when subscriberID is empty.
	ListFailed(ctx context.Context, subscriberID string) ([]*models.PostingJob, error)
	ListSince(ctx context.Context, subscriberID string, since time.Time) ([]*models.PostingJob, error)
	CountAutomatedSince(ctx context.Context, subscriberID string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, status models.JobStatus, cutoff time.Time) (int64, error)
	// Remove deletes a job unless it is processing under a live lease. It
	// reports false when nothing was deleted.
	Remove(ctx context.Context, id string, now time.Time) (bool, error)
}

type postingJobRepository struct {
	db *sql.DB
}

func NewPostingJobRepository(db *sql.DB) PostingJobRepository {
	return &postingJobRepository{db: db}
}

const jobColumns = `id, subscriber_id, text, media, hashtags, ai_generated, content_type,
	scheduled_for, timezone, platforms, status, retry_count, max_retries, error_log,
	is_automated, posted_at, lease_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.PostingJob, error) {
	var (
		job                        models.PostingJob
		media, platforms, errorLog []byte
		hashtags                   pq.StringArray
		contentType, status        string
		postedAt, leaseExpiresAt   sql.NullTime
	)
	err := row.Scan(&job.ID, &job.SubscriberID, &job.Text, &media, &hashtags, &job.AIGenerated, &contentType,
		&job.ScheduledFor, &job.Timezone, &platforms, &status, &job.RetryCount, &job.MaxRetries, &errorLog,
		&job.IsAutomated, &postedAt, &leaseExpiresAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.ContentType = models.ContentType(contentType)
	job.Status = models.JobStatus(status)
	job.Hashtags = []string(hashtags)
	if postedAt.Valid {
		t := postedAt.Time
		job.PostedAt = &t
	}
	if leaseExpiresAt.Valid {
		t := leaseExpiresAt.Time
		job.LeaseExpiresAt = &t
	}
	if err := unmarshalJSON(media, &job.Media); err != nil {
		return nil, fmt.Errorf("decoding media for job %s: %w", job.ID, err)
	}
	if err := unmarshalJSON(platforms, &job.Platforms); err != nil {
		return nil, fmt.Errorf("decoding platforms for job %s: %w", job.ID, err)
	}
	if err := unmarshalJSON(errorLog, &job.ErrorLog); err != nil {
		return nil, fmt.Errorf("decoding error log for job %s: %w", job.ID, err)
	}
	return &job, nil
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func encodeJobJSON(job *models.PostingJob) (media, platforms, errorLog []byte, err error) {
	if media, err = json.Marshal(nonNilMedia(job.Media)); err != nil {
		return nil, nil, nil, err
	}
	if platforms, err = json.Marshal(job.Platforms); err != nil {
		return nil, nil, nil, err
	}
	if errorLog, err = json.Marshal(nonNilErrors(job.ErrorLog)); err != nil {
		return nil, nil, nil, err
	}
	return media, platforms, errorLog, nil
}

func nonNilMedia(m []models.MediaRef) []models.MediaRef {
	if m == nil {
		return []models.MediaRef{}
	}
	return m
}

func nonNilErrors(e []models.ErrorEntry) []models.ErrorEntry {
	if e == nil {
		return []models.ErrorEntry{}
	}
	return e
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *postingJobRepository) Create(ctx context.Context, job *models.PostingJob) error {
	media, platforms, errorLog, err := encodeJobJSON(job)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		INSERT INTO posting_jobs (id, subscriber_id, text, media, hashtags, ai_generated, content_type,
			scheduled_for, timezone, platforms, status, retry_count, max_retries, error_log, is_automated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query, job.ID, job.SubscriberID, job.Text, media, pq.Array(job.Hashtags),
		job.AIGenerated, string(job.ContentType), job.ScheduledFor, job.Timezone, platforms, string(job.Status),
		job.RetryCount, job.MaxRetries, errorLog, job.IsAutomated).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postingJobRepository) GetByID(ctx context.Context, id string) (*models.PostingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM posting_jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return job, nil
}

func (r *postingJobRepository) FindDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.PostingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM posting_jobs
		WHERE (status = 'pending' AND scheduled_for <= $1)
			OR (status = 'processing' AND lease_expires_at <= $1)
		ORDER BY scheduled_for
		LIMIT $2`
	return r.queryJobs(ctx, query, now, limit)
}

func (r *postingJobRepository) Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error) {
	query := `
		UPDATE posting_jobs
		SET status = 'processing',
			lease_expires_at = $2,
			updated_at = $3
		WHERE id = $1
			AND ((status = 'pending' AND scheduled_for <= $3)
				OR (status = 'processing' AND lease_expires_at <= $3))
	`
	result, err := r.db.ExecContext(ctx, query, id, leaseUntil, now)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postingJobRepository) Save(ctx context.Context, job *models.PostingJob) error {
	media, platforms, errorLog, err := encodeJobJSON(job)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		UPDATE posting_jobs
		SET text = $2,
			media = $3,
			hashtags = $4,
			scheduled_for = $5,
			platforms = $6,
			status = $7,
			retry_count = $8,
			max_retries = $9,
			error_log = $10,
			posted_at = $11,
			lease_expires_at = $12,
			updated_at = $13
		WHERE id = $1
	`
	job.UpdatedAt = time.Now()
	_, err = r.db.ExecContext(ctx, query, job.ID, job.Text, media, pq.Array(job.Hashtags), job.ScheduledFor,
		platforms, string(job.Status), job.RetryCount, job.MaxRetries, errorLog, nullTime(job.PostedAt),
		nullTime(job.LeaseExpiresAt), job.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postingJobRepository) ListBySubscriber(ctx context.Context, subscriberID string) ([]*models.PostingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM posting_jobs WHERE subscriber_id = $1 ORDER BY scheduled_for DESC`
	return r.queryJobs(ctx, query, subscriberID)
}

func (r *postingJobRepository) ListFailed(ctx context.Context, subscriberID string) ([]*models.PostingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM posting_jobs WHERE status = 'failed'`
	args := []any{}
	if subscriberID != "" {
		query += ` AND subscriber_id = $1`
		args = append(args, subscriberID)
	}
	return r.queryJobs(ctx, query, args...)
}

func (r *postingJobRepository) ListSince(ctx context.Context, subscriberID string, since time.Time) ([]*models.PostingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM posting_jobs WHERE subscriber_id = $1 AND scheduled_for >= $2`
	return r.queryJobs(ctx, query, subscriberID, since)
}

func (r *postingJobRepository) CountAutomatedSince(ctx context.Context, subscriberID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM posting_jobs WHERE subscriber_id = $1 AND is_automated = TRUE AND created_at >= $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, subscriberID, since).Scan(&count); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}

func (r *postingJobRepository) DeleteOlderThan(ctx context.Context, status models.JobStatus, cutoff time.Time) (int64, error) {
	query := `DELETE FROM posting_jobs WHERE status = $1 AND updated_at < $2`
	result, err := r.db.ExecContext(ctx, query, string(status), cutoff)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postingJobRepository) Remove(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `DELETE FROM posting_jobs
		WHERE id = $1
		AND NOT (status = 'processing' AND lease_expires_at IS NOT NULL AND lease_expires_at > $2)`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postingJobRepository) queryJobs(ctx context.Context, query string, args ...any) ([]*models.PostingJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.PostingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return jobs, nil
}
