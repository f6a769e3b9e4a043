package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const scheduledTimeLayout = "2006-01-02T15:04"

var (
	ErrJobNotFound        = errors.New("post doesn't exist")
	ErrJobBusy            = errors.New("post is being published")
	ErrInvalidPost        = errors.New("invalid post")
	ErrSubscriberInactive = errors.New("subscriber is not active")
)

type PostService interface {
	CreatePost(ctx context.Context, subscriberID string, pc *transfer.PostCreation, files []*multipart.FileHeader) (*models.PostingJob, error)
	List(ctx context.Context, subscriberID string) ([]*models.PostingJob, error)
	PostInfo(ctx context.Context, subscriberID, jobID string) (*models.PostingJob, error)
	Remove(ctx context.Context, subscriberID, jobID string) error
}

type postService struct {
	jobs        repository.PostingJobRepository
	subscribers repository.SubscriberRepository
	quota       QuotaService
	registry    *platform.Registry
	store       ObjectStore
	maxRetries  int
	now         func() time.Time
}

func NewPostService(
	jobs repository.PostingJobRepository,
	subscribers repository.SubscriberRepository,
	quota QuotaService,
	registry *platform.Registry,
	store ObjectStore,
	maxRetries int) PostService {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	return &postService{
		jobs:        jobs,
		subscribers: subscribers,
		quota:       quota,
		registry:    registry,
		store:       store,
		maxRetries:  maxRetries,
		now:         time.Now,
	}
}

func invalid(format string, args ...any) error {
	err := fmt.Errorf("%w: %s", ErrInvalidPost, fmt.Sprintf(format, args...))
	slog.Info(err.Error())
	return err
}

type upload struct {
	data      []byte
	mime      string
	extension string
	kind      string
}

func (s *postService) CreatePost(ctx context.Context, subscriberID string, pc *transfer.PostCreation, files []*multipart.FileHeader) (*models.PostingJob, error) {
	if pc == nil {
		return nil, invalid("post creation data is nil")
	}
	if strings.TrimSpace(pc.Text) == "" {
		return nil, invalid("text cannot be empty")
	}

	subscriber, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("loading subscriber: %w", err)
	}
	if subscriber == nil || !subscriber.IsActive {
		return nil, ErrSubscriberInactive
	}

	loc := subscriber.Location(time.UTC)
	timezone := subscriber.Timezone
	if pc.Timezone != "" {
		l, err := time.LoadLocation(pc.Timezone)
		if err != nil {
			return nil, invalid("unknown timezone %q", pc.Timezone)
		}
		loc, timezone = l, pc.Timezone
	}
	scheduledFor, err := time.ParseInLocation(scheduledTimeLayout, pc.ScheduledTime, loc)
	if err != nil {
		return nil, invalid("invalid scheduled time format: %v", err)
	}

	targets, err := s.parsePlatforms(pc.Platforms, subscriber)
	if err != nil {
		return nil, err
	}

	uploads, err := readUploads(files)
	if err != nil {
		return nil, err
	}
	if len(uploads) > 0 && s.store == nil {
		return nil, ErrStorageNotConfigured
	}

	needed := map[models.Resource]int{models.ResourcePosts: 1}
	for _, u := range uploads {
		if u.kind == "video" {
			needed[models.ResourceVideos]++
		} else {
			needed[models.ResourceImages]++
		}
	}
	for resource, amount := range needed {
		ok, err := s.quota.CanConsume(ctx, subscriberID, resource, amount)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, resource)
		}
	}

	media, err := s.saveFiles(ctx, subscriberID, uploads)
	if err != nil {
		return nil, fmt.Errorf("error processing files: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	contentType := models.ContentType(pc.ContentType)
	if contentType == "" {
		contentType = models.ContentPromotional
	}

	job := &models.PostingJob{
		ID:           id,
		SubscriberID: subscriberID,
		Text:         pc.Text,
		Media:        media,
		Hashtags:     splitHashtags(pc.Hashtags),
		ContentType:  contentType,
		ScheduledFor: scheduledFor.UTC(),
		Timezone:     timezone,
		Platforms:    targets,
		Status:       models.JobStatusPending,
		MaxRetries:   s.maxRetries,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	for resource, amount := range needed {
		if err := s.quota.RecordUsage(ctx, subscriberID, resource, amount); err != nil {
			// The job is stored; usage drift is logged rather than failing the request.
			slog.Error("recording usage", "subscriber", subscriberID, "resource", resource, "error", err)
		}
	}

	return job, nil
}

func (s *postService) parsePlatforms(raw string, subscriber *models.Subscriber) (map[string]*models.PlatformTarget, error) {
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, invalid("invalid platforms format: %v", err)
	}
	if len(names) == 0 {
		return nil, invalid("no platforms selected")
	}

	targets := make(map[string]*models.PlatformTarget, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := s.registry.Get(name); !ok {
			return nil, invalid("platform %q is not supported", name)
		}
		if _, ok := subscriber.Credentials[name]; !ok {
			return nil, invalid("platform %q is not connected", name)
		}
		targets[name] = &models.PlatformTarget{Enabled: true}
	}
	return targets, nil
}

func readUploads(files []*multipart.FileHeader) ([]upload, error) {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
	}

	uploads := make([]upload, 0, len(files))
	for _, file := range files {
		data, err := readFile(file)
		if err != nil {
			return nil, err
		}

		fileType, err := filetype.Match(data)
		if err != nil || fileType == types.Unknown {
			return nil, invalid("unsupported file type for %s", file.Filename)
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return nil, invalid("file type %s is not allowed", fileType.Extension)
		}

		kind := "image"
		if filetype.IsVideo(data) {
			kind = "video"
		}
		uploads = append(uploads, upload{data: data, mime: fileType.MIME.Value, extension: fileType.Extension, kind: kind})
	}
	return uploads, nil
}

func readFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("error reading file content: %w", err)
	}
	return data, nil
}

func (s *postService) saveFiles(ctx context.Context, subscriberID string, uploads []upload) ([]models.MediaRef, error) {
	media := make([]models.MediaRef, 0, len(uploads))
	for _, u := range uploads {
		id, err := gonanoid.New()
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		key := fmt.Sprintf("media/%s/%s.%s", subscriberID, id, u.extension)
		url, err := s.store.Upload(ctx, key, u.data, u.mime)
		if err != nil {
			return nil, err
		}
		media = append(media, models.MediaRef{Type: u.kind, URL: url})
	}
	return media, nil
}

func splitHashtags(raw string) []string {
	var tags []string
	for _, tag := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' }) {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (s *postService) owned(ctx context.Context, subscriberID, jobID string) (*models.PostingJob, error) {
	if subscriberID == "" || jobID == "" {
		return nil, ErrJobNotFound
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading post: %w", err)
	}
	if job == nil || job.SubscriberID != subscriberID {
		slog.Info(ErrJobNotFound.Error(), "job", jobID)
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *postService) PostInfo(ctx context.Context, subscriberID, jobID string) (*models.PostingJob, error) {
	return s.owned(ctx, subscriberID, jobID)
}

func (s *postService) List(ctx context.Context, subscriberID string) ([]*models.PostingJob, error) {
	jobs, err := s.jobs.ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return jobs, nil
}

func (s *postService) Remove(ctx context.Context, subscriberID, jobID string) error {
	job, err := s.owned(ctx, subscriberID, jobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusProcessing && job.LeaseExpiresAt != nil && job.LeaseExpiresAt.After(s.now()) {
		return ErrJobBusy
	}
	removed, err := s.jobs.Remove(ctx, jobID, s.now())
	if err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}
	if !removed {
		// Claimed or deleted since it was loaded.
		if _, err := s.owned(ctx, subscriberID, jobID); err != nil {
			return err
		}
		return ErrJobBusy
	}
	return nil
}
