package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

var ErrStorageNotConfigured = errors.New("object storage is not configured")

// ObjectStore stores media and report archives and returns their public URL.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type R2Service struct {
	client    putObjectAPI
	bucket    string
	publicURL string
}

// NewR2Service builds the S3 client for Cloudflare R2 once.
func NewR2Service(ctx context.Context, cfg config.R2) (*R2Service, error) {
	if cfg.AccountID == "" || cfg.BucketName == "" {
		return nil, ErrStorageNotConfigured
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("loading r2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})
	return newR2Service(client, cfg.BucketName, cfg.PublicURL), nil
}

func newR2Service(client putObjectAPI, bucket, publicURL string) *R2Service {
	return &R2Service{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

func (r *R2Service) PublicURL(key string) string {
	return r.publicURL + "/" + key
}

func (r *R2Service) UploadToR2(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	_, err := r.client.PutObject(ctx, input)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *R2Service) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := r.UploadToR2(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return r.PublicURL(key), nil
}

// ReportKey is the archive location of a subscriber's weekly report.
func ReportKey(report *models.WeeklyReport) string {
	return fmt.Sprintf("reports/%s/%s.json", report.SubscriberID, report.PeriodEnd.UTC().Format(time.DateOnly))
}

// ArchiveReport stores the report as JSON and returns its public URL.
func ArchiveReport(ctx context.Context, store ObjectStore, report *models.WeeklyReport) (string, error) {
	if store == nil {
		return "", ErrStorageNotConfigured
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	return store.Upload(ctx, ReportKey(report), data, "application/json")
}
