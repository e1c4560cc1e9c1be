package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	pkglogger "github.com/damoang/angple-billing/pkg/logger"
)

// putObjectAPI is the slice of the S3 client the archive needs
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Client wraps the AWS S3 client for S3/R2/MinIO compatible storage
type S3Client struct {
	client   putObjectAPI
	bucket   string
	basePath string // prefix for all objects (e.g. "webhooks/")
}

// S3Config holds S3-compatible storage configuration
type S3Config struct {
	Endpoint        string // e.g. https://xxx.r2.cloudflarestorage.com
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	BasePath        string
	ForcePathStyle  bool // true for MinIO/R2
}

// NewS3Client creates a new S3-compatible storage client
func NewS3Client(cfg S3Config) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	opts := func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}

	client := s3.New(s3.Options{}, opts)

	pkglogger.GetLogger().Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 archive client initialized")

	return &S3Client{client: client, bucket: cfg.Bucket, basePath: cfg.BasePath}, nil
}

// ArchiveWebhookPayload stores a raw provider event body for manual reconciliation
// and returns the object key.
func (c *S3Client) ArchiveWebhookPayload(ctx context.Context, eventID, eventType string, payload []byte) (string, error) {
	key := c.basePath + ArchiveKey(eventType, eventID, time.Now().UTC())

	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"event-id":   eventID,
			"event-type": eventType,
		},
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 archive failed: %w", err)
	}
	return key, nil
}

// ArchiveKey builds a date-partitioned key: <type>/<yyyy>/<mm>/<dd>/<event id>_<unix ms>.json
func ArchiveKey(eventType, eventID string, at time.Time) string {
	eventType = strings.ReplaceAll(eventType, ".", "_")
	return fmt.Sprintf("%s/%d/%02d/%02d/%s_%d.json",
		eventType, at.Year(), at.Month(), at.Day(),
		url.PathEscape(eventID), at.UnixMilli())
}
