package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// SnapshotConfig holds configuration for S3-compatible storage.
type SnapshotConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for DO Spaces, R2, etc.
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// SnapshotStore archives raw page bodies when extraction fails
// structurally, so a selector break can be diagnosed against the exact
// HTML that defeated it.
type SnapshotStore struct {
	client *s3.Client
	cfg    SnapshotConfig
}

func NewSnapshotStore(ctx context.Context, cfg SnapshotConfig) (*SnapshotStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &SnapshotStore{client: client, cfg: cfg}, nil
}

// PutSnapshot uploads one page body and returns the object key to
// record alongside the failure log.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, sourceID, pageURL string, body []byte) (string, error) {
	contentType := "text/html; charset=utf-8"
	ext := "html"
	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		contentType = "application/json"
		ext = "json"
	}

	key := fmt.Sprintf("%s/%s/%s/%s.%s",
		strings.Trim(s.cfg.Prefix, "/"),
		sourceID,
		time.Now().UTC().Format("2006-01-02"),
		uuid.New().String(), ext)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"source-url": pageURL,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

// PublicURL returns the browsable URL for a snapshot key.
func (s *SnapshotStore) PublicURL(key string) string {
	if s.cfg.Endpoint != "" {
		host := strings.TrimPrefix(s.cfg.Endpoint, "https://")
		return fmt.Sprintf("https://%s.%s/%s", s.cfg.Bucket, host, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
