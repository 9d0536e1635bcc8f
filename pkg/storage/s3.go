package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"wainbox/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// S3Store uploads media payloads to an S3 or S3-compatible bucket.
type S3Store struct {
	client    *s3.Client
	bucket    string
	region    string
	endpoint  string
	pathStyle bool
	publicURL string
	logger    *logrus.Logger
}

// NewS3Store builds the S3 client from configuration. Static credentials come
// from the environment via the config loader.
func NewS3Store(cfg models.StorageConfig, logger *logrus.Logger) (*S3Store, error) {
	if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return nil, fmt.Errorf("S3 credentials not available: set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
	}

	awsCfg := aws.Config{
		Region: cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		),
	}

	// Dots in bucket names break virtual-hosted TLS, force path style there.
	pathStyle := cfg.S3PathStyle
	if strings.Contains(cfg.S3Bucket, ".") {
		pathStyle = true
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	logger.WithFields(logrus.Fields{
		"bucket":   cfg.S3Bucket,
		"region":   cfg.S3Region,
		"endpoint": cfg.S3Endpoint,
	}).Info("S3 media store initialized")

	return &S3Store{
		client:    client,
		bucket:    cfg.S3Bucket,
		region:    cfg.S3Region,
		endpoint:  cfg.S3Endpoint,
		pathStyle: pathStyle,
		publicURL: cfg.PublicBaseURL,
		logger:    logger,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	contentType := mimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if strings.HasPrefix(mimeType, "image/") || strings.HasPrefix(mimeType, "video/") || mimeType == "application/pdf" {
		input.ContentDisposition = aws.String("inline")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"key":        key,
			"bucket":     s.bucket,
			"size_bytes": len(data),
		}).Error("Failed to upload media to S3")
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"key":        key,
		"bucket":     s.bucket,
		"size_bytes": len(data),
	}).Debug("Media uploaded to S3")

	return nil
}

// PublicURL returns the retrieval URL for a stored object. A configured CDN
// base wins; otherwise the URL is derived from the endpoint and addressing
// style.
func (s *S3Store) PublicURL(key string) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.publicURL, "/"), s.bucket, key)
	}

	if s.endpoint != "" && !strings.Contains(s.endpoint, "amazonaws.com") {
		if s.pathStyle {
			return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.endpoint, "/"), s.bucket, key)
		}
		host := strings.TrimPrefix(s.endpoint, "https://")
		host = strings.TrimPrefix(host, "http://")
		return fmt.Sprintf("https://%s.%s/%s", s.bucket, host, key)
	}

	if s.pathStyle {
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", s.region, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
