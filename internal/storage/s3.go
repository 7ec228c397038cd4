package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"

	"github.com/dj-oyu/reefwatch/internal/config"
	"github.com/dj-oyu/reefwatch/internal/logger"
)

// S3Config holds the bucket and credentials for S3Store.
type S3Config struct {
	Region          string `validate:"required"`
	Bucket          string `validate:"required"`
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO. Path-style
	// addressing is used when it is set.
	Endpoint string
}

// S3ConfigFromEnv reads the standard AWS_* variables.
func S3ConfigFromEnv() S3Config {
	return S3Config{
		Region:          config.GetEnv("AWS_REGION", ""),
		Bucket:          config.GetEnv("AWS_BUCKET_NAME", ""),
		AccessKeyID:     config.GetEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: config.GetEnv("AWS_SECRET_ACCESS_KEY", ""),
		Prefix:          config.GetEnv("AWS_KEY_PREFIX", "uploads"),
		Endpoint:        config.GetEnv("AWS_ENDPOINT", ""),
	}
}

// S3Store uploads files to a bucket with s3manager.
type S3Store struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store creates the AWS session. Without static keys the default
// credential chain is used.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}

	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

// Save uploads body under prefix/<uuid>-name and returns the object URL.
func (s *S3Store) Save(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}
	key := path.Join(s.prefix, uuid.NewString()+"-"+name)

	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	logger.Debug("Storage", "Uploaded s3://%s/%s", s.bucket, key)
	return out.Location, nil
}
