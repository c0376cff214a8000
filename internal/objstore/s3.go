package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/cyderes/activity-ingestion-service/internal/config"
)

// S3Store implements Store on an S3 bucket. Object versions are ETags.
//
// S3 offers no conditional PutObject in this SDK, so preconditions are
// checked with a HeadObject immediately before the upload. This narrows but
// does not close the lost-update window.
type S3Store struct {
	client s3iface.S3API
	bucket string
}

// NewS3Store creates an S3-backed store for the configured bucket.
func NewS3Store(cfg config.ObjectStoreConfig) (*S3Store, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with MinIO or LocalStack
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client s3iface.S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Read downloads an object and records its ETag.
func (s *S3Store) Read(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return &Object{Key: key, Data: data, Version: aws.StringValue(out.ETag)}, nil
}

// Write uploads data after checking preconditions.
func (s *S3Store) Write(ctx context.Context, key string, data []byte, opts WriteOptions) (string, error) {
	if opts.IfNotExists || opts.IfVersion != "" {
		if err := s.checkPrecondition(ctx, key, opts); err != nil {
			return "", err
		}
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ContentEncoding != "" {
		input.ContentEncoding = aws.String(opts.ContentEncoding)
	}

	out, err := s.client.PutObjectWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to put %s: %w", key, err)
	}
	return aws.StringValue(out.ETag), nil
}

func (s *S3Store) checkPrecondition(ctx context.Context, key string, opts WriteOptions) error {
	head, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			if opts.IfVersion != "" {
				return fmt.Errorf("%s disappeared: %w", key, ErrPreconditionFailed)
			}
			return nil
		}
		return fmt.Errorf("failed to head %s: %w", key, err)
	}

	if opts.IfNotExists {
		return fmt.Errorf("%s already exists: %w", key, ErrPreconditionFailed)
	}
	if current := aws.StringValue(head.ETag); current != opts.IfVersion {
		return fmt.Errorf("%s changed from %s to %s: %w", key, opts.IfVersion, current, ErrPreconditionFailed)
	}
	return nil
}

// Close is a no-op; the S3 client holds no connections that need releasing.
func (s *S3Store) Close() error {
	return nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
