package services

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"report-coordinator/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Service handles blob storage for uploaded documents and generated reports
type S3Service struct {
	client   *s3.Client
	bucket   string
	region   string
	endpoint string // Custom endpoint for MinIO/S3-compatible services
}

// NewS3Service creates a new S3 service
func NewS3Service(cfg *config.S3Config) (*S3Service, error) {
	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client
	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Service{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: cfg.Endpoint,
	}, nil
}

// Upload stores a generated file under the given key and returns the key
func (s *S3Service) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return key, nil
}

// DeleteFiles removes the given keys. It tries a single batch delete first and
// falls back to per-key deletion if the batch call fails. Deleting a key that
// does not exist is not an error. Returns the keys that could not be deleted;
// callers log them and move on, cleanup never blocks on storage.
func (s *S3Service) DeleteFiles(ctx context.Context, refs []string) []FileDeleteError {
	if len(refs) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(refs))
	for _, ref := range refs {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(ref)})
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		log.Printf("WARNING: batch delete of %d objects failed, falling back to per-object deletes: %v", len(refs), err)
		return s.deleteIndividually(ctx, refs)
	}

	// A successful batch call can still report per-key failures
	if len(out.Errors) == 0 {
		return nil
	}
	retry := make([]string, 0, len(out.Errors))
	for _, e := range out.Errors {
		retry = append(retry, aws.ToString(e.Key))
	}
	log.Printf("WARNING: batch delete reported %d per-object failures, retrying individually", len(retry))
	return s.deleteIndividually(ctx, retry)
}

// deleteIndividually deletes keys one by one, continuing past failures
func (s *S3Service) deleteIndividually(ctx context.Context, refs []string) []FileDeleteError {
	var failed []FileDeleteError
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(ref),
		})
		if err != nil {
			failed = append(failed, FileDeleteError{Ref: ref, Err: err})
		}
	}
	return failed
}

// GetFileURL returns the full HTTPS URL for a given key
func (s *S3Service) GetFileURL(key string) string {
	if s.endpoint != "" {
		// Custom endpoint (MinIO or S3-compatible service)
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	// AWS S3 standard URL format
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
