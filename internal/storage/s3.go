package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Service stores avatars in Amazon S3 (or compatible APIs).
type S3Service struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	// publicBaseURL, when set, overrides the default AWS URL for serving
	// objects, e.g. a CDN or custom endpoint.
	publicBaseURL string
	region        string
}

func NewS3Service(client *s3.Client, bucket, keyPrefix, region, publicBaseURL string) *S3Service {
	return &S3Service{
		client:        client,
		bucket:        bucket,
		keyPrefix:     strings.Trim(keyPrefix, "/"),
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		region:        region,
	}
}

func (s *S3Service) UploadAvatar(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if s.bucket == "" {
		return "", fmt.Errorf("storage bucket is required")
	}

	fullKey := key
	if s.keyPrefix != "" {
		fullKey = s.keyPrefix + "/" + strings.TrimPrefix(key, "/")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload avatar %s: %w", fullKey, err)
	}

	return s.objectURL(fullKey), nil
}

func (s *S3Service) Delete(ctx context.Context, key string) error {
	fullKey := key
	if s.keyPrefix != "" {
		fullKey = s.keyPrefix + "/" + strings.TrimPrefix(key, "/")
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("delete avatar %s: %w", fullKey, err)
	}
	return nil
}

func (s *S3Service) objectURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
