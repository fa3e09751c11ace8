package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rongwang/land-rental-server/internal/apperror"
)

// S3API is the part of *s3.Client the backend uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage keeps files in a bucket. The object key is the public path
// without its leading slash; staged objects live under staging/.
type S3Storage struct {
	client S3API
	bucket string
}

// NewS3Storage creates a bucket backend
func NewS3Storage(client S3API, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket}
}

// NewS3StorageFromEnv loads the default AWS config chain and builds a client
func NewS3StorageFromEnv(ctx context.Context, bucket string) (*S3Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket is not configured")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load AWS config: %w", err)
	}
	return NewS3Storage(s3.NewFromConfig(cfg), bucket), nil
}

func objectKey(publicPath string) string {
	return strings.TrimPrefix(publicPath, "/")
}

func (s *S3Storage) Stage(ctx context.Context, category, name, contentType string, data []byte) (*Staged, error) {
	if err := checkName(category, name); err != nil {
		return nil, err
	}

	stagingKey := "staging/" + category + "/" + name
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(stagingKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, apperror.Storage(err, "could not stage %s", name)
	}

	return &Staged{
		Category:    category,
		Name:        name,
		Path:        PublicPath(category, name),
		ContentType: contentType,
		stagingKey:  stagingKey,
	}, nil
}

func (s *S3Storage) Promote(ctx context.Context, staged *Staged) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(objectKey(staged.Path)),
		CopySource: aws.String(s.bucket + "/" + staged.stagingKey),
	})
	if err != nil {
		return apperror.Storage(err, "could not promote %s", staged.Name)
	}
	// The copy is already visible; a leftover staging object is harmless
	_ = s.Discard(ctx, staged)
	return nil
}

func (s *S3Storage) Discard(ctx context.Context, staged *Staged) error {
	if staged == nil {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(staged.stagingKey),
	})
	if err != nil {
		return apperror.Storage(err, "could not discard %s", staged.Name)
	}
	return nil
}

func (s *S3Storage) Delete(ctx context.Context, publicPath string) error {
	clean, err := CheckPublicPath(publicPath)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(clean)),
	})
	if err != nil {
		return apperror.Storage(err, "could not delete %s", clean)
	}
	return nil
}
