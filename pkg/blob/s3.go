package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
)

// S3Client is the slice of the S3 API the store uses.
type S3Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3 stores blobs in a bucket, one object per content key.
type S3 struct {
	client S3Client
	bucket string
}

// NewS3 builds the store from ambient AWS credentials.
func NewS3(ctx context.Context, region, bucket string) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &S3{client: s3.NewFromConfig(awsCfg), bucket: bucket}, nil
}

// NewS3WithClient injects a client. Used by tests.
func NewS3WithClient(client S3Client, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func (s *S3) Put(ctx context.Context, tenantUID int64, contentType string, data []byte) (string, error) {
	if err := checkSize(data); err != nil {
		return "", err
	}
	key := contentKey(tenantUID, data)

	// Content-addressed: if the object exists, the bytes are identical.
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return key, nil
	}
	if !isNotFound(err) {
		return "", fmt.Errorf("checking blob %q: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("storing blob %q: %w", key, err)
	}
	return key, nil
}

func (s *S3) Get(ctx context.Context, tenantUID int64, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", apperr.NotFound("file", "file %q not found", key)
		}
		return nil, "", fmt.Errorf("fetching blob %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading blob %q: %w", key, err)
	}
	var contentType string
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return data, contentType, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
