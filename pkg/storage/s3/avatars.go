package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zuristack/roster/pkg/config"
)

var tracer = otel.Tracer("roster/storage/s3")

// ErrAvatarTooLarge is returned when an upload exceeds the configured size
// cap.
var ErrAvatarTooLarge = errors.New("avatar exceeds the maximum allowed size")

// ErrUnsupportedContentType is returned for uploads that are not one of the
// accepted image formats.
type ErrUnsupportedContentType struct {
	ContentType string
}

func (e *ErrUnsupportedContentType) Error() string {
	return fmt.Sprintf("unsupported avatar content type %q", e.ContentType)
}

// extByContentType doubles as the allow-list for uploads.
var extByContentType = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// AvatarStore handles avatar image storage operations
type AvatarStore struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucket        string
	presignExpiry time.Duration
	maxBytes      int64
}

// NewAvatarStore creates an avatar store against the configured bucket. The
// bucket is created if it does not exist, which matters for local dev with
// MinIO.
func NewAvatarStore(ctx context.Context, cfg config.AvatarConfig) (*AvatarStore, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain: IAM roles, env vars, shared config.
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	if err := createBucketIfNotExists(ctx, client, cfg.Bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &AvatarStore{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		presignExpiry: expiry,
		maxBytes:      cfg.MaxUploadBytes,
	}, nil
}

// Upload stores an avatar image for the account and returns its object key.
// Identical bytes map to the same key, so repeat uploads are idempotent.
func (s *AvatarStore) Upload(ctx context.Context, accountID int64, content io.Reader, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "AvatarStore.Upload",
		trace.WithAttributes(
			attribute.String("s3.bucket", s.bucket),
			attribute.Int64("account.id", accountID),
			attribute.String("content.type", contentType),
		),
	)
	defer span.End()

	ext, ok := extByContentType[strings.ToLower(contentType)]
	if !ok {
		err := &ErrUnsupportedContentType{ContentType: contentType}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unsupported content type")
		return "", err
	}

	reader := content
	if s.maxBytes > 0 {
		// One extra byte so an exactly-at-limit upload is distinguishable
		// from an over-limit one.
		reader = io.LimitReader(content, s.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read content")
		return "", fmt.Errorf("failed to read avatar content: %w", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		err := fmt.Errorf("%w (limit %d bytes)", ErrAvatarTooLarge, s.maxBytes)
		span.RecordError(err)
		span.SetStatus(codes.Error, "avatar too large")
		return "", err
	}
	span.SetAttributes(attribute.Int("content.size", len(data)))

	key := AvatarKey(accountID, data, ext)
	span.SetAttributes(attribute.String("s3.key", key))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	span.SetStatus(codes.Ok, "avatar uploaded")
	return key, nil
}

// PresignGet returns a time-limited URL for downloading the avatar.
func (s *AvatarStore) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign avatar URL: %w", err)
	}
	return req.URL, nil
}

// Delete removes the avatar object. Deleting a missing key is not an error.
func (s *AvatarStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete avatar: %w", err)
	}
	return nil
}

// HealthCheck verifies bucket connectivity
func (s *AvatarStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// AvatarKey derives the object key for an avatar upload. The content hash in
// the name makes keys stable for identical bytes and unique across edits.
func AvatarKey(accountID int64, data []byte, ext string) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("avatars/%d/%s.%s", accountID, hex.EncodeToString(sum[:8]), ext)
}

func createBucketIfNotExists(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		// Losing the creation race to another instance is fine.
		if !isBucketAlreadyExistsError(err) {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func isBucketAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "BucketAlreadyExists") || strings.Contains(msg, "BucketAlreadyOwnedByYou")
}
