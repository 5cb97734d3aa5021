package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("lecturebox-storage")

// ObjectStoreOptions configures the S3 compatible object store
type ObjectStoreOptions struct {
	Endpoint   string
	Region     string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

// MinioClient wraps S3 operations with tracing
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinioClient initializes the S3 client and makes sure the bucket exists.
// With no bucket configured the client is still returned, and every upload
// fails.
func NewMinioClient(ctx context.Context, opts ObjectStoreOptions) (*MinioClient, error) {
	mc, err := newMinioClient(opts)
	if err != nil {
		return nil, err
	}
	if opts.BucketName == "" {
		return mc, nil
	}

	// Ensure bucket exists
	exists, err := mc.client.BucketExists(ctx, opts.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = mc.client.MakeBucket(ctx, opts.BucketName, minio.MakeBucketOptions{Region: opts.Region})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return mc, nil
}

func newMinioClient(opts ObjectStoreOptions) (*MinioClient, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &MinioClient{
		client:     client,
		bucketName: opts.BucketName,
	}, nil
}

// Configured reports whether a bucket has been set
func (mc *MinioClient) Configured() bool {
	return mc.bucketName != ""
}

// Upload stores data under key with a private ACL and returns the object's
// location URL
func (mc *MinioClient) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "s3.upload_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.String("content_type", contentType),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	if !mc.Configured() {
		err := fmt.Errorf("object storage bucket is not configured")
		span.RecordError(err)
		return "", err
	}

	reader := bytes.NewReader(data)
	_, err := mc.client.PutObject(ctx, mc.bucketName, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "private"},
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return mc.ObjectURL(key), nil
}

// ObjectURL returns the path-style URL of key in the bucket
func (mc *MinioClient) ObjectURL(key string) string {
	u := *mc.client.EndpointURL()
	u.Path = "/" + mc.bucketName + "/" + strings.TrimPrefix(key, "/")
	u.RawPath = ""
	return u.String()
}

// PresignDownload returns a time limited GET URL for key that downloads as
// fileName
func (mc *MinioClient) PresignDownload(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "s3.presign_download",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int64("expiry_seconds", int64(expiry.Seconds())),
		),
	)
	defer span.End()

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))

	u, err := mc.client.PresignedGetObject(ctx, mc.bucketName, key, expiry, params)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to presign object: %w", err)
	}
	return u.String(), nil
}
