package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// External store calls must be bounded; a hung download would otherwise
// stall finalize and replay verification.
const defaultCallTimeout = 2 * time.Minute

// BlobStore is the external object store the evidence bytes live in. The
// store is expected to deny delete/overwrite on finalized keys (WORM); the
// core assumes but does not enforce that.
type BlobStore interface {
	Upload(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)
	PresignedPutURL(ctx context.Context, objectKey, contentType string, ttl time.Duration) (string, error)
}

// MinioClient implements BlobStore against MinIO / any S3-compatible store.
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

var _ BlobStore = (*MinioClient)(nil)

// MinioConfig holds connection parameters for the object store.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

// NewMinioClient builds the client and makes sure the evidence bucket exists.
func NewMinioClient(cfg MinioConfig) (*MinioClient, error) {
	log.Printf("[Minio] Initializing client for endpoint %s...", cfg.Endpoint)

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	exists, err := minioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %q: %w", cfg.BucketName, err)
	}
	if !exists {
		log.Printf("[Minio] Bucket %q not found, creating...", cfg.BucketName)
		if err = minioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %q: %w", cfg.BucketName, err)
		}
	}

	log.Printf("[Minio] Client ready, bucket %q", cfg.BucketName)
	return &MinioClient{client: minioClient, bucketName: cfg.BucketName}, nil
}

// Upload stores an object under objectKey.
func (c *MinioClient) Upload(
	ctx context.Context,
	objectKey string,
	reader io.Reader,
	size int64,
	contentType string,
) error {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	info, err := c.client.PutObject(ctx, c.bucketName, objectKey, reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		log.Printf("[Minio] Upload of %q failed: %v", objectKey, err)
		return fmt.Errorf("uploading object to blob store: %w", err)
	}

	log.Printf("[Minio] Uploaded %q, size %d, ETag %s", objectKey, info.Size, info.ETag)
	return nil
}

// Download returns a reader over the object's bytes. The caller must close
// it. Returns ErrObjectNotFound for unknown keys.
func (c *MinioClient) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	object, err := c.client.GetObject(ctx, c.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioErr(objectKey, err)
	}

	// GetObject is lazy; Stat forces the first round-trip so a missing key
	// surfaces here instead of on first Read.
	if _, err = object.Stat(); err != nil {
		_ = object.Close()
		return nil, classifyMinioErr(objectKey, err)
	}

	return object, nil
}

// PresignedPutURL returns a time-limited URL the client uploads the original
// bytes to directly, keeping large blobs off this server's request path.
func (c *MinioClient) PresignedPutURL(
	ctx context.Context,
	objectKey, _ string,
	ttl time.Duration,
) (string, error) {
	u, err := c.client.PresignedPutObject(ctx, c.bucketName, objectKey, ttl)
	if err != nil {
		log.Printf("[Minio] Presigning PUT for %q failed: %v", objectKey, err)
		return "", fmt.Errorf("presigning upload url: %w", err)
	}
	return u.String(), nil
}

func classifyMinioErr(objectKey string, err error) error {
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) && minioErr.Code == "NoSuchKey" {
		log.Printf("[Minio] Object %q not found", objectKey)
		return ErrObjectNotFound
	}
	log.Printf("[Minio] Fetching %q failed: %v", objectKey, err)
	return fmt.Errorf("fetching object from blob store: %w", err)
}

var (
	ErrObjectNotFound = errors.New("object not found in blob store")
)
