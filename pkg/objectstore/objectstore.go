// Package objectstore provides a content-addressed S3-compatible object
// store client (Object Store Client, C2).
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object-store connection settings, sourced from the
// OBJECT_STORAGE_* environment variables in spec section 6.
type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	UseSSL          bool
	BucketImages    string
	PublicURLImages string
}

// LoadConfigFromEnv loads object-store configuration from
// OBJECT_STORAGE_ENDPOINT/ACCESS_KEY/SECRET_KEY/BUCKET_IMAGES/
// PUBLIC_URL_IMAGES per spec section 6.
func LoadConfigFromEnv() Config {
	useSSL, _ := strconv.ParseBool(getEnvOrDefault("OBJECT_STORAGE_USE_SSL", "false"))
	return Config{
		Endpoint:        getEnvOrDefault("OBJECT_STORAGE_ENDPOINT", "localhost:9000"),
		AccessKey:       os.Getenv("OBJECT_STORAGE_ACCESS_KEY"),
		SecretKey:       os.Getenv("OBJECT_STORAGE_SECRET_KEY"),
		UseSSL:          useSSL,
		BucketImages:    getEnvOrDefault("OBJECT_STORAGE_BUCKET_IMAGES", "krai-images"),
		PublicURLImages: os.Getenv("OBJECT_STORAGE_PUBLIC_URL_IMAGES"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Store wraps a minio client scoped to the hash-keyed "images" bucket
// convention from spec section 6: object key == hex SHA-256 of content, no
// subdirectory layout.
//
// Grounded on semaj90-mau5law/go-inference-service's MinIOService
// (NewMinIOService/initializeBucket/UploadDocument/GetDocument/
// StreamDocument/DeleteDocument/ListDocuments), adapted from a generic
// document store to KRAI's content-addressed image store.
type Store struct {
	client *minio.Client
	cfg    Config
}

// New constructs a Store and ensures the configured bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create client: %w", err)
	}

	s := &Store{client: client, cfg: cfg}
	if err := s.initializeBucket(ctx, cfg.BucketImages); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initializeBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("objectstore: check bucket %q: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("objectstore: create bucket %q: %w", bucket, err)
		}
	}
	return nil
}

// Exists performs a HEAD request to detect whether an object with the given
// key is already present, letting the storage stage skip redundant PUTs.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) && errResp.Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("objectstore: stat object %q/%q: %w", bucket, key, err)
}

// Put uploads content under the given bucket/key with the caller-supplied
// contentType; it does not inspect the bytes.
func (s *Store) Put(ctx context.Context, bucket, key string, content []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("objectstore: put object %q/%q: %w", bucket, key, err)
	}
	return nil
}

// Get downloads the object at bucket/key.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get object %q/%q: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read object %q/%q: %w", bucket, key, err)
	}
	return data, nil
}

// Delete removes an object. Nothing in this module calls it; the retention
// sweep does not remove objects.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("objectstore: delete object %q/%q: %w", bucket, key, err)
	}
	return nil
}

// PublicURL returns the human-facing URL for an object in the images
// bucket, built from OBJECT_STORAGE_PUBLIC_URL_IMAGES.
func (s *Store) PublicURL(key string) string {
	if s.cfg.PublicURLImages == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", s.cfg.PublicURLImages, key)
}

// ImagesBucket returns the configured images bucket name — the only bucket
// required by spec section 4.12; others are opt-in.
func (s *Store) ImagesBucket() string {
	return s.cfg.BucketImages
}

// Health performs a lightweight reachability check (bucket existence) for
// the health endpoint.
func (s *Store) Health(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.BucketImages)
	if err != nil {
		return fmt.Errorf("objectstore: health check: %w", err)
	}
	if !exists {
		return fmt.Errorf("objectstore: bucket %q does not exist", s.cfg.BucketImages)
	}
	return nil
}
