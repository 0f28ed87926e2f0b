package minioctrl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultUploadBucket = "uploads"

type MinioService struct {
	client *minio.Client
}

func NewMinioService(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
	}, nil
}

func (s *MinioService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s *MinioService) GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}
	return data, nil
}

func (s *MinioService) PutObject(ctx context.Context, bucketName, objectName string, data []byte) error {
	_, err := s.client.PutObject(ctx, bucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType(objectName),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (s *MinioService) DeleteObject(ctx context.Context, bucketName, objectName string) error {
	err := s.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Archive stores an uploaded original under a fresh object name in bucket
// and returns its "bucket/object" URL.
func (s *MinioService) Archive(ctx context.Context, bucketName, filename string, data []byte) (string, error) {
	objectName := NewObjectName(filename)
	if err := s.PutObject(ctx, bucketName, objectName, data); err != nil {
		return "", err
	}
	return bucketName + "/" + objectName, nil
}

// Fetch reads the object behind a "bucket/object" URL.
func (s *MinioService) Fetch(ctx context.Context, minioURL string) ([]byte, error) {
	bucket, object := GetBucketAndObjectFromURL(minioURL)
	if bucket == "" {
		return nil, fmt.Errorf("invalid object url %q", minioURL)
	}
	return s.GetObject(ctx, bucket, object)
}

// Remove deletes the object behind a "bucket/object" URL.
func (s *MinioService) Remove(ctx context.Context, minioURL string) error {
	bucket, object := GetBucketAndObjectFromURL(minioURL)
	if bucket == "" {
		return fmt.Errorf("invalid object url %q", minioURL)
	}
	return s.DeleteObject(ctx, bucket, object)
}

// NewObjectName returns a unique object name keeping filename's extension.
func NewObjectName(filename string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}

func ContentType(objectName string) string {
	if t := mime.TypeByExtension(filepath.Ext(objectName)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func GetBucketAndObjectFromURL(minioURL string) (string, string) {
	// MinioURL format: bucket-name/object-name
	parts := strings.SplitN(minioURL, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], parts[1]
}
