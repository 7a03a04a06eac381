// Package s3 implements adapter.RawStorage against an S3-compatible
// endpoint via MinIO, selected when MINIO_ENDPOINT is set. Grounded
// on the bucket-exists/make-bucket/PutObject flow in
// other_examples' unified-rag-service main.go.
package s3

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/docuforge/ragcore/internal/apierr"
)

// Store wraps a minio.Client scoped to a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// Config configures the MinIO/S3 endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New dials the endpoint and ensures the configured bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.Permanent, "connect to minio", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "check bucket existence", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, apierr.Wrap(apierr.Permanent, "create bucket", err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data as a single object. MinIO's PutObject is atomic
// from a reader's perspective: the object is not visible under its
// key until the upload completes.
func (s *Store) Put(ctx context.Context, path string, data io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, data, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "XMinioObjectExistsAsDirectory" {
			return apierr.Wrap(apierr.Internal, "blob path collision: "+path, err)
		}
		return apierr.Wrap(apierr.Transient, "put object", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, apierr.Wrap(apierr.Transient, "get object", err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if errResp := minio.ToErrorResponse(err); errResp.Code == "NoSuchKey" {
			return nil, 0, apierr.NotFoundf("blob not found: %s", path)
		}
		return nil, 0, apierr.Wrap(apierr.Transient, "stat object", err)
	}
	return obj, info.Size, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return apierr.Wrap(apierr.Transient, "remove object", err)
	}
	return nil
}

// DeletePrefix lists and removes every object under prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	objCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for obj := range objCh {
		if obj.Err != nil {
			return apierr.Wrap(apierr.Transient, "list objects for prefix delete", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return apierr.Wrap(apierr.Transient, "remove object during prefix delete", err)
		}
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, apierr.Wrap(apierr.Transient, "stat object", err)
}
