package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/chmdznr/minio-audit-demo/pkg/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds the connection settings for a MinIO endpoint
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// MinIOStore implements ObjectStore on top of minio-go
type MinIOStore struct {
	client *minio.Client
}

func newTransport(useSSL bool) *http.Transport {
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if useSSL {
		tr.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}
	return tr
}

// NewMinIOStore creates a MinIO client for cfg. No request is made until
// the first call.
func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	opts := minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Transport:    newTransport(cfg.UseSSL),
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupAuto,
	}

	client, err := minio.New(cfg.Endpoint, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinIOStore{client: client}, nil
}

func (s *MinIOStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.client.BucketExists(ctx, bucket)
}

func (s *MinIOStore) MakeBucket(ctx context.Context, bucket, region string) error {
	return s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func (s *MinIOStore) SetBucketPolicy(ctx context.Context, bucket, policy string) error {
	return s.client.SetBucketPolicy(ctx, bucket, policy)
}

func (s *MinIOStore) GetBucketPolicy(ctx context.Context, bucket string) (string, error) {
	return s.client.GetBucketPolicy(ctx, bucket)
}

func (s *MinIOStore) GetBucketLocation(ctx context.Context, bucket string) (string, error) {
	return s.client.GetBucketLocation(ctx, bucket)
}

func (s *MinIOStore) PutFile(ctx context.Context, bucket, key, filePath string, opts PutOptions) (models.ObjectRecord, error) {
	info, err := s.client.FPutObject(ctx, bucket, key, filePath, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return models.ObjectRecord{}, err
	}
	return models.ObjectRecord{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  opts.ContentType,
		ETag:         info.ETag,
	}, nil
}

func (s *MinIOStore) GetFile(ctx context.Context, bucket, key, filePath string) error {
	return s.client.FGetObject(ctx, bucket, key, filePath, minio.GetObjectOptions{})
}

// StatObject issues a HEAD request, so a missing key surfaces as an error
// immediately rather than on first read as with GetObject.
func (s *MinIOStore) StatObject(ctx context.Context, bucket, key string) (models.ObjectRecord, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return models.ObjectRecord{}, err
	}
	return toRecord(info), nil
}

func (s *MinIOStore) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]models.ObjectRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := []models.ObjectRecord{}
	for object := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}) {
		if object.Err != nil {
			return nil, object.Err
		}
		objects = append(objects, toRecord(object))
	}
	return objects, nil
}

func toRecord(info minio.ObjectInfo) models.ObjectRecord {
	return models.ObjectRecord{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
	}
}

var _ ObjectStore = (*MinIOStore)(nil)
