// Package storage wraps the object-storage calls the demo issues behind a
// small interface, with a MinIO implementation and an in-memory one.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/chmdznr/minio-audit-demo/pkg/models"
	"github.com/minio/minio-go/v7"
)

// Operation names, shared with the journal so a run can be lined up
// against the audit events the storage server emits.
const (
	OpBucketExists      = "BucketExists"
	OpMakeBucket        = "MakeBucket"
	OpSetBucketPolicy   = "SetBucketPolicy"
	OpGetBucketPolicy   = "GetBucketPolicy"
	OpGetBucketLocation = "GetBucketLocation"
	OpPutObject         = "PutObject"
	OpGetObject         = "GetObject"
	OpStatObject        = "StatObject"
	OpListObjects       = "ListObjects"
)

// Returned by stores that are not backed by an S3 server
var (
	ErrNotFound       = errors.New("object not found")
	ErrBucketNotFound = errors.New("bucket not found")
)

// ObjectStore is the set of storage calls the demo driver issues
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
	SetBucketPolicy(ctx context.Context, bucket, policy string) error
	GetBucketPolicy(ctx context.Context, bucket string) (string, error)
	GetBucketLocation(ctx context.Context, bucket string) (string, error)
	PutFile(ctx context.Context, bucket, key, filePath string, opts PutOptions) (models.ObjectRecord, error)
	GetFile(ctx context.Context, bucket, key, filePath string) error
	StatObject(ctx context.Context, bucket, key string) (models.ObjectRecord, error)
	ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]models.ObjectRecord, error)
}

// PutOptions carries the descriptive attributes attached to an upload
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// IsNotFound reports whether err means the key does not exist. A missing
// bucket is not a missing key and reports false.
func IsNotFound(err error) bool {
	if err == nil || errors.Is(err, ErrBucketNotFound) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	case "":
		return resp.StatusCode == http.StatusNotFound
	}
	return false
}

// PublicReadPolicy returns a bucket policy granting anonymous s3:GetObject
// on every object in bucket.
func PublicReadPolicy(bucket string) (string, error) {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": map[string]interface{}{"AWS": []string{"*"}},
				"Action":    []string{"s3:GetObject"},
				"Resource":  []string{fmt.Sprintf("arn:aws:s3:::%s/*", bucket)},
			},
		},
	}

	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return "", fmt.Errorf("failed to encode bucket policy: %w", err)
	}
	return string(policyJSON), nil
}

// ContentTypeFor picks a content type from the file extension
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".md":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// SanitizeKey turns a generated file name into a safe object key
func SanitizeKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "/")

	key = strings.Map(func(r rune) rune {
		switch r {
		case '\u3000', ' ', '\t':
			return '-'
		case '\u200B', '\uFEFF':
			return -1
		default:
			return r
		}
	}, key)

	key = strings.ReplaceAll(key, "&", "and")
	key = strings.ReplaceAll(key, "+", "plus")
	key = strings.ReplaceAll(key, "'", "")

	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}

	return strings.TrimPrefix(key, "/")
}
