package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chmdznr/minio-audit-demo/pkg/models"
)

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

type memoryBucket struct {
	region  string
	policy  string
	objects map[string]memoryObject
}

// MemoryStore is an in-process ObjectStore used for dry runs and tests.
// Failures maps an operation name (OpPutObject, ...) to the error every
// call of that operation returns.
type MemoryStore struct {
	mu       sync.Mutex
	buckets  map[string]*memoryBucket
	calls    []string
	Failures map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:  make(map[string]*memoryBucket),
		Failures: make(map[string]error),
	}
}

// Calls returns the operation names issued so far, in order
func (m *MemoryStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CountCalls returns how many times op was issued
func (m *MemoryStore) CountCalls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Metadata returns the user metadata stored with key
func (m *MemoryStore) Metadata(bucket, key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil
	}
	return b.objects[key].metadata
}

// begin records the call and returns the injected failure, if any
func (m *MemoryStore) begin(op string) error {
	m.calls = append(m.calls, op)
	return m.Failures[op]
}

func (m *MemoryStore) bucket(name string) (*memoryBucket, error) {
	b, ok := m.buckets[name]
	if !ok {
		return nil, fmt.Errorf("bucket %s: %w", name, ErrBucketNotFound)
	}
	return b, nil
}

func (m *MemoryStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpBucketExists); err != nil {
		return false, err
	}
	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *MemoryStore) MakeBucket(ctx context.Context, bucket, region string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpMakeBucket); err != nil {
		return err
	}
	if _, ok := m.buckets[bucket]; ok {
		return fmt.Errorf("bucket %s already exists", bucket)
	}
	m.buckets[bucket] = &memoryBucket{region: region, objects: make(map[string]memoryObject)}
	return nil
}

func (m *MemoryStore) SetBucketPolicy(ctx context.Context, bucket, policy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpSetBucketPolicy); err != nil {
		return err
	}
	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	b.policy = policy
	return nil
}

func (m *MemoryStore) GetBucketPolicy(ctx context.Context, bucket string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpGetBucketPolicy); err != nil {
		return "", err
	}
	b, err := m.bucket(bucket)
	if err != nil {
		return "", err
	}
	return b.policy, nil
}

func (m *MemoryStore) GetBucketLocation(ctx context.Context, bucket string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpGetBucketLocation); err != nil {
		return "", err
	}
	b, err := m.bucket(bucket)
	if err != nil {
		return "", err
	}
	return b.region, nil
}

func (m *MemoryStore) PutFile(ctx context.Context, bucket, key, filePath string, opts PutOptions) (models.ObjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpPutObject); err != nil {
		return models.ObjectRecord{}, err
	}
	b, err := m.bucket(bucket)
	if err != nil {
		return models.ObjectRecord{}, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return models.ObjectRecord{}, err
	}

	meta := make(map[string]string, len(opts.Metadata))
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	obj := memoryObject{
		data:        data,
		contentType: opts.ContentType,
		metadata:    meta,
		modified:    time.Now().UTC(),
	}
	b.objects[key] = obj
	return obj.record(key), nil
}

func (m *MemoryStore) GetFile(ctx context.Context, bucket, key, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpGetObject); err != nil {
		return err
	}
	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	obj, ok := b.objects[key]
	if !ok {
		return fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(filePath, obj.data, 0644)
}

func (m *MemoryStore) StatObject(ctx context.Context, bucket, key string) (models.ObjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpStatObject); err != nil {
		return models.ObjectRecord{}, err
	}
	b, err := m.bucket(bucket)
	if err != nil {
		return models.ObjectRecord{}, err
	}
	obj, ok := b.objects[key]
	if !ok {
		return models.ObjectRecord{}, fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	return obj.record(key), nil
}

// ListObjects returns keys in lexical order. Without recursion, keys with a
// further "/" after prefix collapse into one directory entry.
func (m *MemoryStore) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]models.ObjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpListObjects); err != nil {
		return nil, err
	}
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	objects := []models.ObjectRecord{}
	for key, obj := range b.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !recursive {
			if i := strings.Index(key[len(prefix):], "/"); i >= 0 {
				dir := key[:len(prefix)+i+1]
				if !seen[dir] {
					seen[dir] = true
					objects = append(objects, models.ObjectRecord{Key: dir})
				}
				continue
			}
		}
		objects = append(objects, obj.record(key))
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (o memoryObject) record(key string) models.ObjectRecord {
	return models.ObjectRecord{
		Key:          key,
		Size:         int64(len(o.data)),
		LastModified: o.modified,
		ContentType:  o.contentType,
	}
}

var _ ObjectStore = (*MemoryStore)(nil)
