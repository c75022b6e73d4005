package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"save-go/internal/save"
)

// MemoryBackend keeps uploaded objects in memory. Useful for tests and for
// trying the tool without an account. Safe for concurrent use.
type MemoryBackend struct {
	name string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{name: name, objects: make(map[string]memoryObject)}
}

// Upload copies req.Content in small chunks so that progress is observable.
func (m *MemoryBackend) Upload(ctx context.Context, req save.UploadRequest, progress save.ProgressFunc) (*save.UploadResult, error) {
	r := newProgressReader(ctx, req.Content, req.Size, progress)
	var buf bytes.Buffer
	if _, err := io.CopyBuffer(&buf, r, make([]byte, 32*1024)); err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	key := objectKey("", req)
	now := time.Now()
	m.mu.Lock()
	m.objects[key] = memoryObject{data: buf.Bytes(), modified: now}
	if req.Metadata != nil {
		m.objects[sidecarKey(key)] = memoryObject{data: bytes.Clone(req.Metadata), modified: now}
	}
	m.mu.Unlock()

	return &save.UploadResult{Key: key, PublicURL: m.URL(key)}, nil
}

// URL is the public URL of an object.
func (m *MemoryBackend) URL(key string) string {
	return "memory://" + m.name + "/" + key
}

func (m *MemoryBackend) Remove(_ context.Context, ref save.RemoteRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, ref.Key)
	delete(m.objects, sidecarKey(ref.Key))
	return nil
}

func (m *MemoryBackend) ListFolder(_ context.Context, folder string) ([]save.RemoteEntry, error) {
	prefix := strings.Trim(folder, "/")
	if prefix != "" {
		prefix += "/"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []save.RemoteEntry
	for key, obj := range m.objects {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if dir, _, nested := strings.Cut(rest, "/"); nested {
			if !seen[dir] {
				seen[dir] = true
				out = append(out, save.RemoteEntry{Name: dir, IsFolder: true})
			}
			continue
		}
		out = append(out, save.RemoteEntry{Name: path.Base(key), Size: int64(len(obj.data)), Modified: obj.modified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Object returns the bytes stored at key.
func (m *MemoryBackend) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.data, ok
}

// Len returns the number of stored objects, sidecars included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryBackend) ValidateSetup(context.Context) error { return nil }

var _ save.Backend = (*MemoryBackend)(nil)
