package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"save-go/internal/model"
	"save-go/internal/save"
)

// ScriptedBackend is a save.Backend whose behaviour tests control.
type ScriptedBackend struct {
	// Steps are the bytesSent values reported as progress, against a total
	// of the request size. Empty reports the full size once.
	Steps []int64

	// Gate, if set, holds the upload after its first progress step until it
	// is closed or the upload is cancelled.
	Gate chan struct{}

	UploadErr error
	RemoveErr error
	BaseURL   string

	mu       sync.Mutex
	uploads  []save.UploadRequest
	contents map[string][]byte
	removed  []save.RemoteRef
	started  chan string
}

func NewScriptedBackend() *ScriptedBackend {
	return &ScriptedBackend{
		BaseURL:  "https://remote.example/",
		contents: make(map[string][]byte),
		started:  make(chan string, 16),
	}
}

// Started receives an asset id when its upload reports first progress.
func (b *ScriptedBackend) Started() <-chan string { return b.started }

func (b *ScriptedBackend) Upload(ctx context.Context, req save.UploadRequest, progress save.ProgressFunc) (*save.UploadResult, error) {
	data, err := io.ReadAll(req.Content)
	if err != nil {
		return nil, err
	}
	steps := b.Steps
	if len(steps) == 0 {
		steps = []int64{req.Size}
	}
	for i, sent := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(sent, req.Size)
		if i == 0 {
			select {
			case b.started <- req.AssetID:
			default:
			}
			if b.Gate != nil {
				select {
				case <-b.Gate:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}
	}
	if b.UploadErr != nil {
		return nil, b.UploadErr
	}

	key := "scripted/" + req.AssetID
	b.mu.Lock()
	b.uploads = append(b.uploads, req)
	b.contents[key] = data
	b.mu.Unlock()
	return &save.UploadResult{Key: key, PublicURL: b.BaseURL + key}, nil
}

func (b *ScriptedBackend) Remove(_ context.Context, ref save.RemoteRef) error {
	if b.RemoveErr != nil {
		return b.RemoveErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.contents, ref.Key)
	b.removed = append(b.removed, ref)
	return nil
}

func (b *ScriptedBackend) ListFolder(context.Context, string) ([]save.RemoteEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []save.RemoteEntry
	for key, data := range b.contents {
		out = append(out, save.RemoteEntry{Name: key, Size: int64(len(data))})
	}
	return out, nil
}

func (b *ScriptedBackend) ValidateSetup(context.Context) error { return nil }

// Uploads returns the completed upload requests.
func (b *ScriptedBackend) Uploads() []save.UploadRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]save.UploadRequest(nil), b.uploads...)
}

// Content returns the bytes received for a key.
func (b *ScriptedBackend) Content(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.contents[key]
	return data, ok
}

// Removed returns the refs passed to Remove.
func (b *ScriptedBackend) Removed() []save.RemoteRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]save.RemoteRef(nil), b.removed...)
}

// Resolve returns b for every Space, for use as upload.BackendsFunc.
func (b *ScriptedBackend) Resolve(_ context.Context, space model.Space) (save.Backend, error) {
	if space.ID == "" {
		return nil, fmt.Errorf("space without id")
	}
	return b, nil
}

var _ save.Backend = (*ScriptedBackend)(nil)
