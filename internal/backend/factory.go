package backend

import (
	"context"
	"fmt"
	"sync"

	"save-go/internal/model"
	"save-go/internal/save"
)

// Factory builds the backend of a Space. Memory backends are kept per Space
// so that uploads and removals in one process see the same objects.
type Factory struct {
	mu     sync.Mutex
	memory map[string]*MemoryBackend
}

func NewFactory() *Factory {
	return &Factory{memory: make(map[string]*MemoryBackend)}
}

// New creates the backend for space. secret is the opened SealedSecret, or
// empty if the Space has none.
func (f *Factory) New(ctx context.Context, space model.Space, secret string) (save.Backend, error) {
	switch space.Kind {
	case model.KindMemory:
		f.mu.Lock()
		defer f.mu.Unlock()
		b, ok := f.memory[space.ID]
		if !ok {
			b = NewMemoryBackend(space.PrettyName())
			f.memory[space.ID] = b
		}
		return b, nil
	case model.KindFilesystem:
		if space.Root == "" {
			return nil, fmt.Errorf("filesystem space %s has no root directory", space.ID)
		}
		return NewFileSystemBackend(space.Root)
	case model.KindS3:
		return NewS3Backend(ctx, S3Options{
			Bucket:    space.Bucket,
			Prefix:    space.Prefix,
			Region:    space.Region,
			Endpoint:  space.Endpoint,
			AccessKey: space.Username,
			SecretKey: secret,
			PathStyle: space.Endpoint != "",
		})
	case model.KindIA:
		if space.Bucket == "" {
			return nil, fmt.Errorf("internet archive space %s has no item identifier", space.ID)
		}
		return NewInternetArchiveBackend(ctx, space.Bucket, space.Username, secret)
	case model.KindWebDAV, model.KindGDrive, model.KindDropbox:
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, space.Kind)
	default:
		return nil, fmt.Errorf("unknown space kind: %q", space.Kind)
	}
}
