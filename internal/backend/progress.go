// Package backend implements the remote storage services a Space can point
// at.
package backend

import (
	"context"
	"errors"
	"io"
	"path"
	"sync"

	"save-go/internal/save"
)

// ErrNotSupported is returned by the factory for Space kinds without a
// backend implementation.
var ErrNotSupported = errors.New("backend not supported")

// progressReader reports the cumulative number of bytes read and stops with
// the context's error once ctx is done.
type progressReader struct {
	ctx      context.Context
	r        io.Reader
	total    int64
	progress save.ProgressFunc

	mu   sync.Mutex
	sent int64
}

func newProgressReader(ctx context.Context, r io.Reader, total int64, progress save.ProgressFunc) *progressReader {
	return &progressReader{ctx: ctx, r: r, total: total, progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.sent += int64(n)
		sent := p.sent
		p.mu.Unlock()
		if p.progress != nil {
			p.progress(sent, max(p.total, sent))
		}
	}
	return n, err
}

// objectName is the remote name of an asset: its id plus the extension of
// the original filename, so two assets never collide within a folder.
func objectName(req save.UploadRequest) string {
	return req.AssetID + path.Ext(req.Filename)
}

// objectKey joins prefix, folder and name with forward slashes.
func objectKey(prefix string, req save.UploadRequest) string {
	return path.Join(prefix, req.Folder, objectName(req))
}

// sidecarKey is where the JSON metadata of an object is stored.
func sidecarKey(key string) string { return key + ".meta.json" }
