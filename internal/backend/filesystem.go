package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"save-go/internal/save"
)

// FileSystemBackend publishes assets into a local or mounted directory:
//
//	<root>/
//	  <project>/<collection>/
//	    <asset id>.<ext>             (content)
//	    <asset id>.<ext>.meta.json   (metadata sidecar)
type FileSystemBackend struct {
	root string
}

func NewFileSystemBackend(root string) (*FileSystemBackend, error) {
	if root == "" {
		return nil, errors.New("filesystem backend requires a root directory")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backend root: %w", err)
	}
	return &FileSystemBackend{root: root}, nil
}

func (b *FileSystemBackend) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

// Upload writes the content atomically, then its sidecar.
func (b *FileSystemBackend) Upload(ctx context.Context, req save.UploadRequest, progress save.ProgressFunc) (*save.UploadResult, error) {
	key := objectKey("", req)
	dest := b.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	r := newProgressReader(ctx, req.Content, req.Size, progress)
	if err := writeFile(dest, r); err != nil {
		return nil, err
	}
	if req.Metadata != nil {
		if err := writeFile(b.path(sidecarKey(key)), strings.NewReader(string(req.Metadata))); err != nil {
			return nil, fmt.Errorf("writing metadata: %w", err)
		}
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(dest)}
	return &save.UploadResult{Key: key, PublicURL: u.String()}, nil
}

func (b *FileSystemBackend) Remove(_ context.Context, ref save.RemoteRef) error {
	if ref.Key == "" || !filepath.IsLocal(filepath.FromSlash(ref.Key)) {
		return fmt.Errorf("invalid remote key %q", ref.Key)
	}
	for _, p := range []string{b.path(ref.Key), b.path(sidecarKey(ref.Key))} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

func (b *FileSystemBackend) ListFolder(_ context.Context, folder string) ([]save.RemoteEntry, error) {
	entries, err := os.ReadDir(b.path(folder))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading folder: %w", err)
	}
	out := make([]save.RemoteEntry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, save.RemoteEntry{
			Name:     e.Name(),
			IsFolder: e.IsDir(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return out, nil
}

// ValidateSetup verifies that the root is a writable directory.
func (b *FileSystemBackend) ValidateSetup(context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return fmt.Errorf("backend root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backend root is not a directory: %s", b.root)
	}
	f, err := os.CreateTemp(b.root, ".tmp-probe-*")
	if err != nil {
		return fmt.Errorf("backend root not writable: %w", err)
	}
	f.Close()
	return os.Remove(f.Name())
}

// writeFile writes r to destPath using a temp file and rename.
func writeFile(destPath string, r io.Reader) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

var _ save.Backend = (*FileSystemBackend)(nil)
