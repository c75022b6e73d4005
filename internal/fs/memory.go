package fs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"save-go/internal/save"
)

// MemoryContentArea keeps content in memory. Used in tests. Safe for
// concurrent use.
type MemoryContentArea struct {
	mu    sync.RWMutex
	files map[string][]byte // relative path -> bytes
}

func NewMemoryContentArea() *MemoryContentArea {
	return &MemoryContentArea{files: make(map[string][]byte)}
}

func (m *MemoryContentArea) Import(assetID string, r io.Reader) (*save.ImportedFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	sum := sha256.Sum256(data)

	m.mu.Lock()
	m.files[save.AssetFile(assetID)] = data
	m.mu.Unlock()

	return &save.ImportedFile{
		Size:     int64(len(data)),
		Digest:   hex.EncodeToString(sum[:]),
		MimeType: mimetype.Detect(data).String(),
	}, nil
}

func (m *MemoryContentArea) ImportThumbnail(assetID string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read thumbnail: %w", err)
	}
	m.mu.Lock()
	m.files[save.AssetThumbnail(assetID)] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryContentArea) get(rel string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[rel]
	return data, ok
}

func (m *MemoryContentArea) Open(assetID string) (io.ReadCloser, error) {
	data, ok := m.get(save.AssetFile(assetID))
	if !ok {
		return nil, fmt.Errorf("content not found: %s", assetID)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryContentArea) Exists(assetID string) (bool, error) {
	_, ok := m.get(save.AssetFile(assetID))
	return ok, nil
}

func (m *MemoryContentArea) Size(assetID string) (int64, error) {
	data, ok := m.get(save.AssetFile(assetID))
	if !ok {
		return 0, fmt.Errorf("content not found: %s", assetID)
	}
	return int64(len(data)), nil
}

func (m *MemoryContentArea) Hash(assetID string) (string, error) {
	data, ok := m.get(save.AssetFile(assetID))
	if !ok {
		return "", fmt.Errorf("content not found: %s", assetID)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Has reports whether a file exists at a relative path.
func (m *MemoryContentArea) Has(rel string) bool {
	_, ok := m.get(rel)
	return ok
}

func (m *MemoryContentArea) Remove(rel string) error {
	m.mu.Lock()
	delete(m.files, rel)
	m.mu.Unlock()
	return nil
}

var _ save.ContentArea = (*MemoryContentArea)(nil)
