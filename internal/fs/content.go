// Package fs holds the local content area and the helpers used to discover
// files for import.
package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"save-go/internal/save"
)

// ContentArea stores asset bytes below a root directory:
//
//	<root>/
//	  assets/
//	    <asset id>          (content)
//	    <asset id>.thumb    (thumbnail)
type ContentArea struct {
	root string
}

// NewContentArea creates the directory structure below root.
func NewContentArea(root string) (*ContentArea, error) {
	if err := os.MkdirAll(filepath.Join(root, filepath.Dir(save.AssetFile("x"))), 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &ContentArea{root: root}, nil
}

// Root returns the content root directory.
func (c *ContentArea) Root() string { return c.root }

func (c *ContentArea) path(rel string) string {
	return filepath.Join(c.root, filepath.FromSlash(rel))
}

// Import copies r into the asset file, hashing and sniffing it on the way.
func (c *ContentArea) Import(assetID string, r io.Reader) (*save.ImportedFile, error) {
	h := sha256.New()
	dest := c.path(save.AssetFile(assetID))
	written, err := writeAtomic(dest, io.TeeReader(r, h))
	if err != nil {
		return nil, err
	}
	mt, err := mimetype.DetectFile(dest)
	if err != nil {
		return nil, fmt.Errorf("detecting content type: %w", err)
	}
	return &save.ImportedFile{
		Size:     written,
		Digest:   hex.EncodeToString(h.Sum(nil)),
		MimeType: mt.String(),
	}, nil
}

func (c *ContentArea) ImportThumbnail(assetID string, r io.Reader) error {
	_, err := writeAtomic(c.path(save.AssetThumbnail(assetID)), r)
	return err
}

func (c *ContentArea) Open(assetID string) (io.ReadCloser, error) {
	f, err := os.Open(c.path(save.AssetFile(assetID)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("content not found: %s", assetID)
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	return f, nil
}

func (c *ContentArea) Exists(assetID string) (bool, error) {
	_, err := os.Stat(c.path(save.AssetFile(assetID)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (c *ContentArea) Size(assetID string) (int64, error) {
	info, err := os.Stat(c.path(save.AssetFile(assetID)))
	if err != nil {
		return 0, fmt.Errorf("stat content: %w", err)
	}
	return info.Size(), nil
}

// Hash returns the hex SHA-256 of the asset file.
func (c *ContentArea) Hash(assetID string) (string, error) {
	f, err := c.Open(assetID)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FilePath and ThumbnailPath return absolute paths, for callers outside the
// store such as the CLI.
func (c *ContentArea) FilePath(assetID string) string {
	return c.path(save.AssetFile(assetID))
}

func (c *ContentArea) ThumbnailPath(assetID string) string {
	return c.path(save.AssetThumbnail(assetID))
}

// Remove deletes a file below the root. Paths escaping the root are refused.
func (c *ContentArea) Remove(rel string) error {
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return fmt.Errorf("refusing to remove %q outside the content area", rel)
	}
	if err := os.Remove(c.path(rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", rel, err)
	}
	return nil
}

// writeAtomic writes r to destPath through a temp file and rename, so a
// crash never leaves a partial file behind.
func writeAtomic(destPath string, r io.Reader) (int64, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return written, nil
}

var _ save.ContentArea = (*ContentArea)(nil)
