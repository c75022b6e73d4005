package save

import (
	"context"
	"io"
	"time"
)

// ProgressFunc receives the cumulative number of bytes handed to the remote
// side and the expected total. Implementations must return quickly; they are
// called from the transfer goroutine.
type ProgressFunc func(bytesSent, bytesTotal int64)

// UploadRequest describes one asset transfer.
type UploadRequest struct {
	AssetID  string
	Filename string
	MimeType string
	Size     int64
	Content  io.Reader

	// Folder is the remote folder the asset is placed in, relative to the
	// backend root (usually "<project>/<collection>").
	Folder string

	// Metadata is an optional JSON sidecar uploaded next to the content.
	Metadata []byte
}

// UploadResult is returned by a successful Backend.Upload.
type UploadResult struct {
	Key       string
	PublicURL string
}

// RemoteRef identifies a previously uploaded asset on a backend.
type RemoteRef struct {
	AssetID   string
	Key       string
	PublicURL string
}

// RemoteEntry is one item returned by Backend.ListFolder.
type RemoteEntry struct {
	Name     string
	IsFolder bool
	Size     int64
	Modified time.Time
}

// Backend is a remote storage service a Space points at. Implementations
// must honour ctx cancellation during Upload.
type Backend interface {
	// Upload streams req.Content to the backend, reporting progress as it goes.
	Upload(ctx context.Context, req UploadRequest, progress ProgressFunc) (*UploadResult, error)

	// Remove deletes a previously uploaded asset. Removing something that is
	// already gone is not an error.
	Remove(ctx context.Context, ref RemoteRef) error

	// ListFolder lists the entries directly below folder.
	ListFolder(ctx context.Context, folder string) ([]RemoteEntry, error)

	// ValidateSetup verifies that the backend is reachable and configured.
	ValidateSetup(ctx context.Context) error
}
