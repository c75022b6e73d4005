package save

import "io"

// ImportedFile describes content that was copied into the content area.
type ImportedFile struct {
	Size     int64
	Digest   string // hex SHA-256
	MimeType string
}

// ContentArea stores asset bytes and thumbnails addressed by asset id.
type ContentArea interface {
	// Import copies r into the file for assetID, replacing any previous content.
	Import(assetID string, r io.Reader) (*ImportedFile, error)

	// ImportThumbnail stores a thumbnail image for assetID.
	ImportThumbnail(assetID string, r io.Reader) error

	// Open opens the asset file for reading.
	Open(assetID string) (io.ReadCloser, error)

	// Exists reports whether the asset file is present.
	Exists(assetID string) (bool, error)

	// Size returns the asset file size in bytes.
	Size(assetID string) (int64, error)

	// Hash returns the hex SHA-256 of the asset file.
	Hash(assetID string) (string, error)

	// Remove deletes the file at path, relative to the content root. A
	// missing file is not an error.
	Remove(path string) error
}

// AssetFile is the path of an asset's content relative to the content root.
func AssetFile(assetID string) string { return "assets/" + assetID }

// AssetThumbnail is the path of an asset's thumbnail relative to the
// content root.
func AssetThumbnail(assetID string) string { return "assets/" + assetID + ".thumb" }
