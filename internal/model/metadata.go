package model

import (
	"encoding/json"
	"time"
)

// Metadata is the JSON sidecar uploaded next to an Asset's content.
type Metadata struct {
	Author           string    `json:"author,omitempty"`
	Title            string    `json:"title,omitempty"`
	Description      string    `json:"description,omitempty"`
	DateCreated      time.Time `json:"dateCreated"`
	Usage            string    `json:"usage,omitempty"`
	Location         string    `json:"location,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	ContentType      string    `json:"contentType,omitempty"`
	ContentLength    int64     `json:"contentLength"`
	OriginalFileName string    `json:"originalFileName,omitempty"`
	Hash             string    `json:"hash,omitempty"`
}

// BuildMetadata collects an Asset's metadata, deriving author and usage
// from its chain.
func BuildMetadata(a Asset, c Chain) Metadata {
	return Metadata{
		Author:           c.Author(),
		Title:            a.Title,
		Description:      a.Desc,
		DateCreated:      a.Created.UTC(),
		Usage:            c.License(),
		Location:         a.Location,
		Notes:            a.Notes,
		Tags:             a.Tags,
		ContentType:      a.MimeType,
		ContentLength:    a.Size,
		OriginalFileName: a.Filename,
		Hash:             a.Digest,
	}
}

// JSON renders the metadata as indented JSON.
func (m Metadata) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
