// Package model defines the records kept in the store and the views the
// application registers over them.
package model

import (
	"net/url"
	"slices"
	"time"

	"save-go/internal/graph"
	"save-go/internal/save"
)

// Collection names in the record store.
const (
	Spaces      = "spaces"
	Projects    = "projects"
	Collections = "collections"
	Assets      = "assets"
	Uploads     = "uploads"
)

// AllCollections lists every collection the store must be opened with.
var AllCollections = []string{Spaces, Projects, Collections, Assets, Uploads}

// SpaceKind names the kind of remote storage a Space points at.
type SpaceKind string

const (
	KindMemory     SpaceKind = "memory"
	KindFilesystem SpaceKind = "filesystem"
	KindS3         SpaceKind = "s3"
	KindIA         SpaceKind = "ia"
	KindWebDAV     SpaceKind = "webdav"
	KindGDrive     SpaceKind = "gdrive"
	KindDropbox    SpaceKind = "dropbox"
)

// Valid reports whether k is a known kind.
func (k SpaceKind) Valid() bool {
	switch k {
	case KindMemory, KindFilesystem, KindS3, KindIA, KindWebDAV, KindGDrive, KindDropbox:
		return true
	}
	return false
}

// Space is a configured remote storage backend.
type Space struct {
	ID       string    `json:"id"`
	Kind     SpaceKind `json:"kind"`
	Name     string    `json:"name,omitempty"`
	URL      string    `json:"url,omitempty"`
	Username string    `json:"username,omitempty"`

	// SealedSecret is the password or secret key, sealed with the local
	// public key. Opening it needs the user's passphrase.
	SealedSecret []byte `json:"sealed_secret,omitempty"`

	// Root is the target directory of a filesystem Space.
	Root     string `json:"root,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`

	AuthorName  string `json:"author_name,omitempty"`
	AuthorRole  string `json:"author_role,omitempty"`
	AuthorOther string `json:"author_other,omitempty"`

	Created time.Time `json:"created"`
}

// PrettyName is the name shown to the user: the Space name, else the host
// of its URL, else its kind.
func (s Space) PrettyName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.URL != "" {
		if u, err := url.Parse(s.URL); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return string(s.Kind)
}

// Project groups Collections. A Project without a Space is local only.
type Project struct {
	ID      string    `json:"id"`
	SpaceID string    `json:"space_id,omitempty"`
	Name    string    `json:"name"`
	License string    `json:"license,omitempty"`
	Active  bool      `json:"active"`
	Created time.Time `json:"created"`
}

func (p Project) Edges() []graph.Edge {
	if p.SpaceID == "" {
		return nil
	}
	return []graph.Edge{{
		Name: "space",
		Dest: graph.Ref{Collection: Spaces, Key: p.SpaceID},
		Rule: graph.DeleteSourceIfDestinationDeleted,
	}}
}

// Collection is a batch of Assets inside a Project.
type Collection struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Name      string     `json:"name,omitempty"`
	Created   time.Time  `json:"created"`
	Closed    *time.Time `json:"closed,omitempty"`
	Uploaded  *time.Time `json:"uploaded,omitempty"`
}

func (c Collection) Edges() []graph.Edge {
	return []graph.Edge{{
		Name: "project",
		Dest: graph.Ref{Collection: Projects, Key: c.ProjectID},
		Rule: graph.DeleteSourceIfDestinationDeleted,
	}}
}

// Flag is the tag that marks an Asset as sensitive.
const Flag = "NSFW"

// Asset is one ingested file. The bytes live in the content area under the
// Asset id.
type Asset struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	Created      time.Time `json:"created"`
	MimeType     string    `json:"mime_type,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	Size         int64     `json:"size,omitempty"`
	Digest       string    `json:"digest,omitempty"`
	HasFile      bool      `json:"has_file,omitempty"`
	HasThumbnail bool      `json:"has_thumbnail,omitempty"`

	Title    string   `json:"title,omitempty"`
	Desc     string   `json:"desc,omitempty"`
	Location string   `json:"location,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Notes    string   `json:"notes,omitempty"`

	UploadState UploadState `json:"upload_state,omitempty"`
	IsUploaded  bool        `json:"is_uploaded,omitempty"`
	PublicURL   string      `json:"public_url,omitempty"`
	RemoteKey   string      `json:"remote_key,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func (a Asset) Edges() []graph.Edge {
	edges := []graph.Edge{{
		Name: "collection",
		Dest: graph.Ref{Collection: Collections, Key: a.CollectionID},
		Rule: graph.DeleteSourceIfDestinationDeleted,
	}}
	if a.HasFile {
		edges = append(edges, graph.Edge{Name: "file", File: save.AssetFile(a.ID), Rule: graph.DeleteDestinationIfSourceDeleted})
	}
	if a.HasThumbnail {
		edges = append(edges, graph.Edge{Name: "thumb", File: save.AssetThumbnail(a.ID), Rule: graph.DeleteDestinationIfSourceDeleted})
	}
	return edges
}

// State returns the upload state, treating an unset state as idle.
func (a Asset) State() UploadState {
	if a.UploadState == "" {
		return StateIdle
	}
	return a.UploadState
}

// Flagged reports whether the Asset carries the Flag tag.
func (a Asset) Flagged() bool { return slices.Contains(a.Tags, Flag) }

// SetFlagged adds or removes the Flag tag and reports whether the tags
// changed. Removing the last tag leaves Tags nil. The tag slice is replaced,
// never modified in place, since other snapshots may share it.
func (a *Asset) SetFlagged(on bool) bool {
	has := a.Flagged()
	switch {
	case on && !has:
		a.Tags = append(slices.Clip(a.Tags), Flag)
	case !on && has:
		tags := slices.DeleteFunc(slices.Clone(a.Tags), func(t string) bool { return t == Flag })
		if len(tags) == 0 {
			tags = nil
		}
		a.Tags = tags
	default:
		return false
	}
	return true
}

// Upload tracks one transfer. Upload ids are ULIDs so that key order is
// start order.
type Upload struct {
	ID         string      `json:"id"`
	AssetID    string      `json:"asset_id"`
	SpaceID    string      `json:"space_id,omitempty"`
	BytesSent  int64       `json:"bytes_sent"`
	BytesTotal int64       `json:"bytes_total"`
	State      UploadState `json:"state"`
	Error      string      `json:"error,omitempty"`
	Created    time.Time   `json:"created"`
}

func (u Upload) Edges() []graph.Edge {
	return []graph.Edge{{
		Name: "asset",
		Dest: graph.Ref{Collection: Assets, Key: u.AssetID},
		Rule: graph.DeleteSourceIfDestinationDeleted,
	}}
}
