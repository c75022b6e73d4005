package testutil

import (
	"bytes"
	"context"
	"testing"

	"save-go/internal/fs"
	"save-go/internal/model"
	"save-go/internal/save"
	"save-go/internal/store"
)

// NewTestStore opens a store with the application's collections, codec and
// views. db may be nil for a memory-only store; files may be nil.
func NewTestStore(t *testing.T, db save.Database, files store.FileRemover) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Collections: model.AllCollections,
		Codec:       model.DefaultCodec(),
		Database:    db,
		Files:       files,
		Views:       model.Views(),
		Filtered:    model.FilteredViews(),
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Fixture is a Space, Project and Collection ready to receive assets.
type Fixture struct {
	Store      *store.Store
	Content    *fs.MemoryContentArea
	Clock      *StubClock
	Space      model.Space
	Project    model.Project
	Collection model.Collection
}

// NewFixture opens a memory store and seeds it with a memory Space, an
// active Project and one Collection.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	content := fs.NewMemoryContentArea()
	f := &Fixture{
		Store:   NewTestStore(t, nil, content),
		Content: content,
		Clock:   FixedClock(),
	}
	f.Space = model.Space{ID: "space-1", Kind: model.KindMemory, Name: "Test", AuthorName: "Sam", Created: f.Clock.Tick(0)}
	f.Project = model.Project{ID: "project-1", SpaceID: f.Space.ID, Name: "Field Work", License: "CC-BY-4.0", Active: true, Created: f.Clock.Tick(1)}
	f.Collection = model.Collection{ID: "collection-1", ProjectID: f.Project.ID, Created: f.Clock.Tick(1)}

	err := f.Store.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Spaces, f.Space.ID, f.Space); err != nil {
			return err
		}
		if err := tx.Put(model.Projects, f.Project.ID, f.Project); err != nil {
			return err
		}
		return tx.Put(model.Collections, f.Collection.ID, f.Collection)
	})
	if err != nil {
		t.Fatalf("seeding fixture: %v", err)
	}
	return f
}

// AddAsset imports content and stores an Asset for it in the fixture's
// Collection.
func (f *Fixture) AddAsset(t *testing.T, id string, content []byte) model.Asset {
	t.Helper()
	imported, err := f.Content.Import(id, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("importing content: %v", err)
	}
	a := model.Asset{
		ID:           id,
		CollectionID: f.Collection.ID,
		Created:      f.Clock.Tick(1),
		Filename:     id + ".jpg",
		MimeType:     imported.MimeType,
		Size:         imported.Size,
		Digest:       imported.Digest,
		HasFile:      true,
		UploadState:  model.StateIdle,
	}
	if err := f.Store.ReadWrite(func(tx *store.Tx) error { return tx.Put(model.Assets, id, a) }); err != nil {
		t.Fatalf("storing asset: %v", err)
	}
	return a
}

// Asset returns the stored Asset, failing the test if it is missing.
func (f *Fixture) Asset(t *testing.T, id string) model.Asset {
	t.Helper()
	a, err := model.FindAsset(f.Store.Snapshot(), id)
	if err != nil || a == nil {
		t.Fatalf("asset %s: %v (found=%v)", id, err, a != nil)
	}
	return *a
}
