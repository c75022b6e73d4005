package catalog_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"save-go/internal/catalog"
	"save-go/internal/encryption"
	"save-go/internal/fs"
	"save-go/internal/model"
	"save-go/internal/save"
	"save-go/internal/store"
	"save-go/internal/testutil"
)

type env struct {
	svc     *catalog.Service
	store   *store.Store
	content *fs.MemoryContentArea
	clock   *testutil.StubClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	content := fs.NewMemoryContentArea()
	st := testutil.NewTestStore(t, nil, content)
	clock := testutil.FixedClock()
	current := save.NewCurrent("", save.Profile{Alias: "Robin"}, nil)
	svc := catalog.NewService(st, content, encryption.NewTestSealer(), current, save.NewNopLogger(), tickingClock{clock}, testutil.NewStubIDGenerator("id"))
	return &env{svc: svc, store: st, content: content, clock: clock}
}

// tickingClock advances one second per reading so records get distinct
// creation times.
type tickingClock struct{ c *testutil.StubClock }

func (t tickingClock) Now() time.Time { return t.c.Tick(time.Second) }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func (e *env) library(t *testing.T) (*model.Space, *model.Project, *model.Collection) {
	t.Helper()
	space, err := e.svc.AddSpace(catalog.SpaceInput{Kind: model.KindMemory, Name: "Archive", AuthorName: "Ada"})
	if err != nil {
		t.Fatalf("AddSpace() error = %v", err)
	}
	project, err := e.svc.AddProject("", "Protest", "CC-BY-SA-4.0")
	if err != nil {
		t.Fatalf("AddProject() error = %v", err)
	}
	collection, err := e.svc.AddCollection(project.ID, "Day 1")
	if err != nil {
		t.Fatalf("AddCollection() error = %v", err)
	}
	return space, project, collection
}

func TestService_Spaces(t *testing.T) {
	t.Run("first space becomes selected", func(t *testing.T) {
		e := newEnv(t)
		first, err := e.svc.AddSpace(catalog.SpaceInput{Kind: model.KindMemory, Name: "B"})
		if err != nil {
			t.Fatalf("AddSpace() error = %v", err)
		}
		if _, err := e.svc.AddSpace(catalog.SpaceInput{Kind: model.KindMemory, Name: "a"}); err != nil {
			t.Fatalf("AddSpace() error = %v", err)
		}

		cur, err := e.svc.CurrentSpace()
		if err != nil {
			t.Fatalf("CurrentSpace() error = %v", err)
		}
		if cur == nil || cur.ID != first.ID {
			t.Errorf("CurrentSpace() = %v, want %s", cur, first.ID)
		}

		spaces, err := e.svc.Spaces()
		if err != nil {
			t.Fatalf("Spaces() error = %v", err)
		}
		if len(spaces) != 2 || spaces[0].Name != "a" || spaces[1].Name != "B" {
			t.Errorf("Spaces() = %+v, want a then B", spaces)
		}
	})

	t.Run("secret is sealed", func(t *testing.T) {
		e := newEnv(t)
		space, err := e.svc.AddSpace(catalog.SpaceInput{Kind: model.KindS3, Bucket: "b", Username: "AKIA", Secret: "s3cret"})
		if err != nil {
			t.Fatalf("AddSpace() error = %v", err)
		}
		if string(space.SealedSecret) == "s3cret" || len(space.SealedSecret) == 0 {
			t.Fatalf("SealedSecret = %q, want sealed bytes", space.SealedSecret)
		}
		opened, err := encryption.TestOpener{}.Open(space.SealedSecret)
		if err != nil || string(opened) != "s3cret" {
			t.Errorf("Open() = %q, %v", opened, err)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		e := newEnv(t)
		for _, in := range []catalog.SpaceInput{
			{Kind: "ftp"},
			{Kind: model.KindFilesystem},
			{Kind: model.KindIA},
		} {
			if _, err := e.svc.AddSpace(in); !errors.Is(err, catalog.ErrInvalidInput) {
				t.Errorf("AddSpace(%+v) error = %v, want ErrInvalidInput", in, err)
			}
		}
	})

	t.Run("select unknown space fails", func(t *testing.T) {
		e := newEnv(t)
		if err := e.svc.SelectSpace("nope"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("SelectSpace() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("removing the selected space clears the selection", func(t *testing.T) {
		e := newEnv(t)
		space, _, collection := e.library(t)
		dir := t.TempDir()
		a, err := e.svc.Ingest(collection.ID, writeFile(t, dir, "photo.jpg", "jpeg"))
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}

		if err := e.svc.RemoveSpace(space.ID); err != nil {
			t.Fatalf("RemoveSpace() error = %v", err)
		}
		if id := e.svc.Current().SpaceID(); id != "" {
			t.Errorf("selected space = %q, want none", id)
		}
		if _, err := e.svc.Project(collection.ProjectID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("project survived its space: %v", err)
		}
		if e.content.Has(save.AssetFile(a.ID)) {
			t.Error("asset file survived its space")
		}
		if err := e.svc.RemoveSpace(space.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("second RemoveSpace() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("update keeps id and secret", func(t *testing.T) {
		e := newEnv(t)
		space, err := e.svc.AddSpace(catalog.SpaceInput{Kind: model.KindS3, Bucket: "b", Secret: "x"})
		if err != nil {
			t.Fatalf("AddSpace() error = %v", err)
		}
		got, err := e.svc.UpdateSpace(space.ID, func(s *model.Space) error {
			s.ID = "other"
			s.SealedSecret = nil
			s.Name = "Renamed"
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateSpace() error = %v", err)
		}
		if got.ID != space.ID || len(got.SealedSecret) == 0 || got.Name != "Renamed" {
			t.Errorf("UpdateSpace() = %+v", got)
		}
	})
}

func TestService_ProjectsAndCollections(t *testing.T) {
	e := newEnv(t)
	space, project, collection := e.library(t)

	if project.SpaceID != space.ID {
		t.Errorf("project.SpaceID = %q, want selected space %q", project.SpaceID, space.ID)
	}
	local, err := e.svc.AddProject("", "x", "")
	if err != nil {
		t.Fatalf("AddProject() error = %v", err)
	}
	if local.SpaceID != space.ID {
		t.Errorf("AddProject() without space did not use selection")
	}

	if err := e.svc.SetProjectActive(local.ID, false); err != nil {
		t.Fatalf("SetProjectActive() error = %v", err)
	}
	all, _ := e.svc.Projects(space.ID, false)
	active, _ := e.svc.Projects(space.ID, true)
	if len(all) != 2 || len(active) != 1 || active[0].ID != project.ID {
		t.Errorf("Projects() all=%d active=%v", len(all), active)
	}

	if _, err := e.svc.AddProject(space.ID, "  ", ""); !errors.Is(err, catalog.ErrInvalidInput) {
		t.Errorf("AddProject(blank) error = %v, want ErrInvalidInput", err)
	}
	if _, err := e.svc.AddCollection("missing", "c"); !errors.Is(err, store.ErrTransactionAborted) {
		t.Errorf("AddCollection(missing project) error = %v, want aborted", err)
	}

	second, err := e.svc.AddCollection(project.ID, "Day 2")
	if err != nil {
		t.Fatalf("AddCollection() error = %v", err)
	}
	cols, err := e.svc.Collections(project.ID)
	if err != nil {
		t.Fatalf("Collections() error = %v", err)
	}
	if len(cols) != 2 || cols[0].ID != collection.ID || cols[1].ID != second.ID {
		t.Errorf("Collections() = %+v", cols)
	}

	if err := e.svc.CloseCollection(second.ID); err != nil {
		t.Fatalf("CloseCollection() error = %v", err)
	}
	path := writeFile(t, t.TempDir(), "late.txt", "late")
	if _, err := e.svc.Ingest(second.ID, path); !errors.Is(err, catalog.ErrInvalidInput) {
		t.Errorf("Ingest(closed) error = %v, want ErrInvalidInput", err)
	}

	if err := e.svc.RemoveCollection(second.ID); err != nil {
		t.Fatalf("RemoveCollection() error = %v", err)
	}
	if err := e.svc.RemoveProject(project.ID); err != nil {
		t.Fatalf("RemoveProject() error = %v", err)
	}
	if _, err := e.svc.Collection(collection.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("collection survived its project: %v", err)
	}
}

func TestService_Assets(t *testing.T) {
	t.Run("ingest stores content and metadata", func(t *testing.T) {
		e := newEnv(t)
		_, _, collection := e.library(t)
		path := writeFile(t, t.TempDir(), "notes.txt", "hello world")

		a, err := e.svc.Ingest(collection.ID, path)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if a.Filename != "notes.txt" || a.Size != 11 || !a.HasFile || a.State() != model.StateIdle {
			t.Errorf("Ingest() = %+v", a)
		}
		if a.Digest != testutil.SHA256Hex([]byte("hello world")) {
			t.Errorf("Digest = %s", a.Digest)
		}
		if a.MimeType != "text/plain; charset=utf-8" {
			t.Errorf("MimeType = %q", a.MimeType)
		}
		if !e.content.Has(save.AssetFile(a.ID)) {
			t.Error("content not imported")
		}
	})

	t.Run("ingest into missing collection leaves no content", func(t *testing.T) {
		e := newEnv(t)
		path := writeFile(t, t.TempDir(), "a.txt", "a")
		if _, err := e.svc.Ingest("missing", path); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Ingest() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ingest dir honours ignore rules", func(t *testing.T) {
		e := newEnv(t)
		_, _, collection := e.library(t)
		dir := t.TempDir()
		writeFile(t, dir, "one.jpg", "1")
		writeFile(t, dir, "two.jpg", "2")
		writeFile(t, dir, ".DS_Store", "junk")
		writeFile(t, dir, "draft.tmp", "tmp")
		writeFile(t, dir, "sub/three.jpg", "3")
		writeFile(t, dir, fs.IgnoreFile, "*.tmp\n")

		got, err := e.svc.IngestDir(collection.ID, dir, false, nil)
		if err != nil {
			t.Fatalf("IngestDir() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("IngestDir() ingested %d files, want 2", len(got))
		}

		got, err = e.svc.IngestDir(collection.ID, dir, true, []string{"two.jpg"})
		if err != nil {
			t.Fatalf("IngestDir() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("recursive IngestDir() ingested %d files, want 2", len(got))
		}

		assets, err := e.svc.Assets(collection.ID)
		if err != nil {
			t.Fatalf("Assets() error = %v", err)
		}
		if len(assets) != 4 {
			t.Errorf("Assets() = %d assets, want 4", len(assets))
		}
		for i := 1; i < len(assets); i++ {
			if assets[i].Created.Before(assets[i-1].Created) {
				t.Errorf("Assets() not oldest first at %d", i)
			}
		}
	})

	t.Run("update flag and export", func(t *testing.T) {
		e := newEnv(t)
		_, _, collection := e.library(t)
		a, err := e.svc.Ingest(collection.ID, writeFile(t, t.TempDir(), "p.jpg", "jpeg"))
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}

		updated, err := e.svc.UpdateAsset(a.ID, func(a *model.Asset) error {
			a.Title = "Crowd"
			a.Location = "Main square"
			a.IsUploaded = true
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateAsset() error = %v", err)
		}
		if updated.Title != "Crowd" || updated.IsUploaded {
			t.Errorf("UpdateAsset() = %+v", updated)
		}

		flagged, err := e.svc.SetFlagged(a.ID, true)
		if err != nil {
			t.Fatalf("SetFlagged() error = %v", err)
		}
		if !flagged.Flagged() {
			t.Error("asset not flagged")
		}

		data, err := e.svc.ExportMetadata(a.ID)
		if err != nil {
			t.Fatalf("ExportMetadata() error = %v", err)
		}
		var m model.Metadata
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("metadata is not JSON: %v", err)
		}
		if m.Author != "Ada" || m.Usage != "CC-BY-SA-4.0" || m.Title != "Crowd" || m.OriginalFileName != "p.jpg" {
			t.Errorf("metadata = %+v", m)
		}

		if err := e.svc.RemoveAsset(a.ID); err != nil {
			t.Fatalf("RemoveAsset() error = %v", err)
		}
		if e.content.Has(save.AssetFile(a.ID)) {
			t.Error("content survived asset removal")
		}
	})

	t.Run("filters", func(t *testing.T) {
		e := newEnv(t)
		_, project, collection := e.library(t)
		other, err := e.svc.AddProject("", "Other", "")
		if err != nil {
			t.Fatalf("AddProject() error = %v", err)
		}
		otherCol, err := e.svc.AddCollection(other.ID, "")
		if err != nil {
			t.Fatalf("AddCollection() error = %v", err)
		}
		dir := t.TempDir()
		if _, err := e.svc.Ingest(collection.ID, writeFile(t, dir, "a", "a")); err != nil {
			t.Fatal(err)
		}
		if _, err := e.svc.Ingest(otherCol.ID, writeFile(t, dir, "b", "b")); err != nil {
			t.Fatal(err)
		}

		if err := e.svc.FilterByProject(project.ID); err != nil {
			t.Fatalf("FilterByProject() error = %v", err)
		}
		if err := e.svc.FocusCollection(otherCol.ID); err != nil {
			t.Fatalf("FocusCollection() error = %v", err)
		}
		snap := e.store.Snapshot()
		byProject, _ := snap.View(model.ViewAssetsByCollectionFiltered)
		single, _ := snap.View(model.ViewAssetsByCollectionSingle)
		if groups := byProject.Groups(); len(groups) != 1 || groups[0] != model.GroupKey(*project, *collection) {
			t.Errorf("project filter groups = %v", groups)
		}
		if single.Len() != 1 {
			t.Errorf("collection filter rows = %d, want 1", single.Len())
		}
	})
}
