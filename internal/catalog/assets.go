package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"save-go/internal/fs"
	"save-go/internal/model"
	"save-go/internal/save"
	"save-go/internal/store"
)

// Ingest copies the file at path into the content area and adds it to a
// Collection as a new idle Asset.
func (s *Service) Ingest(collectionID, path string) (*model.Asset, error) {
	c, err := s.Collection(collectionID)
	if err != nil {
		return nil, err
	}
	if c.Closed != nil {
		return nil, fmt.Errorf("%w: collection %s is closed", ErrInvalidInput, collectionID)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", ErrInvalidInput, path)
	}

	id := s.idgen.New()
	imported, err := s.content.Import(id, f)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}

	a := model.Asset{
		ID:           id,
		CollectionID: collectionID,
		Created:      s.clock.Now(),
		MimeType:     imported.MimeType,
		Filename:     filepath.Base(path),
		Size:         imported.Size,
		Digest:       imported.Digest,
		HasFile:      true,
		UploadState:  model.StateIdle,
	}
	if err := s.put(model.Assets, id, a); err != nil {
		if rerr := s.content.Remove(save.AssetFile(id)); rerr != nil {
			s.logger.Warn("removing orphaned content", "asset", id, "error", rerr)
		}
		return nil, fmt.Errorf("creating asset: %w", err)
	}
	s.logger.Debug("asset ingested", "id", id, "path", path, "size", a.Size, "mime", a.MimeType)
	return &a, nil
}

// IngestDir ingests every file in dir that the ignore rules let through. The
// rules are the defaults, the configured patterns and dir's ignore file.
func (s *Service) IngestDir(collectionID, dir string, recursive bool, ignore []string) ([]model.Asset, error) {
	matcher, err := fs.LoadIgnoreMatcher(dir, ignore)
	if err != nil {
		return nil, err
	}
	files, err := fs.FindFiles(dir, recursive, matcher)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	out := make([]model.Asset, 0, len(files))
	for _, path := range files {
		a, err := s.Ingest(collectionID, path)
		if err != nil {
			return out, err
		}
		out = append(out, *a)
	}
	s.logger.Info("directory ingested", "dir", dir, "count", len(out))
	return out, nil
}

// Asset returns an Asset with its ancestors.
func (s *Service) Asset(id string) (*model.Asset, model.Chain, error) {
	snap := s.store.Snapshot()
	a, err := model.FindAsset(snap, id)
	if err != nil {
		return nil, model.Chain{}, err
	}
	if a == nil {
		return nil, model.Chain{}, notFound("asset", id)
	}
	chain, err := s.chainOf(snap, *a)
	if err != nil {
		return nil, model.Chain{}, err
	}
	return a, chain, nil
}

// Assets lists the Assets of a Collection, oldest first.
func (s *Service) Assets(collectionID string) ([]model.Asset, error) {
	snap := s.store.Snapshot()
	c, err := model.FindCollection(snap, collectionID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound("collection", collectionID)
	}
	p, err := model.FindProject(snap, c.ProjectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound("project", c.ProjectID)
	}
	return rows[model.Asset](snap, model.ViewAssetsByCollection, model.GroupKey(*p, *c))
}

// UpdateAsset applies fn to a copy of the Asset and stores the result in one
// transaction. Upload bookkeeping fields are restored after fn runs; they
// belong to the upload coordinator.
func (s *Service) UpdateAsset(id string, fn func(*model.Asset) error) (*model.Asset, error) {
	var out model.Asset
	err := s.store.ReadWrite(func(tx *store.Tx) error {
		a, err := model.FindAsset(tx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return notFound("asset", id)
		}
		before := *a
		if err := fn(a); err != nil {
			return err
		}
		a.ID = before.ID
		a.UploadState, a.IsUploaded = before.UploadState, before.IsUploaded
		a.PublicURL, a.RemoteKey, a.Error = before.PublicURL, before.RemoteKey, before.Error
		a.HasFile, a.HasThumbnail = before.HasFile, before.HasThumbnail
		out = *a
		return tx.Put(model.Assets, id, *a)
	})
	if err != nil {
		return nil, fmt.Errorf("updating asset: %w", err)
	}
	return &out, nil
}

// SetFlagged adds or removes the sensitive-content flag.
func (s *Service) SetFlagged(id string, on bool) (*model.Asset, error) {
	return s.UpdateAsset(id, func(a *model.Asset) error {
		a.SetFlagged(on)
		return nil
	})
}

// ExportMetadata returns the JSON metadata document uploaded next to the
// Asset's content.
func (s *Service) ExportMetadata(id string) ([]byte, error) {
	a, chain, err := s.Asset(id)
	if err != nil {
		return nil, err
	}
	return model.BuildMetadata(*a, chain).JSON()
}

// RemoveAsset deletes an Asset, its Upload records and its files. Callers
// cancel a running upload first.
func (s *Service) RemoveAsset(id string) error {
	if err := s.remove(model.Assets, id); err != nil {
		return fmt.Errorf("removing asset: %w", err)
	}
	s.logger.Info("asset removed", "id", id)
	return nil
}

// FilterByProject limits the filtered asset view to one Project's
// Collections. An empty projectID shows all of them.
func (s *Service) FilterByProject(projectID string) error {
	return s.store.ReadWrite(func(tx *store.Tx) error {
		return tx.SetFiltering(model.ViewAssetsByCollectionFiltered, model.ProjectFilter(projectID), projectID)
	})
}

// FocusCollection limits the single-collection asset view to one
// Collection. An empty collectionID shows all of them.
func (s *Service) FocusCollection(collectionID string) error {
	return s.store.ReadWrite(func(tx *store.Tx) error {
		return tx.SetFiltering(model.ViewAssetsByCollectionSingle, model.CollectionFilter(collectionID), collectionID)
	})
}
