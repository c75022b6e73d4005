package model_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"save-go/internal/model"
	"save-go/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Collections: model.AllCollections,
		Codec:       model.DefaultCodec(),
		Views:       model.Views(),
		Filtered:    model.FilteredViews(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAssetsByCollectionIsReverseChronological(t *testing.T) {
	s := openStore(t)
	t0 := time.Unix(1_700_000_000, 0)

	err := s.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Projects, "P", model.Project{ID: "P", Name: "P", Created: t0}); err != nil {
			return err
		}
		if err := tx.Put(model.Collections, "C1", model.Collection{ID: "C1", ProjectID: "P", Created: t0.Add(1 * time.Second)}); err != nil {
			return err
		}
		if err := tx.Put(model.Collections, "C2", model.Collection{ID: "C2", ProjectID: "P", Created: t0.Add(2 * time.Second)}); err != nil {
			return err
		}
		if err := tx.Put(model.Assets, "A1", model.Asset{ID: "A1", CollectionID: "C1"}); err != nil {
			return err
		}
		return tx.Put(model.Assets, "A2", model.Asset{ID: "A2", CollectionID: "C2"})
	})
	require.NoError(t, err)

	v, err := s.Snapshot().View(model.ViewAssetsByCollection)
	require.NoError(t, err)
	groups := v.Groups()
	require.Len(t, groups, 2)

	_, first, _ := model.ParseGroupKey(groups[0])
	_, second, _ := model.ParseGroupKey(groups[1])
	assert.Equal(t, "C2", first)
	assert.Equal(t, "C1", second)

	row, ok := v.At(groups[0], 0)
	require.True(t, ok)
	assert.Equal(t, "A2", row.Key)
	assert.Equal(t, 1, v.Count(groups[0]))
	row, _ = v.At(groups[1], 0)
	assert.Equal(t, "A1", row.Key)
}

func TestDeletingCollectionRemovesAssets(t *testing.T) {
	s := openStore(t)
	err := s.ReadWrite(func(tx *store.Tx) error {
		for _, put := range []struct {
			col, key string
			rec  any
		}{
			{model.Spaces, "S", model.Space{ID: "S", Kind: model.KindMemory}},
			{model.Projects, "P", model.Project{ID: "P", SpaceID: "S"}},
			{model.Collections, "C", model.Collection{ID: "C", ProjectID: "P"}},
			{model.Assets, "A", model.Asset{ID: "A", CollectionID: "C"}},
			{model.Uploads, "U", model.Upload{ID: "U", AssetID: "A"}},
		} {
			if err := tx.Put(put.col, put.key, put.rec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error {
		return tx.Delete(model.Spaces, "S")
	}))

	snap := s.Snapshot()
	for _, c := range model.AllCollections {
		n, err := snap.Count(c)
		require.NoError(t, err)
		assert.Zero(t, n, c)
	}
	v, _ := snap.View(model.ViewAssetsByCollection)
	assert.Zero(t, v.Len())
}

func TestAssetNeedsExistingCollection(t *testing.T) {
	s := openStore(t)
	err := s.ReadWrite(func(tx *store.Tx) error {
		return tx.Put(model.Assets, "A", model.Asset{ID: "A", CollectionID: "missing"})
	})
	assert.ErrorIs(t, err, store.ErrTransactionAborted)

	n, _ := s.Snapshot().Count(model.Assets)
	assert.Zero(t, n)
}

func TestActiveProjectsView(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Projects, "P1", model.Project{ID: "P1", Active: true}); err != nil {
			return err
		}
		return tx.Put(model.Projects, "P2", model.Project{ID: "P2"})
	}))

	all, _ := s.Snapshot().View(model.ViewProjects)
	active, _ := s.Snapshot().View(model.ViewActiveProjects)
	assert.Equal(t, 2, all.Count(model.LocalGroup))
	assert.Equal(t, 1, active.Count(model.LocalGroup))
}
