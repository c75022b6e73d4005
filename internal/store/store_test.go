package store_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"save-go/internal/fs"
	"save-go/internal/graph"
	"save-go/internal/model"
	"save-go/internal/save"
	"save-go/internal/store"
	"save-go/internal/testutil"
)

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	err := s.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Spaces, "S", model.Space{ID: "S", Kind: model.KindMemory}); err != nil {
			return err
		}
		if err := tx.Put(model.Projects, "P", model.Project{ID: "P", SpaceID: "S", Name: "P"}); err != nil {
			return err
		}
		return tx.Put(model.Collections, "C", model.Collection{ID: "C", ProjectID: "P"})
	})
	require.NoError(t, err)
}

func TestSnapshotIsolation(t *testing.T) {
	s := testutil.NewTestStore(t, nil, nil)
	seed(t, s)

	before := s.Snapshot()
	err := s.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Assets, "A", model.Asset{ID: "A", CollectionID: "C", Title: "one"}); err != nil {
			return err
		}
		rec, err := tx.Get(model.Assets, "A")
		if err != nil {
			return err
		}
		if rec.(model.Asset).Title != "one" {
			return errors.New("transaction does not see its own write")
		}
		// Nothing is published until commit.
		if ok, _ := s.Snapshot().Has(model.Assets, "A"); ok {
			return errors.New("uncommitted write visible")
		}
		return nil
	})
	require.NoError(t, err)

	rec, err := before.Get(model.Assets, "A")
	require.NoError(t, err)
	assert.Nil(t, rec, "old snapshot must not change")

	after := s.Snapshot()
	assert.Equal(t, before.Number()+1, after.Number())
	rec, err = after.Get(model.Assets, "A")
	require.NoError(t, err)
	assert.Equal(t, "one", rec.(model.Asset).Title)
}

func TestFailedTransactionsLeaveNoTrace(t *testing.T) {
	s := testutil.NewTestStore(t, nil, nil)
	seed(t, s)
	before := s.Snapshot()

	boom := errors.New("boom")
	err := s.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Assets, "A", model.Asset{ID: "A", CollectionID: "C"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, store.ErrTransactionAborted)
	assert.ErrorIs(t, err, boom)

	err = s.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Assets, "A", model.Asset{ID: "A", CollectionID: "C"}); err != nil {
			return err
		}
		panic("bad record")
	})
	assert.ErrorIs(t, err, store.ErrTransactionAborted)
	assert.ErrorContains(t, err, "bad record")

	assert.Same(t, before, s.Snapshot())

	// The writer keeps working afterwards.
	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error {
		return tx.Put(model.Assets, "A", model.Asset{ID: "A", CollectionID: "C"})
	}))
	n, err := s.Snapshot().Count(model.Assets)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNoOpTransactionPublishesNothing(t *testing.T) {
	s := testutil.NewTestStore(t, nil, nil)
	var commits int
	unsubscribe := s.Subscribe(func(store.Commit) { commits++ })
	defer unsubscribe()

	before := s.Snapshot()
	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error {
		_, err := tx.Get(model.Spaces, "nope")
		return err
	}))
	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error {
		return tx.Delete(model.Spaces, "nope")
	}))
	assert.Same(t, before, s.Snapshot())
	assert.Zero(t, commits)
}

func TestUnknownCollection(t *testing.T) {
	s := testutil.NewTestStore(t, nil, nil)
	_, err := s.Snapshot().Get("widgets", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.ReadWrite(func(tx *store.Tx) error { return tx.Put("widgets", "x", model.Space{}) })
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Snapshot().View("nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMissingReferenceAbortsCommit(t *testing.T) {
	s := testutil.NewTestStore(t, nil, nil)
	err := s.ReadWrite(func(tx *store.Tx) error {
		return tx.Put(model.Collections, "C", model.Collection{ID: "C", ProjectID: "missing"})
	})
	assert.ErrorIs(t, err, store.ErrTransactionAborted)
	assert.ErrorIs(t, err, graph.ErrCascade)
}

func TestDeleteCascadesAndReleasesFiles(t *testing.T) {
	content := fs.NewMemoryContentArea()
	s := testutil.NewTestStore(t, nil, content)
	seed(t, s)

	_, err := content.Import("A", bytes.NewReader([]byte("jpeg bytes")))
	require.NoError(t, err)
	require.NoError(t, content.ImportThumbnail("A", bytes.NewReader([]byte("thumb"))))
	_, err = content.Import("B", bytes.NewReader([]byte("other")))
	require.NoError(t, err)

	err = s.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Assets, "A", model.Asset{ID: "A", CollectionID: "C", HasFile: true, HasThumbnail: true}); err != nil {
			return err
		}
		if err := tx.Put(model.Assets, "B", model.Asset{ID: "B", CollectionID: "C", HasFile: true}); err != nil {
			return err
		}
		return tx.Put(model.Uploads, "U", model.Upload{ID: "U", AssetID: "A"})
	})
	require.NoError(t, err)

	var commit store.Commit
	unsubscribe := s.Subscribe(func(c store.Commit) { commit = c })
	defer unsubscribe()

	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error { return tx.Delete(model.Projects, "P") }))

	snap := s.Snapshot()
	for _, ref := range []graph.Ref{
		{Collection: model.Projects, Key: "P"},
		{Collection: model.Collections, Key: "C"},
		{Collection: model.Assets, Key: "A"},
		{Collection: model.Assets, Key: "B"},
		{Collection: model.Uploads, Key: "U"},
	} {
		ok, err := snap.Has(ref.Collection, ref.Key)
		require.NoError(t, err)
		assert.False(t, ok, "%s should be gone", ref)
		assert.Contains(t, commit.Changes, ref)
	}
	ok, _ := snap.Has(model.Spaces, "S")
	assert.True(t, ok, "the space is not owned by the project")

	assert.False(t, content.Has(save.AssetFile("A")))
	assert.False(t, content.Has(save.AssetThumbnail("A")))
	assert.False(t, content.Has(save.AssetFile("B")))
}

func TestAbortedDeleteKeepsFiles(t *testing.T) {
	content := fs.NewMemoryContentArea()
	s := testutil.NewTestStore(t, nil, content)
	seed(t, s)
	_, err := content.Import("A", bytes.NewReader([]byte("jpeg bytes")))
	require.NoError(t, err)
	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error {
		return tx.Put(model.Assets, "A", model.Asset{ID: "A", CollectionID: "C", HasFile: true})
	}))

	err = s.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Delete(model.Assets, "A"); err != nil {
			return err
		}
		return errors.New("changed my mind")
	})
	require.Error(t, err)
	assert.True(t, content.Has(save.AssetFile("A")))
}

func TestCommitNumbersHaveNoGaps(t *testing.T) {
	s := testutil.NewTestStore(t, nil, nil)
	seed(t, s)

	var mu sync.Mutex
	var numbers []uint64
	unsubscribe := s.Subscribe(func(c store.Commit) {
		mu.Lock()
		numbers = append(numbers, c.Number)
		mu.Unlock()
	})
	defer unsubscribe()

	start := s.Snapshot().Number()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('a' + i))
			err := s.ReadWrite(func(tx *store.Tx) error {
				return tx.Put(model.Assets, id, model.Asset{ID: id, CollectionID: "C"})
			})
			assert.NoError(t, err)
		}()
	}
	// Failures in between do not consume numbers.
	_ = s.ReadWrite(func(*store.Tx) error { return errors.New("no") })
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, numbers, 20)
	for i, n := range numbers {
		assert.Equal(t, start+uint64(i)+1, n)
	}
}

func TestAsyncReadWrite(t *testing.T) {
	s := testutil.NewTestStore(t, nil, nil)
	done := make(chan error, 1)
	s.AsyncReadWrite(func(tx *store.Tx) error {
		return tx.Put(model.Spaces, "S", model.Space{ID: "S"})
	}, func(err error) { done <- err })
	require.NoError(t, <-done)

	ok, err := s.Snapshot().Has(model.Spaces, "S")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWritesAfterCloseFail(t *testing.T) {
	s := testutil.NewTestStore(t, nil, nil)
	require.NoError(t, s.Close())
	err := s.ReadWrite(func(tx *store.Tx) error { return nil })
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	db, path := testutil.NewFileDatabase(t)
	s := testutil.NewTestStore(t, db, nil)
	seed(t, s)
	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Assets, "A1", model.Asset{ID: "A1", CollectionID: "C", Title: "first"}); err != nil {
			return err
		}
		return tx.Put(model.Assets, "A2", model.Asset{ID: "A2", CollectionID: "C", Tags: []string{model.Flag}})
	}))
	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error { return tx.Delete(model.Assets, "A1") }))
	require.NoError(t, s.Close())

	reopened := testutil.NewTestStore(t, testutil.OpenDatabase(t, path), nil)
	snap := reopened.Snapshot()

	a, err := model.FindAsset(snap, "A2")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.Flagged())
	gone, err := model.FindAsset(snap, "A1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	v, err := snap.View(model.ViewAssetsByCollection)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Count(model.GroupKey(model.Project{ID: "P"}, model.Collection{ID: "C"})))

	// Cascades still work on loaded records.
	require.NoError(t, reopened.ReadWrite(func(tx *store.Tx) error { return tx.Delete(model.Spaces, "S") }))
	n, err := reopened.Snapshot().Count(model.Assets)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckExternalReloadsOtherWriters(t *testing.T) {
	db, path := testutil.NewFileDatabase(t)
	writer := testutil.NewTestStore(t, db, nil)
	watcher := testutil.NewTestStore(t, testutil.OpenDatabase(t, path), nil)

	changed, err := watcher.CheckExternal(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	var commits []store.Commit
	unsubscribe := watcher.Subscribe(func(c store.Commit) { commits = append(commits, c) })
	defer unsubscribe()

	seed(t, writer)

	changed, err = watcher.CheckExternal(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	ok, err := watcher.Snapshot().Has(model.Projects, "P")
	require.NoError(t, err)
	assert.True(t, ok)
	v, err := watcher.Snapshot().View(model.ViewProjects)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Count("S"))

	require.Len(t, commits, 1)
	assert.True(t, commits[0].External)
	assert.Empty(t, commits[0].Changes)

	// Own writes are not external.
	require.NoError(t, watcher.ReadWrite(func(tx *store.Tx) error {
		return tx.Put(model.Assets, "A", model.Asset{ID: "A", CollectionID: "C"})
	}))
	changed, err = watcher.CheckExternal(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSetFilteringBumpsVersion(t *testing.T) {
	s := testutil.NewTestStore(t, nil, nil)
	seed(t, s)
	before := s.Snapshot().Views()
	require.Contains(t, before, model.ViewAssetsByCollectionFiltered)

	v, err := s.Snapshot().View(model.ViewAssetsByCollectionFiltered)
	require.NoError(t, err)
	version := v.Version()

	require.NoError(t, s.ReadWrite(func(tx *store.Tx) error {
		return tx.SetFiltering(model.ViewAssetsByCollectionFiltered, model.CollectionFilter("C"), "C")
	}))
	v, err = s.Snapshot().View(model.ViewAssetsByCollectionFiltered)
	require.NoError(t, err)
	assert.Greater(t, v.Version(), version)
}
