package upload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"save-go/internal/model"
	"save-go/internal/save"
	"save-go/internal/store"
	"save-go/internal/testutil"
)

type harness struct {
	*testutil.Fixture
	backend *testutil.ScriptedBackend
	coord   *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := testutil.NewFixture(t)
	b := testutil.NewScriptedBackend()
	c := NewCoordinator(Options{
		Store:            f.Store,
		Content:          f.Content,
		Backends:         BackendsFunc(b.Resolve),
		IDs:              testutil.NewStubIDGenerator("upload"),
		Clock:            f.Clock,
		ProgressInterval: time.Millisecond,
	})
	t.Cleanup(c.Wait)
	return &harness{Fixture: f, backend: b, coord: c}
}

// drain collects a stream until it closes.
func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("event stream did not close; got %d events", len(out))
			return nil
		}
	}
}

func waitStarted(t *testing.T, b *testutil.ScriptedBackend) {
	t.Helper()
	select {
	case <-b.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("upload never started")
	}
}

func uploadCount(t *testing.T, s *store.Store) int {
	t.Helper()
	n, err := s.Snapshot().Count(model.Uploads)
	require.NoError(t, err)
	return n
}

func TestUploadReportsProgressThenSuccess(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", make([]byte, 100))
	h.backend.Steps = []int64{10, 55, 100}

	events, err := h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	got := drain(t, events)

	require.Len(t, got, 4)
	for i, sent := range []int64{10, 55, 100} {
		assert.Equal(t, Progress, got[i].Kind)
		assert.Equal(t, "a1", got[i].AssetID)
		assert.Equal(t, sent, got[i].BytesSent)
		assert.Equal(t, int64(100), got[i].BytesTotal)
	}
	last := got[3]
	require.True(t, last.Terminal())
	assert.Equal(t, Succeeded, last.Kind)
	assert.Equal(t, "https://remote.example/scripted/a1", last.PublicURL)
	assert.NoError(t, last.Err)

	a := h.Asset(t, "a1")
	assert.Equal(t, model.StateUploaded, a.State())
	assert.True(t, a.IsUploaded)
	assert.Equal(t, last.PublicURL, a.PublicURL)
	assert.Equal(t, "scripted/a1", a.RemoteKey)
	assert.Empty(t, a.Error)
	assert.Zero(t, uploadCount(t, h.Store), "upload record should be gone after the terminal event")

	reqs := h.backend.Uploads()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Field Work/"+h.Collection.Created.UTC().Format("2006-01-02T15-04-05"), reqs[0].Folder)
	assert.Contains(t, string(reqs[0].Metadata), `"author": "Sam"`)
	assert.Contains(t, string(reqs[0].Metadata), `"usage": "CC-BY-4.0"`)
	data, ok := h.backend.Content("scripted/a1")
	require.True(t, ok)
	assert.Len(t, data, 100)
}

func TestUploadPersistsStateWhileRunning(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", make([]byte, 100))
	h.backend.Steps = []int64{10, 100}
	h.backend.Gate = make(chan struct{})

	events, err := h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	waitStarted(t, h.backend)

	assert.Equal(t, model.StateUploading, h.Asset(t, "a1").State())
	assert.True(t, h.coord.Active("a1"))
	require.Eventually(t, func() bool {
		u, err := model.FindUpload(h.Store.Snapshot(), "upload-0001")
		return err == nil && u != nil && u.BytesSent == 10 && u.BytesTotal == 100
	}, 5*time.Second, 5*time.Millisecond)

	close(h.backend.Gate)
	got := drain(t, events)
	assert.Equal(t, Succeeded, got[len(got)-1].Kind)
	assert.False(t, h.coord.Active("a1"))
}

func TestUploadRejectsSecondAttempt(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", []byte("content"))
	h.backend.Gate = make(chan struct{})

	events, err := h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	waitStarted(t, h.backend)

	_, err = h.coord.Upload(context.Background(), "a1")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	close(h.backend.Gate)
	drain(t, events)
	assert.Len(t, h.backend.Uploads(), 1)
}

func TestCancelEndsWithCancelledError(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", make([]byte, 100))
	h.backend.Steps = []int64{10, 100}
	h.backend.Gate = make(chan struct{})

	events, err := h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	waitStarted(t, h.backend)

	assert.True(t, h.coord.Cancel("a1"))
	got := drain(t, events)

	last := got[len(got)-1]
	assert.Equal(t, Failed, last.Kind)
	assert.ErrorIs(t, last.Err, ErrCancelled)
	assert.ErrorIs(t, last.Err, ErrUpload)

	a := h.Asset(t, "a1")
	assert.Equal(t, model.StateErrored, a.State())
	assert.False(t, a.IsUploaded)
	assert.Equal(t, ErrCancelled.Error(), a.Error)
	assert.Zero(t, uploadCount(t, h.Store))
	assert.False(t, h.coord.Cancel("a1"), "nothing left to cancel")
}

func TestContextCancellationIsCancellation(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", []byte("content"))
	h.backend.Gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.coord.Upload(ctx, "a1")
	require.NoError(t, err)
	waitStarted(t, h.backend)
	cancel()

	got := drain(t, events)
	last := got[len(got)-1]
	assert.ErrorIs(t, last.Err, ErrCancelled)
	assert.ErrorIs(t, last.Err, context.Canceled)
}

func TestFailureIsStoredOnAsset(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", []byte("content"))
	h.backend.UploadErr = errors.New("503 service unavailable")

	events, err := h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	got := drain(t, events)

	last := got[len(got)-1]
	assert.Equal(t, Failed, last.Kind)
	assert.ErrorIs(t, last.Err, ErrUpload)
	assert.NotErrorIs(t, last.Err, ErrCancelled)

	a := h.Asset(t, "a1")
	assert.Equal(t, model.StateErrored, a.State())
	assert.Contains(t, a.Error, "503 service unavailable")
	assert.Zero(t, uploadCount(t, h.Store))
}

func TestRetryAfterFailureClearsError(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", []byte("content"))
	h.backend.UploadErr = errors.New("boom")

	events, err := h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	drain(t, events)
	require.Equal(t, model.StateErrored, h.Asset(t, "a1").State())

	h.backend.UploadErr = nil
	events, err = h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	got := drain(t, events)
	assert.Equal(t, Succeeded, got[len(got)-1].Kind)

	a := h.Asset(t, "a1")
	assert.Equal(t, model.StateUploaded, a.State())
	assert.Empty(t, a.Error)
}

func TestUploadedAssetCanBeUploadedAgain(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", []byte("content"))

	for range 2 {
		events, err := h.coord.Upload(context.Background(), "a1")
		require.NoError(t, err)
		got := drain(t, events)
		assert.Equal(t, Succeeded, got[len(got)-1].Kind)
	}
	assert.Len(t, h.backend.Uploads(), 2)
	assert.Equal(t, model.StateUploaded, h.Asset(t, "a1").State())
	assert.False(t, h.coord.Active("a1"))
}

func TestUploadErrorsBeforeStart(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.Upload(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// An asset of a project without a Space has nowhere to go.
	err = h.Store.ReadWrite(func(tx *store.Tx) error {
		if err := tx.Put(model.Projects, "local", model.Project{ID: "local", Name: "Local"}); err != nil {
			return err
		}
		if err := tx.Put(model.Collections, "lc", model.Collection{ID: "lc", ProjectID: "local"}); err != nil {
			return err
		}
		return tx.Put(model.Assets, "orphan", model.Asset{ID: "orphan", CollectionID: "lc"})
	})
	require.NoError(t, err)
	_, err = h.coord.Upload(context.Background(), "orphan")
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, model.StateIdle, h.Asset(t, "orphan").State())
}

func TestRemoveUnpublishes(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", []byte("content"))
	events, err := h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	drain(t, events)

	require.NoError(t, h.coord.Remove(context.Background(), "a1"))

	a := h.Asset(t, "a1")
	assert.Equal(t, model.StateIdle, a.State())
	assert.False(t, a.IsUploaded)
	assert.Empty(t, a.PublicURL)
	assert.Empty(t, a.RemoteKey)

	removed := h.backend.Removed()
	require.Len(t, removed, 1)
	assert.Equal(t, save.RemoteRef{AssetID: "a1", Key: "scripted/a1", PublicURL: "https://remote.example/scripted/a1"}, removed[0])
	_, ok := h.backend.Content("scripted/a1")
	assert.False(t, ok)

	// Removing again is a no-op.
	require.NoError(t, h.coord.Remove(context.Background(), "a1"))
	assert.Len(t, h.backend.Removed(), 1)
}

func TestRemoveFailureKeepsUploadedState(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", []byte("content"))
	events, err := h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	drain(t, events)

	h.backend.RemoveErr = errors.New("forbidden")
	err = h.coord.Remove(context.Background(), "a1")
	assert.ErrorIs(t, err, ErrUpload)

	a := h.Asset(t, "a1")
	assert.Equal(t, model.StateUploaded, a.State())
	assert.True(t, a.IsUploaded)
	assert.Contains(t, a.Error, "forbidden")
}

func TestRemoveRefusedWhileUploading(t *testing.T) {
	h := newHarness(t)
	h.AddAsset(t, "a1", []byte("content"))
	h.backend.Gate = make(chan struct{})
	events, err := h.coord.Upload(context.Background(), "a1")
	require.NoError(t, err)
	waitStarted(t, h.backend)

	err = h.coord.Remove(context.Background(), "a1")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	close(h.backend.Gate)
	drain(t, events)
}

func TestUploadAll(t *testing.T) {
	h := newHarness(t)
	ids := []string{"a1", "a2", "a3", "a4", "a5"}
	for _, id := range ids {
		h.AddAsset(t, id, []byte("content of "+id))
	}

	var mu sync.Mutex
	terminal := make(map[string]EventKind)
	results := h.coord.UploadAll(context.Background(), append(ids, "missing"), func(ev Event) {
		if ev.Terminal() {
			mu.Lock()
			terminal[ev.AssetID] = ev.Kind
			mu.Unlock()
		}
	})

	require.Len(t, results, 6)
	for i, id := range ids {
		assert.Equal(t, id, results[i].AssetID)
		assert.NoError(t, results[i].Err)
		assert.Equal(t, "https://remote.example/scripted/"+id, results[i].PublicURL)
		assert.Equal(t, Succeeded, terminal[id])
		assert.Equal(t, model.StateUploaded, h.Asset(t, id).State())
	}
	assert.ErrorIs(t, results[5].Err, store.ErrNotFound)
	assert.Len(t, h.backend.Uploads(), len(ids))
}

func TestRecoverInterrupted(t *testing.T) {
	h := newHarness(t)
	stuck := h.AddAsset(t, "stuck", []byte("content"))
	h.AddAsset(t, "idle", []byte("content"))

	err := h.Store.ReadWrite(func(tx *store.Tx) error {
		stuck.UploadState = model.StateUploading
		if err := tx.Put(model.Assets, stuck.ID, stuck); err != nil {
			return err
		}
		return tx.Put(model.Uploads, "old", model.Upload{ID: "old", AssetID: stuck.ID, BytesSent: 3, BytesTotal: 7})
	})
	require.NoError(t, err)

	n, err := h.coord.RecoverInterrupted()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a := h.Asset(t, "stuck")
	assert.Equal(t, model.StateErrored, a.State())
	assert.ErrorContains(t, errors.New(a.Error), "interrupted")
	assert.Equal(t, model.StateIdle, h.Asset(t, "idle").State())
	assert.Zero(t, uploadCount(t, h.Store))

	// The asset can be retried afterwards.
	events, err := h.coord.Upload(context.Background(), "stuck")
	require.NoError(t, err)
	got := drain(t, events)
	assert.Equal(t, Succeeded, got[len(got)-1].Kind)
}

func TestEmitterKeepsRoomForTerminalEvent(t *testing.T) {
	e := newEmitter("a1")
	for i := int64(1); i <= 2*eventBuffer; i++ {
		assert.True(t, e.progress(i, 1000))
	}
	assert.False(t, e.progress(2*eventBuffer, 1000), "no advance")
	assert.False(t, e.progress(1, 1000), "going backwards")

	e.finish(Event{Kind: Succeeded, PublicURL: "u"})
	var got []Event
	for ev := range e.ch {
		got = append(got, ev)
	}
	require.Len(t, got, eventBuffer)
	last := got[len(got)-1]
	assert.Equal(t, Succeeded, last.Kind)
	assert.Equal(t, int64(2*eventBuffer), last.BytesSent)
	assert.Equal(t, "a1", last.AssetID)

	assert.False(t, e.progress(5000, 5000), "closed")
}
