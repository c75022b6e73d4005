// Package upload moves asset content to the remote backend of its Space and
// keeps the asset's upload state in the store in step with the transfer.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"save-go/internal/model"
	"save-go/internal/save"
	"save-go/internal/store"
)

var (
	// ErrUpload wraps every transfer or removal failure.
	ErrUpload = errors.New("upload failed")

	// ErrCancelled is the terminal error of a cancelled upload.
	ErrCancelled = fmt.Errorf("%w: cancelled", ErrUpload)
)

// errInterrupted is stored on assets whose upload did not survive a restart.
var errInterrupted = fmt.Errorf("%w: interrupted", ErrUpload)

// Store is the part of the record store the coordinator writes through.
type Store interface {
	Snapshot() *store.Snapshot
	ReadWrite(fn func(*store.Tx) error) error
	AsyncReadWrite(fn func(*store.Tx) error, done func(error))
}

// Backends resolves the backend of a Space, unlocking its secret as needed.
type Backends interface {
	Backend(ctx context.Context, space model.Space) (save.Backend, error)
}

// BackendsFunc adapts a function to Backends.
type BackendsFunc func(ctx context.Context, space model.Space) (save.Backend, error)

func (f BackendsFunc) Backend(ctx context.Context, space model.Space) (save.Backend, error) {
	return f(ctx, space)
}

// Options configure a Coordinator.
type Options struct {
	Store    Store
	Content  save.ContentArea
	Backends Backends

	// Current supplies the profile used for asset authorship. May be nil.
	Current *save.Current

	// IDs generates Upload record ids. Defaults to ULIDs.
	IDs   save.IDGenerator
	Clock save.Clock

	// Parallelism bounds UploadAll. Defaults to 2.
	Parallelism int

	// ProgressInterval is the minimum time between persisted progress
	// updates of one upload. Events are not throttled.
	ProgressInterval time.Duration

	Logger save.Logger
}

// Coordinator runs uploads. Each transfer runs on its own goroutine.
type Coordinator struct {
	opts Options

	mu     sync.Mutex
	active map[string]*attempt
	wg     sync.WaitGroup
}

type attempt struct {
	uploadID string
	cancel   context.CancelCauseFunc
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = save.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = &save.ULIDGenerator{Clock: opts.Clock}
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 2
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = save.NewNopLogger()
	}
	return &Coordinator{opts: opts, active: make(map[string]*attempt)}
}

func (c *Coordinator) profile() save.Profile {
	if c.opts.Current == nil {
		return save.Profile{}
	}
	return c.opts.Current.Profile()
}

// prepared is everything a transfer needs, read from one snapshot.
type prepared struct {
	asset   model.Asset
	chain   model.Chain
	backend save.Backend
}

func (c *Coordinator) prepare(ctx context.Context, assetID string) (*prepared, error) {
	snap := c.opts.Store.Snapshot()
	a, err := model.FindAsset(snap, assetID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("asset %s: %w", assetID, store.ErrNotFound)
	}
	chain, err := model.LoadChain(snap, *a, c.profile())
	if err != nil {
		return nil, fmt.Errorf("loading asset chain: %w", err)
	}
	if chain.Space == nil {
		return nil, fmt.Errorf("%w: asset %s belongs to no space", ErrUpload, assetID)
	}
	b, err := c.opts.Backends.Backend(ctx, *chain.Space)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return &prepared{asset: *a, chain: chain, backend: b}, nil
}

// Upload starts transferring an asset and returns its event stream. The
// stream carries progress events and ends with exactly one terminal event,
// after which it is closed. Errors that prevent the attempt from starting
// are returned directly and leave the asset unchanged.
func (c *Coordinator) Upload(ctx context.Context, assetID string) (<-chan Event, error) {
	p, err := c.prepare(ctx, assetID)
	if err != nil {
		return nil, err
	}
	content, err := c.opts.Content.Open(assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	metadata, err := model.BuildMetadata(p.asset, p.chain).JSON()
	if err != nil {
		content.Close()
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	uctx, cancel := context.WithCancelCause(ctx)
	att := &attempt{uploadID: c.opts.IDs.New(), cancel: cancel}

	c.mu.Lock()
	if _, busy := c.active[assetID]; busy {
		c.mu.Unlock()
		cancel(nil)
		content.Close()
		return nil, fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, model.StateUploading, model.StateUploading)
	}
	c.active[assetID] = att
	c.mu.Unlock()

	err = c.opts.Store.ReadWrite(func(tx *store.Tx) error {
		a, err := model.FindAsset(tx, assetID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("asset %s: %w", assetID, store.ErrNotFound)
		}
		if err := a.Transition(model.StateUploading); err != nil {
			return err
		}
		a.Error = ""
		if err := removeUploads(tx, assetID); err != nil {
			return err
		}
		if err := tx.Put(model.Assets, a.ID, *a); err != nil {
			return err
		}
		return tx.Put(model.Uploads, att.uploadID, model.Upload{
			ID:         att.uploadID,
			AssetID:    assetID,
			SpaceID:    p.chain.Space.ID,
			BytesTotal: p.asset.Size,
			State:      model.StateUploading,
			Created:    c.opts.Clock.Now(),
		})
	})
	if err != nil {
		c.finishAttempt(assetID, att)
		cancel(nil)
		content.Close()
		return nil, err
	}

	events := newEmitter(assetID)
	req := save.UploadRequest{
		AssetID:  assetID,
		Filename: p.asset.Filename,
		MimeType: p.asset.MimeType,
		Size:     p.asset.Size,
		Content:  content,
		Folder:   p.chain.Folder(),
		Metadata: metadata,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel(nil)
		defer content.Close()
		c.transfer(uctx, p.backend, req, att, events)
	}()
	return events.ch, nil
}

// transfer runs on the upload goroutine.
func (c *Coordinator) transfer(ctx context.Context, b save.Backend, req save.UploadRequest, att *attempt, events *emitter) {
	logger := c.opts.Logger
	limiter := rate.NewLimiter(rate.Every(c.opts.ProgressInterval), 1)

	res, err := b.Upload(ctx, req, func(sent, total int64) {
		if !events.progress(sent, total) {
			return
		}
		if limiter.Allow() {
			c.persistProgress(att.uploadID, sent, total)
		}
	})
	if err == nil && res == nil {
		err = errors.New("backend returned no result")
	}
	if err != nil {
		err = classify(ctx, err)
	}

	perr := c.opts.Store.ReadWrite(func(tx *store.Tx) error {
		a, ferr := model.FindAsset(tx, req.AssetID)
		if ferr != nil {
			return ferr
		}
		if rerr := tx.Delete(model.Uploads, att.uploadID); rerr != nil {
			return rerr
		}
		if a == nil {
			return nil
		}
		if a.State() != model.StateUploading {
			// Reset by someone else meanwhile; keep their state.
			return nil
		}
		if err != nil {
			_ = a.Transition(model.StateErrored)
			a.Error = err.Error()
		} else {
			_ = a.Transition(model.StateUploaded)
			a.IsUploaded = true
			a.PublicURL = res.PublicURL
			a.RemoteKey = res.Key
			a.Error = ""
		}
		return tx.Put(model.Assets, a.ID, *a)
	})
	c.finishAttempt(req.AssetID, att)

	if perr != nil {
		logger.Error("persisting upload result", "asset", req.AssetID, "error", perr)
		if err == nil {
			err = fmt.Errorf("%w: persisting result: %w", ErrUpload, perr)
		}
	}
	if err != nil {
		logger.Warn("upload failed", "asset", req.AssetID, "error", err)
		events.finish(Event{Kind: Failed, Err: err})
		return
	}
	logger.Info("uploaded asset", "asset", req.AssetID, "url", res.PublicURL)
	events.finish(Event{Kind: Succeeded, PublicURL: res.PublicURL})
}

// classify maps a transfer error to ErrCancelled or ErrUpload.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if errors.Is(cause, ErrCancelled) {
			return ErrCancelled
		}
		return fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	if errors.Is(err, ErrUpload) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpload, err)
}

func (c *Coordinator) persistProgress(uploadID string, sent, total int64) {
	c.opts.Store.AsyncReadWrite(func(tx *store.Tx) error {
		u, err := model.FindUpload(tx, uploadID)
		if err != nil || u == nil || u.BytesSent >= sent {
			return err
		}
		u.BytesSent, u.BytesTotal = sent, total
		return tx.Put(model.Uploads, uploadID, *u)
	}, func(err error) {
		if err != nil {
			c.opts.Logger.Warn("persisting upload progress", "upload", uploadID, "error", err)
		}
	})
}

func (c *Coordinator) finishAttempt(assetID string, att *attempt) {
	c.mu.Lock()
	if c.active[assetID] == att {
		delete(c.active, assetID)
	}
	c.mu.Unlock()
}

// removeUploads deletes every Upload record of an asset.
func removeUploads(tx *store.Tx, assetID string) error {
	var stale []string
	err := tx.Enumerate(model.Uploads, func(key string, rec any) bool {
		if u, ok := rec.(model.Upload); ok && u.AssetID == assetID {
			stale = append(stale, key)
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, key := range stale {
		if err := tx.Delete(model.Uploads, key); err != nil {
			return err
		}
	}
	return nil
}

// Cancel stops a running upload. Its terminal event is a failure with
// ErrCancelled. It reports whether an upload was running. A backend that
// finished the transfer before noticing the cancellation still ends the
// upload as a success.
func (c *Coordinator) Cancel(assetID string) bool {
	c.mu.Lock()
	att, ok := c.active[assetID]
	c.mu.Unlock()
	if ok {
		att.cancel(ErrCancelled)
	}
	return ok
}

// Active reports whether an upload of the asset is running in this process.
func (c *Coordinator) Active(assetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[assetID]
	return ok
}

// Remove deletes the asset's remote copy. On success the asset is reset to
// not uploaded; on failure its state is kept and the error stored on it.
func (c *Coordinator) Remove(ctx context.Context, assetID string) error {
	p, err := c.prepare(ctx, assetID)
	if err != nil {
		return err
	}
	if p.asset.State() == model.StateUploading {
		return fmt.Errorf("%w: cannot remove while uploading", model.ErrInvalidTransition)
	}
	if !p.asset.IsUploaded && p.asset.RemoteKey == "" {
		return nil
	}

	rerr := p.backend.Remove(ctx, save.RemoteRef{AssetID: assetID, Key: p.asset.RemoteKey, PublicURL: p.asset.PublicURL})
	if rerr != nil {
		rerr = fmt.Errorf("%w: removing remote copy: %w", ErrUpload, rerr)
	}
	err = c.opts.Store.ReadWrite(func(tx *store.Tx) error {
		a, err := model.FindAsset(tx, assetID)
		if err != nil || a == nil {
			return err
		}
		if rerr != nil {
			a.Error = rerr.Error()
		} else if err := a.Unpublish(); err != nil {
			return err
		}
		return tx.Put(model.Assets, a.ID, *a)
	})
	if rerr != nil {
		c.opts.Logger.Warn("remote removal failed", "asset", assetID, "error", rerr)
		return rerr
	}
	return err
}

// Result is the outcome of one upload started by UploadAll.
type Result struct {
	AssetID   string
	PublicURL string
	Err       error
}

// UploadAll uploads the assets with bounded parallelism and waits for all of
// them. onEvent, if not nil, sees every event; it is called from several
// goroutines.
func (c *Coordinator) UploadAll(ctx context.Context, assetIDs []string, onEvent func(Event)) []Result {
	results := make([]Result, len(assetIDs))
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Parallelism)
	for i, id := range assetIDs {
		results[i].AssetID = id
		g.Go(func() error {
			events, err := c.Upload(ctx, id)
			if err != nil {
				results[i].Err = err
				return nil
			}
			for ev := range events {
				if onEvent != nil {
					onEvent(ev)
				}
				switch ev.Kind {
				case Succeeded:
					results[i].PublicURL = ev.PublicURL
				case Failed:
					results[i].Err = ev.Err
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RecoverInterrupted marks uploads left running by a previous process as
// errored and drops their Upload records. It returns the number of assets
// reset.
func (c *Coordinator) RecoverInterrupted() (int, error) {
	var n int
	err := c.opts.Store.ReadWrite(func(tx *store.Tx) error {
		n = 0
		var stuck []model.Asset
		err := tx.Enumerate(model.Assets, func(_ string, rec any) bool {
			if a, ok := rec.(model.Asset); ok && a.State() == model.StateUploading && !c.Active(a.ID) {
				stuck = append(stuck, a)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, a := range stuck {
			_ = a.Transition(model.StateErrored)
			a.Error = errInterrupted.Error()
			if err := tx.Put(model.Assets, a.ID, a); err != nil {
				return err
			}
			if err := removeUploads(tx, a.ID); err != nil {
				return err
			}
			n++
		}

		var orphans []string
		err = tx.Enumerate(model.Uploads, func(key string, rec any) bool {
			if u, ok := rec.(model.Upload); ok && !c.Active(u.AssetID) {
				orphans = append(orphans, key)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range orphans {
			if err := tx.Delete(model.Uploads, key); err != nil {
				return err
			}
		}
		return nil
	})
	if n > 0 {
		c.opts.Logger.Info("reset interrupted uploads", "count", n)
	}
	return n, err
}

// Wait blocks until every running transfer has finished.
func (c *Coordinator) Wait() { c.wg.Wait() }
