// Package store is a transactional record store with snapshot-isolated
// readers and a single serialized writer.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"save-go/internal/graph"
	"save-go/internal/save"
	"save-go/internal/view"
)

var (
	// ErrNotFound is returned for an unknown collection or view.
	ErrNotFound = errors.New("not found")

	// ErrTransactionAborted wraps every error that made a write transaction
	// discard its changes.
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrClosed is returned for writes submitted after Close.
	ErrClosed = errors.New("store closed")
)

// Codec turns records into their persisted form and back.
type Codec interface {
	Encode(rec any) (tag string, version int, data []byte, err error)
	Decode(tag string, version int, data []byte) (any, error)
}

// FileRemover deletes files that relationship cascades release.
type FileRemover interface {
	Remove(path string) error
}

// Options configure Open.
type Options struct {
	Collections []string
	Codec       Codec

	// Database persists commits. Nil keeps the store in memory only.
	Database save.Database

	// Files removes cascaded file destinations after commit. Nil skips them.
	Files FileRemover

	Views    []view.Definition
	Filtered []view.Filtered

	Logger save.Logger
}

// Commit describes one published snapshot.
type Commit struct {
	Number   uint64
	Snapshot *Snapshot

	// External is set when the snapshot was reloaded because another process
	// wrote to the database. Changes and Views are empty in that case.
	External bool

	Changes  []graph.Ref
	Views    map[string]view.Changeset
	Versions map[string]uint64
}

type job struct {
	fn     func(*Tx) error
	done   func(error)
	reload bool
}

// Store is the record store. All writes go through one goroutine in
// submission order.
type Store struct {
	opts   Options
	db     save.Database
	codec  Codec
	logger save.Logger

	current atomic.Pointer[Snapshot]

	mu      sync.Mutex
	pending []job
	closed  bool
	wake    chan struct{}
	stopped chan struct{}

	subMu   sync.RWMutex
	subs    map[int]func(Commit)
	nextSub int

	dataVersion int64
}

// Open loads every persisted record, builds the registered views and starts
// the writer.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Codec == nil && opts.Database != nil {
		return nil, errors.New("a codec is required with a database")
	}
	logger := opts.Logger
	if logger == nil {
		logger = save.NewNopLogger()
	}

	s := &Store{
		opts:    opts,
		db:      opts.Database,
		codec:   opts.Codec,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		subs:    make(map[int]func(Commit)),
	}

	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	views := view.NewSet()
	for _, def := range opts.Views {
		if err := views.Register(def, snap); err != nil {
			return nil, fmt.Errorf("registering view %s: %w", def.Name, err)
		}
	}
	for _, f := range opts.Filtered {
		if err := views.RegisterFiltered(f); err != nil {
			return nil, fmt.Errorf("registering view %s: %w", f.Name, err)
		}
	}
	snap.views = views
	s.current.Store(snap)

	if s.db != nil {
		v, err := s.db.DataVersion(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading data version: %w", err)
		}
		s.dataVersion = v
	}

	go s.run()
	return s, nil
}

// load reads the database into a fresh snapshot without views.
func (s *Store) load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		collections: make(map[string]*btree.BTreeG[entry], len(s.opts.Collections)),
		graph:       graph.NewIndex(),
		views:       view.NewSet(),
	}
	for _, c := range s.opts.Collections {
		snap.collections[c] = newTree()
	}
	if s.db == nil {
		return snap, nil
	}

	rows, err := s.db.LoadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	for _, row := range rows {
		t, ok := snap.collections[row.Collection]
		if !ok {
			s.logger.Warn("skipping record in unknown collection", "collection", row.Collection, "key", row.Key)
			continue
		}
		rec, err := s.codec.Decode(row.TypeTag, row.TypeVersion, row.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", row.Collection, row.Key, err)
		}
		t.ReplaceOrInsert(entry{key: row.Key, seq: row.Seq, rec: rec})
		snap.graph.Replace(graph.Ref{Collection: row.Collection, Key: row.Key}, nil, graph.EdgesOf(rec))
		if row.Seq > snap.seq {
			snap.seq = row.Seq
		}
	}
	return snap, nil
}

// Snapshot returns the latest committed snapshot.
func (s *Store) Snapshot() *Snapshot { return s.current.Load() }

// Read runs fn against the latest committed snapshot.
func (s *Store) Read(fn func(*Snapshot) error) error {
	return fn(s.current.Load())
}

// ReadWrite runs fn as a write transaction and waits for it to commit.
// It must not be called from inside another transaction.
func (s *Store) ReadWrite(fn func(*Tx) error) error {
	done := make(chan error, 1)
	s.AsyncReadWrite(fn, func(err error) { done <- err })
	return <-done
}

// AsyncReadWrite queues fn as a write transaction and returns immediately.
// done, if not nil, is called on the writer goroutine after the commit or
// abort.
func (s *Store) AsyncReadWrite(fn func(*Tx) error, done func(error)) {
	s.enqueue(job{fn: fn, done: done})
}

func (s *Store) enqueue(j job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if j.done != nil {
			j.done(ErrClosed)
		}
		return
	}
	s.pending = append(s.pending, j)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers fn to be called on the writer goroutine after every
// published snapshot. fn must not block or write to the store synchronously.
func (s *Store) Subscribe(fn func(Commit)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) run() {
	defer close(s.stopped)
	for range s.wake {
		for {
			s.mu.Lock()
			jobs := s.pending
			s.pending = nil
			closed := s.closed
			s.mu.Unlock()

			for _, j := range jobs {
				var err error
				if j.reload {
					err = s.reload()
				} else {
					err = s.execute(j.fn)
				}
				if j.done != nil {
					j.done(err)
				}
			}
			if closed && len(jobs) == 0 {
				return
			}
			if len(jobs) == 0 {
				break
			}
		}
	}
}

// execute runs one transaction on the writer goroutine.
func (s *Store) execute(fn func(*Tx) error) (err error) {
	base := s.current.Load()
	tx := newTx(base)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrTransactionAborted, r)
		}
	}()

	if err := fn(tx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
	}
	if err := s.commit(tx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
	}
	return nil
}

func (s *Store) commit(tx *Tx) error {
	if len(tx.order) == 0 && !tx.viewsChanged {
		return nil
	}

	for _, ref := range tx.order {
		rec, err := tx.Get(ref.Collection, ref.Key)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if err := graph.Verify(ref, rec, tx.exists); err != nil {
			return err
		}
	}

	touches := tx.touches()
	views, changes, err := tx.views.Apply(tx, touches)
	if err != nil {
		return err
	}

	if s.db != nil && len(touches) > 0 {
		batch := make([]save.RecordMutation, 0, len(touches))
		for _, t := range touches {
			m := save.RecordMutation{Record: save.StoredRecord{Collection: t.Collection, Key: t.Key, Seq: t.Seq}}
			if t.Deleted {
				m.Delete = true
			} else {
				tag, version, data, err := s.codec.Encode(t.Record)
				if err != nil {
					return fmt.Errorf("encoding %s/%s: %w", t.Collection, t.Key, err)
				}
				m.Record.TypeTag, m.Record.TypeVersion, m.Record.Data = tag, version, data
			}
			batch = append(batch, m)
		}
		if err := s.db.ApplyMutations(context.Background(), batch); err != nil {
			return fmt.Errorf("persisting: %w", err)
		}
	}

	base := tx.base
	next := &Snapshot{
		number:      base.number + 1,
		seq:         tx.seq,
		collections: tx.collections,
		graph:       tx.graph,
		views:       views,
	}
	s.current.Store(next)

	for _, path := range tx.files {
		if s.opts.Files == nil {
			break
		}
		if err := s.opts.Files.Remove(path); err != nil {
			s.logger.Warn("removing released file", "path", path, "error", err)
		}
	}

	s.publish(Commit{
		Number:   next.number,
		Snapshot: next,
		Changes:  tx.order,
		Views:    changes,
		Versions: views.Versions(),
	})
	return nil
}

func (s *Store) publish(c Commit) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		fn(c)
	}
}

// BackupTo writes a consistent copy of the database to path.
func (s *Store) BackupTo(path string) error {
	if s.db == nil {
		return errors.New("backup: store has no database")
	}
	return s.db.BackupTo(path)
}

// Close waits for queued transactions, stops the writer and closes the
// database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wake <- struct{}{}
	<-s.stopped

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
