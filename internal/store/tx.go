package store

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"save-go/internal/graph"
	"save-go/internal/view"
)

// Tx is a write transaction. It sees its own pending writes; nothing is
// visible to readers until the transaction commits. A Tx must not be used
// after the function it was passed to returns.
type Tx struct {
	base        *Snapshot
	collections map[string]*btree.BTreeG[entry]
	cloned      map[string]bool
	graph       *graph.Index
	views       *view.Set
	seq         uint64

	touched      map[graph.Ref]bool
	order        []graph.Ref
	files        []string
	viewsChanged bool
}

func newTx(base *Snapshot) *Tx {
	cols := make(map[string]*btree.BTreeG[entry], len(base.collections))
	for name, t := range base.collections {
		cols[name] = t
	}
	return &Tx{
		base:        base,
		collections: cols,
		cloned:      make(map[string]bool),
		graph:       base.graph.Clone(),
		views:       base.views.Clone(),
		seq:         base.seq,
		touched:     make(map[graph.Ref]bool),
	}
}

func (tx *Tx) tree(collection string) (*btree.BTreeG[entry], error) {
	t, ok := tx.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, ErrNotFound)
	}
	return t, nil
}

func (tx *Tx) writable(collection string) (*btree.BTreeG[entry], error) {
	t, err := tx.tree(collection)
	if err != nil {
		return nil, err
	}
	if !tx.cloned[collection] {
		t = t.Clone()
		tx.collections[collection] = t
		tx.cloned[collection] = true
	}
	return t, nil
}

func (tx *Tx) touch(ref graph.Ref) {
	if !tx.touched[ref] {
		tx.touched[ref] = true
		tx.order = append(tx.order, ref)
	}
}

// Get returns the record at key, or nil if there is none.
func (tx *Tx) Get(collection, key string) (any, error) {
	t, err := tx.tree(collection)
	if err != nil {
		return nil, err
	}
	e, ok := t.Get(entry{key: key})
	if !ok {
		return nil, nil
	}
	return e.rec, nil
}

func (tx *Tx) Has(collection, key string) (bool, error) {
	t, err := tx.tree(collection)
	if err != nil {
		return false, err
	}
	return t.Has(entry{key: key}), nil
}

func (tx *Tx) Enumerate(collection string, fn func(key string, rec any) bool) error {
	t, err := tx.tree(collection)
	if err != nil {
		return err
	}
	t.Ascend(func(e entry) bool { return fn(e.key, e.rec) })
	return nil
}

func (tx *Tx) Scan(collection string, fn func(key string, seq uint64, rec any) bool) error {
	t, err := tx.tree(collection)
	if err != nil {
		return err
	}
	t.Ascend(func(e entry) bool { return fn(e.key, e.seq, e.rec) })
	return nil
}

func (tx *Tx) Keys(collection string) ([]string, error) {
	return keys(tx, collection)
}

func (tx *Tx) Count(collection string) (int, error) {
	t, err := tx.tree(collection)
	if err != nil {
		return 0, err
	}
	return t.Len(), nil
}

// Put stores rec at key, replacing any existing record. A new key gets the
// next insertion sequence; a replaced record keeps its sequence.
func (tx *Tx) Put(collection, key string, rec any) error {
	if rec == nil {
		return errors.New("put: nil record")
	}
	if key == "" {
		return errors.New("put: empty key")
	}
	t, err := tx.writable(collection)
	if err != nil {
		return err
	}

	ref := graph.Ref{Collection: collection, Key: key}
	e := entry{key: key, rec: rec}
	var oldEdges []graph.Edge
	if old, ok := t.Get(entry{key: key}); ok {
		e.seq = old.seq
		oldEdges = graph.EdgesOf(old.rec)
	} else {
		tx.seq++
		e.seq = tx.seq
	}
	t.ReplaceOrInsert(e)
	tx.graph.Replace(ref, oldEdges, graph.EdgesOf(rec))
	tx.touch(ref)
	return nil
}

// Delete removes the record at key and cascades through its relationships.
// Deleting a missing key is a no-op.
func (tx *Tx) Delete(collection, key string) error {
	if _, err := tx.tree(collection); err != nil {
		return err
	}
	files, err := graph.Cascade(graph.Ref{Collection: collection, Key: key}, tx.graph, txMutator{tx})
	if err != nil {
		return err
	}
	tx.files = append(tx.files, files...)
	return nil
}

// View returns a view as of the start of the transaction, with any filter
// changes made by this transaction applied.
func (tx *Tx) View(name string) (view.Projection, error) {
	p, ok := tx.views.Get(name)
	if !ok {
		return nil, fmt.Errorf("view %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// SetFiltering replaces the filter of a filtered view. Long-lived readers of
// the view reload fully at their next diff.
func (tx *Tx) SetFiltering(name string, filter view.FilterFunc, tag string) error {
	if err := tx.views.SetFilter(name, filter, tag); err != nil {
		return err
	}
	tx.viewsChanged = true
	return nil
}

// RegisterView adds a base view, built from the transaction's state.
func (tx *Tx) RegisterView(def view.Definition) error {
	if err := tx.views.Register(def, tx); err != nil {
		return err
	}
	tx.viewsChanged = true
	return nil
}

// RegisterFilteredView adds a filtered view over an existing view.
func (tx *Tx) RegisterFilteredView(f view.Filtered) error {
	if err := tx.views.RegisterFiltered(f); err != nil {
		return err
	}
	tx.viewsChanged = true
	return nil
}

func (tx *Tx) exists(ref graph.Ref) (bool, error) {
	return tx.Has(ref.Collection, ref.Key)
}

// touches returns the final state of every written key in write order.
func (tx *Tx) touches() []view.Touch {
	out := make([]view.Touch, 0, len(tx.order))
	for _, ref := range tx.order {
		t := tx.collections[ref.Collection]
		e, ok := t.Get(entry{key: ref.Key})
		if !ok {
			out = append(out, view.Touch{Collection: ref.Collection, Key: ref.Key, Deleted: true})
			continue
		}
		out = append(out, view.Touch{Collection: ref.Collection, Key: ref.Key, Seq: e.seq, Record: e.rec})
	}
	return out
}

type txMutator struct{ tx *Tx }

func (m txMutator) Lookup(ref graph.Ref) (any, bool, error) {
	t, err := m.tx.tree(ref.Collection)
	if err != nil {
		return nil, false, err
	}
	e, ok := t.Get(entry{key: ref.Key})
	return e.rec, ok, nil
}

func (m txMutator) Remove(ref graph.Ref) error {
	t, err := m.tx.writable(ref.Collection)
	if err != nil {
		return err
	}
	old, ok := t.Delete(entry{key: ref.Key})
	if !ok {
		return nil
	}
	m.tx.graph.Replace(ref, graph.EdgesOf(old.rec), nil)
	m.tx.touch(ref)
	return nil
}
