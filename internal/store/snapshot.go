package store

import (
	"fmt"

	"github.com/google/btree"

	"save-go/internal/graph"
	"save-go/internal/view"
)

type entry struct {
	key string
	seq uint64
	rec any
}

func entryLess(a, b entry) bool { return a.key < b.key }

func newTree() *btree.BTreeG[entry] { return btree.NewG(32, entryLess) }

// Snapshot is an immutable, consistent state of the store. Any number of
// goroutines may read one concurrently.
type Snapshot struct {
	number      uint64
	seq         uint64
	collections map[string]*btree.BTreeG[entry]
	graph       *graph.Index
	views       *view.Set
}

// Number is the commit number that produced this snapshot.
func (s *Snapshot) Number() uint64 { return s.number }

func (s *Snapshot) tree(collection string) (*btree.BTreeG[entry], error) {
	t, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, ErrNotFound)
	}
	return t, nil
}

// Get returns the record at key, or nil if there is none.
func (s *Snapshot) Get(collection, key string) (any, error) {
	t, err := s.tree(collection)
	if err != nil {
		return nil, err
	}
	e, ok := t.Get(entry{key: key})
	if !ok {
		return nil, nil
	}
	return e.rec, nil
}

// Has reports whether a record exists at key.
func (s *Snapshot) Has(collection, key string) (bool, error) {
	t, err := s.tree(collection)
	if err != nil {
		return false, err
	}
	return t.Has(entry{key: key}), nil
}

// Enumerate calls fn for every record of a collection in key order until fn
// returns false.
func (s *Snapshot) Enumerate(collection string, fn func(key string, rec any) bool) error {
	t, err := s.tree(collection)
	if err != nil {
		return err
	}
	t.Ascend(func(e entry) bool { return fn(e.key, e.rec) })
	return nil
}

// Scan is Enumerate with the record's insertion sequence.
func (s *Snapshot) Scan(collection string, fn func(key string, seq uint64, rec any) bool) error {
	t, err := s.tree(collection)
	if err != nil {
		return err
	}
	t.Ascend(func(e entry) bool { return fn(e.key, e.seq, e.rec) })
	return nil
}

func (s *Snapshot) Keys(collection string) ([]string, error) {
	return keys(s, collection)
}

func (s *Snapshot) Count(collection string) (int, error) {
	t, err := s.tree(collection)
	if err != nil {
		return 0, err
	}
	return t.Len(), nil
}

// View returns the named view as of this snapshot.
func (s *Snapshot) View(name string) (view.Projection, error) {
	p, ok := s.views.Get(name)
	if !ok {
		return nil, fmt.Errorf("view %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Views returns the names of every registered view.
func (s *Snapshot) Views() []string { return s.views.Names() }

// Sources returns the records that point at ref.
func (s *Snapshot) Sources(ref graph.Ref) []graph.Link { return s.graph.Sources(ref) }

type enumerator interface {
	Enumerate(collection string, fn func(key string, rec any) bool) error
}

func keys(r enumerator, collection string) ([]string, error) {
	var out []string
	err := r.Enumerate(collection, func(key string, _ any) bool {
		out = append(out, key)
		return true
	})
	return out, err
}
