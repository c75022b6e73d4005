// Package view maintains named, grouped and sorted projections over record
// collections. Base views are built from a source collection; filtered views
// hide groups of a parent view without copying it.
package view

import (
	"errors"
	"strings"
)

// ErrViewConfiguration is returned for an invalid view definition, such as a
// filtered view whose parent does not exist.
var ErrViewConfiguration = errors.New("view configuration error")

// Reader is the read access grouping functions get. It sees the state of
// the write transaction being committed.
type Reader interface {
	Get(collection, key string) (any, error)
}

// Source is a Reader that can also scan a whole collection in key order.
type Source interface {
	Reader
	Scan(collection string, fn func(key string, seq uint64, rec any) bool) error
}

// GroupFunc maps a record to its group. Returning ok=false leaves the record
// out of the view.
type GroupFunc func(r Reader, key string, rec any) (group string, ok bool, err error)

// SortFunc orders two records of the same group.
type SortFunc func(a, b any) int

// FilterFunc reports whether a group is visible.
type FilterFunc func(group string) bool

// Definition describes a base view.
type Definition struct {
	Name   string
	Source string
	Group  GroupFunc
	Sort   SortFunc

	// DescendingGroups lists groups in reverse key order.
	DescendingGroups bool
}

// Filtered describes a view that shows a subset of a parent view's groups.
type Filtered struct {
	Name   string
	Parent string
	Filter FilterFunc
	Tag    string
}

// Row is one record inside a projection.
type Row struct {
	Group  string
	Key    string
	Seq    uint64
	Record any
}

// Projection is a read-only view state belonging to one snapshot.
type Projection interface {
	Name() string

	// Version changes whenever the projection is rebuilt in a way that cannot
	// be described by a changeset (e.g. a new filter).
	Version() uint64

	Groups() []string
	GroupIndex(group string) (int, bool)
	Count(group string) int
	Len() int
	At(group string, index int) (Row, bool)
	Rows(group string) []Row

	// Locate returns the position of key, if visible.
	Locate(key string) (group string, index int, ok bool)

	lookup(key string) (Row, bool)
	compare(a, b any) int
}

func compareGroups(descending bool, a, b string) int {
	c := strings.Compare(a, b)
	if descending {
		return -c
	}
	return c
}
