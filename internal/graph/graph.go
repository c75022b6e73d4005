// Package graph tracks ownership edges between records and evaluates their
// delete rules.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/btree"
)

// ErrCascade is returned when a delete cascade meets an inconsistent edge or
// a write would leave a dangling reference.
var ErrCascade = errors.New("relationship cascade failed")

// Rule is the delete rule attached to an edge.
type Rule int

const (
	// DeleteDestinationIfSourceDeleted removes the destination record or file
	// when the source record is deleted.
	DeleteDestinationIfSourceDeleted Rule = iota + 1

	// DeleteSourceIfDestinationDeleted removes the source record when its
	// destination record is deleted. The destination must exist whenever the
	// source is written.
	DeleteSourceIfDestinationDeleted
)

func (r Rule) String() string {
	switch r {
	case DeleteDestinationIfSourceDeleted:
		return "cascade"
	case DeleteSourceIfDestinationDeleted:
		return "delete-source"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

// Ref addresses a record.
type Ref struct {
	Collection string
	Key        string
}

func (r Ref) String() string { return r.Collection + "/" + r.Key }

// Edge points from the record declaring it to another record or to a file.
// Exactly one of Dest and File is set.
type Edge struct {
	Name string
	Dest Ref
	File string
	Rule Rule
}

// Node is implemented by records that declare edges.
type Node interface {
	Edges() []Edge
}

// EdgesOf returns the edges declared by rec, or nil.
func EdgesOf(rec any) []Edge {
	if n, ok := rec.(Node); ok {
		return n.Edges()
	}
	return nil
}

// Link is one entry of the reverse index.
type Link struct {
	Source Ref
	Name   string
	Rule   Rule
}

type link struct {
	dest Ref
	Link
}

func linkLess(a, b link) bool {
	if c := compareRef(a.dest, b.dest); c != 0 {
		return c < 0
	}
	if c := compareRef(a.Source, b.Source); c != 0 {
		return c < 0
	}
	return a.Name < b.Name
}

func compareRef(a, b Ref) int {
	if c := strings.Compare(a.Collection, b.Collection); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}

// Index maps record destinations to the sources that point at them. Clones
// share structure and are cheap; each snapshot owns one.
type Index struct {
	links *btree.BTreeG[link]
}

func NewIndex() *Index {
	return &Index{links: btree.NewG(16, linkLess)}
}

// Clone returns a copy-on-write copy of the index.
func (ix *Index) Clone() *Index {
	return &Index{links: ix.links.Clone()}
}

// Len returns the number of record edges in the index.
func (ix *Index) Len() int { return ix.links.Len() }

// Replace swaps the edges recorded for src. File edges are not indexed.
func (ix *Index) Replace(src Ref, old, new []Edge) {
	for _, e := range old {
		if e.File != "" {
			continue
		}
		ix.links.Delete(link{dest: e.Dest, Link: Link{Source: src, Name: e.Name, Rule: e.Rule}})
	}
	for _, e := range new {
		if e.File != "" {
			continue
		}
		ix.links.ReplaceOrInsert(link{dest: e.Dest, Link: Link{Source: src, Name: e.Name, Rule: e.Rule}})
	}
}

// Sources returns every link pointing at dest.
func (ix *Index) Sources(dest Ref) []Link {
	var out []Link
	ix.links.AscendGreaterOrEqual(link{dest: dest}, func(l link) bool {
		if l.dest != dest {
			return false
		}
		out = append(out, l.Link)
		return true
	})
	return out
}
