package view

import (
	"fmt"

	"github.com/google/btree"
)

const degree = 16

// item is a row stored in the ordered index. Pivot items (edge -1 or 1)
// bracket a group and never hold a record.
type item struct {
	Row
	edge int8
}

type groupCount struct {
	name  string
	count int
}

type base struct {
	def     Definition
	version uint64
	rows    *btree.BTreeG[item]
	keys    *btree.BTreeG[Row]
	groups  *btree.BTreeG[groupCount]
}

func newBase(def Definition) *base {
	desc := def.DescendingGroups
	sortFn := def.Sort
	return &base{
		def:  def,
		rows: btree.NewG(degree, func(a, b item) bool {
			if a.Group != b.Group {
				return compareGroups(desc, a.Group, b.Group) < 0
			}
			if a.edge != b.edge {
				return a.edge < b.edge
			}
			if a.edge != 0 {
				return false
			}
			if c := sortFn(a.Record, b.Record); c != 0 {
				return c < 0
			}
			if a.Seq != b.Seq {
				return a.Seq < b.Seq
			}
			return a.Key < b.Key
		}),
		keys: btree.NewG(degree, func(a, b Row) bool { return a.Key < b.Key }),
		groups: btree.NewG(degree, func(a, b groupCount) bool {
			return compareGroups(desc, a.name, b.name) < 0
		}),
	}
}

func (b *base) clone() *base {
	return &base{
		def:     b.def,
		version: b.version,
		rows:    b.rows.Clone(),
		keys:    b.keys.Clone(),
		groups:  b.groups.Clone(),
	}
}

// put inserts or repositions r.
func (b *base) put(r Row) {
	b.remove(r.Key)
	b.rows.ReplaceOrInsert(item{Row: r})
	b.keys.ReplaceOrInsert(r)
	gc, _ := b.groups.Get(groupCount{name: r.Group})
	gc.name = r.Group
	gc.count++
	b.groups.ReplaceOrInsert(gc)
}

func (b *base) remove(key string) {
	old, ok := b.keys.Delete(Row{Key: key})
	if !ok {
		return
	}
	b.rows.Delete(item{Row: old})
	gc, _ := b.groups.Get(groupCount{name: old.Group})
	gc.count--
	if gc.count <= 0 {
		b.groups.Delete(gc)
		return
	}
	b.groups.ReplaceOrInsert(gc)
}

func (b *base) Name() string    { return b.def.Name }
func (b *base) Version() uint64 { return b.version }
func (b *base) Len() int        { return b.keys.Len() }

func (b *base) Groups() []string {
	out := make([]string, 0, b.groups.Len())
	b.groups.Ascend(func(gc groupCount) bool {
		out = append(out, gc.name)
		return true
	})
	return out
}

func (b *base) GroupIndex(group string) (int, bool) {
	i, found := 0, false
	b.groups.Ascend(func(gc groupCount) bool {
		if gc.name == group {
			found = true
			return false
		}
		i++
		return true
	})
	return i, found
}

func (b *base) Count(group string) int {
	gc, _ := b.groups.Get(groupCount{name: group})
	return gc.count
}

func (b *base) At(group string, index int) (Row, bool) {
	if index < 0 {
		return Row{}, false
	}
	var out Row
	found := false
	i := 0
	b.ascendGroup(group, func(it item) bool {
		if i == index {
			out, found = it.Row, true
			return false
		}
		i++
		return true
	})
	return out, found
}

func (b *base) Rows(group string) []Row {
	var out []Row
	b.ascendGroup(group, func(it item) bool {
		out = append(out, it.Row)
		return true
	})
	return out
}

func (b *base) Locate(key string) (string, int, bool) {
	r, ok := b.keys.Get(Row{Key: key})
	if !ok {
		return "", 0, false
	}
	i, found := 0, false
	b.ascendGroup(r.Group, func(it item) bool {
		if it.Key == key {
			found = true
			return false
		}
		i++
		return true
	})
	return r.Group, i, found
}

func (b *base) lookup(key string) (Row, bool) {
	return b.keys.Get(Row{Key: key})
}

func (b *base) compare(x, y any) int {
	return b.def.Sort(x, y)
}

func (b *base) ascendGroup(group string, fn func(item) bool) {
	b.rows.AscendRange(
		item{Row: Row{Group: group}, edge: -1},
		item{Row: Row{Group: group}, edge: 1},
		fn,
	)
}

// index recomputes the group of one record and repositions it.
func (b *base) index(r Reader, key string, seq uint64, rec any) error {
	group, ok, err := b.def.Group(r, key, rec)
	if err != nil {
		return fmt.Errorf("view %s: grouping %s: %w", b.def.Name, key, err)
	}
	if !ok {
		b.remove(key)
		return nil
	}
	b.put(Row{Group: group, Key: key, Seq: seq, Record: rec})
	return nil
}
