package view

import (
	"fmt"
	"sort"
)

// ChangeKind identifies a row or section operation.
type ChangeKind int

const (
	Delete ChangeKind = iota + 1
	Insert
	Move
	Update
)

func (k ChangeKind) String() string {
	switch k {
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	case Move:
		return "move"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RowChange is one row operation. From coordinates refer to the state before
// the commit (Delete, Move, Update), To coordinates to the state after it
// (Insert, Move, Update).
type RowChange struct {
	Kind      ChangeKind
	Key       string
	FromGroup string
	FromIndex int
	ToGroup   string
	ToIndex   int
}

// SectionChange reports a group appearing (Insert, new index) or
// disappearing (Delete, old index).
type SectionChange struct {
	Kind  ChangeKind
	Group string
	Index int
}

// Changeset is the effect of one commit on one view. Row operations cover
// every affected row, including rows of inserted and deleted sections. It is
// applied as a batch: removals at old coordinates, then additions at new
// coordinates in ascending order.
type Changeset struct {
	Sections []SectionChange
	Rows     []RowChange
}

func (c Changeset) Empty() bool { return len(c.Sections) == 0 && len(c.Rows) == 0 }

// Changes computes the changeset between two projections of the same view,
// given the keys that were written between them.
func Changes(old, cur Projection, keys []string) Changeset {
	var cs Changeset
	groups := make(map[string]bool)

	for _, key := range keys {
		or, inOld := old.lookup(key)
		nr, inNew := cur.lookup(key)
		switch {
		case inOld && !inNew:
			_, oi, _ := old.Locate(key)
			cs.Rows = append(cs.Rows, RowChange{Kind: Delete, Key: key, FromGroup: or.Group, FromIndex: oi})
			groups[or.Group] = true
		case !inOld && inNew:
			_, ni, _ := cur.Locate(key)
			cs.Rows = append(cs.Rows, RowChange{Kind: Insert, Key: key, ToGroup: nr.Group, ToIndex: ni})
			groups[nr.Group] = true
		case inOld && inNew:
			_, oi, _ := old.Locate(key)
			_, ni, _ := cur.Locate(key)
			kind := Update
			// A key deleted and re-put in one commit keeps its sort value
			// but takes a new sequence, which can change its position.
			if or.Group != nr.Group || or.Seq != nr.Seq || cur.compare(or.Record, nr.Record) != 0 {
				kind = Move
			}
			cs.Rows = append(cs.Rows, RowChange{
				Kind: kind, Key: key,
				FromGroup: or.Group, FromIndex: oi,
				ToGroup: nr.Group, ToIndex: ni,
			})
			groups[or.Group] = true
			groups[nr.Group] = true
		}
	}

	for g := range groups {
		oc, nc := old.Count(g), cur.Count(g)
		switch {
		case oc == 0 && nc > 0:
			i, _ := cur.GroupIndex(g)
			cs.Sections = append(cs.Sections, SectionChange{Kind: Insert, Group: g, Index: i})
		case oc > 0 && nc == 0:
			i, _ := old.GroupIndex(g)
			cs.Sections = append(cs.Sections, SectionChange{Kind: Delete, Group: g, Index: i})
		}
	}

	sortChanges(&cs, old, cur)
	return cs
}

// sortChanges orders deletes (descending), inserts (ascending), moves, then
// updates, so the list can also be replayed one operation at a time.
func sortChanges(cs *Changeset, old, cur Projection) {
	sort.SliceStable(cs.Sections, func(i, j int) bool {
		a, b := cs.Sections[i], cs.Sections[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Kind == Delete {
			return a.Index > b.Index
		}
		return a.Index < b.Index
	})

	oldPos := positions(old.Groups())
	newPos := positions(cur.Groups())
	sort.SliceStable(cs.Rows, func(i, j int) bool {
		a, b := cs.Rows[i], cs.Rows[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		switch a.Kind {
		case Delete:
			if ga, gb := oldPos[a.FromGroup], oldPos[b.FromGroup]; ga != gb {
				return ga > gb
			}
			return a.FromIndex > b.FromIndex
		default:
			if ga, gb := newPos[a.ToGroup], newPos[b.ToGroup]; ga != gb {
				return ga < gb
			}
			return a.ToIndex < b.ToIndex
		}
	})
}

func positions(groups []string) map[string]int {
	m := make(map[string]int, len(groups))
	for i, g := range groups {
		m[g] = i
	}
	return m
}
