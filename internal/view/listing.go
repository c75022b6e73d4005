package view

import (
	"fmt"
	"slices"
	"sort"
)

// Listing is a materialised projection: ordered groups and the ordered keys
// inside each. Observers keep one and patch it with changesets.
type Listing struct {
	Groups []string
	Keys   map[string][]string
}

// Materialize copies a projection into a Listing.
func Materialize(p Projection) Listing {
	l := Listing{Keys: make(map[string][]string)}
	for _, g := range p.Groups() {
		l.Groups = append(l.Groups, g)
		for _, r := range p.Rows(g) {
			l.Keys[g] = append(l.Keys[g], r.Key)
		}
	}
	return l
}

// Equal reports whether two listings have the same groups and rows.
func (l Listing) Equal(o Listing) bool {
	if !slices.Equal(l.Groups, o.Groups) {
		return false
	}
	for _, g := range l.Groups {
		if !slices.Equal(l.Keys[g], o.Keys[g]) {
			return false
		}
	}
	return true
}

// Apply returns the listing after applying cs as one batch.
func (l Listing) Apply(cs Changeset) (Listing, error) {
	out := Listing{Groups: slices.Clone(l.Groups), Keys: make(map[string][]string, len(l.Keys))}
	for g, keys := range l.Keys {
		out.Keys[g] = slices.Clone(keys)
	}

	removals := make(map[string][]RowChange)
	additions := make(map[string][]RowChange)
	for _, rc := range cs.Rows {
		switch rc.Kind {
		case Delete:
			removals[rc.FromGroup] = append(removals[rc.FromGroup], rc)
		case Insert:
			additions[rc.ToGroup] = append(additions[rc.ToGroup], rc)
		case Move:
			removals[rc.FromGroup] = append(removals[rc.FromGroup], rc)
			additions[rc.ToGroup] = append(additions[rc.ToGroup], rc)
		}
	}

	for g, rcs := range removals {
		sort.Slice(rcs, func(i, j int) bool { return rcs[i].FromIndex > rcs[j].FromIndex })
		keys := out.Keys[g]
		for _, rc := range rcs {
			if rc.FromIndex < 0 || rc.FromIndex >= len(keys) || keys[rc.FromIndex] != rc.Key {
				return Listing{}, fmt.Errorf("%s %s: no row at %s[%d]", rc.Kind, rc.Key, g, rc.FromIndex)
			}
			keys = slices.Delete(keys, rc.FromIndex, rc.FromIndex+1)
		}
		out.Keys[g] = keys
	}

	for _, sc := range cs.Sections {
		if sc.Kind != Delete {
			continue
		}
		i := slices.Index(out.Groups, sc.Group)
		if i < 0 || len(out.Keys[sc.Group]) != 0 {
			return Listing{}, fmt.Errorf("delete section %s: missing or not empty", sc.Group)
		}
		out.Groups = slices.Delete(out.Groups, i, i+1)
		delete(out.Keys, sc.Group)
	}
	inserts := slices.DeleteFunc(slices.Clone(cs.Sections), func(sc SectionChange) bool { return sc.Kind != Insert })
	sort.Slice(inserts, func(i, j int) bool { return inserts[i].Index < inserts[j].Index })
	for _, sc := range inserts {
		if sc.Index < 0 || sc.Index > len(out.Groups) {
			return Listing{}, fmt.Errorf("insert section %s at %d: out of range", sc.Group, sc.Index)
		}
		out.Groups = slices.Insert(out.Groups, sc.Index, sc.Group)
	}

	for g, rcs := range additions {
		sort.Slice(rcs, func(i, j int) bool { return rcs[i].ToIndex < rcs[j].ToIndex })
		keys := out.Keys[g]
		for _, rc := range rcs {
			if rc.ToIndex < 0 || rc.ToIndex > len(keys) {
				return Listing{}, fmt.Errorf("%s %s: index %s[%d] out of range", rc.Kind, rc.Key, g, rc.ToIndex)
			}
			keys = slices.Insert(keys, rc.ToIndex, rc.Key)
		}
		out.Keys[g] = keys
	}

	for _, rc := range cs.Rows {
		if rc.Kind != Update {
			continue
		}
		keys := out.Keys[rc.ToGroup]
		if rc.ToIndex < 0 || rc.ToIndex >= len(keys) || keys[rc.ToIndex] != rc.Key {
			return Listing{}, fmt.Errorf("update %s: no row at %s[%d]", rc.Key, rc.ToGroup, rc.ToIndex)
		}
	}
	return out, nil
}
