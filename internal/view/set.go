package view

import (
	"fmt"
	"slices"
)

// Touch is the final state of one written key, handed to Apply at commit.
type Touch struct {
	Collection string
	Key        string
	Seq        uint64
	Record     any
	Deleted    bool
}

// Set holds every registered view for one snapshot. A Set is never mutated
// once published; Clone it first.
type Set struct {
	order   []string
	bases   map[string]*base
	filters map[string]*filterState
}

func NewSet() *Set {
	return &Set{
		bases:   make(map[string]*base),
		filters: make(map[string]*filterState),
	}
}

// Clone returns a copy that can be modified independently. The ordered
// indexes are copy-on-write, so this is cheap.
func (s *Set) Clone() *Set {
	c := &Set{
		order:   slices.Clone(s.order),
		bases:   make(map[string]*base, len(s.bases)),
		filters: make(map[string]*filterState, len(s.filters)),
	}
	for name, b := range s.bases {
		c.bases[name] = b.clone()
	}
	for name, f := range s.filters {
		cp := *f
		c.filters[name] = &cp
	}
	return c
}

// Names returns view names in registration order.
func (s *Set) Names() []string { return slices.Clone(s.order) }

// Register adds a base view and builds it from src.
func (s *Set) Register(def Definition, src Source) error {
	if err := s.checkName(def.Name); err != nil {
		return err
	}
	if def.Source == "" || def.Group == nil || def.Sort == nil {
		return fmt.Errorf("%w: view %q needs a source, a group function and a sort function", ErrViewConfiguration, def.Name)
	}

	b := newBase(def)
	var ierr error
	err := src.Scan(def.Source, func(key string, seq uint64, rec any) bool {
		ierr = b.index(src, key, seq, rec)
		return ierr == nil
	})
	if err != nil {
		return fmt.Errorf("building view %s: %w", def.Name, err)
	}
	if ierr != nil {
		return ierr
	}

	s.bases[def.Name] = b
	s.order = append(s.order, def.Name)
	return nil
}

// RegisterFiltered adds a filtered view over an existing view.
func (s *Set) RegisterFiltered(f Filtered) error {
	if err := s.checkName(f.Name); err != nil {
		return err
	}
	if !s.has(f.Parent) {
		return fmt.Errorf("%w: view %q has unknown parent %q", ErrViewConfiguration, f.Name, f.Parent)
	}
	s.filters[f.Name] = &filterState{def: f}
	s.order = append(s.order, f.Name)
	return nil
}

// SetFilter replaces the filter of a filtered view and bumps its version.
func (s *Set) SetFilter(name string, filter FilterFunc, tag string) error {
	f, ok := s.filters[name]
	if !ok {
		return fmt.Errorf("%w: %q is not a filtered view", ErrViewConfiguration, name)
	}
	f.def.Filter = filter
	f.def.Tag = tag
	f.version++
	return nil
}

// Get returns the projection for a view.
func (s *Set) Get(name string) (Projection, bool) {
	if b, ok := s.bases[name]; ok {
		return b, true
	}
	f, ok := s.filters[name]
	if !ok {
		return nil, false
	}
	parent, ok := s.Get(f.def.Parent)
	if !ok {
		return nil, false
	}
	return &filtered{name: name, parent: parent, filter: f.def.Filter, version: f.version}, true
}

// Tag returns the tag of a filtered view's current filter.
func (s *Set) Tag(name string) string {
	if f, ok := s.filters[name]; ok {
		return f.def.Tag
	}
	return ""
}

// Versions returns the version of every view.
func (s *Set) Versions() map[string]uint64 {
	out := make(map[string]uint64, len(s.order))
	for _, name := range s.order {
		p, _ := s.Get(name)
		out[name] = p.Version()
	}
	return out
}

// Apply indexes the touched records into a copy of s and returns the copy
// together with the changeset of every view that changed.
func (s *Set) Apply(r Reader, touches []Touch) (*Set, map[string]Changeset, error) {
	next := s.Clone()
	keys := make(map[string][]string)

	for _, name := range s.order {
		b, ok := next.bases[name]
		if !ok {
			continue
		}
		for _, t := range touches {
			if t.Collection != b.def.Source {
				continue
			}
			if t.Deleted {
				b.remove(t.Key)
			} else if err := b.index(r, t.Key, t.Seq, t.Record); err != nil {
				return nil, nil, err
			}
			keys[name] = append(keys[name], t.Key)
		}
	}

	changes := make(map[string]Changeset)
	for _, name := range s.order {
		touched := keys[s.root(name)]
		if len(touched) == 0 {
			continue
		}
		old, _ := s.Get(name)
		cur, _ := next.Get(name)
		if cs := Changes(old, cur, touched); !cs.Empty() {
			changes[name] = cs
		}
	}
	return next, changes, nil
}

// Rebuild returns a new Set with the same views, filters and versions,
// built from scratch from src.
func (s *Set) Rebuild(src Source) (*Set, error) {
	out := NewSet()
	for _, name := range s.order {
		if b, ok := s.bases[name]; ok {
			if err := out.Register(b.def, src); err != nil {
				return nil, err
			}
			out.bases[name].version = b.version
			continue
		}
		f := s.filters[name]
		if err := out.RegisterFiltered(f.def); err != nil {
			return nil, err
		}
		out.filters[name].version = f.version
	}
	return out, nil
}

func (s *Set) root(name string) string {
	for {
		f, ok := s.filters[name]
		if !ok {
			return name
		}
		name = f.def.Parent
	}
}

func (s *Set) has(name string) bool {
	_, b := s.bases[name]
	_, f := s.filters[name]
	return b || f
}

func (s *Set) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: view name is empty", ErrViewConfiguration)
	}
	if s.has(name) {
		return fmt.Errorf("%w: view %q already registered", ErrViewConfiguration, name)
	}
	return nil
}
