package graph

import "fmt"

// Mutator gives Cascade access to the enclosing write transaction.
type Mutator interface {
	// Lookup returns the current record at ref.
	Lookup(ref Ref) (rec any, ok bool, err error)

	// Remove deletes the record at ref and its index entries.
	Remove(ref Ref) error
}

// Cascade deletes root and everything its delete rules reach. It returns
// the file destinations that must be removed once the transaction commits.
// Deleting a missing root is a no-op.
func Cascade(root Ref, ix *Index, m Mutator) ([]string, error) {
	var files []string
	visited := make(map[Ref]bool)
	queue := []Ref{root}

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if visited[ref] {
			continue
		}
		visited[ref] = true

		rec, ok, err := m.Lookup(ref)
		if err != nil {
			return nil, fmt.Errorf("looking up %s: %w", ref, err)
		}
		if !ok {
			continue
		}

		for _, e := range EdgesOf(rec) {
			if e.Rule != DeleteDestinationIfSourceDeleted {
				continue
			}
			if e.File != "" {
				files = append(files, e.File)
				continue
			}
			queue = append(queue, e.Dest)
		}

		for _, l := range ix.Sources(ref) {
			if l.Rule != DeleteSourceIfDestinationDeleted {
				continue
			}
			src, ok, err := m.Lookup(l.Source)
			if err != nil {
				return nil, fmt.Errorf("looking up %s: %w", l.Source, err)
			}
			if !ok || !declares(src, l.Name, ref) {
				return nil, fmt.Errorf("%w: %s lists %s via %q but the edge is gone", ErrCascade, ref, l.Source, l.Name)
			}
			queue = append(queue, l.Source)
		}

		if err := m.Remove(ref); err != nil {
			return nil, fmt.Errorf("removing %s: %w", ref, err)
		}
	}
	return files, nil
}

// Verify checks that every delete-source edge of rec points at a record
// that exists.
func Verify(src Ref, rec any, exists func(Ref) (bool, error)) error {
	for _, e := range EdgesOf(rec) {
		if e.Rule != DeleteSourceIfDestinationDeleted || e.File != "" {
			continue
		}
		ok, err := exists(e.Dest)
		if err != nil {
			return fmt.Errorf("checking %s: %w", e.Dest, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s references missing %s via %q", ErrCascade, src, e.Dest, e.Name)
		}
	}
	return nil
}

func declares(rec any, name string, dest Ref) bool {
	for _, e := range EdgesOf(rec) {
		if e.Name == name && e.Dest == dest {
			return true
		}
	}
	return false
}
