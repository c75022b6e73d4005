package notify

import (
	"save-go/internal/store"
	"save-go/internal/view"
)

// Step is the changeset of one commit.
type Step struct {
	Snapshot uint64
	view.Changeset
}

// Diff is what a reader needs to bring its rendering from one snapshot to
// the next. Steps are in commit order and each must be applied as a batch.
// When ForceFullReload is set Steps is empty and the reader's rendering
// must be rebuilt from its new snapshot.
type Diff struct {
	From, To        uint64
	ForceFullReload bool
	Steps           []Step
}

func (d Diff) Empty() bool { return !d.ForceFullReload && len(d.Steps) == 0 }

// Sections returns the section changes of every step in order.
func (d Diff) Sections() []view.SectionChange {
	var out []view.SectionChange
	for _, s := range d.Steps {
		out = append(out, s.Sections...)
	}
	return out
}

// Rows returns the row changes of every step in order: by snapshot, then
// deletes, inserts, moves and updates.
func (d Diff) Rows() []view.RowChange {
	var out []view.RowChange
	for _, s := range d.Steps {
		out = append(out, s.Rows...)
	}
	return out
}

// Apply brings a listing rendered at d.From to d.To. It must not be called
// for a forced reload.
func (d Diff) Apply(l view.Listing) (view.Listing, error) {
	var err error
	for _, s := range d.Steps {
		if l, err = l.Apply(s.Changeset); err != nil {
			return view.Listing{}, err
		}
	}
	return l, nil
}

// Reader follows one view. It is not safe for concurrent use; each
// observer owns its reader.
type Reader struct {
	bus     *Bus
	name    string
	snap    *store.Snapshot
	proj    view.Projection
	version uint64
	wake    chan struct{}
}

// Name is the view the reader follows.
func (r *Reader) Name() string { return r.name }

// Snapshot returns the pinned snapshot.
func (r *Reader) Snapshot() *store.Snapshot { return r.snap }

// Read runs fn against the pinned snapshot.
func (r *Reader) Read(fn func(*store.Snapshot) error) error { return fn(r.snap) }

// Changed receives a value after new commits were published. It is closed
// when the bus closes.
func (r *Reader) Changed() <-chan struct{} { return r.wake }

// HasPendingChanges reports whether commits after the pinned snapshot
// changed the reader's view, or whether they can no longer be told apart
// and the next diff would be a full reload. Commits that leave the view
// untouched do not count.
func (r *Reader) HasPendingChanges() bool {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	latest := r.bus.latest
	if latest.Number() == r.snap.Number() {
		return false
	}
	entries, err := r.bus.since(r.snap.Number())
	if err != nil {
		return true
	}
	if p, err := latest.View(r.name); err != nil || p.Version() != r.version {
		return true
	}
	for _, e := range entries {
		if e.External {
			return true
		}
		if cs, ok := e.Views[r.name]; ok && !cs.Empty() {
			return true
		}
	}
	return false
}

// Diff advances the reader to the latest snapshot and returns the changes
// of its view in between.
func (r *Reader) Diff() Diff {
	r.bus.mu.Lock()
	latest := r.bus.latest
	entries, err := r.bus.since(r.snap.Number())
	r.bus.mu.Unlock()

	d := Diff{From: r.snap.Number(), To: latest.Number()}
	if d.From == d.To {
		return d
	}

	p, perr := latest.View(r.name)
	force := err != nil || perr != nil || p.Version() != r.version
	if !force {
		for _, e := range entries {
			if e.External {
				force = true
				break
			}
			if cs, ok := e.Views[r.name]; ok && !cs.Empty() {
				d.Steps = append(d.Steps, Step{Snapshot: e.Number, Changeset: cs})
			}
		}
	}
	if force {
		d.ForceFullReload = true
		d.Steps = nil
	}

	r.snap = latest
	if perr == nil {
		r.proj = p
		r.version = p.Version()
	}
	return d
}

// Groups returns the visible groups of the pinned projection.
func (r *Reader) Groups() []string { return r.proj.Groups() }

func (r *Reader) Count(group string) int { return r.proj.Count(group) }

func (r *Reader) At(group string, index int) (view.Row, bool) { return r.proj.At(group, index) }

// Listing materialises the pinned projection.
func (r *Reader) Listing() view.Listing { return view.Materialize(r.proj) }

// Close detaches the reader from the bus.
func (r *Reader) Close() {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	if _, ok := r.bus.readers[r]; ok {
		delete(r.bus.readers, r)
		close(r.wake)
	}
}
