package view

type filterState struct {
	def     Filtered
	version uint64
}

// filtered hides the groups of its parent that fail the filter. It stores
// nothing of its own, so changing the filter costs one pass over the groups.
type filtered struct {
	name    string
	parent  Projection
	filter  FilterFunc
	version uint64
}

func (f *filtered) visible(group string) bool {
	return f.filter == nil || f.filter(group)
}

func (f *filtered) Name() string { return f.name }

// Version includes the parent's so that refiltering an ancestor is seen by
// every descendant.
func (f *filtered) Version() uint64 { return f.version + f.parent.Version() }

func (f *filtered) Groups() []string {
	var out []string
	for _, g := range f.parent.Groups() {
		if f.visible(g) {
			out = append(out, g)
		}
	}
	return out
}

func (f *filtered) GroupIndex(group string) (int, bool) {
	if !f.visible(group) {
		return 0, false
	}
	i := 0
	for _, g := range f.parent.Groups() {
		if g == group {
			return i, true
		}
		if f.visible(g) {
			i++
		}
	}
	return i, false
}

func (f *filtered) Count(group string) int {
	if !f.visible(group) {
		return 0
	}
	return f.parent.Count(group)
}

func (f *filtered) Len() int {
	n := 0
	for _, g := range f.Groups() {
		n += f.parent.Count(g)
	}
	return n
}

func (f *filtered) At(group string, index int) (Row, bool) {
	if !f.visible(group) {
		return Row{}, false
	}
	return f.parent.At(group, index)
}

func (f *filtered) Rows(group string) []Row {
	if !f.visible(group) {
		return nil
	}
	return f.parent.Rows(group)
}

func (f *filtered) Locate(key string) (string, int, bool) {
	g, i, ok := f.parent.Locate(key)
	if !ok || !f.visible(g) {
		return "", 0, false
	}
	return g, i, true
}

func (f *filtered) lookup(key string) (Row, bool) {
	r, ok := f.parent.lookup(key)
	if !ok || !f.visible(r.Group) {
		return Row{}, false
	}
	return r, true
}

func (f *filtered) compare(a, b any) int { return f.parent.compare(a, b) }
