package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	edges []Edge
}

func (n node) Edges() []Edge { return n.edges }

// memGraph is a map-backed Mutator that keeps the index in step.
type memGraph struct {
	recs map[Ref]any
	ix   *Index
}

func newMemGraph() *memGraph {
	return &memGraph{recs: make(map[Ref]any), ix: NewIndex()}
}

func (g *memGraph) put(ref Ref, edges ...Edge) {
	g.ix.Replace(ref, EdgesOf(g.recs[ref]), edges)
	g.recs[ref] = node{edges: edges}
}

func (g *memGraph) Lookup(ref Ref) (any, bool, error) {
	rec, ok := g.recs[ref]
	return rec, ok, nil
}

func (g *memGraph) Remove(ref Ref) error {
	g.ix.Replace(ref, EdgesOf(g.recs[ref]), nil)
	delete(g.recs, ref)
	return nil
}

var (
	collection = Ref{Collection: "collections", Key: "C"}
	assetA     = Ref{Collection: "assets", Key: "A"}
	assetB     = Ref{Collection: "assets", Key: "B"}
	upload     = Ref{Collection: "uploads", Key: "U"}
)

func belongsTo(dest Ref) Edge {
	return Edge{Name: "collection", Dest: dest, Rule: DeleteSourceIfDestinationDeleted}
}

func TestCascade_DeletesDependentsAndCollectsFiles(t *testing.T) {
	g := newMemGraph()
	g.put(collection)
	g.put(assetA, belongsTo(collection), Edge{Name: "file", File: "assets/A", Rule: DeleteDestinationIfSourceDeleted})
	g.put(assetB, belongsTo(collection))
	g.put(upload, Edge{Name: "asset", Dest: assetA, Rule: DeleteSourceIfDestinationDeleted})

	files, err := Cascade(collection, g.ix, g)
	require.NoError(t, err)

	assert.Equal(t, []string{"assets/A"}, files)
	assert.Empty(t, g.recs)
	assert.Equal(t, 0, g.ix.Len())
}

func TestCascade_DoesNotClimbToOwner(t *testing.T) {
	g := newMemGraph()
	g.put(collection)
	g.put(assetA, belongsTo(collection))
	g.put(assetB, belongsTo(collection))

	_, err := Cascade(assetA, g.ix, g)
	require.NoError(t, err)

	assert.Contains(t, g.recs, collection)
	assert.Contains(t, g.recs, assetB)
	assert.NotContains(t, g.recs, assetA)
	assert.Len(t, g.ix.Sources(collection), 1)
}

func TestCascade_MissingRootIsNoOp(t *testing.T) {
	g := newMemGraph()
	files, err := Cascade(assetA, g.ix, g)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCascade_StaleIndexFails(t *testing.T) {
	g := newMemGraph()
	g.put(collection)
	g.put(assetA, belongsTo(collection))
	// Change the record behind the index's back.
	g.recs[assetA] = node{}

	_, err := Cascade(collection, g.ix, g)
	assert.True(t, errors.Is(err, ErrCascade))
	assert.Contains(t, g.recs, collection)
}

func TestVerify(t *testing.T) {
	exists := func(ref Ref) (bool, error) { return ref == collection, nil }

	assert.NoError(t, Verify(assetA, node{edges: []Edge{belongsTo(collection)}}, exists))
	assert.NoError(t, Verify(assetA, node{edges: []Edge{{Name: "file", File: "x", Rule: DeleteSourceIfDestinationDeleted}}}, exists))

	err := Verify(upload, node{edges: []Edge{{Name: "asset", Dest: assetB, Rule: DeleteSourceIfDestinationDeleted}}}, exists)
	assert.ErrorIs(t, err, ErrCascade)
}

func TestIndex_CloneIsIndependent(t *testing.T) {
	ix := NewIndex()
	ix.Replace(assetA, nil, []Edge{belongsTo(collection)})
	clone := ix.Clone()
	clone.Replace(assetB, nil, []Edge{belongsTo(collection)})

	assert.Len(t, ix.Sources(collection), 1)
	assert.Len(t, clone.Sources(collection), 2)
	assert.Equal(t, "cascade", DeleteDestinationIfSourceDeleted.String())
}
