package graph_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/loader"
	"github.com/wippyai/binsize/wasm"
	"github.com/wippyai/binsize/wasm/wasmtest"
)

func buildGraph(t *testing.T, data []byte, opts ...graph.BuildOption) *graph.Graph {
	t.Helper()
	raw, err := loader.Load(data)
	require.NoError(t, err)
	g, err := graph.Build(raw, opts...)
	require.NoError(t, err)
	return g
}

func sample() []byte {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	imp := b.ImportFunc("env", "log", void)
	helper := b.Func(void, wasmtest.Call(imp))
	main := b.Func(void, wasmtest.Call(helper), wasmtest.GlobalGet(0), wasmtest.Drop())
	cb := b.Func(void)
	b.Table(1)
	b.Global(wasm.ValI32, false, wasmtest.I32Const(0))
	b.ExportFunc("main", main)
	b.Start(helper)
	b.ActiveElem(0, cb)
	b.Custom("producers", []byte{0})
	b.Name(wasm.SpaceFunc, main, "main")
	return b.Bytes()
}

func fn(i uint32) graph.ItemID { return graph.MakeID(loader.SpaceFunc, i) }

func TestBuildRoots(t *testing.T) {
	g := buildGraph(t, sample())

	roots := g.Roots()
	require.Len(t, roots, 3)
	for i, pos := range roots {
		assert.Equal(t, i, pos, "roots come first")
		assert.True(t, g.At(pos).IsRoot())
		assert.Zero(t, g.At(pos).Size)
	}
	assert.Equal(t, `root export "main"`, g.At(0).Name)
	assert.Equal(t, "root start", g.At(1).Name)
	assert.Equal(t, "root elem[0]", g.At(2).Name)

	for i, it := range g.Items() {
		assert.Equal(t, i, it.Order)
	}
	for i := len(roots) + 1; i < g.Len(); i++ {
		assert.Less(t, g.At(i-1).Range.Start, g.At(i).Range.Start)
	}
}

func TestBuildEdgeKinds(t *testing.T) {
	g := buildGraph(t, sample())

	kind := func(from, to graph.ItemID) graph.EdgeKind {
		t.Helper()
		f, ok := g.Pos(from)
		require.True(t, ok, "missing %s", from)
		tp, ok := g.Pos(to)
		require.True(t, ok, "missing %s", to)
		for _, a := range g.Out(f) {
			if a.Pos == tp {
				return a.Kind
			}
		}
		t.Fatalf("no edge %s -> %s", from, to)
		return 0
	}

	typ := graph.MakeID(loader.SpaceType, 0)
	assert.Equal(t, graph.EdgeCalls, kind(fn(2), fn(1)))
	assert.Equal(t, graph.EdgeCalls, kind(fn(1), fn(0)), "calls to imports are calls")
	assert.Equal(t, graph.EdgeUsesType, kind(fn(2), typ))
	assert.Equal(t, graph.EdgeUsesType, kind(fn(0), typ))
	assert.Equal(t, graph.EdgeReferencesData, kind(fn(2), graph.MakeID(loader.SpaceGlobal, 0)))

	exp := graph.MakeID(loader.SpaceExport, 0)
	assert.Equal(t, graph.EdgeExports, kind(g.At(0).ID, exp))
	assert.Equal(t, graph.EdgeExports, kind(exp, fn(2)))

	start := graph.MakeID(loader.SpaceSection, uint32(wasm.SectionStart))
	assert.Equal(t, graph.EdgeStartFunction, kind(g.At(1).ID, start))
	assert.Equal(t, graph.EdgeStartFunction, kind(start, fn(1)))

	elem := graph.MakeID(loader.SpaceElem, 0)
	assert.Equal(t, graph.EdgeTableEntry, kind(g.At(2).ID, elem))
	assert.Equal(t, graph.EdgeTableEntry, kind(elem, fn(3)))
	assert.Equal(t, graph.EdgeTableEntry, kind(graph.MakeID(loader.SpaceTable, 0), elem))

	in := g.In(g.Roots()[0])
	assert.Empty(t, in, "roots have no incoming edges")
	assert.Len(t, g.Edges(), g.NumEdges())
}

func TestBuildCustomSections(t *testing.T) {
	data := sample()
	plain := buildGraph(t, data)
	with := buildGraph(t, data, graph.WithCustomSections(true))

	assert.Equal(t, plain.Len()+2, with.Len(), "producers and name sections become items")
	assert.Greater(t, with.TotalSize(), plain.TotalSize())
	for _, it := range plain.Items() {
		assert.NotEqual(t, loader.KindCustom, it.Kind)
	}
}

func TestBuildMissingReference(t *testing.T) {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	b.Func(void, wasmtest.Call(9))
	data := b.Bytes()

	raw, err := loader.Load(data)
	require.NoError(t, err)
	_, err = graph.Build(raw)
	require.Error(t, err)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.KindMalformed, e.Kind)
	assert.Equal(t, errors.PhaseBuild, e.Phase)
	assert.Equal(t, fn(0).String(), e.Item)

	it := find(raw, loader.SpaceFunc, 0)
	assert.Equal(t, it.Range.Start, e.Offset)
}

func find(m *loader.RawModel, space loader.Space, idx uint32) loader.RawItem {
	for _, it := range m.Items {
		if it.Space == space && it.Index == idx {
			return it
		}
	}
	return loader.RawItem{}
}

func TestBuildRecursion(t *testing.T) {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	self := b.Func(void, wasmtest.Call(0), wasmtest.Call(0))
	b.ExportFunc("self", self)
	g := buildGraph(t, b.Bytes())

	assert.True(t, g.HasEdge(fn(0), fn(0)), "self-edges are kept")
	p, _ := g.Pos(fn(0))
	calls := 0
	for _, a := range g.Out(p) {
		if a.Pos == p {
			calls++
		}
	}
	assert.Equal(t, 1, calls, "repeated calls collapse")
}

func TestBuilder(t *testing.T) {
	b := graph.NewBuilder()
	a := graph.MakeID(loader.SpaceSymbol, 0)
	c := graph.MakeID(loader.SpaceSymbol, 1)
	require.NoError(t, b.AddItem(graph.Item{ID: a, Name: "a", Kind: loader.KindFunction, Size: 10}))
	require.NoError(t, b.AddItem(graph.Item{ID: c, Kind: loader.KindSymbolData, Size: 4}))
	assert.Error(t, b.AddItem(graph.Item{ID: a}), "duplicate id")
	assert.Error(t, b.AddItem(graph.Item{ID: graph.MakeID(loader.SpaceRoot, 5)}), "root space is reserved")

	r := b.AddRoot("root a")
	require.NoError(t, b.AddEdge(r, a, graph.EdgeExports))
	require.NoError(t, b.AddEdge(a, c, graph.EdgeReferencesData))
	require.NoError(t, b.AddEdge(a, c, graph.EdgeReferencesData))
	require.NoError(t, b.AddEdge(a, c, graph.EdgeCalls))
	assert.Error(t, b.AddEdge(a, graph.MakeID(loader.SpaceSymbol, 7), graph.EdgeCalls))

	g := b.Graph()
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 3, g.NumEdges(), "same endpoints with different kinds are distinct")
	assert.Equal(t, r, g.At(0).ID)
	assert.Equal(t, 14, g.TotalSize())

	it, ok := g.Get(c)
	require.True(t, ok)
	assert.Equal(t, "symbol-data[1]", it.DisplayName())
	_, ok = g.Get(graph.MakeID(loader.SpaceFunc, 0))
	assert.False(t, ok)
}

func TestParseID(t *testing.T) {
	for _, id := range []graph.ItemID{fn(0), fn(42), graph.MakeID(loader.SpaceRoot, 3), graph.MakeID(loader.SpaceData, 1<<31)} {
		text, err := id.MarshalText()
		require.NoError(t, err)
		var back graph.ItemID
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, id, back)
	}

	for _, bad := range []string{"", "func", "[1]", "func[x]", "nope[1]", "func[1"} {
		_, err := graph.ParseID(bad)
		assert.Error(t, err, bad)
	}

	var k graph.EdgeKind
	require.NoError(t, k.UnmarshalText([]byte("table-entry")))
	assert.Equal(t, graph.EdgeTableEntry, k)
	assert.Error(t, k.UnmarshalText([]byte("owns")))
}
