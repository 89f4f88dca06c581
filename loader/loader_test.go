package loader_test

import (
	"context"
	"debug/elf"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/binsize/analysis"
	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/loader"
	"github.com/wippyai/binsize/native/elftest"
	"github.com/wippyai/binsize/wasm"
	"github.com/wippyai/binsize/wasm/wasmtest"
)

func sampleModule() []byte {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	imp := b.ImportFunc("env", "log", void)
	helper := b.Func(void, wasmtest.Call(imp), wasmtest.Call(imp))
	main := b.Func(void,
		wasmtest.Call(helper),
		wasmtest.I32Const(0), wasmtest.I32Const(0), wasmtest.I32Const(3), wasmtest.MemoryInit(1),
		wasmtest.GlobalGet(0), wasmtest.Drop())
	cb := b.Func(void)
	b.Table(1)
	b.Memory(1)
	b.Global(wasm.ValI32, false, wasmtest.I32Const(0))
	b.ExportFunc("main", main)
	b.Start(helper)
	b.ActiveElem(0, cb)
	b.ActiveData(0, []byte("abc"))
	b.PassiveData([]byte("def"))
	b.Custom(".debug_info", []byte{0xAA})
	b.Name(wasm.SpaceFunc, main, "main")
	return b.Bytes()
}

func find(t *testing.T, m *loader.RawModel, space loader.Space, idx uint32) loader.RawItem {
	t.Helper()
	for _, it := range m.Items {
		if it.Space == space && it.Index == idx {
			return it
		}
	}
	t.Fatalf("no item %s[%d]", space, idx)
	return loader.RawItem{}
}

func TestLoadWasm(t *testing.T) {
	data := sampleModule()
	m, err := loader.Load(data)
	require.NoError(t, err)

	assert.Equal(t, loader.FormatWasm, m.Format)
	assert.Equal(t, len(data), m.Size)

	for i := 1; i < len(m.Items); i++ {
		assert.Less(t, m.Items[i-1].Range.Start, m.Items[i].Range.Start, "items are in byte order")
	}

	imp := find(t, m, loader.SpaceFunc, 0)
	assert.Equal(t, loader.KindImport, imp.Kind)
	assert.Equal(t, "env.log", imp.Name)

	main := find(t, m, loader.SpaceFunc, 2)
	assert.Equal(t, loader.KindFunction, main.Kind)
	assert.Equal(t, "main", main.Name)
	assert.Equal(t, []loader.RawRef{
		{Space: loader.SpaceType, Index: 0},
		{Space: loader.SpaceFunc, Index: 1},
		{Space: loader.SpaceData, Index: 1},
		{Space: loader.SpaceMemory, Index: 0},
		{Space: loader.SpaceGlobal, Index: 0},
	}, main.Refs)
	assert.True(t, main.HasCode())
	assert.Equal(t, uint64(main.CodeStart-m.CodeBase), main.DebugAddr)

	helper := find(t, m, loader.SpaceFunc, 1)
	assert.Equal(t, []loader.RawRef{{Space: loader.SpaceType}, {Space: loader.SpaceFunc, Index: 0}}, helper.Refs,
		"repeated calls collapse to one reference")

	exp := find(t, m, loader.SpaceExport, 0)
	assert.Equal(t, `export "main"`, exp.Name)
	assert.Equal(t, []loader.RawRef{{Space: loader.SpaceFunc, Index: 2, Kind: loader.RefExport}}, exp.Refs)
	assert.Equal(t, []loader.RawRef{{Space: loader.SpaceExport}}, m.Exports)

	require.NotNil(t, m.Start)
	start := find(t, m, m.Start.Space, m.Start.Index)
	assert.Equal(t, []loader.RawRef{{Space: loader.SpaceFunc, Index: 1, Kind: loader.RefStart}}, start.Refs)

	elem := find(t, m, loader.SpaceElem, 0)
	assert.Contains(t, elem.Refs, loader.RawRef{Space: loader.SpaceFunc, Index: 3, Kind: loader.RefTableEntry})
	assert.Equal(t, []loader.RawRef{{Space: loader.SpaceElem}}, m.Elements)

	table := find(t, m, loader.SpaceTable, 0)
	assert.Contains(t, table.Refs, loader.RawRef{Space: loader.SpaceElem, Kind: loader.RefTableEntry})

	mem := find(t, m, loader.SpaceMemory, 0)
	assert.Contains(t, mem.Refs, loader.RawRef{Space: loader.SpaceData, Index: 0})
	assert.NotContains(t, mem.Refs, loader.RawRef{Space: loader.SpaceData, Index: 1}, "passive segments are not owned by memory")
	assert.Contains(t, mem.Refs, loader.RawRef{Space: loader.SpaceSection, Index: uint32(wasm.SectionDataCount)})

	assert.Equal(t, []byte{0xAA}, m.DebugSections[".debug_info"])
}

func TestLoadImportedMemoryOwnsData(t *testing.T) {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	b.ImportMemory("env", "memory", 1)
	run := b.Func(void, wasmtest.I32Const(0), wasmtest.I32Const(0), wasmtest.I32Const(3), wasmtest.MemoryInit(1))
	b.ExportFunc("run", run)
	b.ActiveData(0, []byte("abc"))
	b.PassiveData([]byte("def"))

	m, err := loader.Load(b.Bytes())
	require.NoError(t, err)

	mem := find(t, m, loader.SpaceMemory, 0)
	assert.Equal(t, loader.KindImport, mem.Kind)
	assert.Equal(t, []loader.RawRef{
		{Space: loader.SpaceData, Index: 0},
		{Space: loader.SpaceSection, Index: uint32(wasm.SectionDataCount)},
	}, mem.Refs)

	g, err := graph.Build(m)
	require.NoError(t, err)
	a, err := analysis.Analyze(context.Background(), g)
	require.NoError(t, err)
	for _, id := range []graph.ItemID{
		graph.MakeID(loader.SpaceSection, uint32(wasm.SectionDataCount)),
		graph.MakeID(loader.SpaceData, 0),
		graph.MakeID(loader.SpaceData, 1),
	} {
		pos, ok := g.Pos(id)
		require.True(t, ok, id.String())
		assert.False(t, a.IsGarbage(pos), "%s is reachable through the imported memory", id)
	}
}

func TestLoadDeterministic(t *testing.T) {
	data := sampleModule()
	a, err := loader.Load(data, loader.WithParallelism(1))
	require.NoError(t, err)
	b, err := loader.Load(data, loader.WithParallelism(8))
	require.NoError(t, err)
	assert.Equal(t, a.Items, b.Items)
}

func TestLoadErrors(t *testing.T) {
	comp := []byte{0x00, 0x61, 0x73, 0x6D, 0x0d, 0x00, 0x01, 0x00}
	tests := []struct {
		name     string
		data     []byte
		sentinel error
	}{
		{"empty", nil, errors.ErrUnrecognizedFormat},
		{"text", []byte("hello world"), errors.ErrUnrecognizedFormat},
		{"component", comp, errors.ErrUnrecognizedFormat},
		{"truncated wasm", sampleModule()[:20], errors.ErrMalformed},
		{"truncated elf", []byte{0x7f, 'E', 'L', 'F', 2, 1}, errors.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := loader.Load(tt.data)
			assert.Nil(t, m)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, tt.sentinel), "got %v", err)
		})
	}
}

func TestLoadMalformedBodyReportsOffset(t *testing.T) {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	b.Func(void, wasmtest.Nop())
	b.Func(void, wasmtest.Op(0xFF))
	data := b.Bytes()

	_, err := loader.Load(data, loader.WithParallelism(4))
	require.Error(t, err)
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.KindMalformed, e.Kind)
	assert.Equal(t, byte(0xFF), data[e.Offset])
}

func TestLoadNoExports(t *testing.T) {
	b := wasmtest.New()
	b.Func(b.Type(nil, nil))
	m, err := loader.Load(b.Bytes())
	require.NoError(t, err)
	assert.Empty(t, m.Exports)
	assert.Nil(t, m.Start)
	assert.Empty(t, m.Elements)
	assert.Len(t, m.Items, 2)
}

func TestLoadELF(t *testing.T) {
	b := elftest.New(elf.ET_EXEC, elf.EM_X86_64)
	text := b.Text(".text", 0x1000, []byte{0xE8, 0x00, 0x00, 0x00, 0x00, 0xC3})
	b.Symbol("helper", elf.STT_FUNC, elf.STB_LOCAL, text, 0x1005, 1)
	b.Symbol("_start", elf.STT_FUNC, elf.STB_GLOBAL, text, 0x1000, 5)
	b.Entry(0x1000)

	m, err := loader.Load(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, loader.FormatELF, m.Format)
	assert.Equal(t, elf.EM_X86_64, m.Machine)
	require.Len(t, m.Items, 2)

	start := m.Items[1]
	assert.Equal(t, "_start", start.Name)
	assert.Equal(t, loader.KindFunction, start.Kind)
	assert.Equal(t, uint64(0x1000), start.DebugAddr)
	assert.Equal(t, []loader.RawRef{{Space: loader.SpaceSymbol, Index: 0}}, start.Refs)

	require.NotNil(t, m.Start)
	assert.Equal(t, uint32(1), m.Start.Index)
	assert.Equal(t, []loader.RawRef{{Space: loader.SpaceSymbol, Index: 1, Kind: loader.RefExport}}, m.Exports)
}

func TestLoadELFOversizedSymbol(t *testing.T) {
	b := elftest.New(elf.ET_EXEC, elf.EM_X86_64)
	text := b.Text(".text", 0x401000, make([]byte, 64))
	b.Symbol("main", elf.STT_FUNC, elf.STB_GLOBAL, text, 0x401001, math.MaxUint64)
	b.Entry(0x401001)

	require.NotPanics(t, func() {
		_, err := loader.Load(b.Bytes())
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrMalformed), "%v", err)
	})
}

func TestLoadELFExportedAlias(t *testing.T) {
	b := elftest.New(elf.ET_EXEC, elf.EM_X86_64)
	text := b.Text(".text", 0x1000, []byte{0x90, 0xC3})
	b.Symbol("__GI_work", elf.STT_FUNC, elf.STB_LOCAL, text, 0x1000, 2)
	b.Symbol("work", elf.STT_FUNC, elf.STB_GLOBAL, text, 0x1000, 2)

	m, err := loader.Load(b.Bytes())
	require.NoError(t, err)
	require.Len(t, m.Items, 1)
	assert.Equal(t, "work", m.Items[0].Name)
	assert.Equal(t, []string{"__GI_work"}, m.Items[0].Aliases)
	assert.Equal(t, []loader.RawRef{{Space: loader.SpaceSymbol, Index: 0, Kind: loader.RefExport}}, m.Exports)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, loader.Validate(ctx, sampleModule()))

	b := wasmtest.New()
	b.Func(b.Type(nil, nil), wasmtest.Call(7))
	err := loader.Validate(ctx, b.Bytes())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrMalformed))

	err = loader.Validate(ctx, []byte{0x7f, 'E', 'L', 'F'})
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
}
