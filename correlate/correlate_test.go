package correlate_test

import (
	"context"
	"debug/elf"
	stderrors "errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/binsize/correlate"
	"github.com/wippyai/binsize/debuginfo"
	"github.com/wippyai/binsize/debuginfo/dwarftest"
	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/loader"
	"github.com/wippyai/binsize/native/elftest"
	"github.com/wippyai/binsize/wasm"
	"github.com/wippyai/binsize/wasm/wasmtest"
)

var mainID = graph.MakeID(loader.SpaceFunc, 1)

func module(debug map[string][]byte, body ...[]byte) []byte {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	callee := b.Func(void)
	if body == nil {
		body = [][]byte{wasmtest.Call(callee), wasmtest.I32Const(1), wasmtest.Drop()}
	}
	main := b.FuncWithLocals(void, []wasmtest.Local{
		{Count: 2, Type: wasm.ValI32},
		{Count: 1, Type: wasm.ValI64},
	}, body...)
	b.ExportFunc("main", main)

	names := make([]string, 0, len(debug))
	for name := range debug {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.Custom(name, debug[name])
	}
	return b.Bytes()
}

func item(t *testing.T, raw *loader.RawModel, id graph.ItemID) loader.RawItem {
	t.Helper()
	for _, it := range raw.Items {
		if graph.MakeID(it.Space, it.Index) == id {
			return it
		}
	}
	t.Fatalf("no item %s", id)
	return loader.RawItem{}
}

// withDebug loads the sample module with a line table covering main.
func withDebug(t *testing.T) (*loader.RawModel, *debuginfo.Table) {
	t.Helper()
	plain, err := loader.Load(module(nil))
	require.NoError(t, err)
	main := item(t, plain, mainID)
	addr := main.DebugAddr
	end := addr + uint64(main.Range.End-main.CodeStart)

	sections := dwarftest.Sections(dwarftest.Unit{
		Name:  "m.c",
		Files: []string{"/src/m.c"},
		Lines: []dwarftest.Line{{Addr: addr, File: 1, Line: 10}, {Addr: addr + 2, File: 1, Line: 11}},
		End:   end,
		Funcs: []dwarftest.Func{{Name: "main", Low: addr, High: end}},
	})
	raw, err := loader.Load(module(sections))
	require.NoError(t, err)
	require.Equal(t, main.CodeStart, item(t, raw, mainID).CodeStart)

	table, err := debuginfo.Build(raw.DebugSections)
	require.NoError(t, err)
	return raw, table
}

func TestCorrelateWasm(t *testing.T) {
	raw, table := withDebug(t)
	main := item(t, raw, mainID)

	l, err := correlate.New(raw, table).Correlate(context.Background(), mainID)
	require.NoError(t, err)
	assert.False(t, l.Truncated)
	assert.Equal(t, correlate.DebugAvailable, l.DebugInfo)
	require.Len(t, l.Records, 6)

	assert.Equal(t, correlate.RecordLocal, l.Records[0].Kind)
	assert.Equal(t, "local 2 x i32", l.Records[0].Text)
	assert.Equal(t, "local i64", l.Records[1].Text)
	assert.Empty(t, l.Records[0].Frames)
	assert.Equal(t, main.CodeStart, l.Records[1].Offset+l.Records[1].Len)

	call := l.Records[2]
	assert.Equal(t, correlate.RecordInstruction, call.Kind)
	assert.Equal(t, main.CodeStart, call.Offset)
	assert.True(t, strings.HasPrefix(call.Text, "call"), call.Text)
	assert.Equal(t, []graph.ItemID{graph.MakeID(loader.SpaceFunc, 0)}, call.Refs)
	assert.Equal(t, []debuginfo.Frame{{Function: "main", File: "/src/m.c", Line: 10}}, call.Frames)

	assert.Equal(t, 11, l.Records[3].Frames[0].Line)
	assert.Equal(t, 11, l.Records[5].Frames[0].Line, "end shares the last row")

	for i := 3; i < len(l.Records); i++ {
		assert.Equal(t, l.Records[i-1].Offset+l.Records[i-1].Len, l.Records[i].Offset)
	}
}

func TestCorrelateWithoutDebugInfo(t *testing.T) {
	raw, err := loader.Load(module(nil))
	require.NoError(t, err)
	_, err = debuginfo.Build(raw.DebugSections)
	require.True(t, stderrors.Is(err, errors.ErrDebugInfoUnavailable))

	l, err := correlate.New(raw, nil).Correlate(context.Background(), mainID)
	require.NoError(t, err)
	assert.Equal(t, correlate.DebugUnavailable, l.DebugInfo)
	require.Len(t, l.Records, 6)
	for _, r := range l.Records {
		assert.Empty(t, r.Frames)
	}
}

func TestCorrelateUnmappedItem(t *testing.T) {
	raw, table := withDebug(t)
	l, err := correlate.New(raw, table).Correlate(context.Background(), graph.MakeID(loader.SpaceFunc, 0))
	require.NoError(t, err)
	require.NotEmpty(t, l.Records)
	for _, r := range l.Records {
		assert.Empty(t, r.Frames, "callee has no mapping")
	}
}

func TestInstructionBudget(t *testing.T) {
	raw, err := loader.Load(module(nil))
	require.NoError(t, err)
	l, err := correlate.New(raw, nil, correlate.WithMaxInstructions(2)).Correlate(context.Background(), mainID)
	require.NoError(t, err)
	assert.True(t, l.Truncated)
	assert.Len(t, l.Records, 4, "locals are not counted")
	assert.Contains(t, l.Reason, "budget")
}

func TestTimeBudget(t *testing.T) {
	raw, err := loader.Load(module(nil, wasmtest.Nops(2000)))
	require.NoError(t, err)
	c := correlate.New(raw, nil, correlate.WithTimeBudget(time.Nanosecond))
	l, err := c.Correlate(context.Background(), mainID)
	require.NoError(t, err)
	assert.True(t, l.Truncated)
	assert.Equal(t, "time budget exceeded", l.Reason)
	assert.Less(t, len(l.Records), 2003)
}

func TestCancelled(t *testing.T) {
	raw, err := loader.Load(module(nil))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l, err := correlate.New(raw, nil).Correlate(ctx, mainID)
	require.NoError(t, err)
	assert.True(t, l.Truncated)
	assert.Len(t, l.Records, 2)
}

func TestDecodeErrorTruncates(t *testing.T) {
	raw, err := loader.Load(module(nil, wasmtest.Nop(), wasmtest.Nop()))
	require.NoError(t, err)
	main := item(t, raw, mainID)
	raw.Data[main.CodeStart+1] = 0xFF

	l, err := correlate.New(raw, nil).Correlate(context.Background(), mainID)
	require.NoError(t, err)
	assert.True(t, l.Truncated)
	require.Len(t, l.Records, 4, "two locals, one nop, one error")
	last := l.Records[3]
	assert.Equal(t, correlate.RecordError, last.Kind)
	assert.Equal(t, main.CodeStart+1, last.Offset)
}

func TestItemsWithoutCode(t *testing.T) {
	raw, err := loader.Load(module(nil))
	require.NoError(t, err)
	c := correlate.New(raw, nil)

	l, err := c.Correlate(context.Background(), graph.MakeID(loader.SpaceType, 0))
	require.NoError(t, err)
	assert.Empty(t, l.Records)

	_, err = c.Correlate(context.Background(), graph.MakeID(loader.SpaceFunc, 42))
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.KindNotFound, e.Kind)
}

func TestCorrelateELF(t *testing.T) {
	b := elftest.New(elf.ET_EXEC, elf.EM_X86_64)
	text := b.Text(".text", 0x1000, []byte{0xE8, 0x00, 0x00, 0x00, 0x00, 0xC3})
	b.Symbol("helper", elf.STT_FUNC, elf.STB_LOCAL, text, 0x1005, 1)
	b.Symbol("_start", elf.STT_FUNC, elf.STB_GLOBAL, text, 0x1000, 5)
	b.Entry(0x1000)
	raw, err := loader.Load(b.Bytes())
	require.NoError(t, err)

	l, err := correlate.New(raw, nil).Correlate(context.Background(), graph.MakeID(loader.SpaceSymbol, 1))
	require.NoError(t, err)
	require.Len(t, l.Records, 1)
	assert.Equal(t, 5, l.Records[0].Len)
	assert.Contains(t, l.Records[0].Text, "call")
	assert.Equal(t, []graph.ItemID{graph.MakeID(loader.SpaceSymbol, 0)}, l.Records[0].Refs)
}
