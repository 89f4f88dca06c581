package wasm_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/wasm"
	"github.com/wippyai/binsize/wasm/wasmtest"
)

func buildSample(t *testing.T) []byte {
	t.Helper()
	b := wasmtest.New()
	void := b.Type(nil, nil)
	imp := b.ImportFunc("env", "log", void)
	helper := b.Func(void, wasmtest.Call(imp))
	main := b.FuncWithLocals(void, []wasmtest.Local{{Count: 2, Type: wasm.ValI32}},
		wasmtest.Call(helper), wasmtest.GlobalGet(0), wasmtest.Drop())
	b.Table(1)
	b.Memory(1)
	b.Global(wasm.ValI32, true, wasmtest.I32Const(7))
	b.ExportFunc("main", main)
	b.Start(helper)
	b.ActiveElem(0, helper)
	b.ActiveData(16, []byte("hello"))
	b.Custom("producers", []byte{0x00})
	b.Name(wasm.SpaceFunc, helper, "helper")
	b.Name(wasm.SpaceFunc, main, "main_impl")
	b.Name(wasm.SpaceGlobal, 0, "counter")
	return b.Bytes()
}

func TestParseSampleModule(t *testing.T) {
	data := buildSample(t)
	m, err := wasm.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, len(data), m.Size)
	require.Len(t, m.Types, 1)
	require.Len(t, m.Imports, 1)
	require.Len(t, m.Funcs, 2)
	assert.Equal(t, uint32(1), m.ImportedFuncs)
	assert.Equal(t, uint32(3), m.NumFuncs())
	require.NotNil(t, m.Start)
	assert.Equal(t, uint32(1), *m.Start)

	require.Len(t, m.Exports, 1)
	assert.Equal(t, "main", m.Exports[0].Name)
	assert.Equal(t, uint32(2), m.Exports[0].Index)

	require.Len(t, m.Elements, 1)
	assert.Equal(t, wasm.ModeActive, m.Elements[0].Mode)
	assert.Equal(t, []uint32{1}, m.Elements[0].Funcs)

	require.Len(t, m.Data, 1)
	assert.Equal(t, 5, m.Data[0].Init.Len())
	assert.Equal(t, "hello", string(data[m.Data[0].Init.Start:m.Data[0].Init.End]), "data init range covers the payload")
	require.Len(t, m.Globals, 1)

	require.NotNil(t, m.Names, "names not parsed: %v", m.NameErr)
	assert.Equal(t, "main_impl", m.Names.Lookup(wasm.SpaceFunc, 2))
	assert.Equal(t, "counter", m.Names.Lookup(wasm.SpaceGlobal, 0))
	require.Len(t, m.Customs, 2)
	assert.Equal(t, "name", m.Customs[0].Name)
	assert.Equal(t, "producers", m.Customs[1].Name)
}

func TestParseFunctionRanges(t *testing.T) {
	data := buildSample(t)
	m, err := wasm.Parse(data)
	require.NoError(t, err)

	var code wasm.Section
	for _, s := range m.Sections {
		if s.ID == wasm.SectionCode {
			code = s
		}
	}
	assert.Equal(t, code.Payload.Start, m.CodeBase)

	// entries tile the code payload after the count byte
	next := code.Payload.Start + 1
	for i, fn := range m.Funcs {
		assert.Equal(t, next, fn.Range.Start, "func %d start", i)
		assert.Equal(t, fn.Range.End, fn.Body.End, "func %d body end", i)
		assert.Equal(t, fn.Range.Start+1, fn.Body.Start, "func %d body start", i)
		assert.Greater(t, fn.CodeStart, fn.Body.Start, "func %d code start", i)
		assert.Less(t, fn.CodeStart, fn.Range.End, "func %d code start", i)
		next = fn.Range.End
	}
	assert.Equal(t, code.Payload.End, next, "entries end where the payload ends")

	main := m.Funcs[1]
	require.Len(t, main.Locals, 1)
	assert.Equal(t, uint32(2), main.Locals[0].Count)
	assert.Equal(t, "i32", main.Locals[0].Type)

	refs, err := wasm.ScanRefs(data[main.CodeStart:main.Range.End], main.CodeStart)
	require.NoError(t, err)
	assert.Equal(t, []wasm.Ref{{Space: wasm.SpaceFunc, Index: 1}, {Space: wasm.SpaceGlobal, Index: 0}}, refs)
}

func TestParseRangesDoNotOverlap(t *testing.T) {
	data := buildSample(t)
	m, err := wasm.Parse(data)
	require.NoError(t, err)

	var ranges []wasm.Range
	for _, x := range m.Types {
		ranges = append(ranges, x.Range)
	}
	for _, x := range m.Imports {
		ranges = append(ranges, x.Range)
	}
	for _, x := range m.Funcs {
		ranges = append(ranges, x.Range)
	}
	for _, x := range m.Globals {
		ranges = append(ranges, x.Range)
	}
	for _, x := range m.Exports {
		ranges = append(ranges, x.Range)
	}
	for _, x := range m.Elements {
		ranges = append(ranges, x.Range)
	}
	for _, x := range m.Data {
		ranges = append(ranges, x.Range)
	}
	for i := range ranges {
		assert.Positive(t, ranges[i].Len(), "range %v", ranges[i])
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			assert.False(t, a.Start < b.End && b.Start < a.End, "ranges overlap: %v and %v", a, b)
		}
	}
}

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

func withHeader(b ...byte) []byte {
	return append(append([]byte{}, header...), b...)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		sentinel error
		offset   int
	}{
		{"bad magic", []byte{0x7f, 'E', 'L', 'F', 1, 0, 0, 0}, errors.ErrUnrecognizedFormat, -1},
		{"component", []byte{0x00, 0x61, 0x73, 0x6D, 0x0d, 0x00, 0x01, 0x00}, errors.ErrUnrecognizedFormat, -1},
		{"truncated header", []byte{0x00, 0x61, 0x73}, errors.ErrMalformed, 0},
		{"truncated section size", withHeader(0x01), errors.ErrMalformed, 9},
		{"section exceeds input", withHeader(0x01, 0x0A, 0x01, 0x60), errors.ErrMalformed, 10},
		{"unknown section", withHeader(0x20, 0x00), errors.ErrMalformed, 8},
		{"out of order", withHeader(0x03, 0x01, 0x00, 0x01, 0x01, 0x00), errors.ErrMalformed, 11},
		{"trailing bytes", withHeader(0x01, 0x02, 0x00, 0xAA), errors.ErrMalformed, 11},
		{"missing bodies", withHeader(0x01, 0x04, 0x01, 0x60, 0x00, 0x00, 0x03, 0x02, 0x01, 0x00), errors.ErrMalformed, 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.Parse(tt.data)
			require.Error(t, err)
			require.True(t, stderrors.Is(err, tt.sentinel), "%v does not match %v", err, tt.sentinel)
			if tt.offset < 0 {
				return
			}
			var e *errors.Error
			require.True(t, stderrors.As(err, &e), "not a structured error: %v", err)
			assert.Equal(t, tt.offset, e.Offset, "%v", err)
		})
	}
}

func TestParseMalformedNameSectionIsIgnored(t *testing.T) {
	b := wasmtest.New()
	b.Func(b.Type(nil, nil))
	// function subsection claiming 200 entries in a 2-byte payload
	b.Custom("name", []byte{0x01, 0x02, 0xC8, 0x01})

	m, err := wasm.Parse(b.Bytes())
	require.NoError(t, err)
	assert.Nil(t, m.Names, "names are dropped")
	assert.Error(t, m.NameErr, "NameErr records the failure")
}

func TestParseSegmentModes(t *testing.T) {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	f := b.Func(void)
	b.Table(1)
	b.Memory(1)
	b.ActiveElem(0, f)
	b.PassiveElem(f)
	b.DeclarativeElem(f)
	b.ActiveData(0, []byte{1})
	b.PassiveData([]byte{2, 3})

	m, err := wasm.Parse(b.Bytes())
	require.NoError(t, err)
	require.Len(t, m.Elements, 3)
	for i, want := range []wasm.SegmentMode{wasm.ModeActive, wasm.ModePassive, wasm.ModeDeclarative} {
		assert.Equal(t, want, m.Elements[i].Mode, "element %d", i)
	}
	require.Len(t, m.Data, 2)
	assert.Equal(t, wasm.ModeActive, m.Data[0].Mode)
	assert.Equal(t, wasm.ModePassive, m.Data[1].Mode)
	assert.Positive(t, m.DataCountRange.Len(), "data count section range")
}
