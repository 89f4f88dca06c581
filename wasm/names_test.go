package wasm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/binsize/wasm"
	"github.com/wippyai/binsize/wasm/wasmtest"
)

func TestNamesPerSpace(t *testing.T) {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	f := b.Func(void)
	b.Memory(1)
	d := b.ActiveData(0, []byte{1, 2})
	b.Name(wasm.SpaceFunc, f, "run")
	b.Name(wasm.SpaceType, void, "void")
	b.Name(wasm.SpaceMemory, 0, "heap")
	b.Name(wasm.SpaceData, d, ".rodata")

	m, err := wasm.Parse(b.Bytes())
	require.NoError(t, err)
	tests := []struct {
		space wasm.Space
		idx   uint32
		want  string
	}{
		{wasm.SpaceFunc, f, "run"},
		{wasm.SpaceType, void, "void"},
		{wasm.SpaceMemory, 0, "heap"},
		{wasm.SpaceData, d, ".rodata"},
		{wasm.SpaceGlobal, 0, ""},
		{wasm.SpaceFunc, 9, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Names.Lookup(tt.space, tt.idx), "Lookup(%v, %d)", tt.space, tt.idx)
	}
}

func TestNamesLookupNil(t *testing.T) {
	var n *wasm.Names
	assert.Empty(t, n.Lookup(wasm.SpaceFunc, 0))
}

func TestUnknownNameSubsectionSkipped(t *testing.T) {
	b := wasmtest.New()
	b.Func(b.Type(nil, nil))
	// subsection 0x20 is unknown; subsection 1 names func 0 "f"
	b.Custom("name", []byte{0x20, 0x01, 0xAA, 0x01, 0x04, 0x01, 0x00, 0x01, 'f'})

	m, err := wasm.Parse(b.Bytes())
	require.NoError(t, err)
	require.NoError(t, m.NameErr)
	assert.Equal(t, "f", m.Names.Lookup(wasm.SpaceFunc, 0))
}
