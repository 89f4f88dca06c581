package wasm_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/wasm"
)

func TestDecodeText(t *testing.T) {
	v128 := []byte{0xFD, 0x0C}
	for i := byte(0); i < 16; i++ {
		v128 = append(v128, i)
	}

	tests := []struct {
		name string
		code []byte
		text string
		refs []wasm.Ref
	}{
		{"i32.const", []byte{0x41, 0x2A}, "i32.const 42", nil},
		{"negative const", []byte{0x41, 0x7F}, "i32.const -1", nil},
		{"call", []byte{0x10, 0x03}, "call 3", []wasm.Ref{{Space: wasm.SpaceFunc, Index: 3}}},
		{"call_indirect", []byte{0x11, 0x02, 0x00}, "call_indirect 2 0",
			[]wasm.Ref{{Space: wasm.SpaceType, Index: 2}, {Space: wasm.SpaceTable, Index: 0}}},
		{"load with offset", []byte{0x28, 0x02, 0x08}, "i32.load offset=8 align=4",
			[]wasm.Ref{{Space: wasm.SpaceMemory, Index: 0}}},
		{"load without offset", []byte{0x28, 0x02, 0x00}, "i32.load align=4",
			[]wasm.Ref{{Space: wasm.SpaceMemory, Index: 0}}},
		{"global.get", []byte{0x23, 0x05}, "global.get 5", []wasm.Ref{{Space: wasm.SpaceGlobal, Index: 5}}},
		{"block result", []byte{0x02, 0x7F}, "block (result i32)", nil},
		{"block type index", []byte{0x02, 0x01}, "block (type 1)", []wasm.Ref{{Space: wasm.SpaceType, Index: 1}}},
		{"br_table", []byte{0x0E, 0x02, 0x00, 0x01, 0x02}, "br_table 0 1 2", nil},
		{"ref.null func", []byte{0xD0, 0x70}, "ref.null func", nil},
		{"memory.init", []byte{0xFC, 0x08, 0x02, 0x00}, "memory.init 2 0",
			[]wasm.Ref{{Space: wasm.SpaceData, Index: 2}, {Space: wasm.SpaceMemory, Index: 0}}},
		{"table.init", []byte{0xFC, 0x0C, 0x01, 0x00}, "table.init 1 0",
			[]wasm.Ref{{Space: wasm.SpaceElem, Index: 1}, {Space: wasm.SpaceTable, Index: 0}}},
		{"trunc_sat", []byte{0xFC, 0x00}, "i32.trunc_sat_f32_s", nil},
		{"v128.const", v128, "v128.const i32x4 0x03020100 0x07060504 0x0b0a0908 0x0f0e0d0c", nil},
		{"relaxed simd", []byte{0xFD, 0x80, 0x02}, "i8x16.relaxed_swizzle", nil},
		{"br_on_cast", []byte{0xFB, 0x18, 0x03, 0x00, 0x70, 0x71}, "br_on_cast 0 null func null none", nil},
		{"struct.get", []byte{0xFB, 0x02, 0x04, 0x01}, "struct.get 4 1", []wasm.Ref{{Space: wasm.SpaceType, Index: 4}}},
		{"atomic.fence", []byte{0xFE, 0x03, 0x00}, "atomic.fence", nil},
		{"throw", []byte{0x08, 0x00}, "throw 0", []wasm.Ref{{Space: wasm.SpaceTag, Index: 0}}},
		{"try_table", []byte{0x1F, 0x40, 0x01, 0x00, 0x02, 0x00}, "try_table (catch 2 0)",
			[]wasm.Ref{{Space: wasm.SpaceTag, Index: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := wasm.NewDecoder(tt.code, 100, true)
			ins, err := d.Next()
			require.NoError(t, err)
			assert.Equal(t, tt.text, ins.Text)
			assert.Equal(t, 100, ins.Offset)
			assert.Equal(t, len(tt.code), ins.Len)
			assert.False(t, d.More(), "decoder left %d bytes", 100+len(tt.code)-d.Offset())
			if len(tt.refs) == 0 {
				assert.Empty(t, ins.Refs)
			} else {
				assert.Equal(t, tt.refs, ins.Refs)
			}
		})
	}
}

func TestDecodeAllOffsets(t *testing.T) {
	code := []byte{0x41, 0x2A, 0x10, 0x03, 0x28, 0x02, 0x08, 0x1A, 0x0B}
	out, err := wasm.DecodeAll(code, 200, true)
	require.NoError(t, err)
	want := []struct {
		offset int
		text   string
	}{
		{200, "i32.const 42"},
		{202, "call 3"},
		{204, "i32.load offset=8 align=4"},
		{207, "drop"},
		{208, "end"},
	}
	require.Len(t, out, len(want))
	for i, w := range want {
		assert.Equal(t, w.offset, out[i].Offset, "instruction %d", i)
		assert.Equal(t, w.text, out[i].Text, "instruction %d", i)
	}
	assert.True(t, out[1].IsCall())
	assert.False(t, out[0].IsCall())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		offset int
	}{
		{"unknown opcode", []byte{0x01, 0xFF}, 51},
		{"unknown prefixed opcode", []byte{0xFC, 0x7F}, 50},
		{"truncated immediate", []byte{0x10}, 51},
		{"truncated f64", []byte{0x01, 0x44, 0x00, 0x00}, 52},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.DecodeAll(tt.code, 50, true)
			require.Error(t, err)
			require.True(t, stderrors.Is(err, errors.ErrMalformed), "%v", err)
			var e *errors.Error
			require.True(t, stderrors.As(err, &e))
			assert.Equal(t, tt.offset, e.Offset, "%v", err)
		})
	}
}

func TestMnemonic(t *testing.T) {
	assert.Equal(t, "call", wasm.Mnemonic(wasm.OpCall))
	assert.Empty(t, wasm.Mnemonic(0xFF))
}
