package wasmtest

import (
	"github.com/wippyai/binsize/wasm"
	bin "github.com/wippyai/binsize/wasm/internal/binary"
)

// Concat joins instruction fragments.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Op emits raw opcode bytes.
func Op(b ...byte) []byte { return b }

// Call emits call idx.
func Call(idx uint32) []byte {
	return bin.NewWriter().Byte(wasm.OpCall).U32(idx).Bytes()
}

// ReturnCall emits return_call idx.
func ReturnCall(idx uint32) []byte {
	return bin.NewWriter().Byte(wasm.OpReturnCall).U32(idx).Bytes()
}

// CallIndirect emits call_indirect typeIdx table.
func CallIndirect(typeIdx, table uint32) []byte {
	return bin.NewWriter().Byte(wasm.OpCallIndirect).U32(typeIdx).U32(table).Bytes()
}

// RefFunc emits ref.func idx.
func RefFunc(idx uint32) []byte {
	return bin.NewWriter().Byte(wasm.OpRefFunc).U32(idx).Bytes()
}

// I32Const emits i32.const v.
func I32Const(v int32) []byte {
	return bin.NewWriter().Byte(wasm.OpI32Const).S64(int64(v)).Bytes()
}

// I64Const emits i64.const v.
func I64Const(v int64) []byte {
	return bin.NewWriter().Byte(wasm.OpI64Const).S64(v).Bytes()
}

// GlobalGet emits global.get idx.
func GlobalGet(idx uint32) []byte {
	return bin.NewWriter().Byte(wasm.OpGlobalGet).U32(idx).Bytes()
}

// LocalGet emits local.get idx.
func LocalGet(idx uint32) []byte {
	return bin.NewWriter().Byte(wasm.OpLocalGet).U32(idx).Bytes()
}

// I32Load emits i32.load with the given alignment exponent and offset.
func I32Load(align uint32, offset uint64) []byte {
	return bin.NewWriter().Byte(wasm.OpI32Load).U32(align).U64(offset).Bytes()
}

// MemoryInit emits memory.init dataIdx 0.
func MemoryInit(dataIdx uint32) []byte {
	return bin.NewWriter().Byte(wasm.OpPrefixMisc).U32(wasm.MiscMemoryInit).U32(dataIdx).U32(0).Bytes()
}

// TableInit emits table.init elemIdx 0.
func TableInit(elemIdx uint32) []byte {
	return bin.NewWriter().Byte(wasm.OpPrefixMisc).U32(wasm.MiscTableInit).U32(elemIdx).U32(0).Bytes()
}

// Drop emits drop.
func Drop() []byte { return []byte{wasm.OpDrop} }

// Nop emits nop.
func Nop() []byte { return []byte{wasm.OpNop} }

// Nops emits n nop instructions, handy for padding a body to a known size.
func Nops(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = wasm.OpNop
	}
	return out
}
