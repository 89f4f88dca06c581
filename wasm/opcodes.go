package wasm

// operand is one immediate in an instruction's encoding. Each opcode is
// described by its mnemonic and the ordered list of immediates that follow.
type operand uint8

const (
	opndU32       operand = iota + 1 // plain u32 (field index, count)
	opndI32                          // s32 constant
	opndI64                          // s64 constant
	opndF32                          // 4-byte float
	opndF64                          // 8-byte float
	opndBlock                        // s33 block type
	opndLabel                        // branch depth
	opndBrTable                      // label vector + default
	opndLocal                        // local index
	opndFunc                         // function index
	opndType                         // type index
	opndTable                        // table index
	opndMemory                       // memory index
	opndGlobal                       // global index
	opndTag                          // tag index
	opndData                         // data segment index
	opndElem                         // element segment index
	opndMemArg                       // align, optional memory index, offset
	opndHeapType                     // s33 heap type
	opndSelectT                      // typed select result vector
	opndTryTable                     // block type + catch clauses
	opndLane                         // lane index byte
	opndV128                         // 16 raw bytes
	opndShuffle                      // 16 lane bytes
	opndReserved                     // single reserved byte, not printed
	opndCastFlags                    // br_on_cast flags, label, and both heap types
)

type opInfo struct {
	name     string
	operands []operand
}

var (
	coreOps   [256]opInfo
	miscOps   []opInfo
	gcOps     []opInfo
	simdOps   []opInfo
	atomicOps []opInfo
)

func ops(list ...operand) []operand { return list }

// seq assigns consecutive opcodes starting at base that share operands.
func seq(table []opInfo, base int, operands []operand, names ...string) {
	for i, n := range names {
		table[base+i] = opInfo{name: n, operands: operands}
	}
}

func init() {
	c := coreOps[:]
	seq(c, 0x00, nil, "unreachable", "nop")
	seq(c, 0x02, ops(opndBlock), "block", "loop", "if")
	seq(c, 0x05, nil, "else")
	seq(c, 0x06, ops(opndBlock), "try")
	seq(c, 0x07, ops(opndTag), "catch", "throw")
	seq(c, 0x09, ops(opndLabel), "rethrow")
	seq(c, 0x0A, nil, "throw_ref", "end")
	seq(c, 0x0C, ops(opndLabel), "br", "br_if")
	seq(c, 0x0E, ops(opndBrTable), "br_table")
	seq(c, 0x0F, nil, "return")
	seq(c, 0x10, ops(opndFunc), "call")
	seq(c, 0x11, ops(opndType, opndTable), "call_indirect")
	seq(c, 0x12, ops(opndFunc), "return_call")
	seq(c, 0x13, ops(opndType, opndTable), "return_call_indirect")
	seq(c, 0x14, ops(opndType), "call_ref", "return_call_ref")
	seq(c, 0x18, ops(opndLabel), "delegate")
	seq(c, 0x19, nil, "catch_all", "drop", "select")
	seq(c, 0x1C, ops(opndSelectT), "select")
	seq(c, 0x1F, ops(opndTryTable), "try_table")
	seq(c, 0x20, ops(opndLocal), "local.get", "local.set", "local.tee")
	seq(c, 0x23, ops(opndGlobal), "global.get", "global.set")
	seq(c, 0x25, ops(opndTable), "table.get", "table.set")
	seq(c, 0x28, ops(opndMemArg),
		"i32.load", "i64.load", "f32.load", "f64.load",
		"i32.load8_s", "i32.load8_u", "i32.load16_s", "i32.load16_u",
		"i64.load8_s", "i64.load8_u", "i64.load16_s", "i64.load16_u", "i64.load32_s", "i64.load32_u",
		"i32.store", "i64.store", "f32.store", "f64.store",
		"i32.store8", "i32.store16", "i64.store8", "i64.store16", "i64.store32")
	seq(c, 0x3F, ops(opndMemory), "memory.size", "memory.grow")
	seq(c, 0x41, ops(opndI32), "i32.const")
	seq(c, 0x42, ops(opndI64), "i64.const")
	seq(c, 0x43, ops(opndF32), "f32.const")
	seq(c, 0x44, ops(opndF64), "f64.const")
	seq(c, 0x45, nil,
		"i32.eqz", "i32.eq", "i32.ne", "i32.lt_s", "i32.lt_u", "i32.gt_s", "i32.gt_u",
		"i32.le_s", "i32.le_u", "i32.ge_s", "i32.ge_u",
		"i64.eqz", "i64.eq", "i64.ne", "i64.lt_s", "i64.lt_u", "i64.gt_s", "i64.gt_u",
		"i64.le_s", "i64.le_u", "i64.ge_s", "i64.ge_u",
		"f32.eq", "f32.ne", "f32.lt", "f32.gt", "f32.le", "f32.ge",
		"f64.eq", "f64.ne", "f64.lt", "f64.gt", "f64.le", "f64.ge",
		"i32.clz", "i32.ctz", "i32.popcnt", "i32.add", "i32.sub", "i32.mul",
		"i32.div_s", "i32.div_u", "i32.rem_s", "i32.rem_u", "i32.and", "i32.or", "i32.xor",
		"i32.shl", "i32.shr_s", "i32.shr_u", "i32.rotl", "i32.rotr",
		"i64.clz", "i64.ctz", "i64.popcnt", "i64.add", "i64.sub", "i64.mul",
		"i64.div_s", "i64.div_u", "i64.rem_s", "i64.rem_u", "i64.and", "i64.or", "i64.xor",
		"i64.shl", "i64.shr_s", "i64.shr_u", "i64.rotl", "i64.rotr",
		"f32.abs", "f32.neg", "f32.ceil", "f32.floor", "f32.trunc", "f32.nearest", "f32.sqrt",
		"f32.add", "f32.sub", "f32.mul", "f32.div", "f32.min", "f32.max", "f32.copysign",
		"f64.abs", "f64.neg", "f64.ceil", "f64.floor", "f64.trunc", "f64.nearest", "f64.sqrt",
		"f64.add", "f64.sub", "f64.mul", "f64.div", "f64.min", "f64.max", "f64.copysign",
		"i32.wrap_i64", "i32.trunc_f32_s", "i32.trunc_f32_u", "i32.trunc_f64_s", "i32.trunc_f64_u",
		"i64.extend_i32_s", "i64.extend_i32_u", "i64.trunc_f32_s", "i64.trunc_f32_u",
		"i64.trunc_f64_s", "i64.trunc_f64_u",
		"f32.convert_i32_s", "f32.convert_i32_u", "f32.convert_i64_s", "f32.convert_i64_u", "f32.demote_f64",
		"f64.convert_i32_s", "f64.convert_i32_u", "f64.convert_i64_s", "f64.convert_i64_u", "f64.promote_f32",
		"i32.reinterpret_f32", "i64.reinterpret_f64", "f32.reinterpret_i32", "f64.reinterpret_i64",
		"i32.extend8_s", "i32.extend16_s", "i64.extend8_s", "i64.extend16_s", "i64.extend32_s")
	seq(c, 0xD0, ops(opndHeapType), "ref.null")
	seq(c, 0xD1, nil, "ref.is_null")
	seq(c, 0xD2, ops(opndFunc), "ref.func")
	seq(c, 0xD3, nil, "ref.as_non_null", "ref.eq")
	seq(c, 0xD5, ops(opndLabel), "br_on_null", "br_on_non_null")

	miscOps = make([]opInfo, 0x13)
	seq(miscOps, 0x00, nil,
		"i32.trunc_sat_f32_s", "i32.trunc_sat_f32_u", "i32.trunc_sat_f64_s", "i32.trunc_sat_f64_u",
		"i64.trunc_sat_f32_s", "i64.trunc_sat_f32_u", "i64.trunc_sat_f64_s", "i64.trunc_sat_f64_u")
	seq(miscOps, 0x08, ops(opndData, opndMemory), "memory.init")
	seq(miscOps, 0x09, ops(opndData), "data.drop")
	seq(miscOps, 0x0A, ops(opndMemory, opndMemory), "memory.copy")
	seq(miscOps, 0x0B, ops(opndMemory), "memory.fill")
	seq(miscOps, 0x0C, ops(opndElem, opndTable), "table.init")
	seq(miscOps, 0x0D, ops(opndElem), "elem.drop")
	seq(miscOps, 0x0E, ops(opndTable, opndTable), "table.copy")
	seq(miscOps, 0x0F, ops(opndTable), "table.grow", "table.size", "table.fill")
	seq(miscOps, 0x12, ops(opndMemory), "memory.discard")

	gcOps = make([]opInfo, 0x1F)
	seq(gcOps, 0x00, ops(opndType), "struct.new", "struct.new_default")
	seq(gcOps, 0x02, ops(opndType, opndU32), "struct.get", "struct.get_s", "struct.get_u", "struct.set")
	seq(gcOps, 0x06, ops(opndType), "array.new", "array.new_default")
	seq(gcOps, 0x08, ops(opndType, opndU32), "array.new_fixed")
	seq(gcOps, 0x09, ops(opndType, opndData), "array.new_data")
	seq(gcOps, 0x0A, ops(opndType, opndElem), "array.new_elem")
	seq(gcOps, 0x0B, ops(opndType), "array.get", "array.get_s", "array.get_u", "array.set")
	seq(gcOps, 0x0F, nil, "array.len")
	seq(gcOps, 0x10, ops(opndType), "array.fill")
	seq(gcOps, 0x11, ops(opndType, opndType), "array.copy")
	seq(gcOps, 0x12, ops(opndType, opndData), "array.init_data")
	seq(gcOps, 0x13, ops(opndType, opndElem), "array.init_elem")
	seq(gcOps, 0x14, ops(opndHeapType), "ref.test", "ref.test null", "ref.cast", "ref.cast null")
	seq(gcOps, 0x18, ops(opndCastFlags), "br_on_cast", "br_on_cast_fail")
	seq(gcOps, 0x1A, nil, "any.convert_extern", "extern.convert_any", "ref.i31", "i31.get_s", "i31.get_u")

	atomicOps = make([]opInfo, 0x4F)
	seq(atomicOps, 0x00, ops(opndMemArg), "memory.atomic.notify", "memory.atomic.wait32", "memory.atomic.wait64")
	seq(atomicOps, 0x03, ops(opndReserved), "atomic.fence")
	seq(atomicOps, 0x10, ops(opndMemArg),
		"i32.atomic.load", "i64.atomic.load", "i32.atomic.load8_u", "i32.atomic.load16_u",
		"i64.atomic.load8_u", "i64.atomic.load16_u", "i64.atomic.load32_u",
		"i32.atomic.store", "i64.atomic.store", "i32.atomic.store8", "i32.atomic.store16",
		"i64.atomic.store8", "i64.atomic.store16", "i64.atomic.store32")
	for i, rmw := range []string{"add", "sub", "and", "or", "xor", "xchg", "cmpxchg"} {
		seq(atomicOps, 0x1E+7*i, ops(opndMemArg),
			"i32.atomic.rmw."+rmw, "i64.atomic.rmw."+rmw,
			"i32.atomic.rmw8."+rmw+"_u", "i32.atomic.rmw16."+rmw+"_u",
			"i64.atomic.rmw8."+rmw+"_u", "i64.atomic.rmw16."+rmw+"_u", "i64.atomic.rmw32."+rmw+"_u")
	}

	initSIMD()
}

func initSIMD() {
	s := make([]opInfo, 0x114)
	seq(s, 0x00, ops(opndMemArg),
		"v128.load", "v128.load8x8_s", "v128.load8x8_u", "v128.load16x4_s", "v128.load16x4_u",
		"v128.load32x2_s", "v128.load32x2_u", "v128.load8_splat", "v128.load16_splat",
		"v128.load32_splat", "v128.load64_splat", "v128.store")
	seq(s, 0x0C, ops(opndV128), "v128.const")
	seq(s, 0x0D, ops(opndShuffle), "i8x16.shuffle")
	seq(s, 0x0E, nil, "i8x16.swizzle",
		"i8x16.splat", "i16x8.splat", "i32x4.splat", "i64x2.splat", "f32x4.splat", "f64x2.splat")
	seq(s, 0x15, ops(opndLane),
		"i8x16.extract_lane_s", "i8x16.extract_lane_u", "i8x16.replace_lane",
		"i16x8.extract_lane_s", "i16x8.extract_lane_u", "i16x8.replace_lane",
		"i32x4.extract_lane", "i32x4.replace_lane", "i64x2.extract_lane", "i64x2.replace_lane",
		"f32x4.extract_lane", "f32x4.replace_lane", "f64x2.extract_lane", "f64x2.replace_lane")

	intCmp := []string{"eq", "ne", "lt_s", "lt_u", "gt_s", "gt_u", "le_s", "le_u", "ge_s", "ge_u"}
	floatCmp := []string{"eq", "ne", "lt", "gt", "le", "ge"}
	base := 0x23
	for _, shape := range []string{"i8x16", "i16x8", "i32x4"} {
		seq(s, base, nil, prefixed(shape, intCmp)...)
		base += len(intCmp)
	}
	seq(s, 0x41, nil, prefixed("f32x4", floatCmp)...)
	seq(s, 0x47, nil, prefixed("f64x2", floatCmp)...)
	seq(s, 0x4D, nil, "v128.not", "v128.and", "v128.andnot", "v128.or", "v128.xor", "v128.bitselect", "v128.any_true")
	for i, n := range []string{"v128.load8_lane", "v128.load16_lane", "v128.load32_lane", "v128.load64_lane",
		"v128.store8_lane", "v128.store16_lane", "v128.store32_lane", "v128.store64_lane"} {
		s[0x54+i] = opInfo{name: n, operands: ops(opndMemArg, opndLane)}
	}
	seq(s, 0x5C, ops(opndMemArg), "v128.load32_zero", "v128.load64_zero")

	named := map[int]string{
		0x5E: "f32x4.demote_f64x2_zero", 0x5F: "f64x2.promote_low_f32x4",
		0x60: "i8x16.abs", 0x61: "i8x16.neg", 0x62: "i8x16.popcnt", 0x63: "i8x16.all_true",
		0x64: "i8x16.bitmask", 0x65: "i8x16.narrow_i16x8_s", 0x66: "i8x16.narrow_i16x8_u",
		0x67: "f32x4.ceil", 0x68: "f32x4.floor", 0x69: "f32x4.trunc", 0x6A: "f32x4.nearest",
		0x6B: "i8x16.shl", 0x6C: "i8x16.shr_s", 0x6D: "i8x16.shr_u", 0x6E: "i8x16.add",
		0x6F: "i8x16.add_sat_s", 0x70: "i8x16.add_sat_u", 0x71: "i8x16.sub", 0x72: "i8x16.sub_sat_s",
		0x73: "i8x16.sub_sat_u", 0x74: "f64x2.ceil", 0x75: "f64x2.floor", 0x76: "i8x16.min_s",
		0x77: "i8x16.min_u", 0x78: "i8x16.max_s", 0x79: "i8x16.max_u", 0x7A: "f64x2.trunc",
		0x7B: "i8x16.avgr_u", 0x7C: "i16x8.extadd_pairwise_i8x16_s", 0x7D: "i16x8.extadd_pairwise_i8x16_u",
		0x7E: "i32x4.extadd_pairwise_i16x8_s", 0x7F: "i32x4.extadd_pairwise_i16x8_u",
		0x80: "i16x8.abs", 0x81: "i16x8.neg", 0x82: "i16x8.q15mulr_sat_s", 0x83: "i16x8.all_true",
		0x84: "i16x8.bitmask", 0x85: "i16x8.narrow_i32x4_s", 0x86: "i16x8.narrow_i32x4_u",
		0x87: "i16x8.extend_low_i8x16_s", 0x88: "i16x8.extend_high_i8x16_s",
		0x89: "i16x8.extend_low_i8x16_u", 0x8A: "i16x8.extend_high_i8x16_u",
		0x8B: "i16x8.shl", 0x8C: "i16x8.shr_s", 0x8D: "i16x8.shr_u", 0x8E: "i16x8.add",
		0x8F: "i16x8.add_sat_s", 0x90: "i16x8.add_sat_u", 0x91: "i16x8.sub", 0x92: "i16x8.sub_sat_s",
		0x93: "i16x8.sub_sat_u", 0x94: "f64x2.nearest", 0x95: "i16x8.mul", 0x96: "i16x8.min_s",
		0x97: "i16x8.min_u", 0x98: "i16x8.max_s", 0x99: "i16x8.max_u", 0x9B: "i16x8.avgr_u",
		0x9C: "i16x8.extmul_low_i8x16_s", 0x9D: "i16x8.extmul_high_i8x16_s",
		0x9E: "i16x8.extmul_low_i8x16_u", 0x9F: "i16x8.extmul_high_i8x16_u",
		0xA0: "i32x4.abs", 0xA1: "i32x4.neg", 0xA3: "i32x4.all_true", 0xA4: "i32x4.bitmask",
		0xA7: "i32x4.extend_low_i16x8_s", 0xA8: "i32x4.extend_high_i16x8_s",
		0xA9: "i32x4.extend_low_i16x8_u", 0xAA: "i32x4.extend_high_i16x8_u",
		0xAB: "i32x4.shl", 0xAC: "i32x4.shr_s", 0xAD: "i32x4.shr_u", 0xAE: "i32x4.add",
		0xB1: "i32x4.sub", 0xB5: "i32x4.mul", 0xB6: "i32x4.min_s", 0xB7: "i32x4.min_u",
		0xB8: "i32x4.max_s", 0xB9: "i32x4.max_u", 0xBA: "i32x4.dot_i16x8_s",
		0xBC: "i32x4.extmul_low_i16x8_s", 0xBD: "i32x4.extmul_high_i16x8_s",
		0xBE: "i32x4.extmul_low_i16x8_u", 0xBF: "i32x4.extmul_high_i16x8_u",
		0xC0: "i64x2.abs", 0xC1: "i64x2.neg", 0xC3: "i64x2.all_true", 0xC4: "i64x2.bitmask",
		0xC7: "i64x2.extend_low_i32x4_s", 0xC8: "i64x2.extend_high_i32x4_s",
		0xC9: "i64x2.extend_low_i32x4_u", 0xCA: "i64x2.extend_high_i32x4_u",
		0xCB: "i64x2.shl", 0xCC: "i64x2.shr_s", 0xCD: "i64x2.shr_u", 0xCE: "i64x2.add",
		0xD1: "i64x2.sub", 0xD5: "i64x2.mul", 0xD6: "i64x2.eq", 0xD7: "i64x2.ne",
		0xD8: "i64x2.lt_s", 0xD9: "i64x2.gt_s", 0xDA: "i64x2.le_s", 0xDB: "i64x2.ge_s",
		0xDC: "i64x2.extmul_low_i32x4_s", 0xDD: "i64x2.extmul_high_i32x4_s",
		0xDE: "i64x2.extmul_low_i32x4_u", 0xDF: "i64x2.extmul_high_i32x4_u",
		0xE0: "f32x4.abs", 0xE1: "f32x4.neg", 0xE3: "f32x4.sqrt", 0xE4: "f32x4.add",
		0xE5: "f32x4.sub", 0xE6: "f32x4.mul", 0xE7: "f32x4.div", 0xE8: "f32x4.min",
		0xE9: "f32x4.max", 0xEA: "f32x4.pmin", 0xEB: "f32x4.pmax",
		0xEC: "f64x2.abs", 0xED: "f64x2.neg", 0xEF: "f64x2.sqrt", 0xF0: "f64x2.add",
		0xF1: "f64x2.sub", 0xF2: "f64x2.mul", 0xF3: "f64x2.div", 0xF4: "f64x2.min",
		0xF5: "f64x2.max", 0xF6: "f64x2.pmin", 0xF7: "f64x2.pmax",
		0xF8: "i32x4.trunc_sat_f32x4_s", 0xF9: "i32x4.trunc_sat_f32x4_u",
		0xFA: "f32x4.convert_i32x4_s", 0xFB: "f32x4.convert_i32x4_u",
		0xFC: "i32x4.trunc_sat_f64x2_s_zero", 0xFD: "i32x4.trunc_sat_f64x2_u_zero",
		0xFE: "f64x2.convert_low_i32x4_s", 0xFF: "f64x2.convert_low_i32x4_u",
	}
	for op, n := range named {
		s[op] = opInfo{name: n}
	}

	// relaxed SIMD
	seq(s, 0x100, nil,
		"i8x16.relaxed_swizzle", "i32x4.relaxed_trunc_f32x4_s", "i32x4.relaxed_trunc_f32x4_u",
		"i32x4.relaxed_trunc_f64x2_s_zero", "i32x4.relaxed_trunc_f64x2_u_zero",
		"f32x4.relaxed_madd", "f32x4.relaxed_nmadd", "f64x2.relaxed_madd", "f64x2.relaxed_nmadd",
		"i8x16.relaxed_laneselect", "i16x8.relaxed_laneselect", "i32x4.relaxed_laneselect",
		"i64x2.relaxed_laneselect", "f32x4.relaxed_min", "f32x4.relaxed_max",
		"f64x2.relaxed_min", "f64x2.relaxed_max", "i16x8.relaxed_q15mulr_s",
		"i16x8.relaxed_dot_i8x16_i7x16_s", "i32x4.relaxed_dot_i8x16_i7x16_add_s")

	simdOps = s
}

func prefixed(shape string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = shape + "." + n
	}
	return out
}

// lookupPrefixed returns the description of a prefixed sub-opcode.
func lookupPrefixed(prefix byte, sub uint32) (opInfo, bool) {
	var table []opInfo
	switch prefix {
	case OpPrefixMisc:
		table = miscOps
	case OpPrefixGC:
		table = gcOps
	case OpPrefixSIMD:
		table = simdOps
	case OpPrefixAtomic:
		table = atomicOps
	}
	if uint64(sub) >= uint64(len(table)) || table[sub].name == "" {
		return opInfo{}, false
	}
	return table[sub], true
}

// Mnemonic returns the text name of a single-byte opcode, or "" if unknown.
func Mnemonic(op byte) string {
	return coreOps[op].name
}
