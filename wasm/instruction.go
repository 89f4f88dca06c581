package wasm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/binsize/errors"
	bin "github.com/wippyai/binsize/wasm/internal/binary"
)

// Instruction is one decoded operator.
type Instruction struct {
	Text   string
	Refs   []Ref
	Offset int // absolute offset of the opcode byte
	Len    int
	Sub    uint32 // sub-opcode for prefixed instructions
	Opcode byte
}

// IsCall reports whether the instruction transfers control to another function.
func (i *Instruction) IsCall() bool {
	switch i.Opcode {
	case OpCall, OpCallIndirect, OpReturnCall, OpReturnCallIndirect, 0x14, 0x15:
		return true
	}
	return false
}

// Decoder walks an instruction sequence, reporting absolute offsets and the
// index-space references each operator makes.
type Decoder struct {
	r    *bin.Reader
	text bool
	sb   strings.Builder
}

// NewDecoder decodes code whose first byte sits at absolute offset base.
// When withText is false, Instruction.Text is left empty.
func NewDecoder(code []byte, base int, withText bool) *Decoder {
	return &Decoder{r: bin.NewReader(code, base), text: withText}
}

func newDecoderOn(r *bin.Reader) *Decoder {
	return &Decoder{r: r}
}

// More reports whether undecoded bytes remain.
func (d *Decoder) More() bool {
	return !d.r.Done()
}

// Offset returns the absolute offset of the next instruction.
func (d *Decoder) Offset() int {
	return d.r.Offset()
}

// Next decodes one instruction. Errors are MalformedBinary at the offset of
// the offending byte.
func (d *Decoder) Next() (Instruction, error) {
	start := d.r.Offset()
	op, err := d.r.ReadByte()
	if err != nil {
		return Instruction{}, malformed(err, start, "truncated instruction")
	}

	ins := Instruction{Offset: start, Opcode: op}
	var info opInfo
	if op >= OpPrefixGC && op <= OpPrefixAtomic {
		sub, err := d.r.ReadU32()
		if err != nil {
			return Instruction{}, malformed(err, start, "truncated sub-opcode")
		}
		var ok bool
		if info, ok = lookupPrefixed(op, sub); !ok {
			return Instruction{}, errors.Malformed(start, fmt.Sprintf("unknown opcode 0x%02x 0x%02x", op, sub))
		}
		ins.Sub = sub
	} else {
		info = coreOps[op]
		if info.name == "" {
			return Instruction{}, errors.Malformed(start, fmt.Sprintf("unknown opcode 0x%02x", op))
		}
	}

	if d.text {
		d.sb.Reset()
		d.sb.WriteString(info.name)
	}
	for _, o := range info.operands {
		if err := d.operand(o, &ins); err != nil {
			return Instruction{}, malformed(err, start, "truncated immediate for "+info.name)
		}
	}
	if d.text {
		ins.Text = d.sb.String()
	}
	ins.Len = d.r.Offset() - start
	return ins, nil
}

func (d *Decoder) word(s string) {
	if d.text {
		d.sb.WriteByte(' ')
		d.sb.WriteString(s)
	}
}

func (d *Decoder) index(space Space, ins *Instruction) error {
	v, err := d.r.ReadU32()
	if err != nil {
		return err
	}
	ins.Refs = append(ins.Refs, Ref{Space: space, Index: v})
	d.word(strconv.FormatUint(uint64(v), 10))
	return nil
}

func (d *Decoder) operand(o operand, ins *Instruction) error {
	switch o {
	case opndFunc:
		return d.index(SpaceFunc, ins)
	case opndType:
		return d.index(SpaceType, ins)
	case opndTable:
		return d.index(SpaceTable, ins)
	case opndMemory:
		return d.index(SpaceMemory, ins)
	case opndGlobal:
		return d.index(SpaceGlobal, ins)
	case opndTag:
		return d.index(SpaceTag, ins)
	case opndData:
		return d.index(SpaceData, ins)
	case opndElem:
		return d.index(SpaceElem, ins)

	case opndU32, opndLocal, opndLabel:
		v, err := d.r.ReadU32()
		if err != nil {
			return err
		}
		d.word(strconv.FormatUint(uint64(v), 10))

	case opndI32:
		v, err := d.r.ReadS32()
		if err != nil {
			return err
		}
		d.word(strconv.FormatInt(int64(v), 10))

	case opndI64:
		v, err := d.r.ReadS64()
		if err != nil {
			return err
		}
		d.word(strconv.FormatInt(v, 10))

	case opndF32:
		b, err := d.r.ReadBytes(4)
		if err != nil {
			return err
		}
		d.word(strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'g', -1, 32))

	case opndF64:
		b, err := d.r.ReadBytes(8)
		if err != nil {
			return err
		}
		d.word(strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)), 'g', -1, 64))

	case opndBlock:
		return d.blockType(ins)

	case opndBrTable:
		n, err := d.r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ { // n labels plus the default
			v, err := d.r.ReadU32()
			if err != nil {
				return err
			}
			d.word(strconv.FormatUint(uint64(v), 10))
		}

	case opndMemArg:
		align, err := d.r.ReadU32()
		if err != nil {
			return err
		}
		var mem uint32
		if align&memArgMultiMemBit != 0 {
			if mem, err = d.r.ReadU32(); err != nil {
				return err
			}
			align &^= memArgMultiMemBit
			d.word(strconv.FormatUint(uint64(mem), 10))
		}
		off, err := d.r.ReadU64()
		if err != nil {
			return err
		}
		ins.Refs = append(ins.Refs, Ref{Space: SpaceMemory, Index: mem})
		if off != 0 {
			d.word("offset=" + strconv.FormatUint(off, 10))
		}
		if align < 32 {
			d.word("align=" + strconv.FormatUint(1<<align, 10))
		}

	case opndHeapType:
		return d.heapType(ins, "")

	case opndSelectT:
		n, err := d.r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			name, refs, err := readValType(d.r)
			if err != nil {
				return err
			}
			ins.Refs = append(ins.Refs, refs...)
			d.word("(result " + name + ")")
		}

	case opndTryTable:
		if err := d.blockType(ins); err != nil {
			return err
		}
		n, err := d.r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			kind, err := d.r.ReadByte()
			if err != nil {
				return err
			}
			clause := [...]string{"catch", "catch_ref", "catch_all", "catch_all_ref"}
			if int(kind) >= len(clause) {
				return fmt.Errorf("invalid catch kind 0x%02x", kind)
			}
			d.word("(" + clause[kind])
			if kind == CatchKindCatch || kind == CatchKindCatchRef {
				if err := d.index(SpaceTag, ins); err != nil {
					return err
				}
			}
			label, err := d.r.ReadU32()
			if err != nil {
				return err
			}
			d.word(strconv.FormatUint(uint64(label), 10) + ")")
		}

	case opndLane:
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		d.word(strconv.Itoa(int(b)))

	case opndV128:
		b, err := d.r.ReadBytes(16)
		if err != nil {
			return err
		}
		d.word("i32x4")
		for i := 0; i < 16; i += 4 {
			d.word(fmt.Sprintf("0x%08x", binary.LittleEndian.Uint32(b[i:])))
		}

	case opndShuffle:
		b, err := d.r.ReadBytes(16)
		if err != nil {
			return err
		}
		for _, lane := range b {
			d.word(strconv.Itoa(int(lane)))
		}

	case opndReserved:
		_, err := d.r.ReadByte()
		return err

	case opndCastFlags:
		flags, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		// flags bit 0 marks the source type nullable, bit 1 the target
		label, err := d.r.ReadU32()
		if err != nil {
			return err
		}
		d.word(strconv.FormatUint(uint64(label), 10))
		for bit := byte(1); bit <= 2; bit <<= 1 {
			prefix := ""
			if flags&bit != 0 {
				prefix = "null "
			}
			if err := d.heapType(ins, prefix); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Decoder) blockType(ins *Instruction) error {
	bt, err := d.r.ReadS33()
	if err != nil {
		return err
	}
	switch {
	case bt == -64: // empty
	case bt >= 0:
		ins.Refs = append(ins.Refs, Ref{Space: SpaceType, Index: uint32(bt)})
		d.word("(type " + strconv.FormatInt(bt, 10) + ")")
	default:
		d.word("(result " + valTypeName(byte(bt&0x7f)) + ")")
	}
	return nil
}

func (d *Decoder) heapType(ins *Instruction, prefix string) error {
	ht, err := d.r.ReadS33()
	if err != nil {
		return err
	}
	if ht >= 0 {
		ins.Refs = append(ins.Refs, Ref{Space: SpaceType, Index: uint32(ht)})
		d.word(prefix + strconv.FormatInt(ht, 10))
		return nil
	}
	d.word(prefix + heapTypeName(byte(ht&0x7f)))
	return nil
}

var abstractHeapTypes = map[byte]string{
	0x70: "func", 0x6F: "extern", 0x6E: "any", 0x6D: "eq", 0x6C: "i31",
	0x6B: "struct", 0x6A: "array", 0x69: "exn", 0x71: "none", 0x72: "noextern",
	0x73: "nofunc", 0x74: "noexn",
}

func heapTypeName(b byte) string {
	if n, ok := abstractHeapTypes[b]; ok {
		return n
	}
	return fmt.Sprintf("heaptype(0x%02x)", b)
}

var simpleValTypes = map[byte]string{
	ValI32: "i32", ValI64: "i64", ValF32: "f32", ValF64: "f64", ValV128: "v128",
	ValFuncRef: "funcref", ValExtern: "externref",
	0x6E: "anyref", 0x6D: "eqref", 0x6C: "i31ref", 0x6B: "structref", 0x6A: "arrayref",
	0x69: "exnref", 0x71: "nullref", 0x72: "nullexternref", 0x73: "nullfuncref", 0x74: "nullexnref",
}

func valTypeName(b byte) string {
	if n, ok := simpleValTypes[b]; ok {
		return n
	}
	return fmt.Sprintf("valtype(0x%02x)", b)
}

// readValType reads a value type, including (ref null? ht) forms.
func readValType(r *bin.Reader) (string, []Ref, error) {
	b, err := r.ReadByte()
	if err != nil {
		return "", nil, err
	}
	if b != ValRefNull && b != ValRef {
		if _, ok := simpleValTypes[b]; !ok {
			return "", nil, fmt.Errorf("invalid value type 0x%02x", b)
		}
		return simpleValTypes[b], nil, nil
	}
	ht, err := r.ReadS33()
	if err != nil {
		return "", nil, err
	}
	null := ""
	if b == ValRefNull {
		null = "null "
	}
	if ht >= 0 {
		return fmt.Sprintf("(ref %s%d)", null, ht), []Ref{{Space: SpaceType, Index: uint32(ht)}}, nil
	}
	return fmt.Sprintf("(ref %s%s)", null, heapTypeName(byte(ht&0x7f))), nil, nil
}

// DecodeAll decodes every instruction in code. It stops at the first error
// and returns the instructions decoded so far alongside it.
func DecodeAll(code []byte, base int, withText bool) ([]Instruction, error) {
	d := NewDecoder(code, base, withText)
	out := make([]Instruction, 0, len(code)/2)
	for d.More() {
		ins, err := d.Next()
		if err != nil {
			return out, err
		}
		out = append(out, ins)
	}
	return out, nil
}

// ScanRefs collects every index-space reference made by code, in order.
func ScanRefs(code []byte, base int) ([]Ref, error) {
	d := NewDecoder(code, base, false)
	var refs []Ref
	for d.More() {
		ins, err := d.Next()
		if err != nil {
			return refs, err
		}
		refs = append(refs, ins.Refs...)
	}
	return refs, nil
}

// readConstExpr decodes a constant expression through its terminating end
// and returns the references it makes.
func readConstExpr(r *bin.Reader) ([]Ref, error) {
	d := newDecoderOn(r)
	var refs []Ref
	for {
		ins, err := d.Next()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ins.Refs...)
		if ins.Opcode == OpEnd {
			return refs, nil
		}
	}
}

func malformed(err error, fallback int, reason string) error {
	if e, ok := err.(*errors.Error); ok {
		return e
	}
	return errors.MalformedCause(bin.OffsetOf(err, fallback), reason, err)
}
