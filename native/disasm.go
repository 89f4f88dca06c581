package native

import (
	"debug/elf"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/wippyai/binsize/errors"
)

// Instruction is one decoded machine instruction.
type Instruction struct {
	Text    string
	Targets []uint64 // absolute addresses of branch targets and pc-relative operands
	Addr    uint64
	Len     int
	Call    bool
}

// Decoder decodes machine code for one architecture.
type Decoder struct {
	lookup  func(uint64) (string, uint64)
	machine elf.Machine
	mode    int
}

// NewDecoder returns a decoder for the object's machine. Symbol names in
// branch operands are resolved through obj when it is non-nil.
func NewDecoder(machine elf.Machine, obj *Object) (*Decoder, error) {
	d := &Decoder{machine: machine}
	switch machine {
	case elf.EM_X86_64:
		d.mode = 64
	case elf.EM_386:
		d.mode = 32
	case elf.EM_AARCH64:
	default:
		return nil, errors.Unsupported(errors.PhaseCorrelate, fmt.Sprintf("disassembly for %s", machine))
	}
	if obj != nil && !obj.Relocatable() {
		d.lookup = func(addr uint64) (string, uint64) {
			if i := obj.SymbolAt(-1, addr); i >= 0 {
				return obj.Symbols[i].Name, obj.Symbols[i].Addr
			}
			return "", 0
		}
	}
	return d, nil
}

// Decode decodes the instruction at the start of code, located at pc.
func (d *Decoder) Decode(code []byte, pc uint64) (Instruction, error) {
	if d.machine == elf.EM_AARCH64 {
		return d.decodeARM64(code, pc)
	}
	return d.decodeX86(code, pc)
}

func (d *Decoder) decodeX86(code []byte, pc uint64) (Instruction, error) {
	inst, err := x86asm.Decode(code, d.mode)
	if err != nil {
		return Instruction{}, err
	}
	out := Instruction{
		Addr: pc,
		Len:  inst.Len,
		Text: x86asm.GNUSyntax(inst, pc, d.lookup),
		Call: inst.Op == x86asm.CALL,
	}
	next := pc + uint64(inst.Len)
	for _, a := range inst.Args {
		switch a := a.(type) {
		case x86asm.Rel:
			out.Targets = append(out.Targets, uint64(int64(next)+int64(a)))
		case x86asm.Mem:
			if a.Base == x86asm.RIP {
				out.Targets = append(out.Targets, uint64(int64(next)+a.Disp))
			}
		}
	}
	return out, nil
}

func (d *Decoder) decodeARM64(code []byte, pc uint64) (Instruction, error) {
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return Instruction{}, err
	}
	out := Instruction{
		Addr: pc,
		Len:  4,
		Text: arm64asm.GNUSyntax(inst),
		Call: inst.Op == arm64asm.BL,
	}
	switch inst.Op {
	case arm64asm.B, arm64asm.BL, arm64asm.CBZ, arm64asm.CBNZ, arm64asm.TBZ, arm64asm.TBNZ, arm64asm.ADR:
		for _, a := range inst.Args {
			if rel, ok := a.(arm64asm.PCRel); ok {
				out.Targets = append(out.Targets, uint64(int64(pc)+int64(rel)))
			}
		}
	}
	return out, nil
}

// Step returns the number of bytes to skip after an undecodable instruction.
func (d *Decoder) Step() int {
	if d.machine == elf.EM_AARCH64 {
		return 4
	}
	return 1
}

// ScanCode decodes the body of symbol i and records every branch target or
// pc-relative operand that lands in another symbol. It is a no-op for data
// symbols and relocatable objects, whose references come from relocations.
// ScanCode only writes to Symbols[i] and may run concurrently for distinct i.
func (o *Object) ScanCode(d *Decoder, data []byte, i int) {
	s := &o.Symbols[i]
	if !s.Func || o.Relocatable() || d == nil {
		return
	}
	if s.Offset < 0 || s.Size > len(data)-s.Offset {
		return
	}
	code := data[s.Offset : s.Offset+s.Size]
	seen := map[int]bool{}
	for pos := 0; pos < len(code); {
		pc := s.Addr + uint64(pos)
		ins, err := d.Decode(code[pos:], pc)
		if err != nil {
			pos += d.Step()
			continue
		}
		for _, t := range ins.Targets {
			to := o.SymbolAt(-1, t)
			if to < 0 || to == i && !ins.Call || seen[to] {
				continue
			}
			seen[to] = true
			s.Refs = append(s.Refs, to)
		}
		pos += ins.Len
	}
}
