// Package dwarftest encodes small DWARF 4 section sets for tests: one line
// program per unit plus subprogram and inlined-subroutine DIEs.
package dwarftest

import "encoding/binary"

// Line is one line-table row. File is 1-based into Unit.Files.
type Line struct {
	Addr uint64
	File int
	Line int
}

// Inline is an inlined-subroutine DIE nested in a Func.
type Inline struct {
	Name     string
	Low      uint64
	High     uint64
	CallFile int
	CallLine int
}

// Func is a subprogram DIE.
type Func struct {
	Name    string
	Inlined []Inline
	Low     uint64
	High    uint64
}

// Unit is one compilation unit. End terminates its line sequence.
type Unit struct {
	Name  string
	Files []string
	Lines []Line
	Funcs []Func
	End   uint64
}

const (
	abbrevCU = 1 + iota
	abbrevFunc
	abbrevInline
)

// Sections encodes units as .debug_abbrev, .debug_info and .debug_line.
func Sections(units ...Unit) map[string][]byte {
	var info, line []byte
	for _, u := range units {
		stmt := len(line)
		line = append(line, lineProgram(u)...)
		info = append(info, unitDIEs(u, stmt)...)
	}
	return map[string][]byte{
		".debug_abbrev": abbrevs(),
		".debug_info":   info,
		".debug_line":   line,
	}
}

func abbrevs() []byte {
	var b []byte
	decl := func(code, tag uint64, children bool, attrs ...uint64) {
		b = binary.AppendUvarint(b, code)
		b = binary.AppendUvarint(b, tag)
		if children {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
		for _, a := range attrs {
			b = binary.AppendUvarint(b, a)
		}
		b = append(b, 0, 0)
	}
	const (
		tagCU         = 0x11
		tagSubprogram = 0x2e
		tagInlined    = 0x1d

		atName     = 0x03
		atStmtList = 0x10
		atLowPC    = 0x11
		atHighPC   = 0x12
		atCallFile = 0x58
		atCallLine = 0x59

		formAddr      = 0x01
		formData2     = 0x05
		formData4     = 0x06
		formString    = 0x08
		formData1     = 0x0b
		formSecOffset = 0x17
	)
	decl(abbrevCU, tagCU, true, atName, formString, atStmtList, formSecOffset)
	decl(abbrevFunc, tagSubprogram, true, atName, formString, atLowPC, formAddr, atHighPC, formData4)
	decl(abbrevInline, tagInlined, false, atName, formString, atLowPC, formAddr, atHighPC, formData4,
		atCallFile, formData1, atCallLine, formData2)
	return append(b, 0)
}

func unitDIEs(u Unit, stmt int) []byte {
	var body []byte
	body = binary.LittleEndian.AppendUint16(body, 4) // version
	body = binary.LittleEndian.AppendUint32(body, 0) // abbrev offset
	body = append(body, 8)                           // address size

	body = binary.AppendUvarint(body, abbrevCU)
	body = cstring(body, u.Name)
	body = binary.LittleEndian.AppendUint32(body, uint32(stmt))
	for _, f := range u.Funcs {
		body = binary.AppendUvarint(body, abbrevFunc)
		body = cstring(body, f.Name)
		body = binary.LittleEndian.AppendUint64(body, f.Low)
		body = binary.LittleEndian.AppendUint32(body, uint32(f.High-f.Low))
		for _, in := range f.Inlined {
			body = binary.AppendUvarint(body, abbrevInline)
			body = cstring(body, in.Name)
			body = binary.LittleEndian.AppendUint64(body, in.Low)
			body = binary.LittleEndian.AppendUint32(body, uint32(in.High-in.Low))
			body = append(body, byte(in.CallFile))
			body = binary.LittleEndian.AppendUint16(body, uint16(in.CallLine))
		}
		body = append(body, 0)
	}
	body = append(body, 0)

	out := binary.LittleEndian.AppendUint32(nil, uint32(len(body)))
	return append(out, body...)
}

func lineProgram(u Unit) []byte {
	var hdr []byte
	hdr = append(hdr, 1, 1, 1)      // min inst length, max ops, default is_stmt
	hdr = append(hdr, 0xfb, 14, 13) // line base -5, line range, opcode base
	hdr = append(hdr, 0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1)
	hdr = append(hdr, 0) // no include directories
	for _, f := range u.Files {
		hdr = cstring(hdr, f)
		hdr = append(hdr, 0, 0, 0)
	}
	hdr = append(hdr, 0)

	var prog []byte
	file, ln := 1, 1
	var addr uint64
	for i, l := range u.Lines {
		if i == 0 {
			prog = append(prog, 0, 9, 2) // DW_LNE_set_address
			prog = binary.LittleEndian.AppendUint64(prog, l.Addr)
		} else {
			prog = append(prog, 2) // DW_LNS_advance_pc
			prog = binary.AppendUvarint(prog, l.Addr-addr)
		}
		addr = l.Addr
		if l.File != file {
			prog = append(prog, 4) // DW_LNS_set_file
			prog = binary.AppendUvarint(prog, uint64(l.File))
			file = l.File
		}
		if l.Line != ln {
			prog = append(prog, 3) // DW_LNS_advance_line
			prog = sleb(prog, int64(l.Line-ln))
			ln = l.Line
		}
		prog = append(prog, 1) // DW_LNS_copy
	}
	if len(u.Lines) > 0 {
		prog = append(prog, 2)
		prog = binary.AppendUvarint(prog, u.End-addr)
		prog = append(prog, 0, 1, 1) // DW_LNE_end_sequence
	}

	var body []byte
	body = binary.LittleEndian.AppendUint16(body, 4)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(hdr)))
	body = append(body, hdr...)
	body = append(body, prog...)

	out := binary.LittleEndian.AppendUint32(nil, uint32(len(body)))
	return append(out, body...)
}

func cstring(b []byte, s string) []byte {
	return append(append(b, s...), 0)
}

func sleb(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}
