// Package elftest builds minimal ELF64 little-endian files in memory for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Rela is one relocation-with-addend entry. Sym is the 1-based index of a
// symbol in the order symbols were added.
type Rela struct {
	Off    uint64
	Sym    uint32
	Type   uint32
	Addend int64
}

type section struct {
	name   string
	data   []byte
	rela   []Rela
	addr   uint64
	flags  elf.SectionFlag
	typ    elf.SectionType
	target int
}

type symbol struct {
	name  string
	value uint64
	size  uint64
	sect  int
	typ   elf.SymType
	bind  elf.SymBind
}

// Builder accumulates sections and symbols. Local symbols must be added
// before global ones.
type Builder struct {
	sections []section
	symbols  []symbol
	typ      elf.Type
	machine  elf.Machine
	entry    uint64
}

// New returns a builder for an ELF64 little-endian file.
func New(typ elf.Type, machine elf.Machine) *Builder {
	return &Builder{typ: typ, machine: machine}
}

// Entry sets the entry point address.
func (b *Builder) Entry(addr uint64) {
	b.entry = addr
}

// Section adds a section and returns its section header index.
func (b *Builder) Section(name string, typ elf.SectionType, flags elf.SectionFlag, addr uint64, data []byte) int {
	b.sections = append(b.sections, section{name: name, typ: typ, flags: flags, addr: addr, data: data})
	return len(b.sections)
}

// Text adds an executable .text-like section.
func (b *Builder) Text(name string, addr uint64, code []byte) int {
	return b.Section(name, elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, addr, code)
}

// Data adds a writable data section.
func (b *Builder) Data(name string, addr uint64, data []byte) int {
	return b.Section(name, elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE, addr, data)
}

// Symbol adds a symbol and returns its 1-based symbol table index.
func (b *Builder) Symbol(name string, typ elf.SymType, bind elf.SymBind, sect int, value, size uint64) uint32 {
	b.symbols = append(b.symbols, symbol{name: name, typ: typ, bind: bind, sect: sect, value: value, size: size})
	return uint32(len(b.symbols))
}

// Relocations adds a .rela section applying to section target.
func (b *Builder) Relocations(target int, entries ...Rela) {
	name := ".rela" + b.sections[target-1].name
	b.sections = append(b.sections, section{name: name, typ: elf.SHT_RELA, target: target, rela: entries})
}

type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	s := &strtab{}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

// Bytes encodes the file: user sections, then .symtab, .strtab, .shstrtab.
func (b *Builder) Bytes() []byte {
	le := binary.LittleEndian
	shstr := newStrtab()
	str := newStrtab()

	symtabIdx := len(b.sections) + 1
	strtabIdx := symtabIdx + 1
	shstrIdx := strtabIdx + 1

	var symtab bytes.Buffer
	binary.Write(&symtab, le, elf.Sym64{})
	firstGlobal := uint32(len(b.symbols) + 1)
	for i, s := range b.symbols {
		if s.bind != elf.STB_LOCAL && firstGlobal > uint32(i+1) {
			firstGlobal = uint32(i + 1)
		}
		binary.Write(&symtab, le, elf.Sym64{
			Name:  str.add(s.name),
			Info:  elf.ST_INFO(s.bind, s.typ),
			Shndx: uint16(s.sect),
			Value: s.value,
			Size:  s.size,
		})
	}

	var headers []elf.Section64
	var out bytes.Buffer
	out.Write(make([]byte, 64))
	place := func(data []byte) uint64 {
		for out.Len()%8 != 0 {
			out.WriteByte(0)
		}
		off := uint64(out.Len())
		out.Write(data)
		return off
	}

	headers = append(headers, elf.Section64{})
	for _, s := range b.sections {
		h := elf.Section64{
			Name:      shstr.add(s.name),
			Type:      uint32(s.typ),
			Flags:     uint64(s.flags),
			Addr:      s.addr,
			Addralign: 1,
		}
		data := s.data
		if s.typ == elf.SHT_RELA {
			var rb bytes.Buffer
			for _, r := range s.rela {
				binary.Write(&rb, le, elf.Rela64{Off: r.Off, Info: elf.R_INFO(r.Sym, r.Type), Addend: r.Addend})
			}
			data = rb.Bytes()
			h.Link = uint32(symtabIdx)
			h.Info = uint32(s.target)
			h.Entsize = 24
			h.Flags = uint64(elf.SHF_INFO_LINK)
		}
		h.Off = place(data)
		h.Size = uint64(len(data))
		headers = append(headers, h)
	}

	symName := shstr.add(".symtab")
	strName := shstr.add(".strtab")
	shstrName := shstr.add(".shstrtab")

	symOff := place(symtab.Bytes())
	headers = append(headers, elf.Section64{
		Name: symName, Type: uint32(elf.SHT_SYMTAB), Off: symOff, Size: uint64(symtab.Len()),
		Link: uint32(strtabIdx), Info: firstGlobal, Addralign: 8, Entsize: 24,
	})
	strOff := place(str.buf.Bytes())
	headers = append(headers, elf.Section64{
		Name: strName, Type: uint32(elf.SHT_STRTAB), Off: strOff, Size: uint64(str.buf.Len()), Addralign: 1,
	})
	shstrBytes := shstr.buf.Bytes()
	shstrOff := place(shstrBytes)
	headers = append(headers, elf.Section64{
		Name: shstrName, Type: uint32(elf.SHT_STRTAB), Off: shstrOff, Size: uint64(len(shstrBytes)), Addralign: 1,
	})

	shoff := place(nil)
	for _, h := range headers {
		binary.Write(&out, le, h)
	}

	file := out.Bytes()
	hdr := elf.Header64{
		Type:      uint16(b.typ),
		Machine:   uint16(b.machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     b.entry,
		Shoff:     shoff,
		Ehsize:    64,
		Shentsize: 64,
		Shnum:     uint16(len(headers)),
		Shstrndx:  uint16(shstrIdx),
	}
	copy(hdr.Ident[:], []byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)})
	var hb bytes.Buffer
	binary.Write(&hb, le, hdr)
	copy(file, hb.Bytes())
	return file
}
