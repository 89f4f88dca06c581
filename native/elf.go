package native

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/wippyai/binsize/errors"
)

// Symbol is one defined, sized function or data symbol backed by file bytes.
type Symbol struct {
	Name    string
	Aliases []string // other symbols sharing these bytes, in table order
	Refs    []int    // indices into Object.Symbols, in discovery order
	Addr    uint64
	Offset  int // absolute file offset of the first byte
	Size    int
	Section int
	Func    bool
	Global  bool // global or weak binding with default visibility
}

// Object is a parsed ELF file reduced to what size attribution needs.
type Object struct {
	DebugSections map[string][]byte
	Symbols       []Symbol
	ByteOrder     binary.ByteOrder
	Entry         uint64
	Start         int // symbol containing the entry point, or -1
	Machine       elf.Machine
	Type          elf.Type
	Class         elf.Class

	byAddr       []int // symbol indices sorted by (section, addr)
	byGlobalAddr []int // symbol indices sorted by addr
}

// Relocatable reports whether symbol values are section-relative.
func (o *Object) Relocatable() bool {
	return o.Type == elf.ET_REL
}

// Parse reads an ELF file. Symbols come from .symtab, falling back to
// .dynsym for stripped binaries. Relocation entries in relocatable objects
// become references between symbols; references in linked images are
// recovered separately by ScanCode.
func Parse(data []byte) (obj *Object, err error) {
	defer func() {
		// debug/elf is not hardened against every corrupt header
		if r := recover(); r != nil {
			obj, err = nil, errors.Malformed(0, fmt.Sprintf("corrupt ELF file: %v", r))
		}
	}()

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.MalformedCause(0, "invalid ELF header", err)
	}

	o := &Object{
		Machine:       f.Machine,
		Type:          f.Type,
		Class:         f.Class,
		ByteOrder:     f.ByteOrder,
		Entry:         f.Entry,
		Start:         -1,
		DebugSections: map[string][]byte{},
	}

	for _, s := range f.Sections {
		if s.Type == elf.SHT_NOBITS {
			continue
		}
		if s.Type != elf.SHT_NULL && (s.FileSize > uint64(len(data)) || s.Offset > uint64(len(data))-s.FileSize) {
			return nil, errors.Malformed(int(min(s.Offset, uint64(len(data)))),
				fmt.Sprintf("section %s extends past end of file", s.Name))
		}
		if strings.HasPrefix(s.Name, ".debug_") {
			b, err := s.Data()
			if err != nil {
				return nil, errors.MalformedCause(int(s.Offset), "unreadable debug section "+s.Name, err)
			}
			o.DebugSections[s.Name] = b
		}
	}

	syms, symtab, err := readSymbols(f)
	if err != nil {
		return nil, err
	}

	// elf symbol table index -> Object.Symbols index
	slot := make(map[int]int, len(syms))
	type key struct {
		sect int
		addr uint64
	}
	seen := map[key]int{}

	for i, s := range syms {
		typ := elf.ST_TYPE(s.Info)
		if typ != elf.STT_FUNC && typ != elf.STT_OBJECT {
			continue
		}
		if s.Size == 0 || s.Section == elf.SHN_UNDEF || s.Section >= elf.SHN_LORESERVE {
			continue
		}
		if int(s.Section) >= len(f.Sections) {
			return nil, errors.Malformed(symEntryOffset(symtab, f.Class, i), fmt.Sprintf("symbol %q has section index %d", s.Name, s.Section))
		}
		sect := f.Sections[s.Section]
		if sect.Type == elf.SHT_NOBITS || sect.Type == elf.SHT_NULL {
			continue
		}

		rel := s.Value
		if f.Type != elf.ET_REL {
			if s.Value < sect.Addr {
				return nil, errors.Malformed(symEntryOffset(symtab, f.Class, i), fmt.Sprintf("symbol %q lies before its section", s.Name))
			}
			rel = s.Value - sect.Addr
		}
		if s.Size > sect.FileSize || rel > sect.FileSize-s.Size {
			return nil, errors.Malformed(symEntryOffset(symtab, f.Class, i), fmt.Sprintf("symbol %q extends past section %s", s.Name, sect.Name))
		}

		bind := elf.ST_BIND(s.Info)
		vis := elf.ST_VISIBILITY(s.Other)
		global := (bind == elf.STB_GLOBAL || bind == elf.STB_WEAK) && vis == elf.STV_DEFAULT

		// aliases share bytes; the first symbol owns them, but an exported
		// alias names the item and makes it an export
		k := key{int(s.Section), s.Value}
		if first, ok := seen[k]; ok {
			slot[i] = first
			kept := &o.Symbols[first]
			if global && !kept.Global {
				kept.Aliases = append(kept.Aliases, kept.Name)
				kept.Name = s.Name
				kept.Global = true
			} else {
				kept.Aliases = append(kept.Aliases, s.Name)
			}
			continue
		}

		idx := len(o.Symbols)
		seen[k] = idx
		slot[i] = idx
		o.Symbols = append(o.Symbols, Symbol{
			Name:    s.Name,
			Addr:    s.Value,
			Offset:  int(sect.Offset + rel),
			Size:    int(s.Size),
			Section: int(s.Section),
			Func:    typ == elf.STT_FUNC,
			Global:  global,
		})
	}

	o.byAddr = make([]int, len(o.Symbols))
	for i := range o.byAddr {
		o.byAddr[i] = i
	}
	sort.SliceStable(o.byAddr, func(a, b int) bool {
		sa, sb := o.Symbols[o.byAddr[a]], o.Symbols[o.byAddr[b]]
		if sa.Section != sb.Section {
			return sa.Section < sb.Section
		}
		return sa.Addr < sb.Addr
	})

	o.byGlobalAddr = append([]int(nil), o.byAddr...)
	sort.SliceStable(o.byGlobalAddr, func(a, b int) bool {
		return o.Symbols[o.byGlobalAddr[a]].Addr < o.Symbols[o.byGlobalAddr[b]].Addr
	})

	if f.Type != elf.ET_REL && f.Entry != 0 {
		if i := o.SymbolAt(-1, f.Entry); i >= 0 && o.Symbols[i].Func {
			o.Start = i
		}
	}

	if f.Type == elf.ET_REL {
		if err := o.applyRelocations(f, syms, slot); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func readSymbols(f *elf.File) ([]elf.Symbol, *elf.Section, error) {
	syms, err := f.Symbols()
	if err == nil {
		return syms, f.SectionByType(elf.SHT_SYMTAB), nil
	}
	if err != elf.ErrNoSymbols {
		return nil, nil, errors.MalformedCause(sectionOffset(f.SectionByType(elf.SHT_SYMTAB)), "unreadable symbol table", err)
	}
	syms, err = f.DynamicSymbols()
	if err == nil {
		return syms, f.SectionByType(elf.SHT_DYNSYM), nil
	}
	if err != elf.ErrNoSymbols {
		return nil, nil, errors.MalformedCause(sectionOffset(f.SectionByType(elf.SHT_DYNSYM)), "unreadable dynamic symbol table", err)
	}
	return nil, nil, nil
}

func sectionOffset(s *elf.Section) int {
	if s == nil {
		return 0
	}
	return int(s.Offset)
}

// symEntryOffset returns the file offset of symbol i as returned by
// elf.File.Symbols, which skips the null entry.
func symEntryOffset(symtab *elf.Section, class elf.Class, i int) int {
	if symtab == nil {
		return 0
	}
	size := elf.Sym64Size
	if class == elf.ELFCLASS32 {
		size = elf.Sym32Size
	}
	return int(symtab.Offset) + (i+1)*size
}

// SymbolAt returns the index of the symbol whose bytes contain addr, or -1.
// When section is negative, symbols in any section match; this is only
// meaningful for linked images where addresses are unique.
func (o *Object) SymbolAt(section int, addr uint64) int {
	order := o.byAddr
	if section < 0 {
		order = o.byGlobalAddr
	} else {
		lo := sort.Search(len(order), func(i int) bool { return o.Symbols[order[i]].Section >= section })
		hi := sort.Search(len(order), func(i int) bool { return o.Symbols[order[i]].Section > section })
		order = order[lo:hi]
	}
	// last symbol starting at or before addr
	i := sort.Search(len(order), func(i int) bool { return o.Symbols[order[i]].Addr > addr }) - 1
	if i < 0 {
		return -1
	}
	s := o.Symbols[order[i]]
	if addr < s.Addr+uint64(s.Size) {
		return order[i]
	}
	return -1
}

func (o *Object) addRef(from, to int) {
	for _, r := range o.Symbols[from].Refs {
		if r == to {
			return
		}
	}
	o.Symbols[from].Refs = append(o.Symbols[from].Refs, to)
}

type reloc struct {
	off    uint64
	sym    uint32
	addend int64
}

func (o *Object) applyRelocations(f *elf.File, syms []elf.Symbol, slot map[int]int) error {
	for _, rs := range f.Sections {
		if rs.Type != elf.SHT_RELA && rs.Type != elf.SHT_REL {
			continue
		}
		if int(rs.Info) >= len(f.Sections) || rs.Link == 0 {
			continue
		}
		// only relocations against the static symbol table map to our items
		if f.Sections[rs.Link].Type != elf.SHT_SYMTAB {
			continue
		}
		target := int(rs.Info)
		raw, err := rs.Data()
		if err != nil {
			return errors.MalformedCause(int(rs.Offset), "unreadable relocation section "+rs.Name, err)
		}
		relocs, err := decodeRelocs(raw, f.Class, f.ByteOrder, rs.Type == elf.SHT_RELA)
		if err != nil {
			return errors.MalformedCause(int(rs.Offset), "relocation section "+rs.Name, err)
		}
		for _, r := range relocs {
			from := o.SymbolAt(target, r.off)
			if from < 0 || r.sym == 0 || int(r.sym) > len(syms) {
				continue
			}
			es := syms[r.sym-1]
			to, ok := slot[int(r.sym-1)]
			if !ok && elf.ST_TYPE(es.Info) == elf.STT_SECTION && r.addend >= 0 {
				to = o.SymbolAt(int(es.Section), uint64(r.addend))
				ok = to >= 0
			}
			if ok {
				o.addRef(from, to)
			}
		}
	}
	return nil
}

func decodeRelocs(raw []byte, class elf.Class, order binary.ByteOrder, rela bool) ([]reloc, error) {
	var out []reloc
	r := bytes.NewReader(raw)
	switch {
	case class == elf.ELFCLASS64 && rela:
		n := len(raw) / 24
		entries := make([]elf.Rela64, n)
		if err := binary.Read(r, order, entries); err != nil {
			return nil, err
		}
		for _, e := range entries {
			out = append(out, reloc{off: e.Off, sym: elf.R_SYM64(e.Info), addend: e.Addend})
		}
	case class == elf.ELFCLASS64:
		n := len(raw) / 16
		entries := make([]elf.Rel64, n)
		if err := binary.Read(r, order, entries); err != nil {
			return nil, err
		}
		for _, e := range entries {
			out = append(out, reloc{off: e.Off, sym: elf.R_SYM64(e.Info)})
		}
	case rela:
		n := len(raw) / 12
		entries := make([]elf.Rela32, n)
		if err := binary.Read(r, order, entries); err != nil {
			return nil, err
		}
		for _, e := range entries {
			out = append(out, reloc{off: uint64(e.Off), sym: elf.R_SYM32(e.Info), addend: int64(e.Addend)})
		}
	default:
		n := len(raw) / 8
		entries := make([]elf.Rel32, n)
		if err := binary.Read(r, order, entries); err != nil {
			return nil, err
		}
		for _, e := range entries {
			out = append(out, reloc{off: uint64(e.Off), sym: elf.R_SYM32(e.Info)})
		}
	}
	return out, nil
}
