package wasm

import (
	"fmt"

	"github.com/wippyai/binsize/errors"
	bin "github.com/wippyai/binsize/wasm/internal/binary"
)

// Parse walks a core WebAssembly module and records the byte range and
// references of every entity. Function bodies are not decoded here; use
// ScanRefs or a Decoder over Func.CodeStart..Func.Range.End.
func Parse(data []byte) (*Module, error) {
	r := bin.NewReader(data, 0)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.Malformed(0, "truncated header")
	}
	if magic != Magic {
		return nil, errors.UnrecognizedFormat("missing \\0asm magic")
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.Malformed(4, "truncated header")
	}
	if version != Version {
		if uint16(version>>16) == ComponentLayer {
			return nil, errors.UnrecognizedFormat("component-model binaries are not supported")
		}
		return nil, errors.Malformed(4, fmt.Sprintf("unsupported version %d", version))
	}

	m := &Module{Size: len(data)}
	p := &parser{m: m}

	var lastOrder int
	var funcTypes []uint32
	var sawCode bool
	nameSection := -1

	for !r.Done() {
		secStart := r.Offset()
		id, _ := r.ReadByte()
		size, err := r.ReadU32()
		if err != nil {
			return nil, malformed(err, secStart, "truncated section header")
		}
		payloadStart := r.Offset()
		sr, err := r.Sub(int(size))
		if err != nil {
			return nil, errors.Malformed(payloadStart, fmt.Sprintf("section %d size %d exceeds input", id, size))
		}

		sec := Section{
			ID:      id,
			Range:   Range{Start: secStart, End: r.Offset()},
			Payload: Range{Start: payloadStart, End: r.Offset()},
		}

		if id != SectionCustom {
			order := sectionOrder(id)
			if order == 0 {
				return nil, errors.Malformed(secStart, fmt.Sprintf("unknown section id %d", id))
			}
			if order <= lastOrder {
				return nil, errors.Malformed(secStart, fmt.Sprintf("section %d out of order", id))
			}
			lastOrder = order
		}

		switch id {
		case SectionCustom:
			name, err := sr.ReadName()
			if err != nil {
				return nil, malformed(err, payloadStart, "custom section name")
			}
			sec.Name = name
			if name == "name" && nameSection < 0 {
				nameSection = len(m.Customs)
			}
			m.Customs = append(m.Customs, Custom{Name: name, Range: sec.Range, Data: sr.Rest()})
		case SectionType:
			err = p.types(sr)
		case SectionImport:
			err = p.imports(sr)
		case SectionFunction:
			funcTypes, err = readU32Vec(sr)
		case SectionTable:
			err = p.tables(sr)
		case SectionMemory:
			err = p.vec(sr, func(start int) error {
				if err := readLimits(sr); err != nil {
					return err
				}
				m.Memories = append(m.Memories, Entity{Range: Range{start, sr.Offset()}})
				return nil
			})
		case SectionTag:
			err = p.vec(sr, func(start int) error {
				refs, err := readTagType(sr)
				if err != nil {
					return err
				}
				m.Tags = append(m.Tags, Entity{Range: Range{start, sr.Offset()}, Refs: refs})
				return nil
			})
		case SectionGlobal:
			err = p.globals(sr)
		case SectionExport:
			err = p.exports(sr)
		case SectionStart:
			var idx uint32
			if idx, err = sr.ReadU32(); err == nil {
				m.Start = &idx
				m.StartRange = sec.Range
			}
		case SectionElement:
			err = p.elements(sr)
		case SectionDataCount:
			if _, err = sr.ReadU32(); err == nil {
				m.DataCountRange = sec.Range
			}
		case SectionCode:
			sawCode = true
			m.CodeBase = payloadStart
			err = p.code(sr, funcTypes)
		case SectionData:
			err = p.data(sr)
		}
		if err != nil {
			return nil, malformed(err, payloadStart, fmt.Sprintf("section %d", id))
		}
		if id != SectionCustom && !sr.Done() {
			return nil, errors.Malformed(sr.Offset(), fmt.Sprintf("section %d has %d trailing bytes", id, sr.Len()))
		}
		m.Sections = append(m.Sections, sec)
	}

	if len(funcTypes) != len(m.Funcs) {
		off := m.CodeBase
		if !sawCode {
			off = len(data)
		}
		return nil, errors.Malformed(off, fmt.Sprintf("function section declares %d bodies, code section has %d", len(funcTypes), len(m.Funcs)))
	}

	if nameSection >= 0 {
		ns := m.Customs[nameSection]
		names, err := parseNames(ns.Data, ns.Range.End-len(ns.Data))
		if err != nil {
			m.NameErr = err
		} else {
			m.Names = names
		}
	}
	return m, nil
}

// sectionOrder returns the canonical position of a known section, or 0.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	}
	return 0
}

type parser struct {
	m *Module
}

// vec reads a count and invokes fn once per entry with the entry's start offset.
func (p *parser) vec(r *bin.Reader, fn func(start int) error) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if err := fn(r.Offset()); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) types(r *bin.Reader) error {
	return p.vec(r, func(start int) error {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != RecTypeByte {
			refs, err := readSubType(r, form)
			if err != nil {
				return err
			}
			p.m.Types = append(p.m.Types, TypeEntry{Form: form, Range: Range{start, r.Offset()}, Refs: refs})
			return nil
		}
		// rec group: each member is its own type index
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			subStart := r.Offset()
			if i == 0 {
				subStart = start
			}
			f, err := r.ReadByte()
			if err != nil {
				return err
			}
			refs, err := readSubType(r, f)
			if err != nil {
				return err
			}
			p.m.Types = append(p.m.Types, TypeEntry{Form: f, Range: Range{subStart, r.Offset()}, Refs: refs})
		}
		return nil
	})
}

func readSubType(r *bin.Reader, form byte) ([]Ref, error) {
	var refs []Ref
	if form == SubTypeByte || form == SubFinalByte {
		parents, err := readU32Vec(r)
		if err != nil {
			return nil, err
		}
		for _, pi := range parents {
			refs = append(refs, Ref{Space: SpaceType, Index: pi})
		}
		if form, err = r.ReadByte(); err != nil {
			return nil, err
		}
	}
	more, err := readCompType(r, form)
	return append(refs, more...), err
}

func readCompType(r *bin.Reader, form byte) ([]Ref, error) {
	var refs []Ref
	collect := func(n uint32, field bool) error {
		for i := uint32(0); i < n; i++ {
			b, err := r.ReadByte()
			if err != nil {
				return err
			}
			if b == ValRefNull || b == ValRef {
				ht, err := r.ReadS33()
				if err != nil {
					return err
				}
				if ht >= 0 {
					refs = append(refs, Ref{Space: SpaceType, Index: uint32(ht)})
				}
			}
			if field {
				if _, err := r.ReadByte(); err != nil { // mutability
					return err
				}
			}
		}
		return nil
	}

	switch form {
	case FuncTypeByte:
		for range 2 { // params, results
			n, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			if err := collect(n, false); err != nil {
				return nil, err
			}
		}
	case StructTypeByte:
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if err := collect(n, true); err != nil {
			return nil, err
		}
	case ArrayTypeByte:
		if err := collect(1, true); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Malformed(r.Offset()-1, fmt.Sprintf("unsupported type form 0x%02x", form))
	}
	return refs, nil
}

func (p *parser) imports(r *bin.Reader) error {
	return p.vec(r, func(start int) error {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		field, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := Import{Module: module, Field: field, Kind: kind}
		switch kind {
		case KindFunc:
			idx, err := r.ReadU32()
			if err != nil {
				return err
			}
			imp.Refs = []Ref{{Space: SpaceType, Index: idx}}
			imp.Index = p.m.ImportedFuncs
			p.m.ImportedFuncs++
		case KindTable:
			if imp.Refs, err = readTableType(r); err != nil {
				return err
			}
			imp.Index = p.m.ImportedTables
			p.m.ImportedTables++
		case KindMemory:
			if err := readLimits(r); err != nil {
				return err
			}
			imp.Index = p.m.ImportedMemories
			p.m.ImportedMemories++
		case KindGlobal:
			if imp.Refs, err = readGlobalType(r); err != nil {
				return err
			}
			imp.Index = p.m.ImportedGlobals
			p.m.ImportedGlobals++
		case KindTag:
			if imp.Refs, err = readTagType(r); err != nil {
				return err
			}
			imp.Index = p.m.ImportedTags
			p.m.ImportedTags++
		default:
			return errors.Malformed(r.Offset()-1, fmt.Sprintf("unknown import kind 0x%02x", kind))
		}
		imp.Range = Range{start, r.Offset()}
		p.m.Imports = append(p.m.Imports, imp)
		return nil
	})
}

func (p *parser) tables(r *bin.Reader) error {
	return p.vec(r, func(start int) error {
		first, err := r.ReadByte()
		if err != nil {
			return err
		}
		var refs []Ref
		if first == 0x40 { // table with an initializer
			if zero, err := r.ReadByte(); err != nil {
				return err
			} else if zero != 0 {
				return errors.Malformed(r.Offset()-1, "expected 0x00 after 0x40 table prefix")
			}
			if refs, err = readTableType(r); err != nil {
				return err
			}
			init, err := readConstExpr(r)
			if err != nil {
				return err
			}
			refs = append(refs, init...)
		} else {
			if refs, err = readRefTypeAfter(r, first); err != nil {
				return err
			}
			if err := readLimits(r); err != nil {
				return err
			}
		}
		p.m.Tables = append(p.m.Tables, Entity{Range: Range{start, r.Offset()}, Refs: refs})
		return nil
	})
}

func (p *parser) globals(r *bin.Reader) error {
	return p.vec(r, func(start int) error {
		refs, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return err
		}
		p.m.Globals = append(p.m.Globals, Entity{Range: Range{start, r.Offset()}, Refs: append(refs, init...)})
		return nil
	})
}

func (p *parser) exports(r *bin.Reader) error {
	return p.vec(r, func(start int) error {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindTag {
			return errors.Malformed(r.Offset()-1, fmt.Sprintf("invalid export kind 0x%02x", kind))
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		p.m.Exports = append(p.m.Exports, Export{Name: name, Kind: kind, Index: idx, Range: Range{start, r.Offset()}})
		return nil
	})
}

func (p *parser) elements(r *bin.Reader) error {
	return p.vec(r, func(start int) error {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 7 {
			return errors.Malformed(start, fmt.Sprintf("invalid element segment flags %d", flags))
		}
		el := Element{}
		switch {
		case flags&0x01 == 0:
			el.Mode = ModeActive
		case flags&0x02 == 0:
			el.Mode = ModePassive
		default:
			el.Mode = ModeDeclarative
		}
		usesExprs := flags&0x04 != 0

		if flags&0x02 != 0 && flags&0x01 == 0 {
			if el.Table, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if el.Mode == ModeActive {
			if el.Refs, err = readConstExpr(r); err != nil {
				return err
			}
		}
		if flags&0x03 != 0 {
			if usesExprs {
				t, err := r.ReadByte()
				if err != nil {
					return err
				}
				refs, err := readRefTypeAfter(r, t)
				if err != nil {
					return err
				}
				el.Refs = append(el.Refs, refs...)
			} else if _, err := r.ReadByte(); err != nil { // elemkind
				return err
			}
		}

		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if !usesExprs {
				fn, err := r.ReadU32()
				if err != nil {
					return err
				}
				el.Funcs = append(el.Funcs, fn)
				continue
			}
			refs, err := readConstExpr(r)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				if ref.Space == SpaceFunc {
					el.Funcs = append(el.Funcs, ref.Index)
				} else {
					el.Refs = append(el.Refs, ref)
				}
			}
		}
		el.Range = Range{start, r.Offset()}
		p.m.Elements = append(p.m.Elements, el)
		return nil
	})
}

func (p *parser) code(r *bin.Reader, funcTypes []uint32) error {
	return p.vec(r, func(start int) error {
		idx := len(p.m.Funcs)
		if idx >= len(funcTypes) {
			return errors.Malformed(start, "code entry without a function declaration")
		}
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		bodyStart := r.Offset()
		br, err := r.Sub(int(size))
		if err != nil {
			return errors.Malformed(bodyStart, fmt.Sprintf("function body size %d exceeds section", size))
		}
		fn := Func{
			TypeIdx: funcTypes[idx],
			Range:   Range{start, r.Offset()},
			Body:    Range{bodyStart, r.Offset()},
		}
		groups, err := br.ReadU32()
		if err != nil {
			return err
		}
		var total uint64
		for i := uint32(0); i < groups; i++ {
			declStart := br.Offset()
			n, err := br.ReadU32()
			if err != nil {
				return err
			}
			total += uint64(n)
			if total > 50000 {
				return errors.Malformed(br.Offset(), "too many locals")
			}
			name, _, err := readValType(br)
			if err != nil {
				return err
			}
			fn.Locals = append(fn.Locals, LocalDecl{Count: n, Type: name, Offset: declStart})
		}
		fn.CodeStart = br.Offset()
		p.m.Funcs = append(p.m.Funcs, fn)
		return nil
	})
}

func (p *parser) data(r *bin.Reader) error {
	return p.vec(r, func(start int) error {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 2 {
			return errors.Malformed(start, fmt.Sprintf("invalid data segment flags %d", flags))
		}
		seg := Data{Mode: ModeActive}
		switch flags {
		case 1:
			seg.Mode = ModePassive
		case 2:
			if seg.Memory, err = r.ReadU32(); err != nil {
				return err
			}
		}
		if seg.Mode == ModeActive {
			if seg.Refs, err = readConstExpr(r); err != nil {
				return err
			}
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		initStart := r.Offset()
		if err := r.Skip(int(n)); err != nil {
			return err
		}
		seg.Init = Range{initStart, r.Offset()}
		seg.Range = Range{start, r.Offset()}
		p.m.Data = append(p.m.Data, seg)
		return nil
	})
}

func readU32Vec(r *bin.Reader) ([]uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, errors.Malformed(r.Offset(), fmt.Sprintf("vector length %d exceeds section", n))
	}
	out := make([]uint32, n)
	for i := range out {
		if out[i], err = r.ReadU32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readLimits(r *bin.Reader) error {
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	read := func() error {
		if flags&LimitsMemory64 != 0 {
			_, err := r.ReadU64()
			return err
		}
		_, err := r.ReadU32()
		return err
	}
	if err := read(); err != nil {
		return err
	}
	if flags&LimitsHasMax != 0 {
		if err := read(); err != nil {
			return err
		}
	}
	if flags&0x08 != 0 { // custom page size
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func readTableType(r *bin.Reader) ([]Ref, error) {
	t, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	refs, err := readRefTypeAfter(r, t)
	if err != nil {
		return nil, err
	}
	return refs, readLimits(r)
}

// readRefTypeAfter finishes a reference type whose first byte is b.
func readRefTypeAfter(r *bin.Reader, b byte) ([]Ref, error) {
	if b != ValRefNull && b != ValRef {
		return nil, nil
	}
	ht, err := r.ReadS33()
	if err != nil {
		return nil, err
	}
	if ht >= 0 {
		return []Ref{{Space: SpaceType, Index: uint32(ht)}}, nil
	}
	return nil, nil
}

func readGlobalType(r *bin.Reader) ([]Ref, error) {
	_, refs, err := readValType(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadByte(); err != nil { // mutability
		return nil, err
	}
	return refs, nil
}

func readTagType(r *bin.Reader) ([]Ref, error) {
	if _, err := r.ReadByte(); err != nil { // attribute
		return nil, err
	}
	idx, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	return []Ref{{Space: SpaceType, Index: idx}}, nil
}
