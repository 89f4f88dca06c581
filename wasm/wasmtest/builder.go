// Package wasmtest builds small WebAssembly modules in memory for tests.
package wasmtest

import (
	"sort"

	"github.com/wippyai/binsize/wasm"
	bin "github.com/wippyai/binsize/wasm/internal/binary"
)

// Local declares count locals of one value type.
type Local struct {
	Count uint32
	Type  byte
}

type funcDef struct {
	locals  []Local
	body    []byte
	typeIdx uint32
}

type export struct {
	name string
	idx  uint32
	kind byte
}

type custom struct {
	name    string
	payload []byte
}

// Builder accumulates module entities and encodes them in section order.
// Index-returning methods return the entity's index in its index space.
type Builder struct {
	names    map[wasm.Space]map[uint32]string
	start    *uint32
	types    [][]byte
	imports  [][]byte
	funcs    []funcDef
	tables   [][]byte
	memories [][]byte
	globals  [][]byte
	tags     [][]byte
	exports  []export
	elems    [][]byte
	data     [][]byte
	customs  []custom

	importedFuncs, importedTables, importedMemories, importedGlobals uint32

	dataCount bool
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{names: map[wasm.Space]map[uint32]string{}}
}

// Type adds a function type and returns its index.
func (b *Builder) Type(params, results []byte) uint32 {
	w := bin.NewWriter().Byte(wasm.FuncTypeByte).Sized(params).Sized(results)
	b.types = append(b.types, w.Bytes())
	return uint32(len(b.types) - 1)
}

func (b *Builder) mustPrecedeDefinitions(defined int) {
	if defined > 0 {
		panic("wasmtest: imports must be added before definitions of the same kind")
	}
}

// ImportFunc adds a function import.
func (b *Builder) ImportFunc(module, field string, typeIdx uint32) uint32 {
	b.mustPrecedeDefinitions(len(b.funcs))
	w := bin.NewWriter().Name(module).Name(field).Byte(wasm.KindFunc).U32(typeIdx)
	b.imports = append(b.imports, w.Bytes())
	b.importedFuncs++
	return b.importedFuncs - 1
}

// ImportMemory adds a memory import.
func (b *Builder) ImportMemory(module, field string, minPages uint32) uint32 {
	b.mustPrecedeDefinitions(len(b.memories))
	w := bin.NewWriter().Name(module).Name(field).Byte(wasm.KindMemory, 0x00).U32(minPages)
	b.imports = append(b.imports, w.Bytes())
	b.importedMemories++
	return b.importedMemories - 1
}

// ImportGlobal adds an immutable global import.
func (b *Builder) ImportGlobal(module, field string, valType byte) uint32 {
	b.mustPrecedeDefinitions(len(b.globals))
	w := bin.NewWriter().Name(module).Name(field).Byte(wasm.KindGlobal, valType, 0x00)
	b.imports = append(b.imports, w.Bytes())
	b.importedGlobals++
	return b.importedGlobals - 1
}

// Func adds a defined function. body holds instructions without the final end.
func (b *Builder) Func(typeIdx uint32, body ...[]byte) uint32 {
	return b.FuncWithLocals(typeIdx, nil, body...)
}

// FuncWithLocals adds a defined function with local declarations.
func (b *Builder) FuncWithLocals(typeIdx uint32, locals []Local, body ...[]byte) uint32 {
	b.funcs = append(b.funcs, funcDef{typeIdx: typeIdx, locals: locals, body: Concat(body...)})
	return b.importedFuncs + uint32(len(b.funcs)-1)
}

// Table adds a funcref table with the given minimum size.
func (b *Builder) Table(minSize uint32) uint32 {
	b.tables = append(b.tables, bin.NewWriter().Byte(wasm.ValFuncRef, 0x00).U32(minSize).Bytes())
	return b.importedTables + uint32(len(b.tables)-1)
}

// Memory adds a memory with the given minimum page count.
func (b *Builder) Memory(minPages uint32) uint32 {
	b.memories = append(b.memories, bin.NewWriter().Byte(0x00).U32(minPages).Bytes())
	return b.importedMemories + uint32(len(b.memories)-1)
}

// Global adds a global whose initializer is init (without the final end).
func (b *Builder) Global(valType byte, mutable bool, init ...[]byte) uint32 {
	mut := byte(0)
	if mutable {
		mut = 1
	}
	w := bin.NewWriter().Byte(valType, mut).Raw(Concat(init...)).Byte(wasm.OpEnd)
	b.globals = append(b.globals, w.Bytes())
	return b.importedGlobals + uint32(len(b.globals)-1)
}

// Tag adds an exception tag of the given function type.
func (b *Builder) Tag(typeIdx uint32) uint32 {
	b.tags = append(b.tags, bin.NewWriter().Byte(0x00).U32(typeIdx).Bytes())
	return uint32(len(b.tags) - 1)
}

// Export adds an export entry.
func (b *Builder) Export(name string, kind byte, idx uint32) {
	b.exports = append(b.exports, export{name: name, kind: kind, idx: idx})
}

// ExportFunc exports a function.
func (b *Builder) ExportFunc(name string, idx uint32) {
	b.Export(name, wasm.KindFunc, idx)
}

// Start sets the start function.
func (b *Builder) Start(idx uint32) {
	b.start = &idx
}

// ActiveElem adds an active element segment for table 0 at a constant offset.
func (b *Builder) ActiveElem(offset int32, funcs ...uint32) uint32 {
	w := bin.NewWriter().U32(0).Byte(wasm.OpI32Const).S64(int64(offset)).Byte(wasm.OpEnd).U32(uint32(len(funcs)))
	for _, f := range funcs {
		w.U32(f)
	}
	b.elems = append(b.elems, w.Bytes())
	return uint32(len(b.elems) - 1)
}

// PassiveElem adds a passive element segment listing funcs.
func (b *Builder) PassiveElem(funcs ...uint32) uint32 {
	w := bin.NewWriter().U32(1).Byte(0x00).U32(uint32(len(funcs)))
	for _, f := range funcs {
		w.U32(f)
	}
	b.elems = append(b.elems, w.Bytes())
	return uint32(len(b.elems) - 1)
}

// DeclarativeElem adds a declarative element segment listing funcs.
func (b *Builder) DeclarativeElem(funcs ...uint32) uint32 {
	w := bin.NewWriter().U32(3).Byte(0x00).U32(uint32(len(funcs)))
	for _, f := range funcs {
		w.U32(f)
	}
	b.elems = append(b.elems, w.Bytes())
	return uint32(len(b.elems) - 1)
}

// ActiveData adds an active data segment for memory 0.
func (b *Builder) ActiveData(offset int32, init []byte) uint32 {
	w := bin.NewWriter().U32(0).Byte(wasm.OpI32Const).S64(int64(offset)).Byte(wasm.OpEnd).Sized(init)
	b.data = append(b.data, w.Bytes())
	return uint32(len(b.data) - 1)
}

// PassiveData adds a passive data segment and emits a data count section.
func (b *Builder) PassiveData(init []byte) uint32 {
	b.dataCount = true
	b.data = append(b.data, bin.NewWriter().U32(1).Sized(init).Bytes())
	return uint32(len(b.data) - 1)
}

// Custom adds a custom section emitted after all known sections.
func (b *Builder) Custom(name string, payload []byte) {
	b.customs = append(b.customs, custom{name: name, payload: payload})
}

// Name records a name-section entry for an index.
func (b *Builder) Name(space wasm.Space, idx uint32, name string) {
	if b.names[space] == nil {
		b.names[space] = map[uint32]string{}
	}
	b.names[space][idx] = name
}

// FuncCount returns the size of the function index space so far.
func (b *Builder) FuncCount() uint32 {
	return b.importedFuncs + uint32(len(b.funcs))
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	w := bin.NewWriter().U32LE(wasm.Magic).U32LE(wasm.Version)

	vecSection(w, wasm.SectionType, b.types)
	vecSection(w, wasm.SectionImport, b.imports)
	if len(b.funcs) > 0 {
		sec := bin.NewWriter().U32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			sec.U32(f.typeIdx)
		}
		section(w, wasm.SectionFunction, sec.Bytes())
	}
	vecSection(w, wasm.SectionTable, b.tables)
	vecSection(w, wasm.SectionMemory, b.memories)
	vecSection(w, wasm.SectionTag, b.tags)
	vecSection(w, wasm.SectionGlobal, b.globals)
	if len(b.exports) > 0 {
		sec := bin.NewWriter().U32(uint32(len(b.exports)))
		for _, e := range b.exports {
			sec.Name(e.name).Byte(e.kind).U32(e.idx)
		}
		section(w, wasm.SectionExport, sec.Bytes())
	}
	if b.start != nil {
		section(w, wasm.SectionStart, bin.NewWriter().U32(*b.start).Bytes())
	}
	vecSection(w, wasm.SectionElement, b.elems)
	if b.dataCount {
		section(w, wasm.SectionDataCount, bin.NewWriter().U32(uint32(len(b.data))).Bytes())
	}
	if len(b.funcs) > 0 {
		sec := bin.NewWriter().U32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			body := bin.NewWriter().U32(uint32(len(f.locals)))
			for _, l := range f.locals {
				body.U32(l.Count).Byte(l.Type)
			}
			body.Raw(f.body).Byte(wasm.OpEnd)
			sec.Sized(body.Bytes())
		}
		section(w, wasm.SectionCode, sec.Bytes())
	}
	vecSection(w, wasm.SectionData, b.data)

	if len(b.names) > 0 {
		section(w, wasm.SectionCustom, bin.NewWriter().Name("name").Raw(b.nameSection()).Bytes())
	}
	for _, c := range b.customs {
		section(w, wasm.SectionCustom, bin.NewWriter().Name(c.name).Raw(c.payload).Bytes())
	}
	return w.Bytes()
}

var nameSubsections = []struct {
	space wasm.Space
	id    byte
}{
	{wasm.SpaceFunc, wasm.NameFunction},
	{wasm.SpaceType, wasm.NameType},
	{wasm.SpaceTable, wasm.NameTable},
	{wasm.SpaceMemory, wasm.NameMemory},
	{wasm.SpaceGlobal, wasm.NameGlobal},
	{wasm.SpaceElem, wasm.NameElem},
	{wasm.SpaceData, wasm.NameData},
	{wasm.SpaceTag, wasm.NameTag},
}

func (b *Builder) nameSection() []byte {
	w := bin.NewWriter()
	for _, sub := range nameSubsections {
		m := b.names[sub.space]
		if len(m) == 0 {
			continue
		}
		idxs := make([]uint32, 0, len(m))
		for i := range m {
			idxs = append(idxs, i)
		}
		sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
		payload := bin.NewWriter().U32(uint32(len(idxs)))
		for _, i := range idxs {
			payload.U32(i).Name(m[i])
		}
		w.Byte(sub.id).Sized(payload.Bytes())
	}
	return w.Bytes()
}

func section(w *bin.Writer, id byte, payload []byte) {
	w.Byte(id).Sized(payload)
}

func vecSection(w *bin.Writer, id byte, entries [][]byte) {
	if len(entries) == 0 {
		return
	}
	sec := bin.NewWriter().U32(uint32(len(entries)))
	for _, e := range entries {
		sec.Raw(e)
	}
	section(w, id, sec.Bytes())
}
