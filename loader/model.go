package loader

import (
	"debug/elf"
	"fmt"

	"github.com/wippyai/binsize/native"
	"github.com/wippyai/binsize/wasm"
)

// Format identifies the binary container.
type Format string

const (
	FormatWasm Format = "wasm"
	FormatELF  Format = "elf"
)

// Range is a half-open byte range in the input file.
type Range = wasm.Range

// Space is an index space of the binary. Identical indices in different
// spaces name different entities.
type Space uint8

const (
	SpaceRoot Space = iota
	SpaceFunc
	SpaceTable
	SpaceMemory
	SpaceGlobal
	SpaceTag
	SpaceType
	SpaceData
	SpaceElem
	SpaceExport
	SpaceCustom
	SpaceSymbol
	SpaceSection
)

var spaceNames = [...]string{
	SpaceRoot:    "root",
	SpaceFunc:    "func",
	SpaceTable:   "table",
	SpaceMemory:  "memory",
	SpaceGlobal:  "global",
	SpaceTag:     "tag",
	SpaceType:    "type",
	SpaceData:    "data",
	SpaceElem:    "elem",
	SpaceExport:  "export",
	SpaceCustom:  "custom",
	SpaceSymbol:  "symbol",
	SpaceSection: "section",
}

func (s Space) String() string {
	if int(s) < len(spaceNames) {
		return spaceNames[s]
	}
	return fmt.Sprintf("space(%d)", uint8(s))
}

// FromWasm maps a module index space onto a loader space.
func FromWasm(s wasm.Space) Space {
	switch s {
	case wasm.SpaceFunc:
		return SpaceFunc
	case wasm.SpaceTable:
		return SpaceTable
	case wasm.SpaceMemory:
		return SpaceMemory
	case wasm.SpaceGlobal:
		return SpaceGlobal
	case wasm.SpaceTag:
		return SpaceTag
	case wasm.SpaceType:
		return SpaceType
	case wasm.SpaceData:
		return SpaceData
	case wasm.SpaceElem:
		return SpaceElem
	}
	return SpaceRoot
}

// Kind classifies an item for presentation.
type Kind string

const (
	KindRoot       Kind = "root"
	KindFunction   Kind = "function"
	KindImport     Kind = "import"
	KindData       Kind = "data"
	KindGlobal     Kind = "global"
	KindType       Kind = "type"
	KindTable      Kind = "table"
	KindMemory     Kind = "memory"
	KindElement    Kind = "element"
	KindExport     Kind = "export"
	KindCustom     Kind = "custom"
	KindSection    Kind = "section"
	KindTag        Kind = "tag"
	KindSymbolData Kind = "symbol-data"
)

// RefKind qualifies a reference when the spaces alone do not say what it is.
type RefKind uint8

const (
	RefPlain RefKind = iota
	RefExport
	RefStart
	RefTableEntry
)

// RawRef names an entity in the binary's own index spaces.
type RawRef struct {
	Index uint32  `json:"index" yaml:"index"`
	Space Space   `json:"space" yaml:"space"`
	Kind  RefKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

func (r RawRef) String() string {
	return fmt.Sprintf("%s[%d]", r.Space, r.Index)
}

// RawItem is one sized unit of the binary before graph construction.
type RawItem struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Aliases are other names for the same bytes (ELF symbol aliases).
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Refs    []RawRef `json:"refs,omitempty" yaml:"refs,omitempty"`
	Range   Range    `json:"range" yaml:"range"`
	// Locals are a WebAssembly function's local declarations.
	Locals []wasm.LocalDecl `json:"-" yaml:"-"`
	// CodeStart is the absolute offset of the first instruction, or 0 for
	// items without code.
	CodeStart int `json:"code_start,omitempty" yaml:"code_start,omitempty"`
	// DebugAddr is the DWARF address of the byte at CodeStart.
	DebugAddr uint64 `json:"debug_addr,omitempty" yaml:"debug_addr,omitempty"`
	Index     uint32 `json:"index" yaml:"index"`
	Space     Space  `json:"space" yaml:"space"`
	Kind      Kind   `json:"kind" yaml:"kind"`
}

// Ref returns the reference that names this item.
func (it *RawItem) Ref() RawRef {
	return RawRef{Space: it.Space, Index: it.Index}
}

// HasCode reports whether the item carries decodable instructions.
func (it *RawItem) HasCode() bool {
	return it.CodeStart > 0 && it.CodeStart <= it.Range.End
}

// RawModel is the normalized output of Load.
type RawModel struct {
	// DebugSections holds DWARF sections keyed by ELF-style name
	// (".debug_info", ...), for either container.
	DebugSections map[string][]byte `json:"-" yaml:"-"`
	// Data is the input the ranges point into.
	Data []byte `json:"-" yaml:"-"`
	// Object is the parsed ELF file, nil for WebAssembly.
	Object *native.Object `json:"-" yaml:"-"`

	Items []RawItem `json:"items" yaml:"items"`
	// Exports, Start, and Elements are the declared public surface; each
	// names an item in Items.
	Exports  []RawRef `json:"exports,omitempty" yaml:"exports,omitempty"`
	Start    *RawRef  `json:"start,omitempty" yaml:"start,omitempty"`
	Elements []RawRef `json:"elements,omitempty" yaml:"elements,omitempty"`

	Format Format `json:"format" yaml:"format"`
	// Machine is the ELF machine, zero for WebAssembly.
	Machine elf.Machine `json:"-" yaml:"-"`
	Size    int         `json:"size" yaml:"size"`
	// CodeBase is the absolute offset of the WebAssembly code section
	// payload, which DWARF addresses are relative to.
	CodeBase int `json:"code_base,omitempty" yaml:"code_base,omitempty"`
	// NameErr records why a name section was ignored.
	NameErr error `json:"-" yaml:"-"`
}

// Bytes returns the raw bytes of an item.
func (m *RawModel) Bytes(it *RawItem) []byte {
	return m.Data[it.Range.Start:it.Range.End]
}

// Code returns the instruction bytes of an item, or nil.
func (m *RawModel) Code(it *RawItem) []byte {
	if !it.HasCode() {
		return nil
	}
	return m.Data[it.CodeStart:it.Range.End]
}
