package wasm

import "fmt"

// Range is a half-open byte range [Start, End) of absolute file offsets.
type Range struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the number of bytes covered.
func (r Range) Len() int {
	return r.End - r.Start
}

// Contains reports whether off falls inside the range.
func (r Range) Contains(off int) bool {
	return off >= r.Start && off < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.Start, r.End)
}

// Space identifies one of the module's index spaces.
type Space uint8

const (
	SpaceFunc Space = iota + 1
	SpaceTable
	SpaceMemory
	SpaceGlobal
	SpaceTag
	SpaceType
	SpaceData
	SpaceElem
)

var spaceNames = [...]string{
	SpaceFunc:   "func",
	SpaceTable:  "table",
	SpaceMemory: "memory",
	SpaceGlobal: "global",
	SpaceTag:    "tag",
	SpaceType:   "type",
	SpaceData:   "data",
	SpaceElem:   "elem",
}

func (s Space) String() string {
	if int(s) < len(spaceNames) && spaceNames[s] != "" {
		return spaceNames[s]
	}
	return fmt.Sprintf("space(%d)", uint8(s))
}

// Ref is a reference from one entity to an index in some space.
type Ref struct {
	Space Space
	Index uint32
}

// SpaceForKind maps an import/export descriptor kind to its index space.
func SpaceForKind(kind byte) (Space, bool) {
	switch kind {
	case KindFunc:
		return SpaceFunc, true
	case KindTable:
		return SpaceTable, true
	case KindMemory:
		return SpaceMemory, true
	case KindGlobal:
		return SpaceGlobal, true
	case KindTag:
		return SpaceTag, true
	}
	return 0, false
}

// Section is one top-level section as it appears in the file.
type Section struct {
	Name    string // custom sections only
	Range   Range  // id byte through end of payload
	Payload Range
	ID      byte
}

// TypeEntry is one entry of the type index space. Entries inside a
// recursive group each get their own entry.
type TypeEntry struct {
	Refs  []Ref
	Range Range
	Form  byte
}

// Import is one entry of the import section.
type Import struct {
	Module string
	Field  string
	Refs   []Ref
	Range  Range
	Index  uint32 // index within the imported kind's space
	Kind   byte
}

// LocalDecl is one run of local declarations in a function body.
type LocalDecl struct {
	Type   string
	Offset int // absolute offset of the declaration
	Count  uint32
}

// Func is a defined function: its function-section type and code entry.
type Func struct {
	Locals []LocalDecl
	// Range spans the code entry including its size prefix.
	Range Range
	// Body spans the locals and instructions.
	Body Range
	// CodeStart is the offset of the first instruction.
	CodeStart int
	TypeIdx   uint32
}

// Entity is a table, memory, global, or tag definition.
type Entity struct {
	Refs  []Ref
	Range Range
}

// Export is one entry of the export section.
type Export struct {
	Name  string
	Range Range
	Index uint32
	Kind  byte
}

// SegmentMode distinguishes active, passive, and declarative segments.
type SegmentMode uint8

const (
	ModeActive SegmentMode = iota
	ModePassive
	ModeDeclarative
)

func (m SegmentMode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModePassive:
		return "passive"
	case ModeDeclarative:
		return "declarative"
	}
	return "unknown"
}

// Element is one element segment.
type Element struct {
	// Refs holds offset-expression references.
	Refs []Ref
	// Funcs lists the functions placed by the segment, in order.
	Funcs []uint32
	Range Range
	Table uint32
	Mode  SegmentMode
}

// Data is one data segment.
type Data struct {
	Refs   []Ref
	Range  Range
	Init   Range
	Memory uint32
	Mode   SegmentMode
}

// Custom is a custom section.
type Custom struct {
	Name  string
	Range Range
	Data  []byte
}

// Names holds the contents of the "name" custom section.
type Names struct {
	Funcs    map[uint32]string
	Types    map[uint32]string
	Tables   map[uint32]string
	Memories map[uint32]string
	Globals  map[uint32]string
	Elems    map[uint32]string
	Data     map[uint32]string
	Tags     map[uint32]string
	Module   string
}

// Lookup returns the name recorded for an index in a space.
func (n *Names) Lookup(space Space, idx uint32) string {
	if n == nil {
		return ""
	}
	var m map[uint32]string
	switch space {
	case SpaceFunc:
		m = n.Funcs
	case SpaceType:
		m = n.Types
	case SpaceTable:
		m = n.Tables
	case SpaceMemory:
		m = n.Memories
	case SpaceGlobal:
		m = n.Globals
	case SpaceElem:
		m = n.Elems
	case SpaceData:
		m = n.Data
	case SpaceTag:
		m = n.Tags
	}
	return m[idx]
}

// Module is a parsed core module with byte ranges for every entity.
type Module struct {
	Names *Names
	// NameErr records why the name section was ignored, if it was.
	NameErr error
	Start   *uint32

	Sections []Section
	Types    []TypeEntry
	Imports  []Import
	Funcs    []Func
	Tables   []Entity
	Memories []Entity
	Globals  []Entity
	Tags     []Entity
	Exports  []Export
	Elements []Element
	Data     []Data
	Customs  []Custom

	// StartRange covers the start section, DataCountRange the data count section.
	StartRange     Range
	DataCountRange Range

	// Size is the input length in bytes.
	Size int
	// CodeBase is the absolute offset of the code section payload; DWARF
	// addresses in WebAssembly are relative to it.
	CodeBase int

	ImportedFuncs    uint32
	ImportedTables   uint32
	ImportedMemories uint32
	ImportedGlobals  uint32
	ImportedTags     uint32
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() uint32 { return m.ImportedFuncs + uint32(len(m.Funcs)) }

// NumTables returns the size of the table index space.
func (m *Module) NumTables() uint32 { return m.ImportedTables + uint32(len(m.Tables)) }

// NumMemories returns the size of the memory index space.
func (m *Module) NumMemories() uint32 { return m.ImportedMemories + uint32(len(m.Memories)) }

// NumGlobals returns the size of the global index space.
func (m *Module) NumGlobals() uint32 { return m.ImportedGlobals + uint32(len(m.Globals)) }

// NumTags returns the size of the tag index space.
func (m *Module) NumTags() uint32 { return m.ImportedTags + uint32(len(m.Tags)) }

// SpaceLen returns the number of valid indices in a space.
func (m *Module) SpaceLen(s Space) uint32 {
	switch s {
	case SpaceFunc:
		return m.NumFuncs()
	case SpaceTable:
		return m.NumTables()
	case SpaceMemory:
		return m.NumMemories()
	case SpaceGlobal:
		return m.NumGlobals()
	case SpaceTag:
		return m.NumTags()
	case SpaceType:
		return uint32(len(m.Types))
	case SpaceData:
		return uint32(len(m.Data))
	case SpaceElem:
		return uint32(len(m.Elements))
	}
	return 0
}
