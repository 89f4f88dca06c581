package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported core module version.
	Version uint32 = 0x01

	// HeaderSize is the length of magic plus version.
	HeaderSize = 8
)

// ComponentLayer is the layer field of a component-model preamble. A
// component shares the "\0asm" magic but carries version 0x0d and layer 1.
const ComponentLayer uint16 = 0x01

// Section IDs define the binary identifiers for each module section.
const (
	SectionCustom    byte = 0  // Custom section (can appear anywhere)
	SectionType      byte = 1  // Type section (function signatures)
	SectionImport    byte = 2  // Import section
	SectionFunction  byte = 3  // Function section (type indices)
	SectionTable     byte = 4  // Table section
	SectionMemory    byte = 5  // Memory section
	SectionGlobal    byte = 6  // Global section
	SectionExport    byte = 7  // Export section
	SectionStart     byte = 8  // Start section
	SectionElement   byte = 9  // Element section
	SectionCode      byte = 10 // Code section (function bodies)
	SectionData      byte = 11 // Data section
	SectionDataCount byte = 12 // Data count section (bulk memory)
	SectionTag       byte = 13 // Tag section (exception handling)
)

// Import/Export descriptor kinds identify the type of imported or exported item.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
	KindTag    byte = 4
)

// Value type encodings referenced by the decoder.
const (
	ValI32     byte = 0x7F
	ValI64     byte = 0x7E
	ValF32     byte = 0x7D
	ValF64     byte = 0x7C
	ValV128    byte = 0x7B
	ValFuncRef byte = 0x70
	ValExtern  byte = 0x6F
	ValRefNull byte = 0x63 // (ref null ht)
	ValRef     byte = 0x64 // (ref ht)
)

// Type section forms.
const (
	FuncTypeByte   byte = 0x60
	StructTypeByte byte = 0x5F
	ArrayTypeByte  byte = 0x5E
	RecTypeByte    byte = 0x4E
	SubTypeByte    byte = 0x50
	SubFinalByte   byte = 0x4F
)

// Limits flags
const (
	LimitsHasMax   byte = 0x01
	LimitsShared   byte = 0x02
	LimitsMemory64 byte = 0x04
)

// Opcodes the reader and the test builder refer to by name. The full
// mnemonic table lives in opcodes.go.
const (
	OpUnreachable        byte = 0x00
	OpNop                byte = 0x01
	OpBlock              byte = 0x02
	OpLoop               byte = 0x03
	OpIf                 byte = 0x04
	OpElse               byte = 0x05
	OpEnd                byte = 0x0B
	OpBr                 byte = 0x0C
	OpReturn             byte = 0x0F
	OpCall               byte = 0x10
	OpCallIndirect       byte = 0x11
	OpReturnCall         byte = 0x12
	OpReturnCallIndirect byte = 0x13
	OpDrop               byte = 0x1A
	OpLocalGet           byte = 0x20
	OpLocalSet           byte = 0x21
	OpGlobalGet          byte = 0x23
	OpGlobalSet          byte = 0x24
	OpTableGet           byte = 0x25
	OpTableSet           byte = 0x26
	OpI32Load            byte = 0x28
	OpI32Store           byte = 0x36
	OpMemorySize         byte = 0x3F
	OpMemoryGrow         byte = 0x40
	OpI32Const           byte = 0x41
	OpI64Const           byte = 0x42
	OpF32Const           byte = 0x43
	OpF64Const           byte = 0x44
	OpI32Add             byte = 0x6A
	OpI32Sub             byte = 0x6B
	OpI32Mul             byte = 0x6C
	OpI64Add             byte = 0x7C
	OpI64Sub             byte = 0x7D
	OpI64Mul             byte = 0x7E
	OpRefNull            byte = 0xD0
	OpRefFunc            byte = 0xD2
)

// Multi-byte opcode prefixes, followed by a LEB128 sub-opcode.
const (
	OpPrefixGC     byte = 0xFB
	OpPrefixMisc   byte = 0xFC
	OpPrefixSIMD   byte = 0xFD
	OpPrefixAtomic byte = 0xFE
)

// Misc sub-opcodes (0xFC prefix) that reference index spaces.
const (
	MiscMemoryInit uint32 = 0x08
	MiscDataDrop   uint32 = 0x09
	MiscMemoryCopy uint32 = 0x0A
	MiscMemoryFill uint32 = 0x0B
	MiscTableInit  uint32 = 0x0C
	MiscElemDrop   uint32 = 0x0D
	MiscTableCopy  uint32 = 0x0E
)

// GC sub-opcodes (0xFB prefix) valid in constant expressions.
const (
	GCStructNew        uint32 = 0x00
	GCStructNewDefault uint32 = 0x01
	GCArrayNew         uint32 = 0x06
	GCArrayNewDefault  uint32 = 0x07
	GCArrayNewFixed    uint32 = 0x08
	GCRefI31           uint32 = 0x1C
)

// SimdV128Const is the only SIMD sub-opcode allowed in constant expressions.
const SimdV128Const uint32 = 0x0C

// AtomicFence carries a reserved byte instead of a memarg.
const AtomicFence uint32 = 0x03

// Catch clause kinds for try_table
const (
	CatchKindCatch    byte = 0x00
	CatchKindCatchRef byte = 0x01
)

// Name section subsection IDs.
const (
	NameModule   byte = 0
	NameFunction byte = 1
	NameLocal    byte = 2
	NameLabel    byte = 3
	NameType     byte = 4
	NameTable    byte = 5
	NameMemory   byte = 6
	NameGlobal   byte = 7
	NameElem     byte = 8
	NameData     byte = 9
	NameField    byte = 10
	NameTag      byte = 11
)

// memArgMultiMemBit marks a memarg that carries an explicit memory index.
const memArgMultiMemBit = 0x40
