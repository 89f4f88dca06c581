// Package wasm reads WebAssembly core modules for size attribution.
//
// Unlike a loader that prepares a module for execution, this reader keeps
// the absolute byte range of every entity: type entries, imports, function
// code entries, tables, memories, globals, tags, exports, element and data
// segments, and custom sections. References between entities are expressed
// in the module's own index spaces (Ref{Space, Index}).
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	m, err := wasm.Parse(data)
//	if err != nil {
//	    // *errors.Error with Kind malformed_binary and an absolute Offset
//	}
//
// The "name" custom section is decoded into m.Names. A malformed name
// section never fails the parse; the reason is kept in m.NameErr.
//
// # Instructions
//
// Function bodies are decoded lazily:
//
//	fn := m.Funcs[0]
//	d := wasm.NewDecoder(data[fn.CodeStart:fn.Range.End], fn.CodeStart, true)
//	for d.More() {
//	    ins, err := d.Next()
//	    ...
//	    fmt.Printf("%06x %s\n", ins.Offset, ins.Text)
//	}
//
// The decoder covers the core instruction set plus the 0xFB (GC), 0xFC
// (saturating truncation, bulk memory, tables), 0xFD (SIMD, relaxed SIMD),
// and 0xFE (threads) prefixes, exception handling, tail calls, and typed
// function references.
package wasm
