// Package binsize attributes the bytes of compiled binaries to the items
// that occupy them and explains what keeps each item alive.
//
// It loads WebAssembly modules and ELF objects or executables, builds a
// graph of references between functions, data, types, and metadata, and
// computes dominators over that graph so that every item has a retained
// size: the bytes that would disappear if it were removed. Items no root
// reaches are reported as garbage.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	binsize/
//	├── loader/          Format detection and raw item extraction
//	├── wasm/            WebAssembly section, name, and instruction decoding
//	├── native/          ELF symbols, relocations, and machine-code decoding
//	├── graph/           Item graph with synthetic roots
//	├── analysis/        Dominator tree, retained sizes, garbage
//	├── query/           Top lists, paths to roots, summaries
//	├── debuginfo/       DWARF address to inline-frame mapping
//	├── correlate/       Annotated per-item disassembly
//	├── snapshot/        Load pipeline, atomic store, file watching, metrics
//	├── report/          Text, JSON, and YAML rendering
//	├── config/          Embedded defaults and TOML overrides
//	├── errors/          Structured error types
//	└── cmd/binsize/     Command-line interface and terminal explorer
//
// # Quick Start
//
// Analyze a file and list what it spends its bytes on:
//
//	s, err := snapshot.Load(ctx, "app.wasm", snapshot.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, e := range s.Query.TopByRetainedSize(10) {
//	    fmt.Println(e.Retained, e.Name)
//	}
//
//	p, err := s.Query.PathToRoot(id)
//	if errors.Is(err, binerrors.ErrItemNotReachable) {
//	    // id is garbage
//	}
//
// # Thread Safety
//
// A Snapshot and everything reachable from it is immutable once Load
// returns, so queries and disassembly may run from any number of
// goroutines. A reload produces a new Snapshot; snapshot.Store publishes
// it atomically and only when the load succeeded.
package binsize
