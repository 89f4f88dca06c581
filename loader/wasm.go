package loader

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/binsize/wasm"
)

func loadWasm(ctx context.Context, data []byte, o options) (*RawModel, error) {
	m, err := wasm.Parse(data)
	if err != nil {
		return nil, err
	}
	if m.NameErr != nil {
		Logger().Warn("ignoring malformed name section", zap.Error(m.NameErr))
	}

	bodies, err := scanBodies(ctx, data, m, o.parallelism)
	if err != nil {
		return nil, err
	}

	raw := &RawModel{
		Format:        FormatWasm,
		Data:          data,
		Size:          len(data),
		CodeBase:      m.CodeBase,
		NameErr:       m.NameErr,
		DebugSections: map[string][]byte{},
	}
	names := m.Names

	// Memories own their active data segments and, for memory 0, the data
	// count section; tables own their active element segments. Both hold
	// whether the memory or table is defined or imported.
	memoryRefs := func(idx uint32) []RawRef {
		var refs []RawRef
		for j, seg := range m.Data {
			if seg.Mode == wasm.ModeActive && seg.Memory == idx {
				refs = append(refs, RawRef{Space: SpaceData, Index: uint32(j)})
			}
		}
		if idx == 0 && m.DataCountRange.Len() > 0 {
			refs = append(refs, RawRef{Space: SpaceSection, Index: uint32(wasm.SectionDataCount)})
		}
		return refs
	}
	tableRefs := func(idx uint32) []RawRef {
		var refs []RawRef
		for j, el := range m.Elements {
			if el.Mode == wasm.ModeActive && el.Table == idx {
				refs = append(refs, RawRef{Space: SpaceElem, Index: uint32(j), Kind: RefTableEntry})
			}
		}
		return refs
	}

	for i, t := range m.Types {
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceType, Index: uint32(i), Kind: KindType,
			Name:  names.Lookup(wasm.SpaceType, uint32(i)),
			Range: t.Range, Refs: convert(t.Refs),
		})
	}

	for _, imp := range m.Imports {
		space, _ := wasm.SpaceForKind(imp.Kind)
		name := names.Lookup(space, imp.Index)
		if name == "" {
			name = imp.Module + "." + imp.Field
		}
		refs := convert(imp.Refs)
		switch space {
		case wasm.SpaceMemory:
			refs = append(refs, memoryRefs(imp.Index)...)
		case wasm.SpaceTable:
			refs = append(refs, tableRefs(imp.Index)...)
		}
		raw.Items = append(raw.Items, RawItem{
			Space: FromWasm(space), Index: imp.Index, Kind: KindImport,
			Name: name, Range: imp.Range, Refs: refs,
		})
	}

	for i, fn := range m.Funcs {
		idx := m.ImportedFuncs + uint32(i)
		refs := append([]RawRef{{Space: SpaceType, Index: fn.TypeIdx}}, convert(bodies[i])...)
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceFunc, Index: idx, Kind: KindFunction,
			Name:      names.Lookup(wasm.SpaceFunc, idx),
			Range:     fn.Range,
			CodeStart: fn.CodeStart,
			DebugAddr: uint64(fn.CodeStart - m.CodeBase),
			Locals:    fn.Locals,
			Refs:      dedupe(refs),
		})
	}

	for i, t := range m.Tables {
		idx := m.ImportedTables + uint32(i)
		refs := append(convert(t.Refs), tableRefs(idx)...)
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceTable, Index: idx, Kind: KindTable,
			Name: names.Lookup(wasm.SpaceTable, idx), Range: t.Range, Refs: refs,
		})
	}

	for i, mem := range m.Memories {
		idx := m.ImportedMemories + uint32(i)
		refs := append(convert(mem.Refs), memoryRefs(idx)...)
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceMemory, Index: idx, Kind: KindMemory,
			Name: names.Lookup(wasm.SpaceMemory, idx), Range: mem.Range, Refs: refs,
		})
	}

	for i, tag := range m.Tags {
		idx := m.ImportedTags + uint32(i)
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceTag, Index: idx, Kind: KindTag,
			Name: names.Lookup(wasm.SpaceTag, idx), Range: tag.Range, Refs: convert(tag.Refs),
		})
	}

	for i, g := range m.Globals {
		idx := m.ImportedGlobals + uint32(i)
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceGlobal, Index: idx, Kind: KindGlobal,
			Name: names.Lookup(wasm.SpaceGlobal, idx), Range: g.Range, Refs: convert(g.Refs),
		})
	}

	for i, exp := range m.Exports {
		space, _ := wasm.SpaceForKind(exp.Kind)
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceExport, Index: uint32(i), Kind: KindExport,
			Name:  `export "` + exp.Name + `"`,
			Range: exp.Range,
			Refs:  []RawRef{{Space: FromWasm(space), Index: exp.Index, Kind: RefExport}},
		})
		raw.Exports = append(raw.Exports, RawRef{Space: SpaceExport, Index: uint32(i)})
	}

	if m.Start != nil {
		ref := RawRef{Space: SpaceSection, Index: uint32(wasm.SectionStart)}
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceSection, Index: ref.Index, Kind: KindSection,
			Name: "start", Range: m.StartRange,
			Refs: []RawRef{{Space: SpaceFunc, Index: *m.Start, Kind: RefStart}},
		})
		raw.Start = &ref
	}

	for i, el := range m.Elements {
		refs := convert(el.Refs)
		if el.Mode == wasm.ModeActive {
			refs = append(refs, RawRef{Space: SpaceTable, Index: el.Table})
		}
		for _, f := range el.Funcs {
			refs = append(refs, RawRef{Space: SpaceFunc, Index: f, Kind: RefTableEntry})
		}
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceElem, Index: uint32(i), Kind: KindElement,
			Name: names.Lookup(wasm.SpaceElem, uint32(i)), Range: el.Range, Refs: dedupe(refs),
		})
		raw.Elements = append(raw.Elements, RawRef{Space: SpaceElem, Index: uint32(i)})
	}

	if m.DataCountRange.Len() > 0 {
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceSection, Index: uint32(wasm.SectionDataCount), Kind: KindSection,
			Name: "datacount", Range: m.DataCountRange,
		})
	}

	for i, seg := range m.Data {
		refs := convert(seg.Refs)
		if seg.Mode == wasm.ModeActive {
			refs = append(refs, RawRef{Space: SpaceMemory, Index: seg.Memory})
		}
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceData, Index: uint32(i), Kind: KindData,
			Name: names.Lookup(wasm.SpaceData, uint32(i)), Range: seg.Range, Refs: dedupe(refs),
		})
	}

	for i, c := range m.Customs {
		raw.Items = append(raw.Items, RawItem{
			Space: SpaceCustom, Index: uint32(i), Kind: KindCustom,
			Name: c.Name, Range: c.Range,
		})
		if strings.HasPrefix(c.Name, ".debug_") {
			raw.DebugSections[c.Name] = c.Data
		}
	}

	sortByOffset(raw.Items)
	return raw, nil
}

// scanBodies collects the references of every function body. Bodies are
// decoded in parallel; the error reported is the one from the lowest
// function index so repeated loads fail identically.
func scanBodies(ctx context.Context, data []byte, m *wasm.Module, parallelism int) ([][]wasm.Ref, error) {
	out := make([][]wasm.Ref, len(m.Funcs))
	errs := make([]error, len(m.Funcs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := range m.Funcs {
		fn := m.Funcs[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i], errs[i] = wasm.ScanRefs(data[fn.CodeStart:fn.Range.End], fn.CodeStart)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func convert(refs []wasm.Ref) []RawRef {
	if len(refs) == 0 {
		return nil
	}
	out := make([]RawRef, len(refs))
	for i, r := range refs {
		out[i] = RawRef{Space: FromWasm(r.Space), Index: r.Index}
	}
	return out
}

// dedupe drops repeated references, keeping first occurrences in order.
func dedupe(refs []RawRef) []RawRef {
	if len(refs) < 2 {
		return refs
	}
	seen := make(map[RawRef]struct{}, len(refs))
	out := refs[:0]
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
