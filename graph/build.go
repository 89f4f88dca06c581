package graph

import (
	"fmt"
	"strconv"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/loader"
)

type buildOptions struct {
	customSections bool
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithCustomSections keeps custom sections as graph items. They are
// dropped by default: debug info and names are not part of what the
// module keeps alive.
func WithCustomSections(include bool) BuildOption {
	return func(o *buildOptions) { o.customSections = include }
}

// Build converts a raw model into the item graph. Roots are synthesized
// for every export, the start function, and every element segment. A
// reference to an index that does not exist fails with MalformedBinary
// at the referencing item's first byte.
func Build(raw *loader.RawModel, opts ...BuildOption) (*Graph, error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	b := NewBuilder()
	kinds := make(map[ItemID]Kind, len(raw.Items))
	names := make(map[ItemID]string, len(raw.Items))
	for i := range raw.Items {
		ri := &raw.Items[i]
		if ri.Name != "" {
			names[MakeID(ri.Space, ri.Index)] = ri.Name
		}
		if ri.Kind == loader.KindCustom && !o.customSections {
			continue
		}
		id := MakeID(ri.Space, ri.Index)
		if err := b.AddItem(Item{ID: id, Name: ri.Name, Aliases: ri.Aliases, Kind: ri.Kind, Size: ri.Range.Len(), Range: ri.Range}); err != nil {
			return nil, errors.Malformed(ri.Range.Start, err.Error())
		}
		kinds[id] = ri.Kind
	}

	root := func(name string, target loader.RawRef, kind EdgeKind) error {
		to := MakeID(target.Space, target.Index)
		if !b.Has(to) {
			return errors.Internal(errors.PhaseBuild, fmt.Sprintf("root %q targets missing item %s", name, to))
		}
		return b.AddEdge(b.AddRoot(name), to, kind)
	}
	for _, ref := range raw.Exports {
		name := "root export"
		if n := names[MakeID(ref.Space, ref.Index)]; n != "" {
			name = "root " + n
		}
		if err := root(name, ref, EdgeExports); err != nil {
			return nil, err
		}
	}
	if raw.Start != nil {
		if err := root("root start", *raw.Start, EdgeStartFunction); err != nil {
			return nil, err
		}
	}
	for _, ref := range raw.Elements {
		if err := root("root elem["+strconv.FormatUint(uint64(ref.Index), 10)+"]", ref, EdgeTableEntry); err != nil {
			return nil, err
		}
	}

	for i := range raw.Items {
		ri := &raw.Items[i]
		from := MakeID(ri.Space, ri.Index)
		if !b.Has(from) {
			continue
		}
		for _, ref := range ri.Refs {
			to := MakeID(ref.Space, ref.Index)
			if !b.Has(to) {
				return nil, errors.New(errors.PhaseBuild, errors.KindMalformed).
					Offset(ri.Range.Start).
					Item(from.String()).
					Detail("reference to missing %s", to).
					Build()
			}
			if err := b.AddEdge(from, to, edgeKind(ri.Kind, kinds[to], ref)); err != nil {
				return nil, errors.Internal(errors.PhaseBuild, err.Error())
			}
		}
	}
	return b.Graph(), nil
}

// edgeKind derives the edge kind from the reference and both item kinds.
func edgeKind(from, to Kind, ref loader.RawRef) EdgeKind {
	switch ref.Kind {
	case loader.RefExport:
		return EdgeExports
	case loader.RefStart:
		return EdgeStartFunction
	case loader.RefTableEntry:
		return EdgeTableEntry
	}
	switch ref.Space {
	case loader.SpaceType:
		return EdgeUsesType
	case loader.SpaceTable, loader.SpaceElem:
		return EdgeTableEntry
	}
	callee := to == loader.KindFunction || to == loader.KindImport && ref.Space == loader.SpaceFunc
	if from == loader.KindFunction && callee {
		return EdgeCalls
	}
	return EdgeReferencesData
}
