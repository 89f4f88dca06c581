package loader

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/binsize/native"
)

func loadELF(ctx context.Context, data []byte, o options) (*RawModel, error) {
	obj, err := native.Parse(data)
	if err != nil {
		return nil, err
	}

	if !obj.Relocatable() {
		dec, err := native.NewDecoder(obj.Machine, obj)
		if err != nil {
			// references stay limited to what the symbol table gives us
			Logger().Warn("no disassembler for machine; call edges unavailable",
				zap.String("machine", obj.Machine.String()))
		} else {
			g, ctx := errgroup.WithContext(ctx)
			g.SetLimit(o.parallelism)
			for i := range obj.Symbols {
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					obj.ScanCode(dec, data, i)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
		}
	}

	raw := &RawModel{
		Format:        FormatELF,
		Data:          data,
		Size:          len(data),
		Machine:       obj.Machine,
		Object:        obj,
		DebugSections: obj.DebugSections,
	}
	for i, s := range obj.Symbols {
		it := RawItem{
			Space:   SpaceSymbol,
			Index:   uint32(i),
			Kind:    KindSymbolData,
			Name:    s.Name,
			Aliases: s.Aliases,
			Range:   Range{Start: s.Offset, End: s.Offset + s.Size},
		}
		if s.Func {
			it.Kind = KindFunction
			it.CodeStart = s.Offset
			it.DebugAddr = s.Addr
		}
		for _, r := range s.Refs {
			it.Refs = append(it.Refs, RawRef{Space: SpaceSymbol, Index: uint32(r)})
		}
		raw.Items = append(raw.Items, it)
		if s.Global {
			raw.Exports = append(raw.Exports, RawRef{Space: SpaceSymbol, Index: uint32(i), Kind: RefExport})
		}
	}
	if obj.Start >= 0 {
		raw.Start = &RawRef{Space: SpaceSymbol, Index: uint32(obj.Start), Kind: RefStart}
	}
	return raw, nil
}
