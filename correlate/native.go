package correlate

import (
	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/loader"
)

func (c *Correlator) native(l *Listing, it *loader.RawItem, b *budget) error {
	code := c.raw.Code(it)
	obj := c.raw.Object
	for pos := 0; pos < len(code); {
		if reason := b.next(); reason != "" {
			l.truncate(reason)
			return nil
		}
		off := it.CodeStart + pos
		ins, err := c.dec.Decode(code[pos:], it.DebugAddr+uint64(pos))
		if err != nil {
			l.Records = append(l.Records, InstructionRecord{
				Kind:   RecordError,
				Offset: off,
				Text:   err.Error(),
			})
			l.truncate("undecodable instruction")
			return nil
		}
		rec := InstructionRecord{
			Kind:   RecordInstruction,
			Offset: off,
			Len:    ins.Len,
			Text:   ins.Text,
			Frames: c.frames(it, off),
		}
		if obj != nil && !obj.Relocatable() {
			for _, t := range ins.Targets {
				if s := obj.SymbolAt(-1, t); s >= 0 {
					rec.Refs = append(rec.Refs, graph.MakeID(loader.SpaceSymbol, uint32(s)))
				}
			}
		}
		l.Records = append(l.Records, rec)
		pos += ins.Len
	}
	return nil
}
