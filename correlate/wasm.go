package correlate

import (
	"fmt"

	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/loader"
	"github.com/wippyai/binsize/wasm"
)

func (c *Correlator) wasm(l *Listing, it *loader.RawItem, b *budget) error {
	for i, decl := range it.Locals {
		end := it.CodeStart
		if i+1 < len(it.Locals) {
			end = it.Locals[i+1].Offset
		}
		l.Records = append(l.Records, InstructionRecord{
			Kind:   RecordLocal,
			Offset: decl.Offset,
			Len:    end - decl.Offset,
			Text:   localText(decl),
		})
	}

	dec := wasm.NewDecoder(c.raw.Code(it), it.CodeStart, true)
	for dec.More() {
		if reason := b.next(); reason != "" {
			l.truncate(reason)
			return nil
		}
		off := dec.Offset()
		ins, err := dec.Next()
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
			Offset: ins.Offset,
			Len:    ins.Len,
			Text:   ins.Text,
			Frames: c.frames(it, ins.Offset),
		}
		for _, r := range ins.Refs {
			rec.Refs = append(rec.Refs, graph.MakeID(loader.FromWasm(r.Space), r.Index))
		}
		l.Records = append(l.Records, rec)
	}
	return nil
}

func localText(d wasm.LocalDecl) string {
	if d.Count == 1 {
		return "local " + d.Type
	}
	return fmt.Sprintf("local %d x %s", d.Count, d.Type)
}
