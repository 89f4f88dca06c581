package wasm

import (
	"fmt"

	"github.com/wippyai/binsize/errors"
	bin "github.com/wippyai/binsize/wasm/internal/binary"
)

// parseNames decodes the payload of a "name" custom section that starts at
// absolute offset base. Unknown subsections and per-local names are skipped.
func parseNames(data []byte, base int) (*Names, error) {
	r := bin.NewReader(data, base)
	n := &Names{}
	for !r.Done() {
		id, _ := r.ReadByte()
		size, err := r.ReadU32()
		if err != nil {
			return nil, malformed(err, r.Offset(), "name subsection header")
		}
		sr, err := r.Sub(int(size))
		if err != nil {
			return nil, malformed(err, r.Offset(), "name subsection size")
		}

		var target *map[uint32]string
		switch id {
		case NameModule:
			if n.Module, err = sr.ReadName(); err != nil {
				return nil, malformed(err, sr.Offset(), "module name")
			}
			continue
		case NameFunction:
			target = &n.Funcs
		case NameType:
			target = &n.Types
		case NameTable:
			target = &n.Tables
		case NameMemory:
			target = &n.Memories
		case NameGlobal:
			target = &n.Globals
		case NameElem:
			target = &n.Elems
		case NameData:
			target = &n.Data
		case NameTag:
			target = &n.Tags
		default:
			continue
		}
		if *target, err = readNameMap(sr); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func readNameMap(r *bin.Reader) (map[uint32]string, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, malformed(err, r.Offset(), "name map count")
	}
	if int(count) > r.Len() {
		return nil, errors.Malformed(r.Offset(), fmt.Sprintf("name map count %d exceeds subsection", count))
	}
	m := make(map[uint32]string, count)
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return nil, malformed(err, r.Offset(), "name map index")
		}
		name, err := r.ReadName()
		if err != nil {
			return nil, malformed(err, r.Offset(), "name map entry")
		}
		m[idx] = name
	}
	return m, nil
}
