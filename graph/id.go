package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/binsize/loader"
)

// Space is the index space an item came from.
type Space = loader.Space

// Kind classifies an item.
type Kind = loader.Kind

// ItemID identifies an item by its position in the binary's index spaces.
// The high byte holds the Space; the low 32 bits hold the index.
type ItemID uint64

const spaceShift = 56

// MakeID returns the identifier for index in space.
func MakeID(space Space, index uint32) ItemID {
	return ItemID(uint64(space)<<spaceShift | uint64(index))
}

// Space returns the index space tag.
func (id ItemID) Space() Space {
	return Space(id >> spaceShift)
}

// Index returns the index within the space.
func (id ItemID) Index() uint32 {
	return uint32(id)
}

func (id ItemID) String() string {
	return fmt.Sprintf("%s[%d]", id.Space(), id.Index())
}

// MarshalText encodes the ID as "space[index]".
func (id ItemID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the "space[index]" form.
func (id *ItemID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID parses the "space[index]" form produced by String.
func ParseID(s string) (ItemID, error) {
	open := strings.IndexByte(s, '[')
	if open <= 0 || !strings.HasSuffix(s, "]") {
		return 0, fmt.Errorf("item id %q: want space[index]", s)
	}
	name := s[:open]
	idx, err := strconv.ParseUint(s[open+1:len(s)-1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("item id %q: %w", s, err)
	}
	for sp := loader.SpaceRoot; sp <= loader.SpaceSection; sp++ {
		if sp.String() == name {
			return MakeID(sp, uint32(idx)), nil
		}
	}
	return 0, fmt.Errorf("item id %q: unknown space %q", s, name)
}

// EdgeKind says why one item keeps another alive.
type EdgeKind uint8

const (
	EdgeCalls EdgeKind = iota
	EdgeReferencesData
	EdgeUsesType
	EdgeExports
	EdgeTableEntry
	EdgeStartFunction
)

var edgeKindNames = [...]string{
	EdgeCalls:          "calls",
	EdgeReferencesData: "references-data",
	EdgeUsesType:       "uses-type",
	EdgeExports:        "exports",
	EdgeTableEntry:     "table-entry",
	EdgeStartFunction:  "start-function",
}

func (k EdgeKind) String() string {
	if int(k) < len(edgeKindNames) {
		return edgeKindNames[k]
	}
	return "edge(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText encodes the kind by name.
func (k EdgeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EdgeKind) UnmarshalText(b []byte) error {
	for i, n := range edgeKindNames {
		if n == string(b) {
			*k = EdgeKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown edge kind %q", b)
}
