// Package debuginfo builds an address-to-source table from DWARF sections.
//
// The table splits the covered address space at every line-table row and
// every subprogram or inlined-subroutine boundary, so each mapping carries
// one fixed inline-frame chain. Lookups are binary searches.
package debuginfo

import (
	"debug/dwarf"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/binsize/errors"
)

// Frame is one level of an inline chain.
type Frame struct {
	Function string `json:"function,omitempty" yaml:"function,omitempty"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column   int    `json:"column,omitempty" yaml:"column,omitempty"`
}

func (f Frame) String() string {
	loc := f.File
	if f.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, f.Line)
	}
	switch {
	case f.Function == "":
		return loc
	case loc == "":
		return f.Function
	}
	return f.Function + " at " + loc
}

// Mapping covers [Start, End). Frames are innermost first.
type Mapping struct {
	Frames []Frame `json:"frames" yaml:"frames"`
	Start  uint64  `json:"start" yaml:"start"`
	End    uint64  `json:"end" yaml:"end"`
}

// Table is the sorted, non-overlapping mapping list for one binary.
type Table struct {
	mappings []Mapping
	// Skipped counts compilation units that failed to decode.
	Skipped int
}

// Len returns the number of mappings.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.mappings)
}

// Mappings returns every mapping in address order.
func (t *Table) Mappings() []Mapping {
	if t == nil {
		return nil
	}
	return t.mappings
}

// Lookup returns the frame chain covering addr, or nil. A nil table has
// no mappings.
func (t *Table) Lookup(addr uint64) []Frame {
	if t == nil {
		return nil
	}
	i := sort.Search(len(t.mappings), func(i int) bool { return t.mappings[i].End > addr })
	if i < len(t.mappings) && t.mappings[i].Start <= addr {
		return t.mappings[i].Frames
	}
	return nil
}

// supplementary sections that dwarf.New does not take as arguments.
var extraSections = []string{
	".debug_addr",
	".debug_line_str",
	".debug_loclists",
	".debug_rnglists",
	".debug_str_offsets",
}

// Build decodes the given .debug_* sections. Missing or undecodable
// sections fail with DebugInfoUnavailable, which callers treat as soft.
// A unit that fails midway is skipped; mappings already read are kept.
func Build(sections map[string][]byte) (t *Table, err error) {
	if len(sections[".debug_info"]) == 0 {
		return nil, errors.DebugInfoUnavailable("no .debug_info section", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, errors.DebugInfoUnavailable(fmt.Sprintf("corrupt DWARF: %v", r), nil)
		}
	}()

	d, err := dwarf.New(
		sections[".debug_abbrev"],
		sections[".debug_aranges"],
		sections[".debug_frame"],
		sections[".debug_info"],
		sections[".debug_line"],
		sections[".debug_pubnames"],
		sections[".debug_ranges"],
		sections[".debug_str"],
	)
	if err != nil {
		return nil, errors.DebugInfoUnavailable("cannot open DWARF", err)
	}
	for _, name := range extraSections {
		if data := sections[name]; len(data) > 0 {
			if err := d.AddSection(name, data); err != nil {
				return nil, errors.DebugInfoUnavailable("cannot add "+name, err)
			}
		}
	}

	c := newCollector(d)
	c.walk()
	t = &Table{mappings: c.mappings(), Skipped: c.skipped}

	Logger().Debug("debug info table built",
		zap.Int("mappings", len(t.mappings)),
		zap.Int("line_rows", len(c.rows)),
		zap.Int("scopes", len(c.scopes)),
		zap.Int("skipped_units", c.skipped))
	return t, nil
}
