package debuginfo

import (
	"debug/dwarf"
	"io"
	"sort"

	"go.uber.org/zap"
)

// maxOriginHops bounds abstract_origin/specification chains.
const maxOriginHops = 8

type row struct {
	file      string
	addr, end uint64
	line, col int
}

type scope struct {
	name     string
	callFile string
	lo, hi   uint64
	depth    int
	order    int
	callLine int
	callCol  int
}

type collector struct {
	d      *dwarf.Data
	names  map[dwarf.Offset]string
	rows   []row
	scopes []scope

	skipped int
}

func newCollector(d *dwarf.Data) *collector {
	return &collector{d: d, names: map[dwarf.Offset]string{}}
}

// walk finds every unit first, then reads each with its own reader so a
// corrupt unit only loses itself.
func (c *collector) walk() {
	var units []dwarf.Offset
	r := c.d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			c.skipped++
			Logger().Warn("DWARF unit list truncated", zap.Error(err))
			break
		}
		if e == nil {
			break
		}
		switch e.Tag {
		case dwarf.TagCompileUnit, dwarf.TagPartialUnit:
			units = append(units, e.Offset)
		}
		r.SkipChildren()
	}

	for _, off := range units {
		rows, scopes := len(c.rows), len(c.scopes)
		if err := c.unit(off); err != nil {
			c.rows, c.scopes = c.rows[:rows], c.scopes[:scopes]
			c.skipped++
			Logger().Warn("skipping DWARF unit", zap.Uint32("offset", uint32(off)), zap.Error(err))
		}
	}
}

func (c *collector) unit(off dwarf.Offset) error {
	r := c.d.Reader()
	r.Seek(off)
	cu, err := r.Next()
	if err != nil {
		return err
	}
	if cu == nil {
		return nil
	}

	files, err := c.lines(cu)
	if err != nil {
		return err
	}
	if !cu.Children {
		return nil
	}

	depth := 1
	for depth > 0 {
		e, err := r.Next()
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}
		if e.Tag == 0 {
			depth--
			continue
		}
		if e.Tag == dwarf.TagSubprogram || e.Tag == dwarf.TagInlinedSubroutine {
			c.addScope(e, depth, files)
		}
		if e.Children {
			depth++
		}
	}
	return nil
}

// lines appends the unit's line rows and returns its file table.
func (c *collector) lines(cu *dwarf.Entry) ([]*dwarf.LineFile, error) {
	lr, err := c.d.LineReader(cu)
	if err != nil || lr == nil {
		return nil, err
	}
	files := lr.Files()

	var (
		e    dwarf.LineEntry
		prev dwarf.LineEntry
		have bool
	)
	for {
		if err := lr.Next(&e); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if have && !prev.EndSequence && e.Address > prev.Address {
			c.rows = append(c.rows, row{
				addr: prev.Address, end: e.Address,
				file: fileName(prev.File), line: prev.Line, col: prev.Column,
			})
		}
		prev, have = e, true
	}
	if len(files) < len(lr.Files()) {
		files = lr.Files()
	}
	return files, nil
}

func (c *collector) addScope(e *dwarf.Entry, depth int, files []*dwarf.LineFile) {
	ranges, err := c.d.Ranges(e)
	if err != nil {
		return
	}
	name := c.name(e, 0)
	callFile := ""
	if idx, ok := e.Val(dwarf.AttrCallFile).(int64); ok && idx >= 0 && idx < int64(len(files)) {
		callFile = fileName(files[idx])
	}
	callLine, _ := e.Val(dwarf.AttrCallLine).(int64)
	callCol, _ := e.Val(dwarf.AttrCallColumn).(int64)
	for _, rng := range ranges {
		if rng[1] <= rng[0] {
			continue
		}
		c.scopes = append(c.scopes, scope{
			lo: rng[0], hi: rng[1],
			depth: depth, order: len(c.scopes),
			name: name, callFile: callFile,
			callLine: int(callLine), callCol: int(callCol),
		})
	}
}

func (c *collector) name(e *dwarf.Entry, hops int) string {
	if n, ok := e.Val(dwarf.AttrName).(string); ok {
		return n
	}
	if n, ok := e.Val(dwarf.AttrLinkageName).(string); ok {
		return n
	}
	if hops >= maxOriginHops {
		return ""
	}
	for _, attr := range []dwarf.Attr{dwarf.AttrAbstractOrigin, dwarf.AttrSpecification} {
		if off, ok := e.Val(attr).(dwarf.Offset); ok {
			return c.origin(off, hops+1)
		}
	}
	return ""
}

func (c *collector) origin(off dwarf.Offset, hops int) string {
	if n, ok := c.names[off]; ok {
		return n
	}
	r := c.d.Reader()
	r.Seek(off)
	e, err := r.Next()
	n := ""
	if err == nil && e != nil {
		n = c.name(e, hops)
	}
	c.names[off] = n
	return n
}

func fileName(f *dwarf.LineFile) string {
	if f == nil {
		return ""
	}
	return f.Name
}

// mappings cuts the address space at every row and scope boundary and
// emits one mapping per covered piece, merging equal neighbours.
func (c *collector) mappings() []Mapping {
	rows := normalizeRows(c.rows)
	scopes := append([]scope(nil), c.scopes...)
	sort.SliceStable(scopes, func(i, j int) bool { return scopes[i].lo < scopes[j].lo })

	points := make([]uint64, 0, 2*(len(rows)+len(scopes)))
	for _, r := range rows {
		points = append(points, r.addr, r.end)
	}
	for _, s := range scopes {
		points = append(points, s.lo, s.hi)
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	points = uniq(points)

	var (
		out    []Mapping
		active []scope
		si, ri int
	)
	for i := 0; i+1 < len(points); i++ {
		a, b := points[i], points[i+1]
		for si < len(scopes) && scopes[si].lo <= a {
			active = append(active, scopes[si])
			si++
		}
		live := active[:0]
		for _, s := range active {
			if s.hi > a {
				live = append(live, s)
			}
		}
		active = live
		for ri < len(rows) && rows[ri].end <= a {
			ri++
		}
		var r *row
		if ri < len(rows) && rows[ri].addr <= a {
			r = &rows[ri]
		}
		if r == nil && len(active) == 0 {
			continue
		}

		frames := chain(r, active)
		if n := len(out); n > 0 && out[n-1].End == a && sameFrames(out[n-1].Frames, frames) {
			out[n-1].End = b
			continue
		}
		out = append(out, Mapping{Start: a, End: b, Frames: frames})
	}
	return out
}

// chain orders the covering scopes innermost first. The innermost frame
// takes its location from the line row; each outer frame takes the call
// site recorded on the frame inside it.
func chain(r *row, active []scope) []Frame {
	if len(active) == 0 {
		return []Frame{{File: r.file, Line: r.line, Column: r.col}}
	}
	inner := append([]scope(nil), active...)
	sort.Slice(inner, func(i, j int) bool {
		if inner[i].depth != inner[j].depth {
			return inner[i].depth > inner[j].depth
		}
		return inner[i].order > inner[j].order
	})
	frames := make([]Frame, len(inner))
	for k, s := range inner {
		f := Frame{Function: s.name}
		switch {
		case k > 0:
			call := inner[k-1]
			f.File, f.Line, f.Column = call.callFile, call.callLine, call.callCol
		case r != nil:
			f.File, f.Line, f.Column = r.file, r.line, r.col
		}
		frames[k] = f
	}
	return frames
}

// normalizeRows sorts rows and trims overlaps in favour of the earlier row.
func normalizeRows(in []row) []row {
	rows := append([]row(nil), in...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].addr < rows[j].addr })
	out := rows[:0]
	var end uint64
	for _, r := range rows {
		if len(out) > 0 && r.addr < end {
			if r.end <= end {
				continue
			}
			r.addr = end
		}
		out = append(out, r)
		end = r.end
	}
	return out
}

func uniq(xs []uint64) []uint64 {
	out := xs[:0]
	for _, x := range xs {
		if len(out) == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

func sameFrames(a, b []Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
