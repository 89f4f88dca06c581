package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/binsize/correlate"
	"github.com/wippyai/binsize/debuginfo"
	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/query"
	"github.com/wippyai/binsize/symbol"
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	garbage lipgloss.Style
	frame   lipgloss.Style
	errText lipgloss.Style
}

func plainStyles() styles {
	s := lipgloss.NewStyle()
	return styles{title: s, header: s, garbage: s, frame: s, errText: s}
}

func colorStyles(r *lipgloss.Renderer) styles {
	return styles{
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#87CEEB")),
		garbage: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		frame:   r.NewStyle().Foreground(lipgloss.Color("#666666")),
		errText: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithDemangle renders mangled names as paths.
func WithDemangle(on bool) Option {
	return func(r *Renderer) { r.demangle = on }
}

// WithColor enables terminal styling of text output.
func WithColor(on bool) Option {
	return func(r *Renderer) { r.color = on }
}

// Renderer writes results to w in one format.
type Renderer struct {
	w        io.Writer
	format   Format
	st       styles
	demangle bool
	color    bool
}

// NewRenderer returns a renderer for w.
func NewRenderer(w io.Writer, format Format, opts ...Option) *Renderer {
	r := &Renderer{w: w, format: format}
	for _, opt := range opts {
		opt(r)
	}
	r.st = plainStyles()
	if r.color {
		r.st = colorStyles(lipgloss.NewRenderer(w))
	}
	return r
}

// Format returns the output format.
func (r *Renderer) Format() Format {
	return r.format
}

func (r *Renderer) encode(v any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("format %q is not an encoding", r.format)
}

func (r *Renderer) name(s string) string {
	if r.demangle {
		return symbol.Demangle(s)
	}
	return s
}

func (r *Renderer) names(es []query.Entry) []query.Entry {
	if !r.demangle {
		return es
	}
	out := make([]query.Entry, len(es))
	for i, e := range es {
		e.Name = symbol.Demangle(e.Name)
		out[i] = e
	}
	return out
}

// Entries renders an item list under a title.
func (r *Renderer) Entries(title string, es []query.Entry) error {
	es = r.names(es)
	if r.format != FormatText {
		return r.encode(es)
	}
	r.heading(title)
	r.entryTable(es)
	return nil
}

// Neighbors renders callers or callees of an item.
func (r *Renderer) Neighbors(title string, ns []query.Neighbor) error {
	if r.demangle {
		cp := make([]query.Neighbor, len(ns))
		for i, n := range ns {
			n.Name = symbol.Demangle(n.Name)
			cp[i] = n
		}
		ns = cp
	}
	if r.format != FormatText {
		return r.encode(ns)
	}
	r.heading(title)
	rows := make([][]string, len(ns))
	for i, n := range ns {
		rows[i] = []string{n.Edge.String(), size(n.Size), size(n.Retained), r.entryName(n.Entry)}
	}
	r.table([]string{"EDGE", "SHALLOW", "RETAINED", "NAME"}, []bool{false, true, true, false}, rows)
	return nil
}

// Filtered renders the items matching a name filter and their totals.
func (r *Renderer) Filtered(title string, f query.Filtered) error {
	f.Entries = r.names(f.Entries)
	if r.format != FormatText {
		return r.encode(f)
	}
	r.heading(title)
	r.entryTable(f.Entries)
	fmt.Fprintf(r.w, "%s items matching %q: %s, %s\n",
		humanize.Comma(int64(f.Matches)), f.Pattern, size(f.TotalSize), percent(f.TotalPercent))
	return nil
}

// Generics renders generic functions grouped over their instantiations.
func (r *Renderer) Generics(title string, gs []query.Generic) error {
	if r.demangle {
		cp := make([]query.Generic, len(gs))
		for i, g := range gs {
			g.Name = symbol.Demangle(g.Name)
			cp[i] = g
		}
		gs = cp
	}
	if r.format != FormatText {
		return r.encode(gs)
	}
	r.heading(title)
	r.genericTable(gs)
	return nil
}

func (r *Renderer) genericTable(gs []query.Generic) {
	rows := make([][]string, len(gs))
	for i, g := range gs {
		rows[i] = []string{
			size(g.Bloat), percent(g.BloatPercent),
			size(g.Size), percent(g.SizePercent),
			humanize.Comma(int64(g.Instances)), g.Name,
		}
	}
	r.table(
		[]string{"BLOAT", "%", "TOTAL", "%", "COUNT", "GENERIC"},
		[]bool{true, true, true, true, true, false},
		rows)
}

// Summary renders the whole-binary overview.
func (r *Renderer) Summary(file string, s query.Summary) error {
	if r.format != FormatText {
		return r.encode(s)
	}
	r.summary(file, s)
	return nil
}

func (r *Renderer) summary(file string, s query.Summary) {
	r.heading(file)
	r.table(nil, []bool{false, true, false}, [][]string{
		{"total", size(s.TotalSize), ""},
		{"reachable", size(s.ReachableSize), ""},
		{"garbage", size(s.GarbageSize), fmt.Sprintf("%s items, %.2f%%", humanize.Comma(int64(s.GarbageItems)), s.GarbagePercent)},
		{"items", humanize.Comma(int64(s.Items)), fmt.Sprintf("%d roots, %s edges", s.Roots, humanize.Comma(int64(s.Edges)))},
	})
	fmt.Fprintln(r.w)

	rows := make([][]string, len(s.Kinds))
	for i, k := range s.Kinds {
		rows[i] = []string{k.Kind, humanize.Comma(int64(k.Count)), size(k.Size), size(k.Garbage)}
	}
	r.table([]string{"KIND", "COUNT", "SIZE", "GARBAGE"}, []bool{false, true, true, true}, rows)
}

// Path renders a root-to-item chain.
func (r *Renderer) Path(p *PathReport) error {
	if r.demangle {
		cp := *p
		cp.Target.Name = symbol.Demangle(cp.Target.Name)
		cp.Hops = make([]PathHop, len(p.Hops))
		for i, h := range p.Hops {
			h.Entry.Name = symbol.Demangle(h.Entry.Name)
			cp.Hops[i] = h
		}
		p = &cp
	}
	if r.format != FormatText {
		return r.encode(p)
	}
	r.heading("path to " + p.Target.Name)
	for i, h := range p.Hops {
		indent := strings.Repeat("  ", i)
		if i == 0 {
			fmt.Fprintf(r.w, "%s%s\n", indent, h.Entry.Name)
			continue
		}
		fmt.Fprintf(r.w, "%s└─ %s %s (%s)\n", indent[2:], r.st.frame.Render(h.Edge), h.Entry.Name, size(h.Entry.Size))
	}
	return nil
}

// Listing renders an annotated disassembly. resolve names referenced
// items and may be nil.
func (r *Renderer) Listing(l *correlate.Listing, resolve func(graph.ItemID) string) error {
	if r.format != FormatText {
		return r.encode(l)
	}
	r.heading(fmt.Sprintf("%s (%s)", r.name(l.Name), l.Item))
	if l.DebugInfo == correlate.DebugUnavailable {
		fmt.Fprintln(r.w, r.st.frame.Render("no debug info"))
	}

	var last []debuginfo.Frame
	for _, rec := range l.Records {
		if len(rec.Frames) > 0 && !equalFrames(rec.Frames, last) {
			for i, f := range rec.Frames {
				f.Function = r.name(f.Function)
				prefix := "; "
				if i > 0 {
					prefix = ";   inlined into "
				}
				fmt.Fprintln(r.w, r.st.frame.Render(prefix+f.String()))
			}
		}
		last = rec.Frames

		text := rec.Text
		if rec.Kind == correlate.RecordError {
			text = r.st.errText.Render("error: " + text)
		}
		if resolve != nil && len(rec.Refs) > 0 {
			names := make([]string, len(rec.Refs))
			for i, id := range rec.Refs {
				names[i] = r.name(resolve(id))
			}
			text += r.st.frame.Render("  <" + strings.Join(names, ", ") + ">")
		}
		fmt.Fprintf(r.w, "0x%06x: %s\n", rec.Offset, text)
	}
	if l.Truncated {
		fmt.Fprintln(r.w, r.st.errText.Render("... truncated: "+l.Reason))
	}
	return nil
}

// Report renders the full overview.
func (r *Renderer) Report(rep *Report) error {
	if r.demangle {
		cp := *rep
		cp.TopSize = r.names(rep.TopSize)
		cp.TopRetained = r.names(rep.TopRetained)
		cp.Garbage = r.names(rep.Garbage)
		cp.Generics = make([]query.Generic, len(rep.Generics))
		for i, g := range rep.Generics {
			g.Name = symbol.Demangle(g.Name)
			cp.Generics[i] = g
		}
		rep = &cp
	}
	if r.format != FormatText {
		return r.encode(rep)
	}
	r.summary(rep.File, rep.Summary)
	fmt.Fprintln(r.w)
	r.heading("top by retained size")
	r.entryTable(rep.TopRetained)
	fmt.Fprintln(r.w)
	r.heading("top by shallow size")
	r.entryTable(rep.TopSize)
	if len(rep.Generics) > 0 {
		fmt.Fprintln(r.w)
		r.heading("generic instantiations")
		r.genericTable(rep.Generics)
	}
	if len(rep.Garbage) > 0 {
		fmt.Fprintln(r.w)
		r.heading("garbage")
		r.entryTable(rep.Garbage)
	}
	return nil
}

func (r *Renderer) heading(s string) {
	fmt.Fprintln(r.w, r.st.title.Render(s))
}

func (r *Renderer) entryName(e query.Entry) string {
	if e.Garbage {
		return r.st.garbage.Render(e.Name + " (garbage)")
	}
	return e.Name
}

func (r *Renderer) entryTable(es []query.Entry) {
	rows := make([][]string, len(es))
	for i, e := range es {
		rows[i] = []string{
			size(e.Size), percent(e.SizePercent),
			size(e.Retained), percent(e.RetainedPercent),
			string(e.Kind), r.entryName(e),
		}
	}
	r.table(
		[]string{"SHALLOW", "%", "RETAINED", "%", "KIND", "NAME"},
		[]bool{true, true, true, true, false, false},
		rows)
}

// table writes aligned columns. right marks right-aligned columns; the
// last column is never padded.
func (r *Renderer) table(headers []string, right []bool, rows [][]string) {
	widths := make([]int, len(right))
	measure := func(cells []string) {
		for i, c := range cells {
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(headers)
	for _, row := range rows {
		measure(row)
	}

	line := func(cells []string, st lipgloss.Style) {
		out := make([]string, len(cells))
		for i, c := range cells {
			if i == len(cells)-1 {
				out[i] = c
				break
			}
			align := lipgloss.Left
			if right[i] {
				align = lipgloss.Right
			}
			out[i] = lipgloss.NewStyle().Width(widths[i]).Align(align).Render(c)
		}
		fmt.Fprintln(r.w, st.Render(strings.TrimRight(strings.Join(out, "  "), " ")))
	}
	if headers != nil {
		line(headers, r.st.header)
	}
	for _, row := range rows {
		line(row, lipgloss.NewStyle())
	}
}

func size(n int) string {
	return humanize.IBytes(uint64(n))
}

func percent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

func equalFrames(a, b []debuginfo.Frame) bool {
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
