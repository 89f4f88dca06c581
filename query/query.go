// Package query answers read-only questions over an analyzed graph.
//
// An Engine never mutates the graph or the analysis, so any number of
// goroutines may query the same Engine concurrently.
package query

import (
	"slices"
	"sort"

	"github.com/wippyai/binsize/analysis"
	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
)

// Entry is one item with its sizes.
type Entry struct {
	Name            string       `json:"name" yaml:"name"`
	Kind            graph.Kind   `json:"kind" yaml:"kind"`
	ID              graph.ItemID `json:"id" yaml:"id"`
	Size            int          `json:"size" yaml:"size"`
	Retained        int          `json:"retained" yaml:"retained"`
	SizePercent     float64      `json:"size_percent" yaml:"size_percent"`
	RetainedPercent float64      `json:"retained_percent" yaml:"retained_percent"`
	Garbage         bool         `json:"garbage,omitempty" yaml:"garbage,omitempty"`
	// MonomorphizationOf names the generic function this item instantiates.
	MonomorphizationOf string `json:"monomorphization_of,omitempty" yaml:"monomorphization_of,omitempty"`
}

// Neighbor is an adjacent item and the kind of the edge joining them.
type Neighbor struct {
	Entry `yaml:",inline"`
	Edge  graph.EdgeKind `json:"edge" yaml:"edge"`
}

// Engine runs queries against one graph and its analysis.
type Engine struct {
	g     *graph.Graph
	a     *analysis.Analysis
	total int
}

// New returns an engine over g and its analysis a.
func New(g *graph.Graph, a *analysis.Analysis) *Engine {
	return &Engine{g: g, a: a, total: g.TotalSize()}
}

// Graph returns the queried graph.
func (e *Engine) Graph() *graph.Graph {
	return e.g
}

// Analysis returns the queried analysis.
func (e *Engine) Analysis() *analysis.Analysis {
	return e.a
}

func (e *Engine) percent(n int) float64 {
	if e.total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(e.total)
}

// EntryAt describes the item at pos.
func (e *Engine) EntryAt(pos int) Entry {
	it := e.g.At(pos)
	r := e.a.Retained[pos]
	return Entry{
		ID:              it.ID,
		Name:            it.DisplayName(),
		Kind:            it.Kind,
		Size:            it.Size,
		Retained:        r,
		SizePercent:     e.percent(it.Size),
		RetainedPercent: e.percent(r),
		Garbage:         e.a.IsGarbage(pos),

		MonomorphizationOf: genericOf(it),
	}
}

func (e *Engine) entries(positions []int) []Entry {
	out := make([]Entry, len(positions))
	for i, p := range positions {
		out[i] = e.EntryAt(p)
	}
	return out
}

func (e *Engine) pos(id graph.ItemID) (int, error) {
	p, ok := e.g.Pos(id)
	if !ok {
		return 0, errors.NotFound(errors.PhaseQuery, "item", id.String())
	}
	return p, nil
}

// top sorts candidate positions descending by metric. Candidates arrive in
// declaration order and the sort is stable, so ties keep that order.
func top(positions []int, n int, metric func(int) int) []int {
	sort.SliceStable(positions, func(i, j int) bool {
		return metric(positions[i]) > metric(positions[j])
	})
	if n > 0 && n < len(positions) {
		positions = positions[:n]
	}
	return positions
}

// TopBySize returns the n largest non-root items by own size, garbage
// included. n <= 0 returns every item.
func (e *Engine) TopBySize(n int) []Entry {
	candidates := make([]int, 0, e.g.Len())
	for pos := range e.g.Items() {
		if !e.g.At(pos).IsRoot() {
			candidates = append(candidates, pos)
		}
	}
	return e.entries(top(candidates, n, func(p int) int { return e.g.At(p).Size }))
}

// TopByRetainedSize returns the n reachable non-root items retaining the
// most bytes. Garbage never appears. n <= 0 returns every such item.
func (e *Engine) TopByRetainedSize(n int) []Entry {
	candidates := append([]int(nil), e.a.Dominated...)
	return e.entries(top(candidates, n, func(p int) int { return e.a.Retained[p] }))
}

// GarbageItems returns every unreachable item, largest first.
func (e *Engine) GarbageItems() []Entry {
	candidates := append([]int(nil), e.a.Garbage...)
	return e.entries(top(candidates, 0, func(p int) int { return e.g.At(p).Size }))
}

// Roots returns the synthetic roots in root order.
func (e *Engine) Roots() []Entry {
	return e.entries(e.g.Roots())
}

// Item describes a single item.
func (e *Engine) Item(id graph.ItemID) (Entry, error) {
	p, err := e.pos(id)
	if err != nil {
		return Entry{}, err
	}
	return e.EntryAt(p), nil
}

// Lookup returns every item whose raw name or alias is name, in
// declaration order. Names are not unique and unnamed items never match.
func (e *Engine) Lookup(name string) []Entry {
	var out []Entry
	if name == "" {
		return out
	}
	for pos := range e.g.Items() {
		it := e.g.At(pos)
		if it.Name == name || slices.Contains(it.Aliases, name) {
			out = append(out, e.EntryAt(pos))
		}
	}
	return out
}

// Dominators returns the dominator chain of id, nearest first.
func (e *Engine) Dominators(id graph.ItemID) ([]Entry, error) {
	if _, err := e.pos(id); err != nil {
		return nil, err
	}
	chain, err := e.a.Dominators(id)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(chain))
	for i, d := range chain {
		p, _ := e.g.Pos(d)
		out[i] = e.EntryAt(p)
	}
	return out, nil
}

// Children returns the dominator-tree children of id, largest retained
// size first.
func (e *Engine) Children(id graph.ItemID) ([]Entry, error) {
	p, err := e.pos(id)
	if err != nil {
		return nil, err
	}
	kids := append([]int(nil), e.a.ChildrenAt(p)...)
	return e.entries(top(kids, 0, func(p int) int { return e.a.Retained[p] })), nil
}

// TopLevel returns the items dominated only by the super-root, largest
// retained size first.
func (e *Engine) TopLevel() []Entry {
	kids := append([]int(nil), e.a.TopLevel()...)
	return e.entries(top(kids, 0, func(p int) int { return e.a.Retained[p] }))
}

// Callers returns the items referencing id, in edge insertion order.
func (e *Engine) Callers(id graph.ItemID) ([]Neighbor, error) {
	p, err := e.pos(id)
	if err != nil {
		return nil, err
	}
	return e.neighbors(e.g.In(p)), nil
}

// Callees returns the items id references, in edge insertion order.
func (e *Engine) Callees(id graph.ItemID) ([]Neighbor, error) {
	p, err := e.pos(id)
	if err != nil {
		return nil, err
	}
	return e.neighbors(e.g.Out(p)), nil
}

func (e *Engine) neighbors(adj []graph.Adj) []Neighbor {
	out := make([]Neighbor, len(adj))
	for i, a := range adj {
		out[i] = Neighbor{Entry: e.EntryAt(a.Pos), Edge: a.Kind}
	}
	return out
}
