package graph

import (
	"strconv"

	"github.com/wippyai/binsize/loader"
)

// Item is a node of the reference graph.
type Item struct {
	Name    string       `json:"name,omitempty" yaml:"name,omitempty"`
	Aliases []string     `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Kind    Kind         `json:"kind" yaml:"kind"`
	Range   loader.Range `json:"range" yaml:"range"`
	ID      ItemID       `json:"id" yaml:"id"`
	Size    int          `json:"size" yaml:"size"`
	// Order is the item's position: roots first, then declaration order.
	Order int `json:"order" yaml:"order"`
}

// DisplayName returns the raw name, or kind[index] for unnamed items.
func (it *Item) DisplayName() string {
	if it.Name != "" {
		return it.Name
	}
	return string(it.Kind) + "[" + strconv.FormatUint(uint64(it.ID.Index()), 10) + "]"
}

// IsRoot reports whether the item is a synthetic root.
func (it *Item) IsRoot() bool {
	return it.Kind == loader.KindRoot
}

// Edge is a directed reference between two items.
type Edge struct {
	From ItemID   `json:"from" yaml:"from"`
	To   ItemID   `json:"to" yaml:"to"`
	Kind EdgeKind `json:"kind" yaml:"kind"`
}

// Adj is one adjacency-list entry: the item position at the other end.
type Adj struct {
	Pos  int
	Kind EdgeKind
}

// Graph is the immutable item graph. Positions index Items() and are
// equal to Item.Order.
type Graph struct {
	index map[ItemID]int
	items []Item
	out   [][]Adj
	in    [][]Adj
	roots []int
	edges int
}

// Len returns the number of items including roots.
func (g *Graph) Len() int {
	return len(g.items)
}

// Items returns all items in order. The slice must not be modified.
func (g *Graph) Items() []Item {
	return g.items
}

// At returns the item at position pos.
func (g *Graph) At(pos int) *Item {
	return &g.items[pos]
}

// Pos returns the position of id.
func (g *Graph) Pos(id ItemID) (int, bool) {
	p, ok := g.index[id]
	return p, ok
}

// Get returns the item with the given id.
func (g *Graph) Get(id ItemID) (*Item, bool) {
	p, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.items[p], true
}

// Out returns the outgoing adjacency of pos in insertion order.
func (g *Graph) Out(pos int) []Adj {
	return g.out[pos]
}

// In returns the incoming adjacency of pos in insertion order.
func (g *Graph) In(pos int) []Adj {
	return g.in[pos]
}

// Roots returns root positions in root order.
func (g *Graph) Roots() []int {
	return g.roots
}

// NumEdges returns the number of distinct edges.
func (g *Graph) NumEdges() int {
	return g.edges
}

// Edges lists every edge, grouped by source in item order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for from, adj := range g.out {
		for _, a := range adj {
			out = append(out, Edge{From: g.items[from].ID, To: g.items[a.Pos].ID, Kind: a.Kind})
		}
	}
	return out
}

// TotalSize sums the own size of every item.
func (g *Graph) TotalSize() int {
	total := 0
	for i := range g.items {
		total += g.items[i].Size
	}
	return total
}

// HasEdge reports whether from has an edge to to of any kind.
func (g *Graph) HasEdge(from, to ItemID) bool {
	f, ok := g.index[from]
	if !ok {
		return false
	}
	t, ok := g.index[to]
	if !ok {
		return false
	}
	for _, a := range g.out[f] {
		if a.Pos == t {
			return true
		}
	}
	return false
}
