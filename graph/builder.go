package graph

import (
	"fmt"

	"github.com/wippyai/binsize/loader"
)

type edgeKey struct {
	from, to ItemID
	kind     EdgeKind
}

// Builder assembles a Graph. Items and edges may be added in any order
// as long as both ends of an edge exist; the finished graph places roots
// first, then items in the order they were added.
type Builder struct {
	ids   map[ItemID]struct{}
	seen  map[edgeKey]struct{}
	roots []Item
	items []Item
	edges []edgeKey
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		ids:  map[ItemID]struct{}{},
		seen: map[edgeKey]struct{}{},
	}
}

// AddRoot adds a zero-size synthetic root and returns its id.
func (b *Builder) AddRoot(name string) ItemID {
	id := MakeID(loader.SpaceRoot, uint32(len(b.roots)))
	b.roots = append(b.roots, Item{ID: id, Name: name, Kind: loader.KindRoot})
	b.ids[id] = struct{}{}
	return id
}

// AddItem adds a real item. Its ID must be unique and not in the root space.
func (b *Builder) AddItem(it Item) error {
	if it.ID.Space() == loader.SpaceRoot {
		return fmt.Errorf("item %s: root space is reserved for AddRoot", it.ID)
	}
	if _, dup := b.ids[it.ID]; dup {
		return fmt.Errorf("duplicate item %s", it.ID)
	}
	b.ids[it.ID] = struct{}{}
	b.items = append(b.items, it)
	return nil
}

// Has reports whether id has been added.
func (b *Builder) Has(id ItemID) bool {
	_, ok := b.ids[id]
	return ok
}

// AddEdge adds a directed edge. Repeating a (from, to, kind) triple is a
// no-op; self-edges are kept.
func (b *Builder) AddEdge(from, to ItemID, kind EdgeKind) error {
	if !b.Has(from) {
		return fmt.Errorf("edge from unknown item %s", from)
	}
	if !b.Has(to) {
		return fmt.Errorf("edge to unknown item %s", to)
	}
	k := edgeKey{from: from, to: to, kind: kind}
	if _, dup := b.seen[k]; dup {
		return nil
	}
	b.seen[k] = struct{}{}
	b.edges = append(b.edges, k)
	return nil
}

// Graph finishes the build. The builder must not be used afterwards.
func (b *Builder) Graph() *Graph {
	n := len(b.roots) + len(b.items)
	g := &Graph{
		index: make(map[ItemID]int, n),
		items: make([]Item, 0, n),
		out:   make([][]Adj, n),
		in:    make([][]Adj, n),
		roots: make([]int, len(b.roots)),
		edges: len(b.edges),
	}
	for i, r := range b.roots {
		g.roots[i] = i
		g.add(r)
	}
	for _, it := range b.items {
		g.add(it)
	}
	for _, e := range b.edges {
		from, to := g.index[e.from], g.index[e.to]
		g.out[from] = append(g.out[from], Adj{Pos: to, Kind: e.kind})
		g.in[to] = append(g.in[to], Adj{Pos: from, Kind: e.kind})
	}
	return g
}

func (g *Graph) add(it Item) {
	it.Order = len(g.items)
	g.index[it.ID] = it.Order
	g.items = append(g.items, it)
}
