package query

import (
	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
)

// Path is a root-to-item chain through the reference graph. Kinds[i] is
// the kind of the edge from Items[i] to Items[i+1].
type Path struct {
	Items []graph.ItemID   `json:"items" yaml:"items"`
	Kinds []graph.EdgeKind `json:"kinds" yaml:"kinds"`
}

// Len returns the number of items on the path.
func (p *Path) Len() int {
	return len(p.Items)
}

// Root returns the path's first item.
func (p *Path) Root() graph.ItemID {
	return p.Items[0]
}

// PathToRoot returns a shortest path from any root to id. Every root is
// enqueued up front in root order and a node keeps its first discoverer,
// so among equal-length paths the one starting at the earliest root wins.
func (e *Engine) PathToRoot(id graph.ItemID) (*Path, error) {
	target, err := e.pos(id)
	if err != nil {
		return nil, err
	}
	if e.a.IsGarbage(target) {
		return nil, errors.ItemNotReachable(id.String())
	}

	const unseen = -1
	n := e.g.Len()
	parent := make([]int, n)
	via := make([]graph.EdgeKind, n)
	for i := range parent {
		parent[i] = unseen
	}

	queue := make([]int, 0, n)
	for _, r := range e.g.Roots() {
		parent[r] = r
		queue = append(queue, r)
	}
	for head := 0; head < len(queue) && parent[target] == unseen; head++ {
		v := queue[head]
		for _, a := range e.g.Out(v) {
			if parent[a.Pos] != unseen {
				continue
			}
			parent[a.Pos] = v
			via[a.Pos] = a.Kind
			queue = append(queue, a.Pos)
		}
	}
	if parent[target] == unseen {
		return nil, errors.Internal(errors.PhaseQuery, "reachable item "+id.String()+" has no root path")
	}

	var rev []int
	for v := target; ; v = parent[v] {
		rev = append(rev, v)
		if parent[v] == v {
			break
		}
	}
	p := &Path{
		Items: make([]graph.ItemID, len(rev)),
		Kinds: make([]graph.EdgeKind, len(rev)-1),
	}
	for i := range rev {
		v := rev[len(rev)-1-i]
		p.Items[i] = e.g.At(v).ID
		if i > 0 {
			p.Kinds[i-1] = via[v]
		}
	}
	return p, nil
}

// PathEntries resolves a path's items to entries.
func (e *Engine) PathEntries(p *Path) []Entry {
	out := make([]Entry, len(p.Items))
	for i, id := range p.Items {
		pos, _ := e.g.Pos(id)
		out[i] = e.EntryAt(pos)
	}
	return out
}
