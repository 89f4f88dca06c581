package analysis

import (
	"fmt"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
)

// Graph returns the analyzed graph.
func (a *Analysis) Graph() *graph.Graph {
	return a.g
}

// Reachable reports whether the super-root reaches pos.
func (a *Analysis) Reachable(pos int) bool {
	return a.Idom[pos] != Unreachable
}

// IsGarbage reports whether pos is an unreachable non-root item.
func (a *Analysis) IsGarbage(pos int) bool {
	return a.Idom[pos] == Unreachable
}

// TopLevel returns the positions the super-root dominates directly, in
// declaration order.
func (a *Analysis) TopLevel() []int {
	return a.top
}

// ChildrenAt returns the dominator-tree children of pos in declaration order.
func (a *Analysis) ChildrenAt(pos int) []int {
	return a.children[pos]
}

// Children returns the dominator-tree children of id.
func (a *Analysis) Children(id graph.ItemID) ([]graph.ItemID, error) {
	pos, err := a.lookup(id)
	if err != nil {
		return nil, err
	}
	kids := a.children[pos]
	out := make([]graph.ItemID, len(kids))
	for i, k := range kids {
		out[i] = a.g.At(k).ID
	}
	return out, nil
}

// Dominators returns the strict dominators of id, nearest first. The
// super-root is implied and not listed, so a root yields an empty chain.
func (a *Analysis) Dominators(id graph.ItemID) ([]graph.ItemID, error) {
	pos, err := a.lookup(id)
	if err != nil {
		return nil, err
	}
	if a.IsGarbage(pos) {
		return nil, errors.ItemNotReachable(id.String())
	}
	var chain []graph.ItemID
	for p := a.Idom[pos]; p >= 0; p = a.Idom[p] {
		chain = append(chain, a.g.At(p).ID)
	}
	return chain, nil
}

// ReachableSize sums the own size of every reachable item.
func (a *Analysis) ReachableSize() int {
	total := 0
	for pos, idom := range a.Idom {
		if idom != Unreachable {
			total += a.g.At(pos).Size
		}
	}
	return total
}

// GarbageSize sums the own size of every garbage item.
func (a *Analysis) GarbageSize() int {
	total := 0
	for _, pos := range a.Garbage {
		total += a.g.At(pos).Size
	}
	return total
}

func (a *Analysis) lookup(id graph.ItemID) (int, error) {
	pos, ok := a.g.Pos(id)
	if !ok {
		return 0, errors.NotFound(errors.PhaseQuery, "item", id.String())
	}
	return pos, nil
}

// Verify checks the reachability partition, retained-size additivity, and
// that no reachable item references garbage. A failure is an internal error.
func (a *Analysis) Verify() error {
	n := a.g.Len()
	seen := make([]int, n)
	for _, pos := range a.Garbage {
		seen[pos]++
		if a.Idom[pos] != Unreachable {
			return a.violation("garbage item %s is reachable", pos)
		}
		if a.Retained[pos] != a.g.At(pos).Size {
			return a.violation("garbage item %s retains more than itself", pos)
		}
	}
	for _, pos := range a.Dominated {
		seen[pos]++
		if a.Idom[pos] == Unreachable {
			return a.violation("dominated item %s is unreachable", pos)
		}
	}

	isRoot := make([]bool, n)
	for _, r := range a.g.Roots() {
		isRoot[r] = true
		if a.Idom[r] == Unreachable {
			return a.violation("root %s is unreachable", r)
		}
	}
	for pos := 0; pos < n; pos++ {
		switch {
		case isRoot[pos] && seen[pos] != 0:
			return a.violation("root %s is classified as an item", pos)
		case !isRoot[pos] && seen[pos] != 1:
			return a.violation("item %s is not exactly one of dominated or garbage", pos)
		}
	}

	for pos := 0; pos < n; pos++ {
		if a.IsGarbage(pos) {
			continue
		}
		if p := a.Idom[pos]; p >= 0 && a.IsGarbage(p) {
			return a.violation("item %s is dominated by garbage", pos)
		}
		sum := a.g.At(pos).Size
		for _, c := range a.children[pos] {
			sum += a.Retained[c]
		}
		if sum != a.Retained[pos] {
			return a.violation("retained size of %s is not additive", pos)
		}
		for _, e := range a.g.Out(pos) {
			if a.IsGarbage(e.Pos) {
				return a.violation("reachable item %s references garbage", pos)
			}
		}
	}
	return nil
}

func (a *Analysis) violation(format string, pos int) error {
	return errors.New(errors.PhaseAnalyze, errors.KindInternal).
		Item(a.g.At(pos).ID.String()).
		Detail(format, a.g.At(pos).DisplayName()).
		Build()
}

// String summarizes the analysis for logs.
func (a *Analysis) String() string {
	return fmt.Sprintf("analysis{items=%d dominated=%d garbage=%d iterations=%d}",
		a.g.Len(), len(a.Dominated), len(a.Garbage), a.Iterations)
}
