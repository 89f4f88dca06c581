package query

import (
	"strings"

	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/loader"
	"github.com/wippyai/binsize/symbol"
)

// Filtered is the result of a name filter. Totals cover every match.
type Filtered struct {
	Pattern      string  `json:"pattern" yaml:"pattern"`
	Entries      []Entry `json:"entries" yaml:"entries"`
	Matches      int     `json:"matches" yaml:"matches"`
	TotalSize    int     `json:"total_size" yaml:"total_size"`
	TotalPercent float64 `json:"total_percent" yaml:"total_percent"`
}

// Filter returns the non-root items whose name contains substr, ignoring
// case, largest first, together with their summed shallow size. An empty
// substr matches every item.
func (e *Engine) Filter(substr string) Filtered {
	f := Filtered{Pattern: substr}
	needle := strings.ToLower(substr)
	var candidates []int
	for pos := range e.g.Items() {
		it := e.g.At(pos)
		if it.IsRoot() || !strings.Contains(strings.ToLower(it.DisplayName()), needle) {
			continue
		}
		candidates = append(candidates, pos)
		f.TotalSize += it.Size
	}
	f.Matches = len(candidates)
	f.TotalPercent = e.percent(f.TotalSize)
	f.Entries = e.entries(top(candidates, 0, func(p int) int { return e.g.At(p).Size }))
	return f
}

// Generic aggregates the instantiations of one generic function.
type Generic struct {
	Name        string       `json:"name" yaml:"name"`
	Largest     graph.ItemID `json:"largest" yaml:"largest"`
	Instances   int          `json:"instances" yaml:"instances"`
	Size        int          `json:"size" yaml:"size"`
	SizePercent float64      `json:"size_percent" yaml:"size_percent"`
	// Bloat is the size of every instantiation but the largest, the bytes
	// a single shared implementation would save at most.
	Bloat        int            `json:"bloat" yaml:"bloat"`
	BloatPercent float64        `json:"bloat_percent" yaml:"bloat_percent"`
	Members      []graph.ItemID `json:"members" yaml:"members"`
}

// TopByGeneric groups items by the generic function they instantiate and
// returns the n groups with the most bloat, ties by total size and then by
// first declaration. Garbage instantiations count. n <= 0 returns every
// group.
func (e *Engine) TopByGeneric(n int) []Generic {
	index := map[string]int{}
	var groups []Generic
	var largest []int
	for pos := range e.g.Items() {
		it := e.g.At(pos)
		name := genericOf(it)
		if name == "" {
			continue
		}
		k, ok := index[name]
		if !ok {
			k = len(groups)
			index[name] = k
			groups = append(groups, Generic{Name: name, Largest: it.ID})
			largest = append(largest, 0)
		}
		g := &groups[k]
		g.Instances++
		g.Size += it.Size
		g.Members = append(g.Members, it.ID)
		if it.Size > largest[k] {
			largest[k] = it.Size
			g.Largest = it.ID
		}
	}

	order := make([]int, len(groups))
	for i := range groups {
		g := &groups[i]
		g.Bloat = g.Size - largest[i]
		g.SizePercent = e.percent(g.Size)
		g.BloatPercent = e.percent(g.Bloat)
		order[i] = i
	}
	order = top(order, 0, func(i int) int { return groups[i].Size })
	order = top(order, n, func(i int) int { return groups[i].Bloat })

	out := make([]Generic, len(order))
	for i, k := range order {
		out[i] = groups[k]
	}
	return out
}

// genericOf names the generic function an item instantiates. Synthetic
// roots and export wrappers carry no symbol name.
func genericOf(it *graph.Item) string {
	if it.IsRoot() || it.Kind == loader.KindExport {
		return ""
	}
	return symbol.GenericOf(it.Name)
}
