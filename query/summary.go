package query

import "sort"

// KindStat aggregates the items of one kind.
type KindStat struct {
	Kind    string `json:"kind" yaml:"kind"`
	Count   int    `json:"count" yaml:"count"`
	Size    int    `json:"size" yaml:"size"`
	Garbage int    `json:"garbage" yaml:"garbage"`
}

// Summary is the whole-binary overview.
type Summary struct {
	Kinds          []KindStat `json:"kinds" yaml:"kinds"`
	TotalSize      int        `json:"total_size" yaml:"total_size"`
	ReachableSize  int        `json:"reachable_size" yaml:"reachable_size"`
	GarbageSize    int        `json:"garbage_size" yaml:"garbage_size"`
	Items          int        `json:"items" yaml:"items"`
	Roots          int        `json:"roots" yaml:"roots"`
	Edges          int        `json:"edges" yaml:"edges"`
	GarbageItems   int        `json:"garbage_items" yaml:"garbage_items"`
	GarbagePercent float64    `json:"garbage_percent" yaml:"garbage_percent"`
}

// Summary totals sizes and counts. Kinds are ordered by size, then name.
func (e *Engine) Summary() Summary {
	s := Summary{
		TotalSize:     e.total,
		ReachableSize: e.a.ReachableSize(),
		GarbageSize:   e.a.GarbageSize(),
		Items:         e.g.Len() - len(e.g.Roots()),
		Roots:         len(e.g.Roots()),
		Edges:         e.g.NumEdges(),
		GarbageItems:  len(e.a.Garbage),
	}
	s.GarbagePercent = e.percent(s.GarbageSize)

	index := map[string]int{}
	for pos := range e.g.Items() {
		it := e.g.At(pos)
		if it.IsRoot() {
			continue
		}
		k, ok := index[string(it.Kind)]
		if !ok {
			k = len(s.Kinds)
			index[string(it.Kind)] = k
			s.Kinds = append(s.Kinds, KindStat{Kind: string(it.Kind)})
		}
		s.Kinds[k].Count++
		s.Kinds[k].Size += it.Size
		if e.a.IsGarbage(pos) {
			s.Kinds[k].Garbage++
		}
	}
	sort.Slice(s.Kinds, func(i, j int) bool {
		if s.Kinds[i].Size != s.Kinds[j].Size {
			return s.Kinds[i].Size > s.Kinds[j].Size
		}
		return s.Kinds[i].Kind < s.Kinds[j].Kind
	})
	return s
}
