// Package report assembles query results into serializable documents and
// renders them as text tables, JSON, or YAML.
package report

import (
	"strings"
	"time"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/query"
	"github.com/wippyai/binsize/snapshot"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", errors.InvalidInput(errors.PhaseConfig, "unknown output format "+s)
}

// Report is the full overview of one snapshot.
type Report struct {
	LoadedAt    time.Time        `json:"loaded_at" yaml:"loaded_at"`
	File        string           `json:"file" yaml:"file"`
	Format      string           `json:"format" yaml:"format"`
	ID          string           `json:"id" yaml:"id"`
	Summary     query.Summary    `json:"summary" yaml:"summary"`
	TopSize     []query.Entry    `json:"top_size" yaml:"top_size"`
	TopRetained []query.Entry    `json:"top_retained" yaml:"top_retained"`
	Garbage     []query.Entry    `json:"garbage" yaml:"garbage"`
	Generics    []query.Generic  `json:"generics,omitempty" yaml:"generics,omitempty"`
	Timings     snapshot.Timings `json:"timings" yaml:"timings"`
	DebugInfo   bool             `json:"debug_info" yaml:"debug_info"`
}

// Build collects the top n items of each list from s. n <= 0 means all.
func Build(s *snapshot.Snapshot, n int) *Report {
	q := s.Query
	garbage := q.GarbageItems()
	if n > 0 && n < len(garbage) {
		garbage = garbage[:n]
	}
	return &Report{
		File:        s.Path,
		Format:      string(s.Raw.Format),
		ID:          s.ID.String(),
		LoadedAt:    s.LoadedAt,
		DebugInfo:   s.HasDebugInfo(),
		Timings:     s.Timings,
		Summary:     q.Summary(),
		TopSize:     q.TopBySize(n),
		TopRetained: q.TopByRetainedSize(n),
		Garbage:     garbage,
		Generics:    q.TopByGeneric(n),
	}
}

// PathReport is a resolved path from a root to an item.
type PathReport struct {
	Target query.Entry `json:"target" yaml:"target"`
	Hops   []PathHop   `json:"hops" yaml:"hops"`
}

// PathHop is one item on a path and the edge that reached it. The first
// hop is a root and has no edge.
type PathHop struct {
	Edge  string      `json:"edge,omitempty" yaml:"edge,omitempty"`
	Entry query.Entry `json:"item" yaml:"item"`
}

// NewPathReport resolves p against q.
func NewPathReport(q *query.Engine, p *query.Path) *PathReport {
	entries := q.PathEntries(p)
	r := &PathReport{
		Target: entries[len(entries)-1],
		Hops:   make([]PathHop, len(entries)),
	}
	for i, e := range entries {
		r.Hops[i].Entry = e
		if i > 0 {
			r.Hops[i].Edge = p.Kinds[i-1].String()
		}
	}
	return r
}
