// Package analysis computes the dominator tree of an item graph and the
// retained size of every item.
//
// The tree hangs off a synthetic super-root whose successors are the
// graph's declared roots. Items the super-root cannot reach are garbage:
// they stay in the result with their own size but take no part in the tree.
package analysis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
)

var tracer = otel.Tracer("binsize.analysis")

const (
	// SuperRoot is the Idom of items dominated only by the super-root.
	SuperRoot = -1
	// Unreachable is the Idom of garbage items.
	Unreachable = -2
)

// Analysis holds dense per-position results for one graph. All slices are
// indexed by graph position and are read-only after Analyze returns.
type Analysis struct {
	g *graph.Graph

	// Idom is the immediate dominator's position, SuperRoot, or Unreachable.
	Idom []int
	// Retained is own size plus the retained size of dominator-tree
	// children. Garbage items retain their own size only.
	Retained []int
	// Garbage lists unreachable non-root positions in declaration order.
	Garbage []int
	// Dominated lists reachable non-root positions in declaration order.
	Dominated []int

	children [][]int
	top      []int

	// Iterations is the number of fixed-point passes taken.
	Iterations int
}

type options struct {
	maxIterations int
}

// Option configures Analyze.
type Option func(*options)

// WithMaxIterations caps fixed-point passes. Values below 1 select a cap
// derived from the number of reachable items.
func WithMaxIterations(n int) Option {
	return func(o *options) { o.maxIterations = n }
}

// Analyze computes dominators with the Cooper-Harvey-Kennedy fixed point
// over reverse postorder, then sums retained sizes bottom-up.
func Analyze(ctx context.Context, g *graph.Graph, opts ...Option) (*Analysis, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "analysis.Analyze", trace.WithAttributes(
		attribute.Int("items", g.Len()),
		attribute.Int("edges", g.NumEdges()),
		attribute.Int("roots", len(g.Roots())),
	))
	defer span.End()

	d := newDom(g)
	d.postorder()
	span.AddEvent("postorder_complete", trace.WithAttributes(
		attribute.Int("reachable", len(d.order)-1),
	))

	limit := o.maxIterations
	if limit < 1 {
		limit = len(d.order) + 3
	}
	iterations, err := d.solve(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	a := d.result()
	a.Iterations = iterations

	span.AddEvent("analysis_complete", trace.WithAttributes(
		attribute.Int("iterations", iterations),
		attribute.Int("garbage", len(a.Garbage)),
	))
	Logger().Debug("dominators computed",
		zap.Int("items", g.Len()),
		zap.Int("iterations", iterations),
		zap.Int("garbage", len(a.Garbage)),
		zap.Duration("duration", time.Since(start)))
	return a, nil
}

// dom is the working state. Nodes are graph positions plus the super-root
// at position n.
type dom struct {
	g      *graph.Graph
	isRoot []bool
	po     []int // postorder number, -1 when unvisited
	order  []int // nodes in postorder; the super-root is last
	idom   []int // immediate dominator node, -1 while undefined
	super  int
}

func newDom(g *graph.Graph) *dom {
	n := g.Len()
	d := &dom{
		g:      g,
		isRoot: make([]bool, n),
		po:     make([]int, n+1),
		order:  make([]int, 0, n+1),
		idom:   make([]int, n+1),
		super:  n,
	}
	for _, r := range g.Roots() {
		d.isRoot[r] = true
	}
	for i := range d.po {
		d.po[i] = -1
		d.idom[i] = -1
	}
	return d
}

func (d *dom) succ(v, i int) (int, bool) {
	if v == d.super {
		roots := d.g.Roots()
		if i < len(roots) {
			return roots[i], true
		}
		return 0, false
	}
	out := d.g.Out(v)
	if i < len(out) {
		return out[i].Pos, true
	}
	return 0, false
}

// postorder numbers every node reachable from the super-root with an
// explicit stack, visiting successors in adjacency order.
func (d *dom) postorder() {
	type frame struct {
		node, next int
	}
	visited := make([]bool, len(d.po))
	visited[d.super] = true
	stack := []frame{{node: d.super}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		w, ok := d.succ(top.node, top.next)
		if ok {
			top.next++
			if !visited[w] {
				visited[w] = true
				stack = append(stack, frame{node: w})
			}
			continue
		}
		d.po[top.node] = len(d.order)
		d.order = append(d.order, top.node)
		stack = stack[:len(stack)-1]
	}
}

func (d *dom) solve(ctx context.Context, limit int) (int, error) {
	d.idom[d.super] = d.super
	iterations := 0
	for changed := true; changed; {
		if iterations == limit {
			return iterations, errors.Internal(errors.PhaseAnalyze,
				fmt.Sprintf("dominators did not converge after %d iterations", iterations))
		}
		if err := ctx.Err(); err != nil {
			return iterations, errors.Wrap(errors.PhaseAnalyze, errors.KindInternal, err, "analysis cancelled")
		}
		iterations++
		changed = false

		// Reverse postorder, skipping the super-root at the end of order.
		for i := len(d.order) - 2; i >= 0; i-- {
			b := d.order[i]
			next := -1
			if d.isRoot[b] {
				next = d.super
			}
			for _, a := range d.g.In(b) {
				p := a.Pos
				if d.idom[p] < 0 {
					continue
				}
				if next < 0 {
					next = p
				} else {
					next = d.intersect(p, next)
				}
			}
			if d.idom[b] != next {
				d.idom[b] = next
				changed = true
			}
		}
	}
	return iterations, nil
}

func (d *dom) intersect(a, b int) int {
	for a != b {
		for d.po[a] < d.po[b] {
			a = d.idom[a]
		}
		for d.po[b] < d.po[a] {
			b = d.idom[b]
		}
	}
	return a
}

func (d *dom) result() *Analysis {
	n := d.g.Len()
	a := &Analysis{
		g:        d.g,
		Idom:     make([]int, n),
		Retained: make([]int, n),
		children: make([][]int, n),
	}
	for pos := 0; pos < n; pos++ {
		a.Retained[pos] = d.g.At(pos).Size
		switch {
		case d.po[pos] < 0:
			a.Idom[pos] = Unreachable
		case d.idom[pos] == d.super:
			a.Idom[pos] = SuperRoot
		default:
			a.Idom[pos] = d.idom[pos]
		}
	}

	// Postorder visits dominator-tree children before their parent.
	for _, v := range d.order {
		if v == d.super {
			continue
		}
		if p := a.Idom[v]; p >= 0 {
			a.Retained[p] += a.Retained[v]
		}
	}

	for pos := 0; pos < n; pos++ {
		switch p := a.Idom[pos]; {
		case p == Unreachable:
			if !d.isRoot[pos] {
				a.Garbage = append(a.Garbage, pos)
			}
			continue
		case p == SuperRoot:
			a.top = append(a.top, pos)
		default:
			a.children[p] = append(a.children[p], pos)
		}
		if !d.isRoot[pos] {
			a.Dominated = append(a.Dominated, pos)
		}
	}
	return a
}
