// Package correlate produces instruction listings for single items,
// annotated with the source frames the DWARF table maps each instruction to.
//
// Missing debug info is never an error here: records simply carry no
// frames and the listing reports the table as unavailable.
package correlate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/binsize/debuginfo"
	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/loader"
	"github.com/wippyai/binsize/native"
)

// DefaultMaxInstructions bounds a listing when no budget is configured.
const DefaultMaxInstructions = 100_000

// ctxCheckInterval is how many instructions pass between context and
// deadline checks.
const ctxCheckInterval = 256

// RecordKind classifies listing records.
type RecordKind string

const (
	RecordLocal       RecordKind = "local"
	RecordInstruction RecordKind = "instruction"
	RecordError       RecordKind = "error"
)

// DebugStatus says whether frames could be attached at all.
type DebugStatus string

const (
	DebugAvailable   DebugStatus = "available"
	DebugUnavailable DebugStatus = "unavailable"
)

// InstructionRecord is one line of a listing.
type InstructionRecord struct {
	Text   string            `json:"text" yaml:"text"`
	Kind   RecordKind        `json:"kind" yaml:"kind"`
	Frames []debuginfo.Frame `json:"frames,omitempty" yaml:"frames,omitempty"`
	// Refs are the items the instruction names, such as a call target.
	Refs []graph.ItemID `json:"refs,omitempty" yaml:"refs,omitempty"`
	// Offset is the absolute file offset of the record's first byte.
	Offset int `json:"offset" yaml:"offset"`
	Len    int `json:"len" yaml:"len"`
}

// Listing is the annotated disassembly of one item.
type Listing struct {
	Name      string              `json:"name" yaml:"name"`
	Reason    string              `json:"reason,omitempty" yaml:"reason,omitempty"`
	DebugInfo DebugStatus         `json:"debug_info" yaml:"debug_info"`
	Records   []InstructionRecord `json:"records" yaml:"records"`
	Item      graph.ItemID        `json:"item" yaml:"item"`
	Truncated bool                `json:"truncated,omitempty" yaml:"truncated,omitempty"`
}

type options struct {
	maxInstructions int
	timeBudget      time.Duration
}

// Option configures a Correlator.
type Option func(*options)

// WithMaxInstructions caps the records per listing. Values below 1 select
// DefaultMaxInstructions.
func WithMaxInstructions(n int) Option {
	return func(o *options) { o.maxInstructions = n }
}

// WithTimeBudget caps the wall time spent per listing. Zero means no cap.
func WithTimeBudget(d time.Duration) Option {
	return func(o *options) { o.timeBudget = d }
}

// Correlator lists items of one loaded binary. It is safe for concurrent use.
type Correlator struct {
	raw   *loader.RawModel
	table *debuginfo.Table
	items map[graph.ItemID]int
	dec   *native.Decoder
	opts  options
}

// New prepares a correlator. table may be nil when the binary has no
// usable debug info.
func New(raw *loader.RawModel, table *debuginfo.Table, opts ...Option) *Correlator {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxInstructions < 1 {
		o.maxInstructions = DefaultMaxInstructions
	}

	c := &Correlator{
		raw:   raw,
		table: table,
		items: make(map[graph.ItemID]int, len(raw.Items)),
		opts:  o,
	}
	for i := range raw.Items {
		c.items[graph.MakeID(raw.Items[i].Space, raw.Items[i].Index)] = i
	}
	if raw.Format == loader.FormatELF {
		dec, err := native.NewDecoder(raw.Machine, raw.Object)
		if err != nil {
			Logger().Warn("native listings unavailable", zap.Error(err))
		}
		c.dec = dec
	}
	return c
}

// Correlate decodes the instructions of item id. Items without code yield
// an empty listing. Running out of budget or hitting undecodable bytes
// truncates the listing instead of failing.
func (c *Correlator) Correlate(ctx context.Context, id graph.ItemID) (*Listing, error) {
	idx, ok := c.items[id]
	if !ok {
		return nil, errors.NotFound(errors.PhaseCorrelate, "item", id.String())
	}
	it := &c.raw.Items[idx]

	l := &Listing{Item: id, Name: it.Name, DebugInfo: DebugAvailable}
	if c.table == nil {
		l.DebugInfo = DebugUnavailable
	}
	if !it.HasCode() {
		return l, nil
	}

	b := &budget{ctx: ctx, max: c.opts.maxInstructions}
	if c.opts.timeBudget > 0 {
		b.deadline = time.Now().Add(c.opts.timeBudget)
	}

	var err error
	switch c.raw.Format {
	case loader.FormatWasm:
		err = c.wasm(l, it, b)
	case loader.FormatELF:
		if c.dec == nil {
			return nil, errors.Unsupported(errors.PhaseCorrelate, fmt.Sprintf("disassembly for %s", c.raw.Machine))
		}
		err = c.native(l, it, b)
	}
	if err != nil {
		return nil, err
	}

	Logger().Debug("item correlated",
		zap.Stringer("item", id),
		zap.Int("records", len(l.Records)),
		zap.Bool("truncated", l.Truncated))
	return l, nil
}

// frames maps an absolute file offset inside it to its frame chain.
func (c *Correlator) frames(it *loader.RawItem, offset int) []debuginfo.Frame {
	if c.table == nil {
		return nil
	}
	return c.table.Lookup(it.DebugAddr + uint64(offset-it.CodeStart))
}

func (l *Listing) truncate(reason string) {
	l.Truncated = true
	l.Reason = reason
}

// budget tracks instruction count, deadline, and cancellation.
type budget struct {
	ctx      context.Context
	deadline time.Time
	max      int
	n        int
}

// next accounts for one more record and returns a reason to stop, if any.
func (b *budget) next() string {
	if b.n >= b.max {
		return fmt.Sprintf("instruction budget of %d reached", b.max)
	}
	if b.n%ctxCheckInterval == 0 {
		if err := b.ctx.Err(); err != nil {
			return err.Error()
		}
		if !b.deadline.IsZero() && time.Now().After(b.deadline) {
			return "time budget exceeded"
		}
	}
	b.n++
	return ""
}
