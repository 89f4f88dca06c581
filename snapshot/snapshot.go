// Package snapshot runs the load, build, and analyze pipeline and holds its
// result as one immutable value.
//
// A Snapshot is never modified after Load returns. Readers obtain the
// current one from a Store and keep it for the duration of a request; a
// reload builds a fresh Snapshot and swaps it in only on success.
package snapshot

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/binsize/analysis"
	"github.com/wippyai/binsize/correlate"
	"github.com/wippyai/binsize/debuginfo"
	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/loader"
	"github.com/wippyai/binsize/query"
)

var tracer = otel.Tracer("binsize.snapshot")

// Options configures a load.
type Options struct {
	// TimeBudget caps each disassembly listing. Zero means no cap.
	TimeBudget time.Duration
	// Parallelism bounds the loader's code scan. Zero selects GOMAXPROCS.
	Parallelism int
	// MaxInstructions caps each disassembly listing.
	MaxInstructions int
	// CustomSections keeps custom sections in the graph.
	CustomSections bool
	// Validate compiles WebAssembly input with wazero before analysis.
	Validate bool
	// Verify checks the analysis invariants after every load.
	Verify bool
}

// Timings records how long each pipeline phase took.
type Timings struct {
	Load     time.Duration `json:"load" yaml:"load"`
	Build    time.Duration `json:"build" yaml:"build"`
	Analyze  time.Duration `json:"analyze" yaml:"analyze"`
	Debug    time.Duration `json:"debug" yaml:"debug"`
	Validate time.Duration `json:"validate,omitempty" yaml:"validate,omitempty"`
}

// Total is the sum of all phases.
func (t Timings) Total() time.Duration {
	return t.Load + t.Build + t.Analyze + t.Debug + t.Validate
}

// Snapshot is the analyzed state of one binary.
type Snapshot struct {
	LoadedAt   time.Time
	Raw        *loader.RawModel
	Graph      *graph.Graph
	Analysis   *analysis.Analysis
	Query      *query.Engine
	Debug      *debuginfo.Table
	Correlator *correlate.Correlator
	// DebugErr explains why Debug is nil. It never fails the load.
	DebugErr error
	Path     string
	Timings  Timings
	ID       uuid.UUID
}

// Name is the base name of the loaded file.
func (s *Snapshot) Name() string {
	return filepath.Base(s.Path)
}

// HasDebugInfo reports whether a DWARF table was built.
func (s *Snapshot) HasDebugInfo() bool {
	return s.Debug != nil
}

// Load reads path and analyzes it.
func Load(ctx context.Context, path string, opts Options) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Cause(err).
			Item(path).
			Detail("cannot read input").
			Build()
	}
	return LoadBytes(ctx, path, data, opts)
}

// LoadBytes analyzes data; name is recorded as the snapshot's path.
func LoadBytes(ctx context.Context, name string, data []byte, opts Options) (s *Snapshot, err error) {
	ctx, span := tracer.Start(ctx, "snapshot.Load", trace.WithAttributes(
		attribute.String("path", name),
		attribute.Int("bytes", len(data)),
	))
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		loadsTotal.WithLabelValues(result).Inc()
		span.End()
	}()

	s = &Snapshot{
		ID:   uuid.New(),
		Path: name,
	}

	if opts.Validate {
		if err := s.phase(ctx, "validate", &s.Timings.Validate, func(ctx context.Context) error {
			return loader.Validate(ctx, data)
		}); err != nil {
			return nil, err
		}
	}

	if err := s.phase(ctx, "load", &s.Timings.Load, func(ctx context.Context) error {
		raw, err := loader.LoadContext(ctx, data, loader.WithParallelism(opts.Parallelism))
		s.Raw = raw
		return err
	}); err != nil {
		return nil, err
	}

	if err := s.phase(ctx, "build", &s.Timings.Build, func(context.Context) error {
		g, err := graph.Build(s.Raw, graph.WithCustomSections(opts.CustomSections))
		s.Graph = g
		return err
	}); err != nil {
		return nil, err
	}

	if err := s.phase(ctx, "analyze", &s.Timings.Analyze, func(ctx context.Context) error {
		a, err := analysis.Analyze(ctx, s.Graph)
		if err != nil {
			return err
		}
		if opts.Verify {
			if err := a.Verify(); err != nil {
				return err
			}
		}
		s.Analysis = a
		return nil
	}); err != nil {
		return nil, err
	}
	s.Query = query.New(s.Graph, s.Analysis)

	// Debug info is soft: its failure is recorded, never returned.
	_ = s.phase(ctx, "debug", &s.Timings.Debug, func(context.Context) error {
		s.Debug, s.DebugErr = debuginfo.Build(s.Raw.DebugSections)
		if s.DebugErr != nil && !stderrors.Is(s.DebugErr, errors.ErrDebugInfoUnavailable) {
			Logger().Warn("debug info skipped", zap.String("path", name), zap.Error(s.DebugErr))
		}
		return nil
	})

	s.Correlator = correlate.New(s.Raw, s.Debug,
		correlate.WithMaxInstructions(opts.MaxInstructions),
		correlate.WithTimeBudget(opts.TimeBudget))
	s.LoadedAt = time.Now()

	sum := s.Query.Summary()
	itemsGauge.WithLabelValues("total").Set(float64(sum.Items))
	itemsGauge.WithLabelValues("garbage").Set(float64(sum.GarbageItems))
	bytesGauge.WithLabelValues("total").Set(float64(sum.TotalSize))
	bytesGauge.WithLabelValues("reachable").Set(float64(sum.ReachableSize))
	bytesGauge.WithLabelValues("garbage").Set(float64(sum.GarbageSize))

	span.SetAttributes(
		attribute.String("snapshot.id", s.ID.String()),
		attribute.Int("items", sum.Items),
		attribute.Bool("debug_info", s.HasDebugInfo()),
	)
	Logger().Info("snapshot loaded",
		zap.String("id", s.ID.String()),
		zap.String("path", name),
		zap.String("format", string(s.Raw.Format)),
		zap.Int("items", sum.Items),
		zap.Int("garbage_items", sum.GarbageItems),
		zap.Bool("debug_info", s.HasDebugInfo()),
		zap.Duration("duration", s.Timings.Total()))
	return s, nil
}

// phase runs fn inside a child span and records its duration.
func (s *Snapshot) phase(ctx context.Context, name string, d *time.Duration, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "snapshot."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	*d = time.Since(start)
	phaseDuration.WithLabelValues(name).Observe(d.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		Logger().Debug("pipeline phase failed", zap.String("phase", name), zap.Error(err))
	}
	return err
}
