package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"runtime"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/wasm"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

type options struct {
	parallelism int
}

// Option configures Load.
type Option func(*options)

// WithParallelism bounds the number of goroutines scanning code bodies.
// Values below 1 select GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// Load detects the container format and extracts raw items.
func Load(data []byte, opts ...Option) (*RawModel, error) {
	return LoadContext(context.Background(), data, opts...)
}

// LoadContext is Load with cancellation of the code scan.
func LoadContext(ctx context.Context, data []byte, opts ...Option) (*RawModel, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.parallelism < 1 {
		o.parallelism = runtime.GOMAXPROCS(0)
	}

	var (
		m   *RawModel
		err error
	)
	switch Detect(data) {
	case FormatWasm:
		m, err = loadWasm(ctx, data, o)
	case FormatELF:
		m, err = loadELF(ctx, data, o)
	default:
		if len(data) == 0 {
			return nil, errors.UnrecognizedFormat("empty input")
		}
		return nil, errors.UnrecognizedFormat("no known header")
	}
	if err != nil {
		return nil, err
	}

	Logger().Debug("binary loaded",
		zap.String("format", string(m.Format)),
		zap.Int("size", m.Size),
		zap.Int("items", len(m.Items)),
		zap.Int("debug_sections", len(m.DebugSections)))
	return m, nil
}

// Detect returns the container format implied by the header, or "".
// Component-model binaries share the \0asm magic and are reported as
// wasm; Load rejects them.
func Detect(data []byte) Format {
	switch {
	case len(data) >= 4 && binary.LittleEndian.Uint32(data) == wasm.Magic:
		return FormatWasm
	case bytes.HasPrefix(data, elfMagic):
		return FormatELF
	}
	return ""
}

// sortByOffset orders items by their first byte, which is declaration order.
func sortByOffset(items []RawItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Range.Start < items[j].Range.Start
	})
}
