// Package config loads binsize settings: embedded defaults, optionally
// overridden key by key from a TOML file.
package config

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/snapshot"
)

//go:embed default.toml
var defaultData []byte

var validate = validator.New()

// Config is the complete set of settings.
type Config struct {
	Output    Output    `toml:"output"`
	Telemetry Telemetry `toml:"telemetry"`
	Analysis  Analysis  `toml:"analysis"`
	Disasm    Disasm    `toml:"disasm"`
	Watch     Watch     `toml:"watch"`
}

// Output controls rendering.
type Output struct {
	Format   string `toml:"format" validate:"oneof=text json yaml"`
	Color    string `toml:"color" validate:"oneof=auto always never"`
	Top      int    `toml:"top" validate:"gte=0"`
	Demangle bool   `toml:"demangle"`
}

// Analysis controls the load pipeline.
type Analysis struct {
	Parallelism    int  `toml:"parallelism" validate:"gte=0,lte=1024"`
	CustomSections bool `toml:"custom_sections"`
	Validate       bool `toml:"validate"`
	Verify         bool `toml:"verify"`
}

// Disasm bounds each disassembly listing.
type Disasm struct {
	TimeBudget      time.Duration `toml:"time_budget" validate:"gte=0"`
	MaxInstructions int           `toml:"max_instructions" validate:"gte=1"`
}

// Watch controls file watching.
type Watch struct {
	Debounce time.Duration `toml:"debounce" validate:"gte=1ms"`
}

// Telemetry controls tracing and metrics output.
type Telemetry struct {
	MetricsFile string `toml:"metrics_file"`
	Trace       bool   `toml:"trace"`
}

// Default returns the embedded defaults.
func Default() *Config {
	var c Config
	if _, err := toml.Decode(string(defaultData), &c); err != nil {
		panic(fmt.Sprintf("embedded config: %v", err))
	}
	return &c
}

// Load returns the defaults overridden by the file at path. An empty path
// yields the defaults. Unknown keys and invalid values are errors.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode "+path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, errors.InvalidInput(errors.PhaseConfig,
				fmt.Sprintf("%s: unknown keys %s", path, strings.Join(keys, ", ")))
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid configuration")
	}
	return nil
}

// SnapshotOptions maps the analysis and disasm settings onto a load.
func (c *Config) SnapshotOptions() snapshot.Options {
	return snapshot.Options{
		CustomSections:  c.Analysis.CustomSections,
		Validate:        c.Analysis.Validate,
		Verify:          c.Analysis.Verify,
		Parallelism:     c.Analysis.Parallelism,
		MaxInstructions: c.Disasm.MaxInstructions,
		TimeBudget:      c.Disasm.TimeBudget,
	}
}
