package config_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/binsize/config"
	"github.com/wippyai/binsize/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "binsize.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	c := config.Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "text", c.Output.Format)
	assert.Equal(t, 20, c.Output.Top)
	assert.Equal(t, 100000, c.Disasm.MaxInstructions)
	assert.Equal(t, 2*time.Second, c.Disasm.TimeBudget)
	assert.Equal(t, 200*time.Millisecond, c.Watch.Debounce)
	assert.False(t, c.Analysis.CustomSections)

	loaded, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestOverrideKeepsUnsetKeys(t *testing.T) {
	path := writeConfig(t, `
[output]
format = "json"

[disasm]
time_budget = "500ms"
`)
	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", c.Output.Format)
	assert.Equal(t, 20, c.Output.Top, "unset keys keep their defaults")
	assert.Equal(t, 500*time.Millisecond, c.Disasm.TimeBudget)

	opts := c.SnapshotOptions()
	assert.Equal(t, 500*time.Millisecond, opts.TimeBudget)
	assert.Equal(t, 100000, opts.MaxInstructions)
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"format", "[output]\nformat = \"xml\""},
		{"top", "[output]\ntop = -1"},
		{"budget", "[disasm]\nmax_instructions = 0"},
		{"debounce", "[watch]\ndebounce = \"1us\""},
		{"unknown key", "[output]\ncolour = \"never\""},
		{"syntax", "[output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			var e *errors.Error
			require.True(t, stderrors.As(err, &e), "%v", err)
			assert.Equal(t, errors.PhaseConfig, e.Phase)
			assert.Equal(t, errors.KindInvalidInput, e.Kind)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
