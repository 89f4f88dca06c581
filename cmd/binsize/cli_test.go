package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/binsize/config"
	"github.com/wippyai/binsize/wasm"
	"github.com/wippyai/binsize/wasm/wasmtest"
)

func sampleFile(t *testing.T) string {
	t.Helper()
	b := wasmtest.New()
	void := b.Type(nil, nil)
	leaf := b.Func(void, wasmtest.Nops(6))
	mid := b.Func(void, wasmtest.Call(leaf))
	run := b.Func(void, wasmtest.Call(mid), wasmtest.I32Const(1), wasmtest.Drop())
	b.Func(void, wasmtest.Nops(40))
	b.ExportFunc("run", run)
	b.Name(wasm.SpaceFunc, leaf, "leaf")
	b.Name(wasm.SpaceFunc, mid, "mid")
	b.Name(wasm.SpaceFunc, run, "run")
	b.Name(wasm.SpaceFunc, 3, "dead")

	path := filepath.Join(t.TempDir(), "sample.wasm")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestSummaryJSON(t *testing.T) {
	out, _, err := execute(t, "summary", "--format", "json", sampleFile(t))
	require.NoError(t, err)

	var sum struct {
		Roots        int `json:"roots"`
		GarbageItems int `json:"garbage_items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 1, sum.Roots)
	assert.Equal(t, 1, sum.GarbageItems)
}

func TestRetainedText(t *testing.T) {
	path := sampleFile(t)
	out, _, err := execute(t, "retained", "-n", "3", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5, "title, header, three rows")
	assert.Contains(t, lines[2], `export "run"`)
	assert.Contains(t, lines[3], "run")
	assert.Contains(t, lines[4], "mid")

	again, _, err := execute(t, "retained", "-n", "3", path)
	require.NoError(t, err)
	assert.Equal(t, out, again, "output is deterministic")
}

func TestTopFilter(t *testing.T) {
	out, _, err := execute(t, "top", "--format", "json", "--filter", "EA", sampleFile(t))
	require.NoError(t, err)

	var res struct {
		Pattern   string `json:"pattern"`
		Matches   int    `json:"matches"`
		TotalSize int    `json:"total_size"`
		Entries   []struct {
			Name string `json:"name"`
			Size int    `json:"size"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "EA", res.Pattern)
	assert.Equal(t, 2, res.Matches)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "dead", res.Entries[0].Name)
	assert.Equal(t, "leaf", res.Entries[1].Name)
	assert.Equal(t, res.Entries[0].Size+res.Entries[1].Size, res.TotalSize)

	out, _, err = execute(t, "top", "-n", "1", "--filter", "ea", sampleFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "dead")
	assert.NotContains(t, out, "leaf")
	assert.Contains(t, out, `2 items matching "ea"`)
}

func TestGenerics(t *testing.T) {
	out, _, err := execute(t, "monos", "--format", "json", sampleFile(t))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out, "no generic names in the sample")
}

func TestGarbage(t *testing.T) {
	out, _, err := execute(t, "garbage", "--format", "yaml", sampleFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "name: dead")
	assert.Contains(t, out, "garbage: true")
}

func TestPathByName(t *testing.T) {
	out, _, err := execute(t, "path", sampleFile(t), "leaf")
	require.NoError(t, err)
	assert.Contains(t, out, `root export "run"`)
	assert.Contains(t, out, "calls mid")
	assert.Contains(t, out, "calls leaf")
}

func TestPathToGarbage(t *testing.T) {
	_, errOut, err := execute(t, "path", sampleFile(t), "dead")
	require.Error(t, err)
	assert.Contains(t, errOut, "item_not_reachable")
}

func TestDominatorsByID(t *testing.T) {
	path := sampleFile(t)
	out, _, err := execute(t, "dominators", "--format", "json", path, "func[0]")
	require.NoError(t, err)

	var chain []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &chain))
	names := make([]string, len(chain))
	for i, e := range chain {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"mid", "run", `export "run"`, `root export "run"`}, names)

	out, _, err = execute(t, "dominators", "--children", path, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "mid")
}

func TestCallersAndCallees(t *testing.T) {
	path := sampleFile(t)
	out, _, err := execute(t, "callers", path, "mid")
	require.NoError(t, err)
	assert.Contains(t, out, "calls")
	assert.Contains(t, out, "run")

	out, _, err = execute(t, "callees", path, "mid")
	require.NoError(t, err)
	assert.Contains(t, out, "leaf")
}

func TestDisasm(t *testing.T) {
	out, _, err := execute(t, "disasm", sampleFile(t), "run")
	require.NoError(t, err)
	assert.Contains(t, out, "no debug info")
	assert.Contains(t, out, "call 1  <mid>")
	assert.Contains(t, out, "i32.const 1")
}

func TestReport(t *testing.T) {
	out, _, err := execute(t, "report", "--demangle", sampleFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "top by retained size")
	assert.Contains(t, out, "top by shallow size")
	assert.Contains(t, out, "dead (garbage)")
}

func TestUnknownItem(t *testing.T) {
	_, errOut, err := execute(t, "disasm", sampleFile(t), "nope")
	require.Error(t, err)
	assert.Contains(t, errOut, "not_found")
}

func TestBadInputs(t *testing.T) {
	junk := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(junk, []byte("hello world"), 0o644))
	_, errOut, err := execute(t, "summary", junk)
	require.Error(t, err)
	assert.Contains(t, errOut, "unrecognized_format")

	_, errOut, err = execute(t, "summary", "--format", "xml", sampleFile(t))
	require.Error(t, err)
	assert.Contains(t, errOut, "invalid configuration")
}

func TestConfigFileAndMetrics(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "binsize.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[output]\nformat = \"json\"\n[analysis]\nverify = true\n"), 0o644))
	metrics := filepath.Join(dir, "binsize.prom")

	out, _, err := execute(t, "top", "--config", cfg, "--metrics-file", metrics, sampleFile(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "["), out)

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "binsize_snapshot_loads_total")
}

func TestMetricsWrittenWhenCommandFails(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "binsize.prom")
	_, _, err := execute(t, "path", "--metrics-file", metrics, sampleFile(t), "dead")
	require.Error(t, err)

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "binsize_snapshot_loads_total")
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestExploreModel(t *testing.T) {
	m := newExploreModel(context.Background(), sampleFile(t), config.Default().SnapshotOptions(), false)
	assert.Contains(t, m.View(), "Analyzing")

	m.Update(m.loadSnapshot())
	require.NotNil(t, m.snap)
	assert.Contains(t, m.View(), `root export "run"`)

	// root -> export wrapper -> run -> mid
	for i := 0; i < 3; i++ {
		m.Update(key("enter"))
	}
	assert.Len(t, m.stack, 4)
	assert.Contains(t, m.View(), "mid")

	m.Update(key("p"))
	assert.Equal(t, stateDetail, m.state)
	assert.Contains(t, m.View(), "calls mid")
	m.Update(key("esc"))
	assert.Equal(t, stateTree, m.state)

	m.Update(key("d"))
	assert.Contains(t, m.View(), "call 0  <leaf>")
	m.Update(key("esc"))

	m.Update(key("h"))
	assert.Len(t, m.stack, 3)

	m.Update(key("/"))
	m.Update(key("ea"))
	m.Update(key("enter"))
	assert.Contains(t, m.View(), `2 items match "ea"`)
	m.Update(key("esc"))
	assert.Empty(t, m.filter.Value())

	m.Update(key("g"))
	assert.Equal(t, stateGarbage, m.state)
	assert.Contains(t, m.View(), "dead")

	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
