package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/binsize/correlate"
	"github.com/wippyai/binsize/debuginfo"
	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/loader"
	"github.com/wippyai/binsize/query"
	"github.com/wippyai/binsize/report"
	"github.com/wippyai/binsize/snapshot"
	"github.com/wippyai/binsize/wasm"
	"github.com/wippyai/binsize/wasm/wasmtest"
)

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"text", "JSON", " yaml "} {
		_, err := report.ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := report.ParseFormat("xml")
	assert.Error(t, err)
}

func load(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	b := wasmtest.New()
	void := b.Type(nil, nil)
	helper := b.Func(void, wasmtest.Nops(4))
	main := b.Func(void, wasmtest.Call(helper))
	b.Func(void, wasmtest.Nops(32))
	b.Global(wasm.ValI32, false, wasmtest.I32Const(7))
	b.ExportFunc("main", main)
	b.Name(wasm.SpaceFunc, helper, "_ZN3app6helper17h0123456789abcdefE")
	b.Name(wasm.SpaceFunc, main, "main")
	b.Name(wasm.SpaceFunc, 2, "unused")

	s, err := snapshot.LoadBytes(context.Background(), "app.wasm", b.Bytes(), snapshot.Options{})
	require.NoError(t, err)
	return s
}

func TestEntriesText(t *testing.T) {
	s := load(t)
	var buf bytes.Buffer
	r := report.NewRenderer(&buf, report.FormatText, report.WithDemangle(true))
	require.NoError(t, r.Entries("top", s.Query.TopBySize(0)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "top", lines[0])
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[1]), "SHALLOW"), lines[1])
	assert.Contains(t, lines[2], "unused (garbage)", "largest item first")
	assert.Contains(t, buf.String(), "app::helper")
	assert.NotContains(t, buf.String(), "\x1b[", "no styling without color")

	var again bytes.Buffer
	require.NoError(t, report.NewRenderer(&again, report.FormatText, report.WithDemangle(true)).
		Entries("top", s.Query.TopBySize(0)))
	assert.Equal(t, buf.String(), again.String())
}

func TestFilteredText(t *testing.T) {
	s := load(t)
	var buf bytes.Buffer
	r := report.NewRenderer(&buf, report.FormatText, report.WithDemangle(true))
	require.NoError(t, r.Filtered("filter", s.Query.Filter("HELPER")))

	out := buf.String()
	assert.Contains(t, out, "app::helper")
	assert.NotContains(t, out, "unused")
	assert.Contains(t, out, `1 items matching "HELPER": `)
}

func TestGenericsJSON(t *testing.T) {
	b := wasmtest.New()
	void := b.Type(nil, nil)
	small := b.Func(void, wasmtest.Nops(2))
	large := b.Func(void, wasmtest.Nops(10))
	b.ExportFunc("small", small)
	b.Name(wasm.SpaceFunc, small, "drop<u8>")
	b.Name(wasm.SpaceFunc, large, "drop<alloc::string::String>")
	s, err := snapshot.LoadBytes(context.Background(), "g.wasm", b.Bytes(), snapshot.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.NewRenderer(&buf, report.FormatJSON).Generics("generics", s.Query.TopByGeneric(0)))

	var got []query.Generic
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "drop", got[0].Name)
	assert.Equal(t, 2, got[0].Instances)
	assert.Equal(t, graph.MakeID(loader.SpaceFunc, large), got[0].Largest)

	buf.Reset()
	require.NoError(t, report.NewRenderer(&buf, report.FormatText).Report(report.Build(s, 0)))
	assert.Contains(t, buf.String(), "generic instantiations")
}

func TestReportJSON(t *testing.T) {
	s := load(t)
	var buf bytes.Buffer
	require.NoError(t, report.NewRenderer(&buf, report.FormatJSON).Report(report.Build(s, 2)))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "app.wasm", got["file"])
	assert.Equal(t, "wasm", got["format"])
	assert.Len(t, got["top_size"], 2)
	assert.Len(t, got["top_retained"], 2)
	top := got["top_retained"].([]any)[0].(map[string]any)
	assert.Equal(t, "export \"main\"", top["name"])
	assert.Equal(t, "export[0]", top["id"])
}

func TestSummaryYAML(t *testing.T) {
	s := load(t)
	var buf bytes.Buffer
	require.NoError(t, report.NewRenderer(&buf, report.FormatYAML).Summary(s.Path, s.Query.Summary()))

	var got query.Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, s.Query.Summary(), got)
}

func TestSummaryText(t *testing.T) {
	s := load(t)
	var buf bytes.Buffer
	require.NoError(t, report.NewRenderer(&buf, report.FormatText).Summary("app.wasm", s.Query.Summary()))
	out := buf.String()
	assert.Contains(t, out, "garbage")
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "function")
}

func TestPathText(t *testing.T) {
	s := load(t)
	p, err := s.Query.PathToRoot(graph.MakeID(loader.SpaceFunc, 0))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.NewRenderer(&buf, report.FormatText).Path(report.NewPathReport(s.Query, p)))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5, "heading, root, export, main, helper")
	assert.Equal(t, `root export "main"`, lines[1])
	assert.Contains(t, lines[3], "exports main")
	assert.Contains(t, lines[4], "calls _ZN3app6helper17h0123456789abcdefE")
}

func TestListingText(t *testing.T) {
	l := &correlate.Listing{
		Name:      "main",
		Item:      graph.MakeID(loader.SpaceFunc, 1),
		DebugInfo: correlate.DebugAvailable,
		Records: []correlate.InstructionRecord{
			{Kind: correlate.RecordInstruction, Offset: 0x20, Len: 2, Text: "call 0",
				Refs:   []graph.ItemID{graph.MakeID(loader.SpaceFunc, 0)},
				Frames: []debuginfo.Frame{{Function: "main", File: "m.c", Line: 3}}},
			{Kind: correlate.RecordInstruction, Offset: 0x22, Len: 1, Text: "end",
				Frames: []debuginfo.Frame{{Function: "main", File: "m.c", Line: 3}}},
			{Kind: correlate.RecordError, Offset: 0x23, Text: "bad opcode"},
		},
		Truncated: true,
		Reason:    "undecodable instruction",
	}
	var buf bytes.Buffer
	r := report.NewRenderer(&buf, report.FormatText)
	require.NoError(t, r.Listing(l, func(graph.ItemID) string { return "helper" }))

	assert.Equal(t, strings.Join([]string{
		"main (func[1])",
		"; main at m.c:3",
		"0x000020: call 0  <helper>",
		"0x000022: end",
		"0x000023: error: bad opcode",
		"... truncated: undecodable instruction",
		"",
	}, "\n"), buf.String())
}
