package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/binsize/analysis"
	"github.com/wippyai/binsize/config"
	"github.com/wippyai/binsize/correlate"
	"github.com/wippyai/binsize/debuginfo"
	"github.com/wippyai/binsize/loader"
	"github.com/wippyai/binsize/report"
	"github.com/wippyai/binsize/snapshot"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	shutdown func(context.Context) error

	configPath  string
	format      string
	color       string
	metricsFile string
	top         int
	verbose     bool
	validate    bool
	check       bool
	trace       bool
	demangle    bool
	custom      bool
}

func newRootCommand(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "binsize",
		Short: "Attribute the size of WebAssembly and ELF binaries",
		Long: `binsize loads a compiled binary, builds the graph of references between
its functions, data, and metadata, and reports which items take up space,
what keeps them alive, and which bytes nothing references at all.

Items are named by their raw name or by id, e.g. func[12] or symbol[3].`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "TOML file overriding the built-in defaults")
	pf.StringVarP(&a.format, "format", "f", "", "Output format: text|json|yaml")
	pf.StringVar(&a.color, "color", "", "Color text output: auto|always|never")
	pf.IntVarP(&a.top, "top", "n", -1, "Rows in top lists (0 lists everything)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	pf.BoolVar(&a.validate, "validate", false, "Compile WebAssembly input with wazero before analysis")
	pf.BoolVar(&a.check, "check", false, "Verify dominator and size invariants after loading")
	pf.BoolVar(&a.trace, "trace", false, "Write OpenTelemetry spans to stderr")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "Write pipeline metrics to this file on exit")
	pf.BoolVar(&a.demangle, "demangle", false, "Show demangled names")
	pf.BoolVar(&a.custom, "custom-sections", false, "Keep custom sections in the graph")

	root.AddCommand(
		newTopCommand(a),
		newGenericsCommand(a),
		newRetainedCommand(a),
		newGarbageCommand(a),
		newPathCommand(a),
		newDominatorsCommand(a),
		newRefsCommand(a, "callers", "Show items that reference an item"),
		newRefsCommand(a, "callees", "Show items an item references"),
		newDisasmCommand(a),
		newSummaryCommand(a),
		newReportCommand(a),
		newExploreCommand(a),
		newWatchCommand(a),
	)
	// cobra skips post-run hooks when RunE fails; traces and metrics of a
	// failed run are still flushed.
	for _, c := range root.Commands() {
		if c.RunE != nil {
			c.RunE = a.withTeardown(c.RunE)
		}
	}
	return root
}

func (a *app) withTeardown(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if terr := a.teardown(cmd.Context()); err == nil {
				err = terr
			}
		}()
		return run(cmd, args)
	}
}

// setup loads configuration, applies flag overrides, and installs the
// logger and tracer.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return a.fail(cmd, err)
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format = a.format
	}
	if flags.Changed("color") {
		cfg.Output.Color = a.color
	}
	if flags.Changed("top") {
		cfg.Output.Top = a.top
	}
	if flags.Changed("demangle") {
		cfg.Output.Demangle = a.demangle
	}
	if flags.Changed("validate") {
		cfg.Analysis.Validate = a.validate
	}
	if flags.Changed("check") {
		cfg.Analysis.Verify = a.check
	}
	if flags.Changed("custom-sections") {
		cfg.Analysis.CustomSections = a.custom
	}
	if flags.Changed("trace") {
		cfg.Telemetry.Trace = a.trace
	}
	if flags.Changed("metrics-file") {
		cfg.Telemetry.MetricsFile = a.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return a.fail(cmd, err)
	}
	a.cfg = cfg

	a.log = zap.NewNop()
	if a.verbose {
		if a.log, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	loader.SetLogger(a.log.Named("loader"))
	analysis.SetLogger(a.log.Named("analysis"))
	debuginfo.SetLogger(a.log.Named("debuginfo"))
	correlate.SetLogger(a.log.Named("correlate"))
	snapshot.SetLogger(a.log.Named("snapshot"))

	if cfg.Telemetry.Trace {
		shutdown, err := snapshot.InitTracing(cmd.ErrOrStderr(), cmd.Root().Version)
		if err != nil {
			return a.fail(cmd, err)
		}
		a.shutdown = shutdown
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.shutdown != nil {
		if err := a.shutdown(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("tracer shutdown", zap.Error(err))
		}
	}
	if path := a.cfg.Telemetry.MetricsFile; path != "" {
		if err := snapshot.WriteMetrics(path); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	_ = a.log.Sync()
	return nil
}

// fail prints err and returns it; cobra's own printing is silenced.
func (a *app) fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
	return err
}

// load analyzes the file at path with the configured options.
func (a *app) load(cmd *cobra.Command, path string) (*snapshot.Snapshot, error) {
	s, err := snapshot.Load(cmd.Context(), path, a.cfg.SnapshotOptions())
	if err != nil {
		return nil, a.fail(cmd, err)
	}
	if s.DebugErr != nil {
		a.log.Debug("no debug info", zap.Error(s.DebugErr))
	}
	return s, nil
}

func (a *app) renderer(w io.Writer) *report.Renderer {
	format, _ := report.ParseFormat(a.cfg.Output.Format)
	return report.NewRenderer(w, format,
		report.WithDemangle(a.cfg.Output.Demangle),
		report.WithColor(a.useColor(w)))
}

func (a *app) useColor(w io.Writer) bool {
	switch a.cfg.Output.Color {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
