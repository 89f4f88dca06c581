package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/binsize/errors"
	"github.com/wippyai/binsize/graph"
	"github.com/wippyai/binsize/query"
	"github.com/wippyai/binsize/report"
	"github.com/wippyai/binsize/snapshot"
)

// resolveItem accepts an item id such as func[3] or a raw name. A name
// shared by several items resolves to the first in declaration order.
func resolveItem(q *query.Engine, arg string) (graph.ItemID, error) {
	if id, err := graph.ParseID(arg); err == nil {
		if _, err := q.Item(id); err != nil {
			return 0, err
		}
		return id, nil
	}
	matches := q.Lookup(arg)
	if len(matches) == 0 {
		return 0, errors.NotFound(errors.PhaseQuery, "item", arg)
	}
	return matches[0].ID, nil
}

func (a *app) withSnapshot(fn func(cmd *cobra.Command, s *snapshot.Snapshot, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := a.load(cmd, args[0])
		if err != nil {
			return err
		}
		if err := fn(cmd, s, args[1:]); err != nil {
			return a.fail(cmd, err)
		}
		return nil
	}
}

func (a *app) withItem(fn func(cmd *cobra.Command, s *snapshot.Snapshot, id graph.ItemID) error) func(*cobra.Command, []string) error {
	return a.withSnapshot(func(cmd *cobra.Command, s *snapshot.Snapshot, args []string) error {
		id, err := resolveItem(s.Query, args[0])
		if err != nil {
			return err
		}
		return fn(cmd, s, id)
	})
}

func newTopCommand(a *app) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "top <file>",
		Short: "List items by shallow size",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSnapshot(func(cmd *cobra.Command, s *snapshot.Snapshot, _ []string) error {
			if !cmd.Flags().Changed("filter") {
				return a.renderer(cmd.OutOrStdout()).Entries("top by shallow size", s.Query.TopBySize(a.cfg.Output.Top))
			}
			f := s.Query.Filter(filter)
			if n := a.cfg.Output.Top; n > 0 && n < len(f.Entries) {
				f.Entries = f.Entries[:n]
			}
			return a.renderer(cmd.OutOrStdout()).Filtered("top matching "+strconv.Quote(filter), f)
		}),
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Only list items whose name contains this text, ignoring case, and total them")
	return cmd
}

func newGenericsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "generics <file>",
		Aliases: []string{"monos"},
		Short:   "Group generic instantiations and list the most duplicated",
		Args:    cobra.ExactArgs(1),
		RunE: a.withSnapshot(func(cmd *cobra.Command, s *snapshot.Snapshot, _ []string) error {
			return a.renderer(cmd.OutOrStdout()).Generics("generic instantiations", s.Query.TopByGeneric(a.cfg.Output.Top))
		}),
	}
}

func newRetainedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retained <file>",
		Short: "List items by retained size",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSnapshot(func(cmd *cobra.Command, s *snapshot.Snapshot, _ []string) error {
			return a.renderer(cmd.OutOrStdout()).Entries("top by retained size", s.Query.TopByRetainedSize(a.cfg.Output.Top))
		}),
	}
}

func newGarbageCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "garbage <file>",
		Short: "List items no root can reach",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSnapshot(func(cmd *cobra.Command, s *snapshot.Snapshot, _ []string) error {
			items := s.Query.GarbageItems()
			if n := a.cfg.Output.Top; n > 0 && n < len(items) {
				items = items[:n]
			}
			return a.renderer(cmd.OutOrStdout()).Entries("garbage", items)
		}),
	}
}

func newPathCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path <file> <item>",
		Short: "Show the shortest chain of references from a root to an item",
		Args:  cobra.ExactArgs(2),
		RunE: a.withItem(func(cmd *cobra.Command, s *snapshot.Snapshot, id graph.ItemID) error {
			p, err := s.Query.PathToRoot(id)
			if err != nil {
				return err
			}
			return a.renderer(cmd.OutOrStdout()).Path(report.NewPathReport(s.Query, p))
		}),
	}
}

func newDominatorsCommand(a *app) *cobra.Command {
	var children bool
	cmd := &cobra.Command{
		Use:   "dominators <file> <item>",
		Short: "Show the items every path to an item passes through",
		Args:  cobra.ExactArgs(2),
		RunE: a.withItem(func(cmd *cobra.Command, s *snapshot.Snapshot, id graph.ItemID) error {
			if children {
				es, err := s.Query.Children(id)
				if err != nil {
					return err
				}
				return a.renderer(cmd.OutOrStdout()).Entries("dominated by "+id.String(), es)
			}
			es, err := s.Query.Dominators(id)
			if err != nil {
				return err
			}
			return a.renderer(cmd.OutOrStdout()).Entries("dominators of "+id.String(), es)
		}),
	}
	cmd.Flags().BoolVar(&children, "children", false, "List the items this item immediately dominates instead")
	return cmd
}

func newRefsCommand(a *app, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <file> <item>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: a.withItem(func(cmd *cobra.Command, s *snapshot.Snapshot, id graph.ItemID) error {
			var (
				ns  []query.Neighbor
				err error
			)
			if use == "callers" {
				ns, err = s.Query.Callers(id)
			} else {
				ns, err = s.Query.Callees(id)
			}
			if err != nil {
				return err
			}
			return a.renderer(cmd.OutOrStdout()).Neighbors(use+" of "+id.String(), ns)
		}),
	}
}

func newDisasmCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file> <item>",
		Short: "Disassemble an item, annotated with source locations",
		Args:  cobra.ExactArgs(2),
		RunE: a.withItem(func(cmd *cobra.Command, s *snapshot.Snapshot, id graph.ItemID) error {
			l, err := s.Correlator.Correlate(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.renderer(cmd.OutOrStdout()).Listing(l, nameOf(s))
		}),
	}
}

// nameOf resolves ids to display names, falling back to the id itself.
func nameOf(s *snapshot.Snapshot) func(graph.ItemID) string {
	return func(id graph.ItemID) string {
		if it, ok := s.Graph.Get(id); ok {
			return it.DisplayName()
		}
		return id.String()
	}
}

func newSummaryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <file>",
		Short: "Show totals and per-kind sizes",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSnapshot(func(cmd *cobra.Command, s *snapshot.Snapshot, _ []string) error {
			return a.renderer(cmd.OutOrStdout()).Summary(s.Path, s.Query.Summary())
		}),
	}
}

func newReportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <file>",
		Short: "Show the summary, top lists, and garbage together",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSnapshot(func(cmd *cobra.Command, s *snapshot.Snapshot, _ []string) error {
			return a.renderer(cmd.OutOrStdout()).Report(report.Build(s, a.cfg.Output.Top))
		}),
	}
}

func newWatchCommand(a *app) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-analyze a file whenever it changes and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("debounce") {
				a.cfg.Watch.Debounce = debounce
			}
			st := snapshot.NewStore(nil)
			out := cmd.OutOrStdout()
			show := func(s *snapshot.Snapshot) {
				if err := a.renderer(out).Summary(s.Path, s.Query.Summary()); err != nil {
					a.log.Warn("render summary", zap.Error(err))
				}
			}

			if s, err := st.Reload(cmd.Context(), args[0], a.cfg.SnapshotOptions()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			} else {
				show(s)
			}

			err := snapshot.Watch(cmd.Context(), st, args[0], a.cfg.SnapshotOptions(),
				snapshot.WithDebounce(a.cfg.Watch.Debounce),
				snapshot.WithOnReload(func(s *snapshot.Snapshot, err error) {
					fmt.Fprintf(out, "\n%s %s\n", time.Now().Format(time.TimeOnly), strings.Repeat("-", 40))
					if err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
						if cur := st.Current(); cur != nil {
							fmt.Fprintf(out, "keeping snapshot from %s\n", cur.LoadedAt.Format(time.TimeOnly))
						}
						return
					}
					show(s)
				}))
			if err != nil {
				return a.fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", snapshot.DefaultDebounce, "Quiet period before reloading")
	return cmd
}
