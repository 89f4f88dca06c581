package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wippyai/binsize/query"
	"github.com/wippyai/binsize/report"
	"github.com/wippyai/binsize/snapshot"
	"github.com/wippyai/binsize/symbol"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sizeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	garbageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type exploreState int

const (
	stateTree exploreState = iota
	stateGarbage
	stateDetail
)

// level is one step into the dominator tree.
type level struct {
	parent   query.Entry
	items    []query.Entry
	selected int
}

type exploreModel struct {
	err      error
	ctx      context.Context
	snap     *snapshot.Snapshot
	filename string
	opts     snapshot.Options
	stack    []level
	garbage  level
	filter   textinput.Model
	detail   viewport.Model
	title    string
	width    int
	height   int
	state    exploreState
	back     exploreState
	demangle bool
}

func newExploreModel(ctx context.Context, filename string, opts snapshot.Options, demangle bool) *exploreModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "filter by name"
	ti.Width = 40

	return &exploreModel{
		ctx:      ctx,
		filename: filename,
		opts:     opts,
		filter:   ti,
		detail:   viewport.New(80, 20),
		width:    80,
		height:   24,
		demangle: demangle,
		state:    stateTree,
	}
}

type loadedMsg struct {
	err  error
	snap *snapshot.Snapshot
}

func (m *exploreModel) Init() tea.Cmd {
	return m.loadSnapshot
}

func (m *exploreModel) loadSnapshot() tea.Msg {
	s, err := snapshot.Load(m.ctx, m.filename, m.opts)
	return loadedMsg{snap: s, err: err}
}

func (m *exploreModel) current() *level {
	if m.state == stateGarbage {
		return &m.garbage
	}
	return &m.stack[len(m.stack)-1]
}

// visible is the current level's items after filtering.
func (m *exploreModel) visible() []query.Entry {
	lv := m.current()
	f := strings.ToLower(m.filter.Value())
	if f == "" {
		return lv.items
	}
	var out []query.Entry
	for _, e := range lv.items {
		if strings.Contains(strings.ToLower(e.Name), f) {
			out = append(out, e)
		}
	}
	return out
}

func (m *exploreModel) selectedEntry() (query.Entry, bool) {
	items := m.visible()
	sel := m.current().selected
	if sel < 0 || sel >= len(items) {
		return query.Entry{}, false
	}
	return items[sel], true
}

func (m *exploreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.detail.Width = msg.Width
		m.detail.Height = max(msg.Height-4, 1)
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.snap = msg.snap
		m.stack = []level{{items: msg.snap.Query.TopLevel()}}
		m.garbage = level{items: msg.snap.Query.GarbageItems()}
		return m, nil

	case tea.KeyMsg:
		if m.filter.Focused() {
			return m.updateFilter(msg)
		}
		return m.updateKey(msg)
	}

	if m.state == stateDetail {
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *exploreModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filter.Blur()
		return m, nil
	case "esc":
		m.filter.Reset()
		m.filter.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.current().selected = 0
	return m, cmd
}

func (m *exploreModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" || key == "q" {
		return m, tea.Quit
	}
	if m.snap == nil {
		return m, nil
	}

	if m.state == stateDetail {
		switch key {
		case "esc", "backspace", "left", "h":
			m.state = m.back
			return m, nil
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}

	lv := m.current()
	switch key {
	case "up", "k":
		if lv.selected > 0 {
			lv.selected--
		}

	case "down", "j":
		if lv.selected < len(m.visible())-1 {
			lv.selected++
		}

	case "enter", "right", "l":
		if m.state != stateTree {
			break
		}
		e, ok := m.selectedEntry()
		if !ok {
			break
		}
		children, err := m.snap.Query.Children(e.ID)
		if err != nil || len(children) == 0 {
			break
		}
		m.filter.Reset()
		m.stack = append(m.stack, level{parent: e, items: children})

	case "backspace", "left", "h", "esc":
		switch {
		case m.state == stateGarbage:
			m.state = stateTree
		case len(m.stack) > 1:
			m.stack = m.stack[:len(m.stack)-1]
		}
		m.filter.Reset()

	case "g":
		if m.state == stateGarbage {
			m.state = stateTree
		} else {
			m.state = stateGarbage
		}
		m.filter.Reset()

	case "/":
		m.filter.Focus()
		return m, textinput.Blink

	case "d":
		if e, ok := m.selectedEntry(); ok {
			m.showDisasm(e)
		}

	case "p":
		if e, ok := m.selectedEntry(); ok {
			m.showPath(e)
		}
	}
	return m, nil
}

func (m *exploreModel) renderer(b *strings.Builder) *report.Renderer {
	return report.NewRenderer(b, report.FormatText, report.WithDemangle(m.demangle))
}

func (m *exploreModel) showDetail(title, content string) {
	m.back = m.state
	m.state = stateDetail
	m.title = title
	m.detail.SetContent(content)
	m.detail.GotoTop()
}

func (m *exploreModel) showDisasm(e query.Entry) {
	var b strings.Builder
	l, err := m.snap.Correlator.Correlate(m.ctx, e.ID)
	if err == nil {
		err = m.renderer(&b).Listing(l, nameOf(m.snap))
	}
	if err != nil {
		b.WriteString(garbageStyle.Render(err.Error()))
	}
	m.showDetail("disasm "+e.Name, b.String())
}

func (m *exploreModel) showPath(e query.Entry) {
	var b strings.Builder
	p, err := m.snap.Query.PathToRoot(e.ID)
	if err == nil {
		err = m.renderer(&b).Path(report.NewPathReport(m.snap.Query, p))
	}
	if err != nil {
		b.WriteString(garbageStyle.Render(err.Error()))
	}
	m.showDetail("path "+e.Name, b.String())
}

func (m *exploreModel) View() string {
	if m.err != nil {
		return garbageStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.snap == nil {
		return "Analyzing " + m.filename + "..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("binsize"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n")

	if m.state == stateDetail {
		b.WriteString(m.title)
		b.WriteString("\n\n")
		b.WriteString(m.detail.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • esc back • q quit"))
		return b.String()
	}

	sum := m.snap.Query.Summary()
	fmt.Fprintf(&b, "%s total, %s garbage", humanize.IBytes(uint64(sum.TotalSize)), humanize.IBytes(uint64(sum.GarbageSize)))
	if v := m.filter.Value(); v != "" {
		f := m.snap.Query.Filter(v)
		fmt.Fprintf(&b, " • %d items match %q: %s, %.2f%%", f.Matches, v, humanize.IBytes(uint64(f.TotalSize)), f.TotalPercent)
	}
	b.WriteString("\n")
	b.WriteString(m.breadcrumb())
	b.WriteString("\n\n")

	items := m.visible()
	sel := m.current().selected
	rows := max(m.height-8, 1)
	first := 0
	if sel >= rows {
		first = sel - rows + 1
	}
	for i := first; i < len(items) && i < first+rows; i++ {
		line := m.formatEntry(items[i])
		if i == sel {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	if len(items) == 0 {
		b.WriteString(helpStyle.Render("  (nothing here)"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.filter.Focused() || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ select • enter descend • ← up • d disasm • p path • g garbage • / filter • q quit"))
	return b.String()
}

func (m *exploreModel) breadcrumb() string {
	if m.state == stateGarbage {
		return garbageStyle.Render("garbage")
	}
	parts := []string{"roots"}
	for _, lv := range m.stack[1:] {
		parts = append(parts, lv.parent.Name)
	}
	return strings.Join(parts, " › ")
}

func (m *exploreModel) formatEntry(e query.Entry) string {
	name := e.Name
	if m.demangle {
		name = symbol.Demangle(name)
	}
	sizes := sizeStyle.Render(fmt.Sprintf("%10s %6.2f%% %10s", humanize.IBytes(uint64(e.Retained)), e.RetainedPercent, humanize.IBytes(uint64(e.Size))))
	if e.Garbage {
		name = garbageStyle.Render(name)
	}
	return sizes + "  " + name
}

func newExploreCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explore <file>",
		Short: "Browse the dominator tree interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := newExploreModel(cmd.Context(), args[0], a.cfg.SnapshotOptions(), a.cfg.Output.Demangle)
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return a.fail(cmd, err)
			}
			return nil
		},
	}
}
