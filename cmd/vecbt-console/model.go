package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vecbt/pkg/vecbt"
)

// Styles.
var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	symbolStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	highlightBG    = lipgloss.Color("236")
)

// runLister is the part of the SDK client the console needs.
type runLister interface {
	ListRuns(ctx context.Context, f vecbt.RunFilter) ([]vecbt.Run, error)
}

// Messages.
type tickMsg time.Time

type runsLoadedMsg struct {
	runs []vecbt.Run
	err  error
}

const refreshEvery = 10 * time.Second

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func loadRunsCmd(client runLister, filter vecbt.RunFilter) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		runs, err := client.ListRuns(ctx, filter)
		return runsLoadedMsg{runs: runs, err: err}
	}
}

// Sort modes.
const (
	sortNewest = iota
	sortReturn
	sortSharpe
	sortModeCount
)

func sortLabel(mode int) string {
	switch mode {
	case sortReturn:
		return "RETURN"
	case sortSharpe:
		return "SHARPE"
	default:
		return "NEWEST"
	}
}

// Model.
type model struct {
	client   runLister
	filter   vecbt.RunFilter
	runs     []vecbt.Run
	selected int
	detail   bool
	sortMode int
	err      error
	loaded   time.Time

	viewport      viewport.Model
	ready         bool
	width, height int
}

func initialModel(client runLister, filter vecbt.RunFilter) model {
	return model{client: client, filter: filter}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(loadRunsCmd(m.client, m.filter), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, loadRunsCmd(m.client, m.filter)
		case "s":
			m.sortMode = (m.sortMode + 1) % sortModeCount
			m.sortRuns()
			m.setContent()
			return m, nil
		case "enter":
			m.detail = !m.detail
			m.setContent()
			return m, nil
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.setContent()
			}
			return m, nil
		case "down", "j":
			if m.selected < len(m.runs)-1 {
				m.selected++
				m.setContent()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.setContent()
		return m, nil

	case tickMsg:
		return m, tea.Batch(loadRunsCmd(m.client, m.filter), tickCmd())

	case runsLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			var keep string
			if m.selected < len(m.runs) {
				keep = m.runs[m.selected].ID
			}
			m.runs = msg.runs
			m.loaded = time.Now()
			m.sortRuns()
			m.selected = 0
			for i, r := range m.runs {
				if r.ID == keep {
					m.selected = i
					break
				}
			}
		}
		m.setContent()
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) sortRuns() {
	switch m.sortMode {
	case sortReturn:
		sort.SliceStable(m.runs, func(i, j int) bool {
			return m.runs[i].Metrics.TotalReturn > m.runs[j].Metrics.TotalReturn
		})
	case sortSharpe:
		sort.SliceStable(m.runs, func(i, j int) bool {
			a, b := m.runs[i].Metrics.Sharpe, m.runs[j].Metrics.Sharpe
			if a == nil || b == nil {
				return a != nil
			}
			return *a > *b
		})
	default:
		sort.SliceStable(m.runs, func(i, j int) bool {
			return m.runs[i].CreatedAt.After(m.runs[j].CreatedAt)
		})
	}
}

func (m *model) setContent() {
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	loaded := "never"
	if !m.loaded.IsZero() {
		loaded = m.loaded.Format(time.TimeOnly)
	}
	headerText := fmt.Sprintf(" vecbt runs    count: %d    sort: %s    loaded: %s ", len(m.runs), sortLabel(m.sortMode), loaded)
	headerBar := headerStyle.Render(padOrTrunc(headerText, m.width))

	footerLeft := " q quit  r refresh  s sort  up/dn select  enter details"
	footerRight := fmt.Sprintf("%.0f%% ", m.viewport.ScrollPercent()*100)
	gap := m.width - len(footerLeft) - len(footerRight)
	if gap < 0 {
		gap = 0
	}
	footerBar := footerStyle.Render(padOrTrunc(footerLeft+strings.Repeat(" ", gap)+footerRight, m.width))

	return headerBar + "\n" + m.viewport.View() + "\n" + footerBar
}

func (m model) renderContent() string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(errStyle.Render("error: "+m.err.Error()) + "\n\n")
	}
	if len(m.runs) == 0 {
		b.WriteString(dimStyle.Render("  no runs stored"))
		return b.String()
	}

	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  %-3s %-8s %-15s %-22s %9s %9s %8s %9s %6s",
		"#", "Symbol", "Strategy", "Params", "Return", "B&H", "Sharpe", "MaxDD", "Trd")))
	b.WriteString("\n")

	for i, r := range m.runs {
		hl := i == m.selected
		line := fmt.Sprintf("  %-3d %s %-15s %-22s %s %s %8s %s %6d",
			i+1,
			hlStyle(symbolStyle, hl).Render(fmt.Sprintf("%-8s", r.Symbol)),
			r.Strategy,
			formatParams(r.Params),
			colorPct(r.Metrics.TotalReturn, hl),
			colorPct(r.Metrics.MarketReturn, hl),
			formatRatio(r.Metrics.Sharpe),
			colorPct(r.Metrics.MaxDrawdown, hl),
			r.Metrics.Trades,
		)
		if hl {
			line = lipgloss.NewStyle().Background(highlightBG).Render(line)
		}
		b.WriteString(line + "\n")
		if hl && m.detail {
			b.WriteString(renderDetail(r))
		}
	}
	return b.String()
}

func renderDetail(r vecbt.Run) string {
	mt := r.Metrics
	rows := [][2]string{
		{"ID", r.ID},
		{"Period", r.Start + " to " + r.End},
		{"Capital", fmt.Sprintf("%.2f", r.InitialCapital)},
		{"Cost rate", fmt.Sprintf("%g", r.CostRate)},
		{"Outperformance", fmt.Sprintf("%.2f%%", mt.Outperformance*100)},
		{"Annualized", fmt.Sprintf("%.2f%%", mt.AnnualizedReturn*100)},
		{"Volatility", fmt.Sprintf("%.2f%%", mt.Volatility*100)},
		{"Sortino", formatRatio(mt.Sortino)},
		{"Calmar", formatRatio(mt.Calmar)},
		{"Total cost", fmt.Sprintf("%.4f", mt.TotalCost)},
		{"Created", r.CreatedAt.Local().Format(time.DateTime)},
	}
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(dimStyle.Render(fmt.Sprintf("      %-15s", row[0])) + " " + row[1] + "\n")
	}
	return b.String()
}

// hlStyle returns a copy of s with the highlight background applied when hl is true.
func hlStyle(s lipgloss.Style, hl bool) lipgloss.Style {
	if hl {
		return s.Background(highlightBG)
	}
	return s
}

func colorPct(v float64, hl bool) string {
	s := fmt.Sprintf("%8.2f%%", v*100)
	switch {
	case v > 0:
		return hlStyle(gainStyle, hl).Render(s)
	case v < 0:
		return hlStyle(lossStyle, hl).Render(s)
	}
	return s
}

func formatRatio(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *v)
}

func formatParams(p map[string]float64) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, p[k])
	}
	return padOrTrunc(strings.Join(parts, ","), 22)
}

func padOrTrunc(s string, width int) string {
	n := len(s)
	if n >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-n)
}
