// Package tui implements the live usage dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/sched"
	"github.com/theirongolddev/ccmeter/internal/tui/theme"
)

type refreshMsg struct {
	metrics *model.Metrics
	err     error
}

type tickMsg time.Time

// App is the bubbletea model for the live dashboard. Refreshes go through
// the scheduler so the UI loop never blocks on log parsing.
type App struct {
	scheduler       *sched.Scheduler
	interval        time.Duration
	displayDecimals int

	spin       spinner.Model
	metrics    *model.Metrics
	err        error
	showBlocks bool
	loading    bool
	width      int
}

// NewApp returns a dashboard refreshing at the given cadence.
func NewApp(scheduler *sched.Scheduler, interval time.Duration, displayDecimals int) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	if interval <= 0 {
		interval = sched.DefaultInterval
	}

	return App{
		scheduler:       scheduler,
		interval:        interval,
		displayDecimals: displayDecimals,
		spin:            sp,
		loading:         true,
	}
}

// Run starts the dashboard and blocks until the user quits.
func Run(app App) error {
	_, err := tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.spin.Tick, a.refreshCmd(), a.tickCmd())
}

func (a App) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		m, err := a.scheduler.RunOnce(context.Background())
		return refreshMsg{metrics: m, err: err}
	}
}

func (a App) tickCmd() tea.Cmd {
	return tea.Tick(a.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "r":
			a.loading = true
			return a, a.refreshCmd()
		case "b":
			a.showBlocks = !a.showBlocks
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case tickMsg:
		return a, tea.Batch(a.refreshCmd(), a.tickCmd())

	case refreshMsg:
		a.loading = false
		a.err = msg.err
		if msg.err == nil {
			a.metrics = msg.metrics
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	return a, nil
}

// View implements tea.Model.
func (a App) View() string {
	t := theme.Active
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim)
	errStyle := lipgloss.NewStyle().Foreground(t.Red)

	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(titleStyle.Render("ccmeter"))
	if a.loading {
		b.WriteString("  ")
		b.WriteString(a.spin.View())
	} else if a.metrics != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  updated %s", a.metrics.ComputedAt.Local().Format("15:04:05"))))
	}
	b.WriteString("\n\n")

	switch {
	case a.err != nil:
		b.WriteString("  ")
		b.WriteString(errStyle.Render(fmt.Sprintf("refresh failed: %v", a.err)))
		b.WriteString("\n")
	case a.metrics == nil:
		b.WriteString(dimStyle.Render("  loading usage data..."))
		b.WriteString("\n")
	case a.showBlocks:
		b.WriteString(cli.RenderBlocks(a.metrics.Blocks, a.displayDecimals))
	default:
		b.WriteString(cli.RenderMetrics(a.metrics, a.displayDecimals))
	}

	b.WriteString("\n  ")
	b.WriteString(dimStyle.Render("b blocks · r refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}
