package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// Theme colors (Flexoki Dark)
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
	ColorBlue      = lipgloss.Color("#4385BE")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle  = lipgloss.NewStyle().Foreground(ColorTextMuted)
	valueStyle  = lipgloss.NewStyle().Foreground(ColorText)
	costStyle   = lipgloss.NewStyle().Foreground(ColorGreen)
	tokenStyle  = lipgloss.NewStyle().Foreground(ColorBlue)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorOrange)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorTextDim)
)

// Table is a bordered text table for CLI output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTable renders a bordered table with headers and rows. The first
// column is left-aligned, the rest right-aligned.
func RenderTable(t Table) string {
	numCols := len(t.Headers)
	if numCols == 0 {
		return ""
	}

	widths := make([]int, numCols)
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < numCols && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}

	rule := func(left, mid, right string) {
		b.WriteString(dimStyle.Render(left))
		for i, w := range widths {
			b.WriteString(dimStyle.Render(strings.Repeat("─", w+2)))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render(mid))
			}
		}
		b.WriteString(dimStyle.Render(right))
		b.WriteString("\n")
	}

	rule("╭", "┬", "╮")

	b.WriteString(dimStyle.Render("│"))
	for i, h := range t.Headers {
		b.WriteString(headerStyle.Render(fmt.Sprintf(" %-*s ", widths[i], h)))
		if i < numCols-1 {
			b.WriteString(dimStyle.Render("│"))
		}
	}
	b.WriteString(dimStyle.Render("│"))
	b.WriteString("\n")
	rule("├", "┼", "┤")

	for _, row := range t.Rows {
		b.WriteString(dimStyle.Render("│"))
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			var padded string
			if i == 0 {
				padded = fmt.Sprintf(" %-*s ", widths[i], cell)
			} else {
				padded = fmt.Sprintf(" %*s ", widths[i], cell)
			}
			b.WriteString(valueStyle.Render(padded))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│"))
		b.WriteString("\n")
	}

	rule("╰", "┴", "╯")
	return b.String()
}

// RenderMetrics renders one metrics snapshot as a styled report.
func RenderMetrics(m *model.Metrics, displayDecimals int) string {
	var b strings.Builder

	line := func(label, value string, style lipgloss.Style) {
		b.WriteString("  ")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-18s", label)))
		b.WriteString(style.Render(value))
		b.WriteString("\n")
	}

	b.WriteString("  ")
	b.WriteString(headerStyle.Render("Current session"))
	b.WriteString("\n")
	line("Cost", FormatUSD(m.CostUsage, displayDecimals), costStyle)
	line("Tokens", FormatTokens(m.TokenUsage), tokenStyle)
	line("Messages", FormatNumber(int64(m.MessagesUsage)), valueStyle)
	line("Resets in", FormatDuration(m.TimeToReset), valueStyle)
	line("Resets at", m.LimitResetsAt.Local().Format("15:04 MST"), valueStyle)

	b.WriteString("\n  ")
	b.WriteString(headerStyle.Render("Burn rate"))
	b.WriteString("\n")
	if m.BurnRate != nil {
		line("Tokens/min", fmt.Sprintf("%.1f", m.BurnRate.TokensPerMinute), tokenStyle)
		line("Cost/hour", FormatUSD(m.BurnRate.CostPerHour, displayDecimals), costStyle)
	} else {
		line("Tokens/min", "idle", dimStyle)
	}
	if m.CostRate > 0 {
		line("Session rate", FormatUSD(m.CostRate, displayDecimals)+"/h", costStyle)
	}

	b.WriteString("\n  ")
	b.WriteString(headerStyle.Render("Limits (P90)"))
	b.WriteString("\n")
	line("Token limit", FormatTokens(m.P90.TokenLimit), tokenStyle)
	line("Cost limit", FormatUSD(m.P90.CostLimit, displayDecimals), costStyle)
	line("Message limit", FormatNumber(m.P90.MessageLimit), valueStyle)
	if m.TokensWillRunOut != nil {
		line("Runs out at", m.TokensWillRunOut.Local().Format("15:04 MST"), warnStyle)
	}

	if dist := renderDistribution(m, displayDecimals); dist != "" {
		b.WriteString("\n")
		b.WriteString(dist)
	}

	if c := m.Counters; c.DuplicatesSkipped > 0 || c.LinesSkipped > 0 || c.FilesSkipped > 0 {
		b.WriteString("\n  ")
		b.WriteString(dimStyle.Render(fmt.Sprintf("skipped: %d duplicates, %d lines, %d files",
			c.DuplicatesSkipped, c.LinesSkipped, c.FilesSkipped)))
		b.WriteString("\n")
	}

	return b.String()
}

func renderDistribution(m *model.Metrics, displayDecimals int) string {
	if len(m.ModelDistribution) == 0 {
		return ""
	}

	names := make([]string, 0, len(m.ModelDistribution))
	for name := range m.ModelDistribution {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return m.ModelDistribution[names[i]].CostUSD > m.ModelDistribution[names[j]].CostUSD
	})

	t := Table{
		Title:   "Models",
		Headers: []string{"Model", "Tokens", "Cost", "Share"},
	}
	for _, name := range names {
		ms := m.ModelDistribution[name]
		t.Rows = append(t.Rows, []string{
			name,
			FormatTokens(ms.Tokens.Usage()),
			FormatUSD(ms.CostUSD, displayDecimals),
			FormatPercent(ms.PercentByCost),
		})
	}
	return RenderTable(t)
}

// RenderBlocks renders the session-block list, gaps included.
func RenderBlocks(blocks []*model.SessionBlock, displayDecimals int) string {
	t := Table{
		Title:   "Session blocks",
		Headers: []string{"Start", "End", "Tokens", "Cost", "Messages", "State"},
	}

	for _, blk := range blocks {
		if blk.IsGap {
			t.Rows = append(t.Rows, []string{
				blk.StartTime.Local().Format("Jan 02 15:04"),
				blk.EndTime.Local().Format("Jan 02 15:04"),
				"-", "-", "-",
				"gap",
			})
			continue
		}

		state := "done"
		if blk.IsActive {
			state = "active"
		}
		t.Rows = append(t.Rows, []string{
			blk.StartTime.Local().Format("Jan 02 15:04"),
			blk.EndTime.Local().Format("Jan 02 15:04"),
			FormatTokens(blk.Tokens.Total()),
			FormatUSD(blk.CostUSD, displayDecimals),
			FormatNumber(int64(blk.MessageCount)),
			state,
		})
	}

	return RenderTable(t)
}
