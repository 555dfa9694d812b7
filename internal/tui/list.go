package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// linesPerItem is the number of terminal lines each result occupies.
const linesPerItem = 2

// agentWidth is the column width reserved for the agent tag.
const agentWidth = 8

// renderList renders the left panel: results list with scrolling.
func (m model) renderList(width, height int) string {
	if len(m.items) == 0 {
		return lipgloss.NewStyle().
			Foreground(colorDim).
			Width(width).
			Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render("No results")
	}

	var lines []string
	for i, it := range m.items {
		if i < m.listOffset {
			continue
		}
		if len(lines)+linesPerItem > height {
			break
		}
		lines = append(lines, formatItem(it, width, i == m.cursor)...)
	}

	// Pad remaining lines
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}

	return strings.Join(lines, "\n")
}

// formatItem formats a single row as two lines:
//
//	line 1: [>] agent  MM-DD  summary
//	line 2:    snippet (dimmed)
func formatItem(it item, width int, selected bool) []string {
	agent := runewidth.Truncate(it.Agent, agentWidth-1, "")
	agent = runewidth.FillRight(agent, agentWidth-1)
	if it.Agent == "main" {
		agent = styleAgentMain.Render(agent)
	} else {
		agent = styleAgentOther.Render(agent)
	}

	// "2026-01-27T..." -> "01-27"
	date := it.Time
	if len(date) >= 10 {
		date = date[5:10]
	}

	summary := strings.ReplaceAll(it.Summary, "\n", " ")
	summaryMax := max(width-2-agentWidth-6-2, 0) // prefix + agent + date + padding
	if runewidth.StringWidth(summary) > summaryMax {
		summary = runewidth.Truncate(summary, summaryMax, "")
	}

	line1 := fmt.Sprintf("%s %s %s", agent, date, summary)
	if selected {
		line1 = styleListSelected.Render("> ") + line1
	} else {
		line1 = "  " + line1
	}

	snippet := strings.NewReplacer("\n", " ", "\t", " ", ">>>", "", "<<<", "").Replace(it.Snippet)
	snippetMax := max(width-4, 0) // indent
	if runewidth.StringWidth(snippet) > snippetMax {
		snippet = runewidth.Truncate(snippet, snippetMax, "")
	}
	line2 := "    " + lipgloss.NewStyle().Foreground(colorDim).Render(snippet)

	return []string{line1, line2}
}

// adjustListScroll keeps the cursor visible within the list viewport.
func (m *model) adjustListScroll(listHeight int) {
	visibleItems := max(listHeight/linesPerItem, 1)
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+visibleItems {
		m.listOffset = m.cursor - visibleItems + 1
	}
}
