package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Zuo-Peng/acta/internal/index"
	"github.com/Zuo-Peng/acta/internal/open"
	"github.com/Zuo-Peng/acta/internal/search"
)

const debounceDelay = 200 * time.Millisecond

// listLimit caps how many sessions list mode loads.
const listLimit = 500

type tuiMode int

const (
	modeSearch tuiMode = iota
	modeList
)

// item is one row of the left panel: a search hit or a whole session.
type item struct {
	SessionID string
	EventID   string // empty in list mode
	Agent     string
	Time      string
	Summary   string
	Snippet   string
}

func fromResults(results []search.Result) []item {
	items := make([]item, 0, len(results))
	for _, r := range results {
		items = append(items, item{
			SessionID: r.Event.SessionID,
			EventID:   r.Event.ID,
			Agent:     r.Agent,
			Time:      r.Event.Timestamp,
			Summary:   r.SessionSummary,
			Snippet:   r.Snippet,
		})
	}
	return items
}

func fromSessions(sessions []*index.Session) []item {
	items := make([]item, 0, len(sessions))
	for _, s := range sessions {
		t := s.EndTime
		if t == "" {
			t = s.StartTime
		}
		items = append(items, item{
			SessionID: s.ID,
			Agent:     s.Agent,
			Time:      t,
			Summary:   s.Summary,
			Snippet:   s.InitialPrompt,
		})
	}
	return items
}

// message types

type resultsMsg struct {
	query string
	items []item
	err   error
}

type debounceTickMsg struct {
	query string
}

// editorDoneMsg reports the end of an editor launched from the browser.
type editorDoneMsg struct {
	err error
}

// model

type model struct {
	ctx         context.Context
	db          *index.DB
	searchOpts  search.Options
	mode        tuiMode
	query       string
	items       []item
	cursor      int
	listOffset  int
	filterInput textinput.Model
	preview     viewport.Model
	previewKey  string // "sessionID:eventID" to avoid duplicate renders
	width       int
	height      int
	ready       bool
	quitting    bool
	selected    *item
	status      string // last editor failure, cleared on the next launch
}

func newInput(placeholder, value string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()
	ti.SetValue(value)
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.TextStyle = styleInput
	ti.CharLimit = 256
	return ti
}

func initialModel(ctx context.Context, db *index.DB, mode tuiMode, query string, opts search.Options) model {
	placeholder := "Search..."
	if mode == modeList {
		placeholder = "Filter..."
	}
	return model{
		ctx:         ctx,
		db:          db,
		searchOpts:  opts,
		mode:        mode,
		query:       query,
		filterInput: newInput(placeholder, query),
		preview:     viewport.New(0, 0),
	}
}

// Run starts the TUI in search mode and blocks until it exits.
// If the user selects a result, it copies the session ID to clipboard.
func Run(ctx context.Context, db *index.DB, query string, opts search.Options) error {
	return run(initialModel(ctx, db, modeSearch, query, opts))
}

// RunList starts the TUI in list mode, showing sessions by recent activity.
// Typing switches to a full-text search across all sessions.
func RunList(ctx context.Context, db *index.DB, opts search.Options) error {
	return run(initialModel(ctx, db, modeList, "", opts))
}

func run(m model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}

	fm := finalModel.(model)
	if fm.selected != nil {
		copySessionID(os.Stdout, fm.selected.SessionID)
	}
	return nil
}

// copySessionID puts the session ID on the clipboard, or prints it when no
// clipboard is available.
func copySessionID(w io.Writer, sessionID string) {
	if err := clipboard.WriteAll(sessionID); err != nil {
		fmt.Fprintf(w, "%s\n", sessionID)
		return
	}
	fmt.Fprintf(w, "Copied to clipboard: %s\n", sessionID)
}

// Init triggers the initial search/list load.
func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.mode == modeList {
		cmds = append(cmds, m.doList(""))
	} else if m.query != "" {
		cmds = append(cmds, m.doSearch(m.query))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.preview = newViewport(m.previewWidth(), m.panelHeight())
		m.previewKey = ""
		if c := m.loadCurrentPreview(); c != nil {
			cmds = append(cmds, c)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Open):
			if len(m.items) > 0 && m.cursor < len(m.items) {
				m.status = ""
				return m, m.openEditor(m.items[m.cursor])
			}
			return m, nil

		case key.Matches(msg, keys.Copy):
			if len(m.items) > 0 && m.cursor < len(m.items) {
				it := m.items[m.cursor]
				m.selected = &it
				m.quitting = true
				return m, tea.Quit
			}

		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.adjustListScroll(m.panelHeight())
				cmds = append(cmds, m.loadCurrentPreview())
			}
			return m, tea.Batch(cmds...)

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
				m.adjustListScroll(m.panelHeight())
				cmds = append(cmds, m.loadCurrentPreview())
			}
			return m, tea.Batch(cmds...)

		case key.Matches(msg, keys.PreviewUp):
			m.preview.LineUp(m.panelHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.PreviewDn):
			m.preview.LineDown(m.panelHeight() / 2)
			return m, nil

		case key.Matches(msg, keys.PageUp):
			m.preview.LineUp(m.panelHeight())
			return m, nil

		case key.Matches(msg, keys.PageDown):
			m.preview.LineDown(m.panelHeight())
			return m, nil
		}

		// Pass remaining keys to text input
		var tiCmd tea.Cmd
		m.filterInput, tiCmd = m.filterInput.Update(msg)
		cmds = append(cmds, tiCmd)

		newQuery := m.filterInput.Value()
		if newQuery != m.query {
			m.query = newQuery
			cmds = append(cmds, m.scheduleDebouncedSearch(newQuery))
		}
		return m, tea.Batch(cmds...)

	case tea.MouseMsg:
		if !m.ready || len(m.items) == 0 {
			return m, nil
		}

		region, itemIdx := m.hitTest(msg.X, msg.Y)

		switch {
		case region == regionList && msg.Button == tea.MouseButtonWheelUp:
			if m.listOffset > 0 {
				m.listOffset--
			}
			return m, nil

		case region == regionList && msg.Button == tea.MouseButtonWheelDown:
			visibleItems := m.panelHeight() / linesPerItem
			maxOffset := max(len(m.items)-visibleItems, 0)
			if m.listOffset < maxOffset {
				m.listOffset++
			}
			return m, nil

		case region == regionList && msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
			if itemIdx >= 0 && itemIdx < len(m.items) && m.cursor != itemIdx {
				m.cursor = itemIdx
				m.adjustListScroll(m.panelHeight())
				cmds = append(cmds, m.loadCurrentPreview())
			}
			return m, tea.Batch(cmds...)

		case region == regionPreview && (msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown):
			var vpCmd tea.Cmd
			m.preview, vpCmd = m.preview.Update(msg)
			if vpCmd != nil {
				cmds = append(cmds, vpCmd)
			}
			return m, tea.Batch(cmds...)
		}

		return m, nil

	case editorDoneMsg:
		if msg.err != nil {
			m.status = "open: " + msg.err.Error()
		}
		return m, nil

	case debounceTickMsg:
		// Only fire search if query hasn't changed since debounce was scheduled
		if msg.query == m.query {
			if m.mode == modeList {
				cmds = append(cmds, m.doList(msg.query))
			} else {
				cmds = append(cmds, m.doSearch(msg.query))
			}
		}
		return m, tea.Batch(cmds...)

	case resultsMsg:
		if msg.query != m.query {
			return m, nil
		}
		m.cursor = 0
		m.listOffset = 0
		m.previewKey = ""
		if msg.err != nil {
			m.items = nil
			m.preview.SetContent("Error: " + msg.err.Error())
			return m, nil
		}
		m.items = msg.items
		if len(m.items) > 0 {
			cmds = append(cmds, m.loadCurrentPreview())
		} else {
			m.preview.SetContent("")
		}
		return m, tea.Batch(cmds...)

	case previewRenderedMsg:
		key := previewCacheKey(msg.sessionID, msg.eventID)
		if key == m.previewKey {
			return m, nil
		}
		if len(m.items) > 0 && m.cursor < len(m.items) {
			it := m.items[m.cursor]
			if key != previewCacheKey(it.SessionID, it.EventID) {
				return m, nil // stale preview
			}
		}
		if msg.err != nil {
			m.preview.SetContent("Preview error: " + msg.err.Error())
		} else {
			m.preview.SetContent(msg.content)
			if msg.hitLine > 0 {
				m.preview.SetYOffset(msg.hitLine)
			} else {
				m.preview.GotoTop()
			}
		}
		m.previewKey = key
		return m, nil
	}

	return m, tea.Batch(cmds...)
}

// View renders the full TUI.
func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}

	listW := m.listWidth()
	previewW := m.previewWidth()
	panelH := m.panelHeight()

	inputRow := m.filterInput.View()

	listPanel := stylePanelBorder.
		Width(listW).
		Height(panelH).
		Render(m.renderList(listW, panelH))

	m.preview.Width = previewW
	m.preview.Height = panelH
	previewPanel := styleActiveBorder.
		Width(previewW).
		Height(panelH).
		Render(m.preview.View())

	panels := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, previewPanel)

	return lipgloss.JoinVertical(lipgloss.Left, inputRow, panels, m.statusBar())
}

// helper methods

func (m model) listWidth() int {
	if m.width <= 0 {
		return 40
	}
	// 40% for list, minus border padding
	return max(m.width*40/100-4, 20)
}

func (m model) previewWidth() int {
	if m.width <= 0 {
		return 60
	}
	// 60% for preview, minus border padding
	return max(m.width*60/100-4, 20)
}

func (m model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	// Subtract input row (1) + status bar (1) + borders (4)
	return max(m.height-6, 5)
}

type mouseRegion int

const (
	regionNone mouseRegion = iota
	regionList
	regionPreview
)

// hitTest maps terminal coordinates to a panel region and list item index.
func (m model) hitTest(x, y int) (mouseRegion, int) {
	pH := m.panelHeight()
	contentYStart := 2 // input row (1) + top border (1)
	contentYEnd := contentYStart + pH - 1

	if y < contentYStart || y > contentYEnd {
		return regionNone, -1
	}
	relY := y - contentYStart

	lw := m.listWidth()
	listBoxRight := lw + 1 // col 0=border, 1..lw=content, lw+1=border

	if x >= 1 && x <= lw {
		return regionList, m.listOffset + (relY / linesPerItem)
	}
	if x > listBoxRight+1 {
		return regionPreview, -1
	}
	return regionNone, -1
}

func (m model) statusBar() string {
	noun := "results"
	if m.mode == modeList && m.query == "" {
		noun = "sessions"
	}
	parts := []string{
		fmt.Sprintf("%d %s", len(m.items), noun),
		"click/up/dn navigate",
		"scroll/C-u/C-d preview",
	}
	for _, b := range keys.statusHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	bar := styleStatusBar.Render(strings.Join(parts, " | "))
	if m.status != "" {
		bar += styleStatusErr.Render(m.status)
	}
	return bar
}

// openEditor suspends the browser and opens the item's transcript at its
// line. Lookup failures are reported the same way as editor failures.
func (m model) openEditor(it item) tea.Cmd {
	path, line, err := open.Locate(m.ctx, m.db, it.SessionID, it.EventID)
	if err != nil {
		return func() tea.Msg { return editorDoneMsg{err: err} }
	}
	cmd := open.Command(m.ctx, open.Editor(), path, line)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return editorDoneMsg{err: err}
	})
}

func (m model) doSearch(query string) tea.Cmd {
	ctx, db := m.ctx, m.db
	opts := m.searchOpts
	opts.Query = query
	return func() tea.Msg {
		if query == "" {
			return resultsMsg{query: query}
		}
		results, err := search.Search(ctx, db, opts)
		return resultsMsg{query: query, items: fromResults(results), err: err}
	}
}

func (m model) doList(filter string) tea.Cmd {
	ctx, db := m.ctx, m.db
	opts := m.searchOpts
	opts.Query = filter
	opts.Dedup = true
	return func() tea.Msg {
		if filter == "" {
			sessions, _, err := db.ListSessions(ctx, index.ListOptions{Agent: opts.Agent, Limit: listLimit})
			return resultsMsg{query: filter, items: fromSessions(sessions), err: err}
		}
		// with input, search across all conversation content
		results, err := search.Search(ctx, db, opts)
		return resultsMsg{query: filter, items: fromResults(results), err: err}
	}
}

func (m model) scheduleDebouncedSearch(query string) tea.Cmd {
	return tea.Tick(debounceDelay, func(time.Time) tea.Msg {
		return debounceTickMsg{query: query}
	})
}

func (m model) loadCurrentPreview() tea.Cmd {
	if len(m.items) == 0 || m.cursor >= len(m.items) {
		return nil
	}
	it := m.items[m.cursor]
	if previewCacheKey(it.SessionID, it.EventID) == m.previewKey {
		return nil // already showing this preview
	}
	return loadPreviewCmd(m.ctx, m.db, it, m.query, m.previewWidth())
}

func previewCacheKey(sessionID, eventID string) string {
	return sessionID + ":" + eventID
}
