package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Zuo-Peng/acta/internal/index"
	"github.com/Zuo-Peng/acta/internal/render"
)

// previewRenderedMsg is sent when an async preview render completes.
type previewRenderedMsg struct {
	sessionID string
	eventID   string
	content   string
	hitLine   int
	err       error
}

// loadPreviewCmd returns a tea.Cmd that renders the session preview async.
func loadPreviewCmd(ctx context.Context, db *index.DB, it item, query string, width int) tea.Cmd {
	return func() tea.Msg {
		content, hitLine, err := render.Conversation(ctx, db, it.SessionID, render.Options{
			HitEventID: it.EventID,
			Context:    -1,
			Width:      width,
			Query:      query,
		})
		return previewRenderedMsg{
			sessionID: it.SessionID,
			eventID:   it.EventID,
			content:   content,
			hitLine:   hitLine,
			err:       err,
		}
	}
}

// newViewport creates a new viewport model with the given dimensions.
func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.Style = stylePanelBorder
	return vp
}
