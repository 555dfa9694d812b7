package open

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Zuo-Peng/acta/internal/index"
)

// Session opens the transcript a session was indexed from in $EDITOR,
// positioned at the line of eventID when it is set.
func Session(ctx context.Context, db *index.DB, sessionID, eventID string) error {
	filePath, lineNum, err := Locate(ctx, db, sessionID, eventID)
	if err != nil {
		return err
	}

	cmd := Command(ctx, Editor(), filePath, lineNum)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Locate returns the transcript path of a session and the line eventID was
// read from.
func Locate(ctx context.Context, db *index.DB, sessionID, eventID string) (string, int, error) {
	session, err := db.GetSession(ctx, sessionID)
	if errors.Is(err, index.ErrNotFound) {
		return "", 0, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return "", 0, fmt.Errorf("get session: %w", err)
	}

	filePath := session.FilePath
	if _, err := os.Stat(filePath); err != nil {
		return "", 0, fmt.Errorf("file not found: %s", filePath)
	}

	lineNum, err := EventLine(ctx, db, sessionID, eventID)
	if err != nil {
		return "", 0, err
	}
	return filePath, lineNum, nil
}

// Editor returns $EDITOR, defaulting to less.
func Editor() string {
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	return "less"
}

// EventLine returns the source line of eventID, or 1 when eventID is empty
// or not part of the session.
func EventLine(ctx context.Context, db *index.DB, sessionID, eventID string) (int, error) {
	if eventID == "" {
		return 1, nil
	}
	events, err := db.GetEvents(ctx, sessionID, false)
	if err != nil {
		return 0, fmt.Errorf("get events: %w", err)
	}
	for _, e := range events {
		if e.ID == eventID && e.LineNumber > 0 {
			return e.LineNumber, nil
		}
	}
	return 1, nil
}

// Command builds the editor invocation for filePath at lineNum. EDITOR may
// carry arguments ("code -w").
func Command(ctx context.Context, editor, filePath string, lineNum int) *exec.Cmd {
	fields := strings.Fields(editor)
	if len(fields) == 0 {
		fields = []string{"less"}
	}
	name, args := fields[0], fields[1:]

	switch {
	case strings.Contains(name, "vim") || strings.Contains(name, "nvim"):
		args = append(args, fmt.Sprintf("+%d", lineNum), filePath)
	case strings.Contains(name, "code"):
		args = append(args, "--goto", filePath+":"+strconv.Itoa(lineNum))
	case strings.Contains(name, "less"):
		args = append(args, "+"+strconv.Itoa(lineNum), filePath)
	default:
		args = append(args, filePath)
	}
	return exec.CommandContext(ctx, name, args...)
}
