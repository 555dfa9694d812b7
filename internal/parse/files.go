package parse

import (
	"encoding/json"
	"strings"
)

// File operations recorded for a tool call touching a path.
const (
	OpRead  = "read"
	OpWrite = "write"
	OpEdit  = "edit"
)

// pathKeys are the argument names checked for file paths, in order.
var pathKeys = []string{"path", "file_path", "filePath", "file", "filename"}

// ExtractFilePaths returns every non-empty string value under one of the
// path-shaped keys of a tool call's argument object.
func ExtractFilePaths(args string) []string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(args), &obj); err != nil {
		return nil
	}

	var paths []string
	for _, key := range pathKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			continue
		}
		paths = append(paths, s)
	}
	return paths
}

// FileOperation infers what a tool did to a file from its name.
func FileOperation(toolName string) string {
	switch {
	case strings.Contains(toolName, "write") || toolName == "Write":
		return OpWrite
	case strings.Contains(toolName, "edit") || toolName == "Edit":
		return OpEdit
	default:
		return OpRead
	}
}
