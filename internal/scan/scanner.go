package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the transcript file extension.
const Ext = ".jsonl"

const (
	openclawRoot = ".openclaw"
	claudeRoot   = ".claude"
	claudePrefix = "claude-"
	fallbackTag  = "main"
)

// Dir is a directory of transcripts together with the agent tag its
// sessions are attributed to.
type Dir struct {
	Path  string `json:"path"`
	Agent string `json:"agent"`
}

// Discover resolves the transcript directories under the current user's
// home. A non-empty override (colon-separated) takes precedence.
func Discover(override string) []Dir {
	home, _ := os.UserHomeDir()
	return DiscoverIn(home, override)
}

// DiscoverIn resolves directories in three tiers; the first tier that yields
// anything wins:
//  1. the override list, each existing path tagged by its parent's base name
//  2. ~/.openclaw/agents/*/sessions and ~/.claude/projects/* (+ sessions/)
//  3. ~/.openclaw/agents/main/sessions, if it exists
func DiscoverIn(home, override string) []Dir {
	var dirs []Dir

	if override != "" {
		for _, p := range strings.Split(override, ":") {
			if p == "" || !exists(p) {
				continue
			}
			dirs = append(dirs, Dir{Path: p, Agent: filepath.Base(filepath.Dir(p))})
		}
		if len(dirs) > 0 {
			return dirs
		}
	}

	if home == "" {
		return nil
	}

	agentsRoot := filepath.Join(home, openclawRoot, "agents")
	for _, agent := range readDirNames(agentsRoot) {
		sp := filepath.Join(agentsRoot, agent, "sessions")
		if isDir(sp) {
			dirs = append(dirs, Dir{Path: sp, Agent: agent})
		}
	}

	projectsRoot := filepath.Join(home, claudeRoot, "projects")
	for _, proj := range readDirNames(projectsRoot) {
		projDir := filepath.Join(projectsRoot, proj)
		tag := claudePrefix + proj
		if isDir(projDir) && hasTranscripts(projDir) {
			dirs = append(dirs, Dir{Path: projDir, Agent: tag})
		}
		sp := filepath.Join(projDir, "sessions")
		if isDir(sp) {
			dirs = append(dirs, Dir{Path: sp, Agent: tag})
		}
	}

	if len(dirs) == 0 {
		fallback := filepath.Join(home, openclawRoot, "agents", fallbackTag, "sessions")
		if exists(fallback) {
			dirs = append(dirs, Dir{Path: fallback, Agent: fallbackTag})
		}
	}

	return dirs
}

// ListFiles returns the transcript files directly inside dir, sorted.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsTranscript(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// IsTranscript reports whether name has the transcript extension.
func IsTranscript(name string) bool {
	return strings.HasSuffix(name, Ext)
}

func hasTranscripts(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if IsTranscript(e.Name()) {
			return true
		}
	}
	return false
}

// readDirNames lists entry names, sorted; unreadable dirs yield nothing.
func readDirNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
