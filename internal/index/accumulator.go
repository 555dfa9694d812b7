package index

import (
	"fmt"
	"path/filepath"

	"github.com/Zuo-Peng/acta/internal/classify"
	"github.com/Zuo-Peng/acta/internal/parse"
)

// accumulator is the running state of one transcript scan. Lines are folded
// in file order: first values win, counters and usage add up.
type accumulator struct {
	sessionID    string
	start        string
	end          string
	agent        string
	declaredType string
	aliases      map[string]string

	model    string
	models   []string
	projects []string
	seen     map[string]struct{} // "m:" model ids, "p:" project tags

	usage     parse.Usage
	msgCount  int
	toolCount int
	classify  classify.Classifier

	events   []Event
	activity []FileActivity
	ids      map[string]int
}

func newAccumulator(id identity, aliases map[string]string) *accumulator {
	return &accumulator{
		sessionID:    id.sessionID,
		start:        id.start,
		agent:        id.agent,
		declaredType: id.sessionType,
		aliases:      aliases,
		seen:         make(map[string]struct{}),
		ids:          make(map[string]int),
	}
}

// add folds one parsed record found at the given physical line.
func (a *accumulator) add(rec parse.Record, lineNo int) {
	switch rec.Kind() {
	case parse.KindHeader, parse.KindMeta:
		if rec.Type == parse.TypeModelChange && rec.ModelID != "" {
			a.addModel(rec.ModelID)
		}
		return
	case parse.KindTurn:
	default:
		return
	}

	nm, ok := parse.Normalize(rec)
	if !ok {
		return
	}
	ts := string(nm.Timestamp)
	if ts != "" {
		a.end = ts
	}
	if nm.Model != "" {
		a.addModel(nm.Model)
	}
	if nm.Cwd != "" {
		a.addProject(nm.Cwd)
	}
	a.usage.Add(nm.Usage)

	eventID := nm.ID
	if eventID == "" {
		eventID = parse.SynthesizeEventID(nm.Timestamp)
	}

	if tr := nm.ToolResult; tr != nil {
		a.events = append(a.events, Event{
			ID:         a.uniqueID(eventID),
			SessionID:  a.sessionID,
			Timestamp:  ts,
			Type:       EventToolResult,
			Role:       RoleTool,
			Content:    tr.Content,
			ToolName:   tr.ToolName,
			ToolResult: tr.Content,
			LineNumber: lineNo,
		})
		return
	}

	if nm.Text != "" {
		id := a.uniqueID(eventID)
		a.events = append(a.events, Event{
			ID:         id,
			SessionID:  a.sessionID,
			Timestamp:  ts,
			Type:       EventMessage,
			Role:       nm.Role,
			Content:    nm.Text,
			LineNumber: lineNo,
		})
		a.msgCount++
		a.classify.Observe(nm.Role, nm.Text, id, ts)
	}

	for _, call := range nm.ToolCalls {
		id := call.ID
		if id == "" {
			id = eventID + "-" + call.Name
		}
		a.events = append(a.events, Event{
			ID:         a.uniqueID(id),
			SessionID:  a.sessionID,
			Timestamp:  ts,
			Type:       EventToolCall,
			Role:       nm.Role,
			ToolName:   call.Name,
			ToolArgs:   call.Args,
			LineNumber: lineNo,
		})
		a.toolCount++

		op := parse.FileOperation(call.Name)
		for _, p := range parse.ExtractFilePaths(call.Args) {
			a.activity = append(a.activity, FileActivity{
				SessionID: a.sessionID,
				FilePath:  p,
				Operation: op,
				Timestamp: ts,
			})
		}
	}
}

// uniqueID keeps event ids unique within one file; repeats get a numeric
// suffix.
func (a *accumulator) uniqueID(id string) string {
	n, dup := a.ids[id]
	if !dup {
		a.ids[id] = 1
		return id
	}
	for {
		candidate := fmt.Sprintf("%s-%d", id, n)
		n++
		if _, taken := a.ids[candidate]; !taken {
			a.ids[id] = n
			a.ids[candidate] = 1
			return candidate
		}
	}
}

func (a *accumulator) addModel(m string) {
	if a.model == "" {
		a.model = m
	}
	if _, ok := a.seen["m:"+m]; ok {
		return
	}
	a.seen["m:"+m] = struct{}{}
	a.models = append(a.models, m)
}

func (a *accumulator) addProject(cwd string) {
	tag := filepath.Base(filepath.Clean(cwd))
	if tag == "." || tag == string(filepath.Separator) {
		return
	}
	if alias, ok := a.aliases[tag]; ok {
		tag = alias
	}
	if _, ok := a.seen["p:"+tag]; ok {
		return
	}
	a.seen["p:"+tag] = struct{}{}
	a.projects = append(a.projects, tag)
}

// session finalizes the aggregate into a Session row.
func (a *accumulator) session(filePath string) *Session {
	c := a.classify.Result(a.declaredType)
	return &Session{
		ID:                    a.sessionID,
		StartTime:             a.start,
		EndTime:               a.end,
		MessageCount:          a.msgCount,
		ToolCount:             a.toolCount,
		Model:                 a.model,
		Models:                a.models,
		Summary:               c.Summary,
		Agent:                 a.agent,
		SessionType:           c.Type,
		TotalCost:             a.usage.Cost,
		TotalTokens:           a.usage.TotalTokens,
		InputTokens:           a.usage.Input,
		OutputTokens:          a.usage.Output,
		CacheReadTokens:       a.usage.CacheRead,
		CacheWriteTokens:      a.usage.CacheWrite,
		InitialPrompt:         c.InitialPrompt,
		FirstMessageID:        c.FirstMessageID,
		FirstMessageTimestamp: c.FirstMessageTimestamp,
		Projects:              a.projects,
		FilePath:              filePath,
	}
}
