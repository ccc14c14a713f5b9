package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JinchengGao-Infty/Creator-Studio/fileops"
	"github.com/JinchengGao-Infty/Creator-Studio/knowledge"
	"github.com/JinchengGao-Infty/Creator-Studio/logging"
	"github.com/JinchengGao-Infty/Creator-Studio/project"
)

// RAGSearcher resolves semantic knowledge queries for the rag_search tool.
type RAGSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.Hit, error)
}

// Dispatcher maps one engine tool call onto the tool library, enforcing the
// mode gates. Arguments come from an untrusted counterparty and are narrowed
// field by field.
type Dispatcher struct {
	ProjectDir string
	Mode       Mode
	AllowWrite bool
	ChapterID  string
	Knowledge  RAGSearcher
}

func isWriteTool(name string) bool {
	switch name {
	case "write", "append", "save_summary":
		return true
	}
	return false
}

// Execute runs one tool call and returns its serialized result.
func (d *Dispatcher) Execute(name string, args map[string]any) (string, error) {
	if d.Mode == ModeDiscussion && isWriteTool(name) {
		return "", errors.New("Tool not allowed in Discussion mode")
	}
	if d.Mode == ModeContinue && !d.AllowWrite && isWriteTool(name) {
		return "", errors.New("Tool not allowed before user confirmation")
	}

	logging.L().Debugw("executing tool", "tool", name, "mode", d.Mode)

	switch name {
	case "read":
		path, ok := argString(args, "path")
		if !ok {
			return "", errors.New("Missing path")
		}
		offset := int64(0)
		if v, ok := argInt64(args["offset"]); ok {
			offset = v
		}
		limit := 0
		if v, ok := argInt64(args["limit"]); ok {
			limit = int(v)
		}
		res, err := fileops.Read(d.ProjectDir, path, offset, limit)
		if err != nil {
			return "", err
		}
		return marshalResult(res)

	case "write":
		path, ok := argString(args, "path")
		if !ok {
			return "", errors.New("Missing path")
		}
		content, ok := argString(args, "content")
		if !ok {
			return "", errors.New("Missing content")
		}
		if err := fileops.Write(d.ProjectDir, path, content); err != nil {
			return "", err
		}
		return "File written successfully", nil

	case "append":
		path, ok := argString(args, "path")
		if !ok {
			return "", errors.New("Missing path")
		}
		content, ok := argString(args, "content")
		if !ok {
			return "", errors.New("Missing content")
		}
		if err := fileops.Append(d.ProjectDir, path, content); err != nil {
			return "", err
		}
		// Keep chapters/index.json in sync when a chapter file grows.
		if err := project.SyncFromFile(d.ProjectDir, path); err != nil {
			return "", err
		}
		return "Content appended successfully", nil

	case "list":
		path, _ := argString(args, "path")
		entries, err := fileops.List(d.ProjectDir, path)
		if err != nil {
			return "", err
		}
		return marshalResult(entries)

	case "search":
		query, ok := argString(args, "query")
		if !ok {
			return "", errors.New("Missing query")
		}
		path, _ := argString(args, "path")
		matches, err := fileops.Search(d.ProjectDir, query, path)
		if err != nil {
			return "", err
		}
		return marshalResult(matches)

	case "get_chapter_info":
		if d.ChapterID == "" {
			return "", errors.New("No chapter selected")
		}
		info, err := project.LookupInfo(d.ProjectDir, d.ChapterID)
		if err != nil {
			return "", err
		}
		return marshalResult(info)

	case "save_summary":
		raw, ok := argString(args, "chapterId")
		if !ok {
			raw, ok = argString(args, "chapter_id")
		}
		if !ok {
			return "", errors.New("Missing chapterId")
		}
		chapterID, err := project.NormalizeID(raw)
		if err != nil {
			return "", err
		}
		summary, ok := argString(args, "summary")
		if !ok {
			return "", errors.New("Missing summary")
		}
		entry, err := project.SaveSummary(d.ProjectDir, chapterID, summary)
		if err != nil {
			return "", err
		}
		return marshalResult(entry)

	case "rag_search":
		query, ok := argString(args, "query")
		if !ok {
			return "", errors.New("Missing query")
		}
		topK := 5
		if v, ok := argInt64(args["topK"]); ok {
			topK = int(v)
		} else if v, ok := argInt64(args["top_k"]); ok {
			topK = int(v)
		}
		if d.Knowledge == nil {
			return "", errors.New("Knowledge index not available")
		}
		hits, err := d.Knowledge.Search(context.Background(), query, topK)
		if err != nil {
			return "", err
		}
		return marshalResult(hits)

	default:
		return "", fmt.Errorf("Unknown tool: %s", name)
	}
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func argString(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// argInt64 tolerates the number representations JSON decoding produces.
func argInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
