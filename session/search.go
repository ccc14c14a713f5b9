package session

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// Match pairs a session with the snippet that matched the query.
type Match struct {
	Session Session `json:"session"`
	Snippet string  `json:"snippet"`
}

const snippetRadius = 40

func messageSnippet(content, query string) (string, bool) {
	lower := strings.ToLower(content)
	pos := strings.Index(lower, strings.ToLower(query))
	if pos < 0 {
		return "", false
	}
	runes := []rune(content)
	// pos is a byte offset; recompute in runes for clean slicing.
	runePos := len([]rune(content[:pos]))
	start := runePos - snippetRadius
	if start < 0 {
		start = 0
	}
	end := runePos + len([]rune(query)) + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}
	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet, true
}

// SearchAll finds sessions whose name fuzzy-matches the query, then falls
// back to a substring scan of message content for the rest. Results keep
// the fuzzy ranking for name matches, with content matches appended in
// recency order.
func SearchAll(projectRoot, query string) ([]Match, error) {
	sessions, err := List(projectRoot)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]Match, len(sessions))
		for i, s := range sessions {
			out[i] = Match{Session: s, Snippet: s.Name}
		}
		return out, nil
	}

	targets := make([]string, len(sessions))
	for i, s := range sessions {
		targets[i] = s.Name
	}

	var out []Match
	seen := make(map[string]bool)
	for _, m := range fuzzy.Find(query, targets) {
		s := sessions[m.Index]
		out = append(out, Match{Session: s, Snippet: s.Name})
		seen[s.ID] = true
	}

	for _, s := range sessions {
		if seen[s.ID] {
			continue
		}
		messages, err := Messages(projectRoot, s.ID)
		if err != nil {
			continue
		}
		for _, msg := range messages {
			if snippet, ok := messageSnippet(msg.Content, query); ok {
				out = append(out, Match{Session: s, Snippet: snippet})
				break
			}
		}
	}
	return out, nil
}
