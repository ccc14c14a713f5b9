package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SummaryEntry is one saved chapter summary. Entries are append-only.
type SummaryEntry struct {
	ChapterID string `json:"chapterId"`
	Summary   string `json:"summary"`
	CreatedAt int64  `json:"createdAt"`
}

func summariesPath(root string) string {
	return filepath.Join(root, "summaries.json")
}

// LoadSummaries returns all saved summaries, oldest first. A missing file is
// an empty list.
func LoadSummaries(root string) ([]SummaryEntry, error) {
	if err := EnsureProject(root); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(summariesPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return []SummaryEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read summaries.json: %w", err)
	}
	var entries []SummaryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse summaries.json: %w", err)
	}
	return entries, nil
}

// SaveSummary appends a summary for a chapter and persists the file.
func SaveSummary(root, chapterID, summary string) (*SummaryEntry, error) {
	if err := EnsureProject(root); err != nil {
		return nil, err
	}
	if strings.TrimSpace(chapterID) == "" {
		return nil, fmt.Errorf("chapterId is empty")
	}
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("summary is empty")
	}

	entries, err := LoadSummaries(root)
	if err != nil {
		return nil, err
	}
	entry := SummaryEntry{
		ChapterID: chapterID,
		Summary:   summary,
		CreatedAt: nowUnix(),
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize summaries.json: %w", err)
	}
	if err := os.WriteFile(summariesPath(root), append(data, '\n'), 0644); err != nil {
		return nil, fmt.Errorf("failed to write summaries.json: %w", err)
	}
	return &entry, nil
}

// LatestSummary returns the newest summary for a chapter, or nil.
func LatestSummary(root, chapterID string) (*SummaryEntry, error) {
	entries, err := LoadSummaries(root)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ChapterID == chapterID {
			return &entries[i], nil
		}
	}
	return nil, nil
}
