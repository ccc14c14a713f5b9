package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// RecentProject is one entry in the recently-opened list.
type RecentProject struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	LastOpened int64  `json:"lastOpened"`
}

type recentFile struct {
	Recent []RecentProject `json:"recent"`
}

func readRecent() (recentFile, error) {
	path := GetRecentFilePath()
	if !FileExists(path) {
		return recentFile{Recent: []RecentProject{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return recentFile{}, fmt.Errorf("failed to read recent projects: %w", err)
	}
	var file recentFile
	if err := json.Unmarshal(data, &file); err != nil {
		return recentFile{}, fmt.Errorf("failed to parse recent projects: %w", err)
	}
	if file.Recent == nil {
		file.Recent = []RecentProject{}
	}
	return file, nil
}

func writeRecent(file recentFile) error {
	if err := EnsureDir(GetConfigDir()); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal recent projects: %w", err)
	}
	if err := os.WriteFile(GetRecentFilePath(), append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write recent projects: %w", err)
	}
	return nil
}

// ListRecentProjects returns the recent list, most recently opened first.
func ListRecentProjects() ([]RecentProject, error) {
	file, err := readRecent()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(file.Recent, func(i, j int) bool {
		return file.Recent[i].LastOpened > file.Recent[j].LastOpened
	})
	return file.Recent, nil
}

// TouchRecentProject records that a project was just opened, inserting it or
// refreshing its entry. The list is keyed by path and never truncated.
func TouchRecentProject(name, path string) error {
	name = strings.TrimSpace(name)
	path = strings.TrimSpace(path)
	if name == "" {
		return fmt.Errorf("Project name is empty")
	}
	if path == "" {
		return fmt.Errorf("Project path is empty")
	}

	file, err := readRecent()
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	found := false
	for i := range file.Recent {
		if file.Recent[i].Path == path {
			file.Recent[i].Name = name
			file.Recent[i].LastOpened = now
			found = true
			break
		}
	}
	if !found {
		file.Recent = append(file.Recent, RecentProject{Name: name, Path: path, LastOpened: now})
	}

	sort.SliceStable(file.Recent, func(i, j int) bool {
		return file.Recent[i].LastOpened > file.Recent[j].LastOpened
	})
	return writeRecent(file)
}

// RemoveRecentProject drops a project from the list by path. Unknown paths
// are ignored.
func RemoveRecentProject(path string) error {
	file, err := readRecent()
	if err != nil {
		return err
	}
	kept := file.Recent[:0]
	for _, p := range file.Recent {
		if p.Path != path {
			kept = append(kept, p)
		}
	}
	file.Recent = kept
	return writeRecent(file)
}
