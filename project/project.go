// Package project manages the on-disk layout of a writing project: the
// .creatorai config, the chapter index, chapter files, summaries and txt
// import.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JinchengGao-Infty/Creator-Studio/fileops"
	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

const Version = "1.0"

type Settings struct {
	AutoSave         bool `json:"autoSave"`
	AutoSaveInterval int  `json:"autoSaveInterval"`
}

type Config struct {
	Name     string   `json:"name"`
	Created  int64    `json:"created"`
	Updated  int64    `json:"updated"`
	Version  string   `json:"version"`
	Settings Settings `json:"settings"`
}

func nowUnix() int64 { return time.Now().Unix() }

func configPath(root string) string {
	return filepath.Join(root, ".creatorai", "config.json")
}

func indexPath(root string) string {
	return filepath.Join(root, "chapters", "index.json")
}

// EnsureProject verifies root points at a valid project directory.
func EnsureProject(root string) error {
	if root == "" {
		return fmt.Errorf("Project path is empty")
	}
	info, err := os.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("Project path does not exist")
		}
		return fmt.Errorf("failed to stat project path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("Project path is not a directory")
	}
	if _, err := os.Stat(configPath(root)); err != nil {
		return fmt.Errorf("Not a valid project: missing .creatorai/config.json")
	}
	if _, err := os.Stat(indexPath(root)); err != nil {
		return fmt.Errorf("Not a valid project: missing chapters/index.json")
	}
	return nil
}

func writeJSONNew(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", filepath.Base(path), err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to write '%s': %w", filepath.Base(path), err)
	}
	return f.Close()
}

// writeJSONProtected overwrites a project JSON file through the backup layer.
func writeJSONProtected(root, rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", rel, err)
	}
	abs, err := security.ValidatePath(root, rel)
	if err != nil {
		return err
	}
	_, err = fileops.WriteWithBackup(root, abs, append(data, '\n'))
	return err
}

// Create initializes a new project at path with the standard layout.
func Create(path, name string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("Project path is empty")
	}
	if info, err := os.Lstat(path); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("Project path is not a directory")
	}

	if err := os.MkdirAll(filepath.Join(path, ".creatorai"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create .creatorai directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(path, "chapters"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create chapters directory: %w", err)
	}

	now := nowUnix()
	cfg := &Config{
		Name:    name,
		Created: now,
		Updated: now,
		Version: Version,
		Settings: Settings{
			AutoSave:         true,
			AutoSaveInterval: 2000,
		},
	}
	if err := writeJSONNew(configPath(path), cfg); err != nil {
		return nil, err
	}
	if err := writeJSONNew(indexPath(path), &Index{Chapters: []Chapter{}, NextID: 1}); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(path, "summaries.json"), []byte("[]\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write summaries.json: %w", err)
	}
	return cfg, nil
}

// Load reads the project config without touching timestamps.
func Load(path string) (*Config, error) {
	if err := EnsureProject(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(configPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config.json: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config.json: %w", err)
	}
	return &cfg, nil
}

// Open loads the project and bumps its updated timestamp.
func Open(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Updated = nowUnix()
	if err := SaveConfig(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig persists the project config through the backup layer. Keys other
// packages keep in config.json (writing presets among them) survive the
// rewrite.
func SaveConfig(path string, cfg *Config) error {
	if err := EnsureProject(path); err != nil {
		return err
	}

	raw := map[string]any{}
	if data, err := os.ReadFile(configPath(path)); err == nil {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse config.json: %w", err)
		}
	}
	raw["name"] = cfg.Name
	raw["created"] = cfg.Created
	raw["updated"] = cfg.Updated
	raw["version"] = cfg.Version
	raw["settings"] = cfg.Settings

	return writeJSONProtected(path, ".creatorai/config.json", raw)
}
