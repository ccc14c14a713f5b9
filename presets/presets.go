// Package presets stores per-project writing style presets. They live inside
// .creatorai/config.json next to the project metadata, under the "presets"
// and "activePresetId" keys.
package presets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/JinchengGao-Infty/Creator-Studio/fileops"
	"github.com/JinchengGao-Infty/Creator-Studio/project"
	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

// WritingStyle describes the voice a preset asks the model to write in.
type WritingStyle struct {
	Tone        string `json:"tone"`
	Perspective string `json:"perspective"`
	Tense       string `json:"tense"`
	Description string `json:"description"`
}

// WritingPreset is one named style configuration. Exactly one preset per
// project carries IsDefault.
type WritingPreset struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	IsDefault    bool         `json:"isDefault"`
	Style        WritingStyle `json:"style"`
	Rules        []string     `json:"rules"`
	CustomPrompt string       `json:"customPrompt"`
}

// Payload is what callers get and hand back: the full preset list plus the
// id of the active one.
type Payload struct {
	Presets        []WritingPreset `json:"presets"`
	ActivePresetID string          `json:"active_preset_id"`
}

var fsLock sync.Mutex

const configRel = ".creatorai/config.json"

func defaultPreset() WritingPreset {
	return WritingPreset{
		ID:        "default",
		Name:      "默认风格",
		IsDefault: true,
		Style: WritingStyle{
			Tone:        "自然流畅",
			Perspective: "第三人称有限",
			Tense:       "过去式",
			Description: "适中",
		},
		Rules:        []string{},
		CustomPrompt: "",
	}
}

func readConfig(root string) (map[string]any, error) {
	abs, err := security.ValidatePath(root, configRel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("Failed to read config.json: %v", err)
	}
	cfg := map[string]any{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("Failed to parse config.json: %v", err)
	}
	return cfg, nil
}

func writeConfig(root string, cfg map[string]any) error {
	abs, err := security.ValidatePath(root, configRel)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("Serialize JSON failed: %v", err)
	}
	if _, err := fileops.WriteWithBackup(root, abs, append(data, '\n')); err != nil {
		return fmt.Errorf("Failed to write config.json: %v", err)
	}
	return nil
}

// parsePresets pulls the presets key out of the raw config. A missing or
// null key reports found=false so first reads seed the default.
func parsePresets(cfg map[string]any) ([]WritingPreset, bool, error) {
	raw, ok := cfg["presets"]
	if !ok || raw == nil {
		return nil, false, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false, fmt.Errorf("Invalid presets format: %v", err)
	}
	var presets []WritingPreset
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, false, fmt.Errorf("Invalid presets format: %v", err)
	}
	return presets, true, nil
}

// normalize repairs a preset list: never empty, exactly one default (first
// wins), and an active id that points at an existing preset.
func normalize(presets []WritingPreset, active string) ([]WritingPreset, string) {
	if len(presets) == 0 {
		presets = append(presets, defaultPreset())
	}

	seenDefault := false
	for i := range presets {
		if presets[i].IsDefault {
			if seenDefault {
				presets[i].IsDefault = false
			} else {
				seenDefault = true
			}
		}
	}
	if !seenDefault {
		presets[0].IsDefault = true
	}

	active = strings.TrimSpace(active)
	if active != "" {
		for _, p := range presets {
			if p.ID == active {
				return presets, active
			}
		}
	}
	for _, p := range presets {
		if p.IsDefault {
			return presets, p.ID
		}
	}
	return presets, presets[0].ID
}

func sameJSON(a, b any) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(da, db)
}

// Get returns the project's presets, seeding the default preset and
// persisting any normalization back to config.json on first read.
func Get(root string) (*Payload, error) {
	fsLock.Lock()
	defer fsLock.Unlock()

	if err := project.EnsureProject(root); err != nil {
		return nil, err
	}
	cfg, err := readConfig(root)
	if err != nil {
		return nil, err
	}

	parsed, found, err := parsePresets(cfg)
	if err != nil {
		return nil, err
	}
	storedActive, _ := cfg["activePresetId"].(string)

	presets, active := normalize(parsed, storedActive)

	if !found || !sameJSON(parsed, presets) || storedActive != active {
		cfg["presets"] = presets
		cfg["activePresetId"] = active
		cfg["updated"] = time.Now().Unix()
		if err := writeConfig(root, cfg); err != nil {
			return nil, err
		}
	}

	return &Payload{Presets: presets, ActivePresetID: active}, nil
}

// Save replaces the project's presets and active id wholesale, after
// normalization.
func Save(root string, presets []WritingPreset, activePresetID string) error {
	fsLock.Lock()
	defer fsLock.Unlock()

	if err := project.EnsureProject(root); err != nil {
		return err
	}
	cfg, err := readConfig(root)
	if err != nil {
		return err
	}

	normalized, active := normalize(presets, activePresetID)
	cfg["presets"] = normalized
	cfg["activePresetId"] = active
	cfg["updated"] = time.Now().Unix()

	return writeConfig(root, cfg)
}
