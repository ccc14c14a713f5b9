package presets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinchengGao-Infty/Creator-Studio/project"
)

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	_, err := project.Create(root, "测试项目")
	require.NoError(t, err)
	return root
}

func rawConfig(t *testing.T, root string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, ".creatorai", "config.json"))
	require.NoError(t, err)
	cfg := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &cfg))
	return cfg
}

func TestGetSeedsDefaultPreset(t *testing.T) {
	root := newProject(t)

	payload, err := Get(root)
	require.NoError(t, err)
	require.Len(t, payload.Presets, 1)
	assert.Equal(t, "default", payload.Presets[0].ID)
	assert.Equal(t, "默认风格", payload.Presets[0].Name)
	assert.True(t, payload.Presets[0].IsDefault)
	assert.Equal(t, "default", payload.ActivePresetID)

	// The seeded preset is persisted into config.json.
	cfg := rawConfig(t, root)
	assert.Equal(t, "default", cfg["activePresetId"])
	assert.NotNil(t, cfg["presets"])
	assert.Equal(t, "测试项目", cfg["name"])
}

func TestSaveRoundTrip(t *testing.T) {
	root := newProject(t)

	custom := WritingPreset{
		ID:   "noir",
		Name: "冷硬风格",
		Style: WritingStyle{
			Tone:        "冷峻",
			Perspective: "第一人称",
			Tense:       "现在式",
			Description: "简练",
		},
		Rules:        []string{"短句优先"},
		CustomPrompt: "保持克制的叙述。",
	}
	require.NoError(t, Save(root, []WritingPreset{defaultPreset(), custom}, "noir"))

	payload, err := Get(root)
	require.NoError(t, err)
	require.Len(t, payload.Presets, 2)
	assert.Equal(t, "noir", payload.ActivePresetID)
	assert.Equal(t, custom, payload.Presets[1])
}

func TestNormalizeKeepsFirstDefault(t *testing.T) {
	a := WritingPreset{ID: "a", Name: "A", IsDefault: true, Rules: []string{}}
	b := WritingPreset{ID: "b", Name: "B", IsDefault: true, Rules: []string{}}

	presets, active := normalize([]WritingPreset{a, b}, "")
	assert.True(t, presets[0].IsDefault)
	assert.False(t, presets[1].IsDefault)
	assert.Equal(t, "a", active)
}

func TestNormalizePromotesFirstWhenNoDefault(t *testing.T) {
	a := WritingPreset{ID: "a", Name: "A", Rules: []string{}}
	b := WritingPreset{ID: "b", Name: "B", Rules: []string{}}

	presets, active := normalize([]WritingPreset{a, b}, "b")
	assert.True(t, presets[0].IsDefault)
	assert.Equal(t, "b", active)
}

func TestSaveResolvesUnknownActiveToDefault(t *testing.T) {
	root := newProject(t)

	require.NoError(t, Save(root, []WritingPreset{defaultPreset()}, "vanished"))

	payload, err := Get(root)
	require.NoError(t, err)
	assert.Equal(t, "default", payload.ActivePresetID)
}

func TestPresetsSurviveProjectOpen(t *testing.T) {
	root := newProject(t)

	custom := WritingPreset{ID: "epic", Name: "史诗风格", Rules: []string{}}
	require.NoError(t, Save(root, []WritingPreset{defaultPreset(), custom}, "epic"))

	// Re-opening the project rewrites config.json through the project
	// package and must not drop the preset keys.
	_, err := project.Open(root)
	require.NoError(t, err)

	payload, err := Get(root)
	require.NoError(t, err)
	require.Len(t, payload.Presets, 2)
	assert.Equal(t, "epic", payload.ActivePresetID)
}

func TestGetRejectsNonProject(t *testing.T) {
	_, err := Get(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not a valid project")
}
