package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinchengGao-Infty/Creator-Studio/config"
	"github.com/JinchengGao-Infty/Creator-Studio/presets"
	"github.com/JinchengGao-Infty/Creator-Studio/project"
)

func runCLI(t *testing.T, settings *config.Settings, args ...string) error {
	t.Helper()
	root := newRootCommand(settings)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.Execute()
}

func TestProvidersAddListRemove(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	settings := config.DefaultSettings()

	require.NoError(t, runCLI(t, settings,
		"providers", "add", "deepseek",
		"--name", "DeepSeek",
		"--type", config.ProviderOpenAICompatible,
		"--base-url", "https://api.deepseek.com/v1",
		"--model", "deepseek-chat"))

	p, err := config.FindProvider("deepseek")
	require.NoError(t, err)
	assert.Equal(t, "DeepSeek", p.Name)
	assert.Equal(t, "deepseek-chat", p.Model)
	assert.False(t, p.SingleRoundTools)

	// The name defaults to the id when omitted.
	require.NoError(t, runCLI(t, settings,
		"providers", "add", "gem", "--type", config.ProviderGeminiCLI, "--model", "gemini-2.5-pro"))
	p, err = config.FindProvider("gem")
	require.NoError(t, err)
	assert.Equal(t, "gem", p.Name)
	assert.True(t, p.SingleRoundTools)

	require.NoError(t, runCLI(t, settings, "providers", "list"))

	require.NoError(t, runCLI(t, settings, "providers", "remove", "gem"))
	_, err = config.FindProvider("gem")
	assert.EqualError(t, err, "unknown provider: gem")
}

func TestProvidersAddRequiresModel(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())

	err := runCLI(t, config.DefaultSettings(), "providers", "add", "deepseek")
	require.Error(t, err)
}

func TestKeysSetAndDelete(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	settings := config.DefaultSettings()

	require.NoError(t, runCLI(t, settings, "keys", "set", "deepseek", "sk-cli-test"))

	store, err := config.OpenCredentialStore(settings, "")
	require.NoError(t, err)
	assert.Equal(t, "sk-cli-test", store.Get("deepseek"))

	require.NoError(t, runCLI(t, settings, "keys", "delete", "deepseek"))
	store, err = config.OpenCredentialStore(settings, "")
	require.NoError(t, err)
	assert.Empty(t, store.Get("deepseek"))
}

func TestPresetsActivate(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	settings := config.DefaultSettings()

	projectDir := t.TempDir()
	_, err := project.Create(projectDir, "小说")
	require.NoError(t, err)

	require.NoError(t, presets.Save(projectDir, []presets.WritingPreset{
		{ID: "default", Name: "默认风格", IsDefault: true, Rules: []string{}},
		{ID: "noir", Name: "冷硬风格", Rules: []string{}},
	}, "default"))

	require.NoError(t, runCLI(t, settings, "presets", "activate", "noir", "-p", projectDir))
	payload, err := presets.Get(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "noir", payload.ActivePresetID)

	err = runCLI(t, settings, "presets", "activate", "ghost", "-p", projectDir)
	assert.EqualError(t, err, "unknown preset: ghost")
}
