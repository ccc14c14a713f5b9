package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func useTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)
	return dir
}

func TestConfigDirOverride(t *testing.T) {
	dir := useTempConfigDir(t)
	assert.Equal(t, dir, GetConfigDir())
}

func TestLoadSettingsCreatesTemplate(t *testing.T) {
	useTempConfigDir(t)

	cfg, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.Host)
	assert.Equal(t, "bge-m3", cfg.Embedding.Model)
	assert.False(t, cfg.Debug)

	// The template file is written on first load and parses back.
	assert.True(t, FileExists(GetSettingsFilePath()))
	again, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, cfg.Embedding, again.Embedding)
}

func TestSettingsRoundTrip(t *testing.T) {
	useTempConfigDir(t)

	cfg := DefaultSettings()
	cfg.EnginePath = "/opt/ai-engine"
	cfg.ChatTimeoutMs = 120000
	cfg.Debug = true
	require.NoError(t, SaveSettings(cfg))

	loaded, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "/opt/ai-engine", loaded.EnginePath)
	assert.Equal(t, int64(120000), loaded.ChatTimeoutMs)
	assert.True(t, loaded.Debug)

	info, err := os.Stat(GetSettingsFilePath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestProvidersRoundTripAndSingleRoundTools(t *testing.T) {
	useTempConfigDir(t)

	// Empty registry yields defaults.
	providers, params, err := LoadProviders()
	require.NoError(t, err)
	assert.Empty(t, providers)
	assert.Equal(t, 0.7, params.Temperature)
	assert.Equal(t, 1.0, params.TopP)
	assert.Equal(t, 2000, params.MaxTokens)

	require.NoError(t, UpsertProvider(Provider{
		ID:           "local",
		Name:         "Local",
		ProviderType: ProviderOpenAICompatible,
		BaseURL:      "http://localhost:8080/v1",
		Model:        "qwen3",
	}))
	require.NoError(t, UpsertProvider(Provider{
		ID:           "gem",
		Name:         "Gemini CLI",
		ProviderType: ProviderGeminiCLI,
	}))

	providers, _, err = LoadProviders()
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.False(t, providers[0].SingleRoundTools)
	assert.True(t, providers[1].SingleRoundTools)

	// Upsert by ID replaces, not appends.
	require.NoError(t, UpsertProvider(Provider{
		ID:           "local",
		Name:         "Local Renamed",
		ProviderType: ProviderOpenAICompatible,
	}))
	providers, _, err = LoadProviders()
	require.NoError(t, err)
	require.Len(t, providers, 2)

	found, err := FindProvider("local")
	require.NoError(t, err)
	assert.Equal(t, "Local Renamed", found.Name)

	_, err = FindProvider("missing")
	assert.EqualError(t, err, "unknown provider: missing")

	require.NoError(t, DeleteProvider("gem"))
	providers, _, err = LoadProviders()
	require.NoError(t, err)
	assert.Len(t, providers, 1)
}

func TestRecentProjectsUpsertAndOrder(t *testing.T) {
	useTempConfigDir(t)

	require.NoError(t, TouchRecentProject("First Novel", "/work/first"))
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, TouchRecentProject("Second Novel", "/work/second"))

	recent, err := ListRecentProjects()
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/work/second", recent[0].Path)

	// Re-opening the first project moves it to the top and updates its name.
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, TouchRecentProject("First, Revised", "/work/first"))
	recent, err = ListRecentProjects()
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/work/first", recent[0].Path)
	assert.Equal(t, "First, Revised", recent[0].Name)

	require.NoError(t, RemoveRecentProject("/work/second"))
	recent, err = ListRecentProjects()
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestRecentProjectsValidation(t *testing.T) {
	useTempConfigDir(t)

	assert.EqualError(t, TouchRecentProject("  ", "/work/x"), "Project name is empty")
	assert.EqualError(t, TouchRecentProject("x", "   "), "Project path is empty")
}

func TestCredentialStorePlainText(t *testing.T) {
	dir := useTempConfigDir(t)

	store := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, store.Load(dir))
	assert.Empty(t, store.Get("local"))

	require.NoError(t, store.Set("local", "sk-test-123"))
	require.NoError(t, store.Save(dir))

	info, err := os.Stat(credentialsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	fresh := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, fresh.Load(dir))
	assert.Equal(t, "sk-test-123", fresh.Get("local"))

	require.NoError(t, fresh.Delete("local"))
	assert.Empty(t, fresh.Get("local"))
}

func writeTestSSHKey(t *testing.T, path string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
}

func TestCredentialStoreSSHKey(t *testing.T) {
	dir := useTempConfigDir(t)
	keyPath := filepath.Join(t.TempDir(), "creatorai_ed25519")
	writeTestSSHKey(t, keyPath)

	store := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, store.Load(dir))
	require.NoError(t, store.Set("deepseek", "sk-secret-456"))
	require.NoError(t, store.Save(dir))

	// Keys land encrypted in credentials.enc, never in plaintext.
	raw, err := os.ReadFile(encryptedCredentialsPath(dir))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-secret-456")
	assert.False(t, FileExists(credentialsPath(dir)))

	info, err := os.Stat(encryptedCredentialsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	fresh := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, fresh.Load(dir))
	assert.Equal(t, "sk-secret-456", fresh.Get("deepseek"))
}

func TestCredentialStoreSSHKeyWrongKey(t *testing.T) {
	dir := useTempConfigDir(t)
	keys := t.TempDir()
	rightKey := filepath.Join(keys, "right_ed25519")
	wrongKey := filepath.Join(keys, "wrong_ed25519")
	writeTestSSHKey(t, rightKey)
	writeTestSSHKey(t, wrongKey)

	store := NewCredentialStore(SecuritySSHKey, rightKey)
	require.NoError(t, store.Load(dir))
	require.NoError(t, store.Set("local", "sk-x"))
	require.NoError(t, store.Save(dir))

	other := NewCredentialStore(SecuritySSHKey, wrongKey)
	err := other.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decrypt credentials")
}

func TestOpenCredentialStoreFromSettings(t *testing.T) {
	dir := useTempConfigDir(t)
	keyPath := filepath.Join(t.TempDir(), "creatorai_ed25519")
	writeTestSSHKey(t, keyPath)

	cfg := DefaultSettings()
	cfg.Security.Method = string(SecuritySSHKey)
	cfg.Security.SSHKeyPath = keyPath

	store, err := OpenCredentialStore(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, SecuritySSHKey, store.GetMethod())
	require.NoError(t, store.Set("gem", "key-1"))
	require.NoError(t, store.Save(dir))

	reloaded, err := OpenCredentialStore(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "key-1", reloaded.Get("gem"))

	// An unset method means plaintext.
	plain, err := OpenCredentialStore(DefaultSettings(), "")
	require.NoError(t, err)
	assert.Equal(t, SecurityPlainText, plain.GetMethod())
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	plaintext := []byte(`{"local":"sk-secret"}`)
	ciphertext, err := encryptAESGCM(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := decryptAESGCM(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	// Tampering fails authentication.
	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = decryptAESGCM(ciphertext, key)
	assert.Error(t, err)

	_, err = decryptAESGCM([]byte("short"), key)
	assert.EqualError(t, err, "ciphertext too short")
}

func TestExpandPath(t *testing.T) {
	home := GetHomeDir()
	assert.Equal(t, home+"/projects", ExpandPath("~/projects"))
	assert.Equal(t, "", ExpandPath(""))

	t.Setenv("CREATOR_TEST_DIR", "/tmp/books")
	assert.Equal(t, "/tmp/books/a", ExpandPath("$CREATOR_TEST_DIR/a"))
}
