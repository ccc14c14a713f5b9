package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSkipsHiddenAndNoise(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "chapters"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".creatorai"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0644))

	entries, err := List(root, "")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"chapters", "readme.txt"}, names)

	for _, e := range entries {
		switch e.Name {
		case "chapters":
			assert.True(t, e.IsDir)
			assert.Zero(t, e.Size)
		case "readme.txt":
			assert.False(t, e.IsDir)
			assert.EqualValues(t, 2, e.Size)
			assert.NotZero(t, e.Modified)
		}
	}
}

func TestListCapsEntries(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 120; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, fmt.Sprintf("f%03d.txt", i)), []byte("x"), 0644))
	}

	entries, err := List(root, "")
	require.NoError(t, err)
	assert.Len(t, entries, 100)
}

func TestListNonDirectoryFails(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0644))

	_, err := List(root, "a.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}

func TestSearchFindsMatchesWithRelativePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "chapters"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "chapters", "chapter_001.txt"),
		[]byte("the dragon sleeps\nnothing here\nthe dragon wakes\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("dragon lore\n"), 0644))

	matches, err := Search(root, "dragon", "")
	require.NoError(t, err)
	require.Len(t, matches, 3)

	for _, m := range matches {
		assert.NotContains(t, m.File, root)
		assert.Contains(t, m.Content, "dragon")
		assert.Greater(t, m.Line, 0)
	}
}

func TestSearchCapsAtFiftyMatches(t *testing.T) {
	root := t.TempDir()
	var body string
	for i := 0; i < 80; i++ {
		body += "needle\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte(body), 0644))

	matches, err := Search(root, "needle", "")
	require.NoError(t, err)
	assert.Len(t, matches, 50)
}

func TestSearchSkipsBinaryAndHidden(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{'n', 0, 'e', 'e', 'd', 'l', 'e'}, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".backup"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".backup", "old.txt"), []byte("needle\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "plain.txt"), []byte("needle\n"), 0644))

	matches, err := Search(root, "needle", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "plain.txt", matches[0].File)
}
