package kiln

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanFindsMarkdownFilesAndSkipsOthers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("# A\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.markdown"), []byte("# B\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.txt"), []byte("ignore me"), 0o644))

	notes, err := Scan(root, DefaultScanOptions())
	require.NoError(t, err)
	require.Len(t, notes, 2)
}

func TestScanSkipsHiddenFilesAndDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.md"), []byte("# H\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "inner.md"), []byte("# I\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible.md"), []byte("# V\n"), 0o644))

	notes, err := Scan(root, DefaultScanOptions())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, filepath.Join(root, "visible.md"), notes[0].Path)
}

func TestScanRespectsMaxFileSize(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, 100)
	for i := range big {
		big[i] = 'x'
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.md"), big, 0o644))

	opts := DefaultScanOptions()
	opts.MaxFileSize = 10
	notes, err := Scan(root, opts)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestScanRespectsMaxDepth(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "deep.md"), []byte("# D\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shallow.md"), []byte("# S\n"), 0o644))

	opts := DefaultScanOptions()
	opts.MaxDepth = 1
	notes, err := Scan(root, opts)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, filepath.Join(root, "shallow.md"), notes[0].Path)
}
