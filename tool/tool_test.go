package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&ReadFile{KilnRoot: t.TempDir()}))
	err := r.Register(&ReadFile{KilnRoot: t.TempDir()})
	assert.Error(t, err)
}

func TestCollaboratorUnknownTool(t *testing.T) {
	c := NewCollaborator(NewRegistry())
	_, err := c.Execute(context.Background(), "nope", nil)
	assert.Error(t, err)
}

func TestReadFileRejectsTraversal(t *testing.T) {
	rf := &ReadFile{KilnRoot: t.TempDir()}
	_, err := rf.Call(context.Background(), map[string]any{"path": "../../etc/passwd"})
	assert.ErrorContains(t, err, "escapes kiln root")
}

func TestReadFileRejectsAbsolute(t *testing.T) {
	rf := &ReadFile{KilnRoot: t.TempDir()}
	_, err := rf.Call(context.Background(), map[string]any{"path": "/etc/passwd"})
	assert.ErrorContains(t, err, "absolute paths")
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	wf := &WriteFile{KilnRoot: root}
	rf := &ReadFile{KilnRoot: root}

	_, err := wf.Call(context.Background(), map[string]any{
		"path":    "notes/idea.md",
		"content": "# Idea\n",
	})
	require.NoError(t, err)

	result, err := rf.Call(context.Background(), map[string]any{"path": "notes/idea.md"})
	require.NoError(t, err)
	assert.Equal(t, "# Idea\n", result["content"])
}

func TestWriteFileLeavesNoTempFileBehind(t *testing.T) {
	root := t.TempDir()
	wf := &WriteFile{KilnRoot: root}
	_, err := wf.Call(context.Background(), map[string]any{
		"path":    "a.md",
		"content": "hi",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.md", entries[0].Name())
}

func TestBashDeniesDangerousCommand(t *testing.T) {
	b := NewBash(t.TempDir())
	_, err := b.Call(context.Background(), map[string]any{"command": "rm -rf /"})
	assert.ErrorContains(t, err, "denied")
}

func TestBashRunsAllowedCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644))
	b := NewBash(dir)
	result, err := b.Call(context.Background(), map[string]any{"command": "cat hello.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result["stdout"])
	assert.Equal(t, 0, result["exit_code"])
}

func TestExtractBaseCommandStripsPath(t *testing.T) {
	assert.Equal(t, "rm", extractBaseCommand("/usr/bin/rm -rf /"))
	assert.Equal(t, "cat", extractBaseCommand("cat file.txt"))
}
