package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile is the built-in note-writing tool. It writes atomically
// (temp file + rename) the way the storage adapter persists notes — a
// tool-level write and a scanner-observed write should look identical on
// disk, so both go through the same write-then-rename discipline.
type WriteFile struct {
	KilnRoot string
}

func (t *WriteFile) Name() string { return "write_file" }
func (t *WriteFile) Description() string {
	return "Create or overwrite a note, relative to the kiln root."
}

func (t *WriteFile) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Note path relative to the kiln root",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFile) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)

	full, err := resolveInRoot(t.KilnRoot, path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("write_file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".crucible-write-*")
	if err != nil {
		return nil, fmt.Errorf("write_file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write_file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write_file: %w", err)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write_file: %w", err)
	}

	return map[string]any{
		"path":          path,
		"bytes_written": len(content),
	}, nil
}
