package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadFile is the built-in note-reading tool, scoped to a kiln root the way
// the teacher's filetool.NewReadFile scopes reads to a WorkingDirectory —
// adapted here to reject any path that would escape the kiln rather than an
// arbitrary working directory.
type ReadFile struct {
	KilnRoot string
}

func (t *ReadFile) Name() string        { return "read_file" }
func (t *ReadFile) Description() string { return "Read the contents of a note, relative to the kiln root." }

func (t *ReadFile) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Note path relative to the kiln root",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFile) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	path, _ := args["path"].(string)
	full, err := resolveInRoot(t.KilnRoot, path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	return map[string]any{
		"path":    path,
		"content": string(content),
	}, nil
}

// resolveInRoot joins root and path, rejecting absolute paths and any
// traversal that would escape root — the same two checks as the teacher's
// filetool.validatePath, generalized from a working directory to a kiln
// root.
func resolveInRoot(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed, use paths relative to the kiln root")
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path escapes kiln root")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid kiln root: %w", err)
	}
	full := filepath.Join(absRoot, cleaned)
	if full != absRoot && !strings.HasPrefix(full, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes kiln root")
	}
	return full, nil
}
