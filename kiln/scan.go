package kiln

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ScanOptions bounds the Scanner's filesystem walk (spec.md §6's "Persistent
// kiln layout").
type ScanOptions struct {
	// MaxFileSize skips files larger than this many bytes. Zero means no
	// limit.
	MaxFileSize int64
	// MaxDepth bounds recursion below Scan's root. Zero means no limit.
	MaxDepth int
	// SkipHidden skips dotfiles and dot-directories when true (the default
	// a kiln is scanned with).
	SkipHidden bool
}

// DefaultScanOptions matches the conservative defaults spec.md assumes
// when a kiln's config does not override them.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		MaxFileSize: 10 * 1024 * 1024, // 10 MiB
		MaxDepth:    32,
		SkipHidden:  true,
	}
}

var noteExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
}

// ParsedNotePath pairs a ParsedNote with the filesystem facts Scan
// observed about it, so a caller can decide whether to re-scan without
// re-reading the file.
type ParsedNotePath struct {
	ParsedNote
	ModTime time.Time
	Size    int64
}

// Scan walks root once, parsing every eligible Markdown file it finds.
// A file that cannot be stat'ed or read is skipped without being reported,
// so one bad note does not blind the rest of the kiln; an error the walk
// itself hits (such as an unreadable directory) aborts the scan and is
// returned.
func Scan(root string, opts ScanOptions) ([]ParsedNotePath, error) {
	var out []ParsedNotePath

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if opts.SkipHidden && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			if opts.MaxDepth > 0 && depthBelow(root, path) > opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if opts.SkipHidden && isHidden(d.Name()) {
			return nil
		}
		if !noteExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if opts.MaxDepth > 0 && depthBelow(root, path) > opts.MaxDepth {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
			return nil
		}

		source, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		out = append(out, ParsedNotePath{
			ParsedNote: Parse(path, source),
			ModTime:    info.ModTime(),
			Size:       info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
