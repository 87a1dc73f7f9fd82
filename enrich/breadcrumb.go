package enrich

import (
	"path/filepath"
	"strings"

	"github.com/kadirpekel/crucible/kiln"
)

// BreadcrumbMap derives the offset -> "Filename > H1 > H2 > ..." view
// spec.md §3 describes: every block's text is prefixed with the path of
// ancestor headings in force at its offset before embedding, so an
// ancestor heading edit naturally invalidates descendant vectors without
// the pipeline tracking an explicit tree.
func BreadcrumbMap(note kiln.ParsedNote) map[int]string {
	filename := strings.TrimSuffix(filepath.Base(note.Path), filepath.Ext(note.Path))

	type stackEntry struct {
		level int
		text  string
	}
	var stack []stackEntry
	crumbFor := func() string {
		parts := []string{filename}
		for _, s := range stack {
			parts = append(parts, s.text)
		}
		return strings.Join(parts, " > ")
	}

	out := make(map[int]string, len(note.Blocks))
	for _, b := range note.Blocks {
		if b.Kind == kiln.BlockHeading {
			for len(stack) > 0 && stack[len(stack)-1].level >= b.Level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, stackEntry{level: b.Level, text: b.Text})
		}
		out[b.Offset] = crumbFor()
	}
	return out
}
