// Package kiln scans a kiln — a directory tree of UTF-8 Markdown notes —
// into the ParsedNote shape the enrichment pipeline consumes, and watches
// it for changes (C9). Grounded on the teacher's v2/rag/watcher.go for the
// fsnotify debounce pattern; the structural segmenter itself has no
// teacher analogue (v2/rag/chunk.go chunks by line count, not by Markdown
// structural class) and is hand-authored against spec.md's own data model,
// since "Markdown parsing is out of scope" (spec.md §6) names full
// CommonMark compliance, not the minimal block identification the
// enrichment pipeline requires.
package kiln

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// BlockKind is one of the five structural classes the enrichment pipeline
// iterates in a fixed order (spec.md §4.8 step 3).
type BlockKind string

const (
	BlockHeading    BlockKind = "heading"
	BlockParagraph  BlockKind = "paragraph"
	BlockCodeBlock  BlockKind = "code_block"
	BlockList       BlockKind = "list"
	BlockBlockquote BlockKind = "blockquote"
)

// StructuralOrder is the fixed class iteration order named in spec.md
// §4.8 step 3. Block ids are assigned per class in this order, each class
// numbered independently starting at 0 in document order.
var StructuralOrder = []BlockKind{
	BlockHeading,
	BlockParagraph,
	BlockCodeBlock,
	BlockList,
	BlockBlockquote,
}

// Block is one structural unit of a parsed note.
type Block struct {
	ID        string // "<class>_<i>", e.g. "heading_2"
	Kind      BlockKind
	Level     int // heading level (1-6); 0 for non-headings
	Offset    int // byte offset into the note's source
	Text      string
	WordCount int
}

// ParsedNote is a path plus a structured AST and scalar metadata
// (spec.md §3). Identity is the Path.
type ParsedNote struct {
	Path      string
	Blocks    []Block
	WordCount int
}

// BlockByID looks up a block by its deterministic id, returning false if
// no block with that id exists in this parse.
func (n ParsedNote) BlockByID(id string) (Block, bool) {
	for _, b := range n.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}

// BlocksOf returns every block of the given structural class, in document
// order, matching the iteration spec.md §4.8 step 3 describes.
func (n ParsedNote) BlocksOf(kind BlockKind) []Block {
	var out []Block
	for _, b := range n.Blocks {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}

// Parse segments raw Markdown source into a ParsedNote. It is a
// line-based structural scanner, not a CommonMark parser: it identifies
// headings, fenced code blocks, list runs, blockquote runs and paragraphs
// well enough to assign stable block ids and byte offsets, nothing more.
func Parse(path string, source []byte) ParsedNote {
	note := ParsedNote{Path: path}
	counters := map[BlockKind]int{}

	nextID := func(kind BlockKind) string {
		i := counters[kind]
		counters[kind]++
		return string(kind) + "_" + strconv.Itoa(i)
	}

	lines, offsets := splitLinesWithOffsets(source)

	var para struct {
		active bool
		offset int
		text   []string
	}
	flushPara := func() {
		if !para.active {
			return
		}
		text := strings.Join(para.text, "\n")
		if strings.TrimSpace(text) != "" {
			note.Blocks = append(note.Blocks, newBlock(nextID(BlockParagraph), BlockParagraph, 0, para.offset, text))
		}
		para.active = false
		para.text = nil
	}

	var quote struct {
		active bool
		offset int
		text   []string
	}
	flushQuote := func() {
		if !quote.active {
			return
		}
		text := strings.Join(quote.text, "\n")
		note.Blocks = append(note.Blocks, newBlock(nextID(BlockBlockquote), BlockBlockquote, 0, quote.offset, text))
		quote.active = false
		quote.text = nil
	}

	var list struct {
		active bool
		offset int
		text   []string
	}
	flushList := func() {
		if !list.active {
			return
		}
		text := strings.Join(list.text, "\n")
		note.Blocks = append(note.Blocks, newBlock(nextID(BlockList), BlockList, 0, list.offset, text))
		list.active = false
		list.text = nil
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		offset := offsets[i]
		trimmed := strings.TrimRight(line, "\r")

		if level, rest, ok := parseHeading(trimmed); ok {
			flushPara()
			flushQuote()
			flushList()
			note.Blocks = append(note.Blocks, newBlock(nextID(BlockHeading), BlockHeading, level, offset, rest))
			i++
			continue
		}

		if isFence(trimmed) {
			flushPara()
			flushQuote()
			flushList()
			start := offset
			var body []string
			i++
			for i < len(lines) && !isFence(strings.TrimRight(lines[i], "\r")) {
				body = append(body, lines[i])
				i++
			}
			if i < len(lines) {
				i++ // consume closing fence
			}
			note.Blocks = append(note.Blocks, newBlock(nextID(BlockCodeBlock), BlockCodeBlock, 0, start, strings.Join(body, "\n")))
			continue
		}

		if isListItem(trimmed) {
			flushPara()
			flushQuote()
			if !list.active {
				list.active = true
				list.offset = offset
			}
			list.text = append(list.text, trimmed)
			i++
			continue
		}

		if isBlockquote(trimmed) {
			flushPara()
			flushList()
			if !quote.active {
				quote.active = true
				quote.offset = offset
			}
			quote.text = append(quote.text, strings.TrimPrefix(strings.TrimSpace(trimmed), ">"))
			i++
			continue
		}

		if strings.TrimSpace(trimmed) == "" {
			flushPara()
			flushQuote()
			flushList()
			i++
			continue
		}

		if !para.active {
			para.active = true
			para.offset = offset
		}
		para.text = append(para.text, trimmed)
		i++
	}
	flushPara()
	flushQuote()
	flushList()

	total := 0
	for _, b := range note.Blocks {
		total += b.WordCount
	}
	note.WordCount = total

	return note
}

func newBlock(id string, kind BlockKind, level, offset int, text string) Block {
	return Block{
		ID:        id,
		Kind:      kind,
		Level:     level,
		Offset:    offset,
		Text:      text,
		WordCount: countWords(text),
	}
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func parseHeading(line string) (level int, rest string, ok bool) {
	trimmed := strings.TrimLeft(line, " ")
	n := 0
	for n < len(trimmed) && n < 6 && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n >= len(trimmed) || (trimmed[n] != ' ' && trimmed[n] != '\t') {
		return 0, "", false
	}
	return n, strings.TrimSpace(trimmed[n:]), true
}

func isFence(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

func isListItem(line string) bool {
	t := strings.TrimLeft(line, " \t")
	if t == "" {
		return false
	}
	if t[0] == '-' || t[0] == '*' || t[0] == '+' {
		return len(t) == 1 || t[1] == ' ' || t[1] == '\t'
	}
	// ordered list: digits followed by '.' or ')'
	j := 0
	for j < len(t) && t[j] >= '0' && t[j] <= '9' {
		j++
	}
	if j > 0 && j < len(t) && (t[j] == '.' || t[j] == ')') {
		return j+1 >= len(t) || t[j+1] == ' ' || t[j+1] == '\t'
	}
	return false
}

func isBlockquote(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), ">")
}

// splitLinesWithOffsets splits source into lines, recording each line's
// starting byte offset in the original source.
func splitLinesWithOffsets(source []byte) ([]string, []int) {
	var lines []string
	var offsets []int
	offset := 0
	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		offsets = append(offsets, offset)
		offset += len(line) + 1 // account for the newline the scanner stripped
	}
	return lines, offsets
}
