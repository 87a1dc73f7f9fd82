package kiln

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignsBlockIDsPerClassInDocumentOrder(t *testing.T) {
	src := "# Alpha\n\nfirst paragraph here\n\n## Beta\n\nsecond paragraph follows\n"
	note := Parse("note.md", []byte(src))

	headings := note.BlocksOf(BlockHeading)
	require.Len(t, headings, 2)
	assert.Equal(t, "heading_0", headings[0].ID)
	assert.Equal(t, 1, headings[0].Level)
	assert.Equal(t, "Alpha", headings[0].Text)
	assert.Equal(t, "heading_1", headings[1].ID)
	assert.Equal(t, 2, headings[1].Level)

	paragraphs := note.BlocksOf(BlockParagraph)
	require.Len(t, paragraphs, 2)
	assert.Equal(t, "paragraph_0", paragraphs[0].ID)
	assert.Equal(t, "paragraph_1", paragraphs[1].ID)
}

func TestParseCodeBlockCapturesFencedBody(t *testing.T) {
	src := "intro text\n\n```go\nfunc main() {}\n```\n"
	note := Parse("note.md", []byte(src))

	blocks := note.BlocksOf(BlockCodeBlock)
	require.Len(t, blocks, 1)
	assert.Equal(t, "code_block_0", blocks[0].ID)
	assert.Contains(t, blocks[0].Text, "func main()")
}

func TestParseGroupsConsecutiveListItemsIntoOneBlock(t *testing.T) {
	src := "- one\n- two\n- three\n"
	note := Parse("note.md", []byte(src))

	blocks := note.BlocksOf(BlockList)
	require.Len(t, blocks, 1)
	assert.Equal(t, "list_0", blocks[0].ID)
}

func TestParseGroupsConsecutiveBlockquoteLinesIntoOneBlock(t *testing.T) {
	src := "> line one\n> line two\n"
	note := Parse("note.md", []byte(src))

	blocks := note.BlocksOf(BlockBlockquote)
	require.Len(t, blocks, 1)
	assert.Equal(t, "blockquote_0", blocks[0].ID)
}

func TestBlockByIDReturnsFalseWhenMissing(t *testing.T) {
	note := Parse("note.md", []byte("# Alpha\n"))
	_, ok := note.BlockByID("paragraph_9")
	assert.False(t, ok)
}
