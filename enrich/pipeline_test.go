package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/crucible/kiln"
)

type fakeProvider struct {
	model string
	calls [][]string
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (f *fakeProvider) Model() string { return f.model }

func noteFixture() kiln.ParsedNote {
	src := "# Alpha\n\n## Beta\n\none two three four five six\n"
	return kiln.Parse("fixture.md", []byte(src))
}

func TestBreadcrumbPrefixesAncestorHeadings(t *testing.T) {
	note := noteFixture()
	provider := &fakeProvider{model: "test-model"}
	p := New(Config{}, provider)

	outcome, err := p.Run(context.Background(), note, nil)
	require.NoError(t, err)
	require.Len(t, provider.calls, 1)
	assert.Equal(t, []string{"[fixture > Alpha > Beta] one two three four five six"}, provider.calls[0])
	require.Len(t, outcome.Embeddings, 1)
	assert.Equal(t, "paragraph_0", outcome.Embeddings[0].BlockID)
	assert.Equal(t, "test-model", outcome.Embeddings[0].ModelName)
}

func TestEligibleBlocksFullReembedWhenChangedBlocksEmpty(t *testing.T) {
	note := noteFixture()
	p := New(Config{}, &fakeProvider{})
	eligible := p.eligibleBlocks(note, nil)
	require.Len(t, eligible, 1) // only the paragraph clears the word-count threshold
	assert.Equal(t, "paragraph_0", eligible[0].ID)
}

func TestEligibleBlocksLiteralBlockID(t *testing.T) {
	note := noteFixture()
	p := New(Config{}, &fakeProvider{})
	eligible := p.eligibleBlocks(note, []string{"paragraph_0"})
	require.Len(t, eligible, 1)
	assert.Equal(t, "paragraph_0", eligible[0].ID)
}

func TestEligibleBlocksSectionSignalTriggersFullPass(t *testing.T) {
	note := noteFixture()
	p := New(Config{}, &fakeProvider{})
	eligible := p.eligibleBlocks(note, []string{"modified_section_0"})
	require.Len(t, eligible, 1)
}

func TestEligibleBlocksRejectsBelowWordCountThreshold(t *testing.T) {
	note := kiln.Parse("fixture.md", []byte("# Hi\n\nshort\n"))
	p := New(Config{MinWordCount: 5}, &fakeProvider{})
	eligible := p.eligibleBlocks(note, nil)
	assert.Empty(t, eligible)
}

func TestRunSkipsEmbeddingWhenNoProviderConfigured(t *testing.T) {
	note := noteFixture()
	p := New(Config{}, nil)
	outcome, err := p.Run(context.Background(), note, nil)
	require.NoError(t, err)
	assert.Empty(t, outcome.Embeddings)
	assert.Equal(t, note.WordCount, outcome.Metadata.WordCount)
}

func TestEmbedBatchedRespectsMaxBatchSize(t *testing.T) {
	src := "- one two three four five\n\n- six seven eight nine ten\n"
	note := kiln.Parse("fixture.md", []byte(src))
	provider := &fakeProvider{model: "m"}
	p := New(Config{MaxBatchSize: 1}, provider)

	_, err := p.Run(context.Background(), note, nil)
	require.NoError(t, err)
	assert.Len(t, provider.calls, 2) // the blank line splits two list blocks; MaxBatchSize 1 sends each in its own call
}

func TestInferRelationsAlwaysEmpty(t *testing.T) {
	p := New(Config{}, nil)
	assert.Nil(t, p.InferRelations(noteFixture()))
}
