package turn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/crucible/llm"
)

func TestTokenCounterFallsBackToCl100kBase(t *testing.T) {
	counter, err := NewTokenCounter("an-unknown-local-model")
	require.NoError(t, err)
	assert.Greater(t, counter.Count("hello world"), 0)
}

func TestFitWithinLimitDropsOldestFirst(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	history := []llm.Message{
		{Role: llm.RoleUser, Content: strings.Repeat("alpha ", 50)},
		{Role: llm.RoleAssistant, Content: strings.Repeat("beta ", 50)},
		{Role: llm.RoleUser, Content: "recent short message"},
	}

	fitted := counter.FitWithinLimit(history, 20)

	require.NotEmpty(t, fitted)
	assert.Equal(t, "recent short message", fitted[len(fitted)-1].Content)
}

func TestFitWithinLimitPreservesChronologicalOrder(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleAssistant, Content: "second"},
		{Role: llm.RoleUser, Content: "third"},
	}

	fitted := counter.FitWithinLimit(history, 1000)
	require.Len(t, fitted, 3)
	assert.Equal(t, "first", fitted[0].Content)
	assert.Equal(t, "second", fitted[1].Content)
	assert.Equal(t, "third", fitted[2].Content)
}

func TestFitWithinLimitZeroOrNegativeReturnsUnchanged(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	history := []llm.Message{{Role: llm.RoleUser, Content: "hi"}}
	assert.Equal(t, history, counter.FitWithinLimit(history, 0))
}
