package turn

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kadirpekel/crucible/llm"
)

// TokenCounter counts tokens for a specific model's encoding, so a turn
// can keep the history it hands to llm.Provider.StreamPrompt within a
// configured budget instead of growing unbounded across a long session.
// Grounded on the teacher's pkg/utils.TokenCounter, narrowed to operate
// directly on llm.Message instead of a parallel Message type.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter builds a counter for model, falling back to cl100k_base
// when the model has no known encoding (e.g. a local Ollama model name).
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding}, nil
}

// Count returns text's token count under this counter's encoding.
func (c *TokenCounter) Count(text string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.encoding.Encode(text, nil, nil))
}

// countMessage includes the per-message role/format overhead OpenAI's
// chat format adds on top of the content tokens.
func (c *TokenCounter) countMessage(m llm.Message) int {
	const tokensPerMessage = 3
	return tokensPerMessage + c.Count(string(m.Role)) + c.Count(m.Content)
}

// FitWithinLimit keeps as many of the most recent messages as fit within
// maxTokens, dropping the oldest first. history is assumed already in
// chronological order; the result preserves that order.
func (c *TokenCounter) FitWithinLimit(history []llm.Message, maxTokens int) []llm.Message {
	if len(history) == 0 || maxTokens <= 0 {
		return history
	}

	fitted := make([]llm.Message, 0, len(history))
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		tokens := c.countMessage(history[i])
		if total+tokens > maxTokens {
			break
		}
		total += tokens
		fitted = append(fitted, history[i])
	}

	for i, j := 0, len(fitted)-1; i < j; i, j = i+1, j-1 {
		fitted[i], fitted[j] = fitted[j], fitted[i]
	}
	return fitted
}
