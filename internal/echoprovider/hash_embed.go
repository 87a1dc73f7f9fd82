package echoprovider

import (
	"context"
	"hash/fnv"
)

// HashEmbedder is a reference embed.Provider: it hashes each text into a
// small deterministic vector instead of calling a model. Same rationale
// as Provider — concrete embedding clients (OpenAI, Ollama, Cohere, ...)
// are out of this module's scope, so this exists purely to exercise the
// enrichment pipeline and vector index end to end without one configured.
type HashEmbedder struct {
	dim   int
	model string
}

// NewHashEmbedder constructs a HashEmbedder producing dim-length vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 32
	}
	return &HashEmbedder{dim: dim, model: "echo-hash-embed"}
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) Model() string {
	return h.model
}

// embed derives a deterministic, unit-ish vector from text by hashing a
// rolling window of seeds through FNV-1a. It carries no semantic meaning —
// similar text does not produce similar vectors — it only needs to be
// deterministic and dimensionally consistent.
func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	for i := range vec {
		hasher := fnv.New32a()
		hasher.Write([]byte{byte(i)})
		hasher.Write([]byte(text))
		v := hasher.Sum32()
		vec[i] = float32(v%2000)/1000 - 1 // roughly [-1, 1)
	}
	return vec
}
