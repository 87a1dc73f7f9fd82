package storage

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"

	"github.com/kadirpekel/crucible/enrich"
)

// blockCollection is the single chromem-go collection every note's blocks
// are upserted into. A kiln is one logical corpus, not a multi-tenant
// store, so one collection is enough.
const blockCollection = "blocks"

// VectorIndex wraps a chromem-go database as the similarity-search index
// behind FileStorage, adapted from the teacher's pkg/vector.ChromemProvider
// to Crucible's block-embedding shape: vectors arrive pre-computed from
// the enrichment pipeline, so the embedding function chromem would
// otherwise call to produce them is never invoked.
type VectorIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	persistTo  string
}

// VectorIndexConfig configures VectorIndex persistence.
type VectorIndexConfig struct {
	// PersistPath, if non-empty, is a gob file the index is loaded from
	// and saved back to. Empty means memory-only.
	PersistPath string
}

// NewVectorIndex opens (or creates) a chromem-go database per cfg.
func NewVectorIndex(cfg VectorIndexConfig) (*VectorIndex, error) {
	var db *chromem.DB
	if cfg.PersistPath != "" {
		if _, err := os.Stat(cfg.PersistPath); err == nil {
			db = chromem.NewDB()
			//nolint:staticcheck // Import reads the file persist's Export writes.
			if err := db.Import(cfg.PersistPath, ""); err != nil {
				return nil, fmt.Errorf("storage: load vector index: %w", err)
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	// Vectors are pre-computed by the enrichment pipeline; this
	// embedding function only exists to satisfy chromem's constructor and
	// must never be called on the upsert path below.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("storage: vector index embedding function invoked unexpectedly")
	}

	col, err := db.GetOrCreateCollection(blockCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("storage: create block collection: %w", err)
	}

	return &VectorIndex{db: db, collection: col, persistTo: cfg.PersistPath}, nil
}

// UpsertBlocks indexes every block embedding for a note, keyed
// "<path>#<block_id>" so re-embedding a note overwrites its own prior
// vectors without touching any other note's.
func (v *VectorIndex) UpsertBlocks(ctx context.Context, path string, blocks []enrich.BlockEmbedding) error {
	docs := make([]chromem.Document, 0, len(blocks))
	for _, b := range blocks {
		docs = append(docs, chromem.Document{
			ID:        path + "#" + b.BlockID,
			Embedding: b.Vector,
			Metadata: map[string]string{
				"path":       path,
				"block_id":   b.BlockID,
				"model_name": b.ModelName,
			},
		})
	}
	if err := v.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("storage: upsert block vectors: %w", err)
	}
	return v.persist()
}

// Search returns the topK nearest blocks to vector, across all notes.
func (v *VectorIndex) Search(ctx context.Context, vector []float32, topK int) ([]chromem.Result, error) {
	return v.collection.QueryEmbedding(ctx, vector, topK, nil, nil)
}

func (v *VectorIndex) persist() error {
	if v.persistTo == "" {
		return nil
	}
	//nolint:staticcheck // Export is the only persistence entrypoint chromem-go exposes.
	return v.db.Export(v.persistTo, false, "")
}
