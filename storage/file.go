package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kadirpekel/crucible/enrich"
	"github.com/kadirpekel/crucible/event"
	"github.com/kadirpekel/crucible/kiln"
)

// sidecarRecord is the on-disk JSON shape one note's upsert produces. It
// intentionally carries enough of the ParsedNote and enrichment outcome
// to rebuild search/browse views without re-running the pipeline, while
// staying a plain value type independent of any particular query engine.
type sidecarRecord struct {
	Path        string                  `json:"path"`
	Blocks      []kiln.Block            `json:"blocks"`
	WordCount   int                     `json:"word_count"`
	ReadingTime float64                 `json:"reading_time_minutes"`
	Complexity  float64                 `json:"complexity"`
	Embeddings  []enrich.BlockEmbedding `json:"embeddings,omitempty"`
}

// FileStorage is the default Storage implementation: a JSON sidecar file
// per note, written atomically via temp-file + rename (the same
// discipline tool.WriteFile uses for notes themselves), plus an optional
// chromem-go VectorIndex for similarity search over block embeddings.
// SubscribeChanges re-uses the kiln watcher.
type FileStorage struct {
	// SidecarRoot is the directory sidecar JSON files are written under.
	SidecarRoot string
	// KilnRoot is the note tree SubscribeChanges watches.
	KilnRoot string
	// Vectors is optional; when nil, block embeddings are still recorded
	// in the sidecar JSON but not indexed for similarity search.
	Vectors *VectorIndex
	// WatchOptions configures the underlying kiln watcher.
	WatchOptions kiln.WatchOptions
}

// NewFileStorage constructs a FileStorage rooted at sidecarRoot, watching
// kilnRoot for changes.
func NewFileStorage(sidecarRoot, kilnRoot string, vectors *VectorIndex) *FileStorage {
	return &FileStorage{
		SidecarRoot: sidecarRoot,
		KilnRoot:    kilnRoot,
		Vectors:     vectors,
	}
}

func (s *FileStorage) UpsertNote(ctx context.Context, parsed kiln.ParsedNote, enriched enrich.Outcome) error {
	rel, err := filepath.Rel(s.KilnRoot, parsed.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(parsed.Path)
	}
	sidecarPath := filepath.Join(s.SidecarRoot, rel+".json")

	record := sidecarRecord{
		Path:        parsed.Path,
		Blocks:      parsed.Blocks,
		WordCount:   enriched.Metadata.WordCount,
		ReadingTime: enriched.Metadata.ReadingTime,
		Complexity:  enriched.Metadata.Complexity,
		Embeddings:  enriched.Embeddings,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal sidecar for %s: %w", parsed.Path, err)
	}

	if err := writeAtomic(sidecarPath, data); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if s.Vectors != nil && len(enriched.Embeddings) > 0 {
		if err := s.Vectors.UpsertBlocks(ctx, parsed.Path, enriched.Embeddings); err != nil {
			return fmt.Errorf("storage: vector upsert for %s: %w", parsed.Path, err)
		}
	}

	return nil
}

func (s *FileStorage) SubscribeChanges(ctx context.Context) (<-chan event.Event, error) {
	fileEvents, err := kiln.Watch(ctx, s.KilnRoot, s.WatchOptions)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	out := make(chan event.Event, 100)
	go func() {
		defer close(out)
		for fe := range fileEvents {
			select {
			case out <- kiln.ToEvent(fe):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// writeAtomic writes data to path via temp-file + rename, matching
// tool.WriteFile's discipline so a sidecar write is crash-safe.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".crucible-sidecar-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
