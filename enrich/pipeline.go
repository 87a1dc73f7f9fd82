// Package enrich implements the enrichment pipeline (C8): turning a
// parsed note into breadcrumb-prefixed block embeddings plus scalar
// metadata, triggered by note_parsed or note_modified events.
//
// Grounded structurally on turn/permission.go's "permission check is just
// another handler" shape — enrichment is likewise registered as an
// ordinary reactor.Handler rather than a dispatch special case. The
// embedding batching itself has no direct teacher analogue (the teacher
// embeds whole RAG chunks, not breadcrumb-prefixed structural blocks), so
// it is authored directly against spec.md §4.8's numbered algorithm.
package enrich

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kadirpekel/crucible/embed"
	"github.com/kadirpekel/crucible/event"
	"github.com/kadirpekel/crucible/kiln"
	"github.com/kadirpekel/crucible/reactor"
)

// Config holds the enrichment knobs SPEC_FULL.md §3 names
// (EnrichmentConfig, supplemented from original_source's
// crucible-config/src/enrichment.rs).
type Config struct {
	MaxBatchSize    int
	MinWordCount    int
	StructuralOrder []kiln.BlockKind
}

// SetDefaults fills unset fields with spec.md §4.8's stated defaults.
func (c *Config) SetDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 10
	}
	if c.MinWordCount <= 0 {
		c.MinWordCount = 5
	}
	if len(c.StructuralOrder) == 0 {
		c.StructuralOrder = kiln.StructuralOrder
	}
}

// BlockEmbedding is the per-block embedding output (spec.md §3).
type BlockEmbedding struct {
	BlockID   string
	Vector    []float32
	ModelName string
}

// Metadata is the synchronous scalar metadata spec.md §4.8 derives from a
// parsed note.
type Metadata struct {
	WordCount   int
	ReadingTime float64 // minutes, word_count / 200
	Complexity  float64 // normalized to [0,1]
}

// Relation is the (currently unproduced) inferred-relation hook. Open
// question (a): spec.md documents relation inference as "empty for now"
// without committing to an algorithm, so InferRelations always returns
// nil — the type exists so the hook has a concrete shape to grow into.
type Relation struct {
	From string
	To   string
	Kind string
}

// Outcome is what one enrichment run produces.
type Outcome struct {
	Note       kiln.ParsedNote
	Embeddings []BlockEmbedding
	Metadata   Metadata
	Relations  []Relation
}

// NoteLoader resolves a path to its parsed form when an event (e.g.
// note_modified) carries only a path, not an already-parsed AST.
type NoteLoader func(path string) (kiln.ParsedNote, error)

// LoadFromDisk is the default NoteLoader: read the file and run it
// through kiln.Parse.
func LoadFromDisk(path string) (kiln.ParsedNote, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return kiln.ParsedNote{}, err
	}
	return kiln.Parse(path, source), nil
}

// Pipeline runs the enrichment algorithm against an optional embedding
// provider. A nil Provider means "no embedding provider configured"
// (spec.md §4.8 step 1): embeddings are skipped but metadata and relation
// outputs are still produced.
type Pipeline struct {
	Config   Config
	Provider embed.Provider
	Load     NoteLoader

	// Sink, if set, receives every successful Run outcome so a caller can
	// hand it to the storage collaborator (spec.md §4's "ParsedNote and
	// BlockEmbedding are owned by the enrichment pipeline's outputs and
	// handed to the storage collaborator") without this package importing
	// storage — storage already imports enrich for Outcome, so the
	// dependency can only run this direction.
	Sink func(ctx context.Context, note kiln.ParsedNote, outcome Outcome) error
}

// New constructs a Pipeline with defaults applied.
func New(cfg Config, provider embed.Provider) *Pipeline {
	cfg.SetDefaults()
	return &Pipeline{Config: cfg, Provider: provider, Load: LoadFromDisk}
}

// Register installs the pipeline as reactor handlers on the note_parsed
// and note_modified patterns. A handler failure (load error, provider
// error) degrades to SoftError, never FatalError — a bad note should not
// halt the reactor's dispatch chain.
func (p *Pipeline) Register(r *reactor.Reactor) {
	parse := reactor.NewHandler("go:enrich:on_note_parsed", "note:parsed", p.handle)
	parse.Priority = 60
	r.Register(parse)

	modified := reactor.NewHandler("go:enrich:on_note_modified", "note:modified", p.handle)
	modified.Priority = 60
	r.Register(modified)
}

func (p *Pipeline) handle(ctx context.Context, hctx *reactor.Context, e event.Event) reactor.Result {
	note, changedBlocks, err := p.resolveNote(e)
	if err != nil {
		return reactor.SoftError(e, fmt.Sprintf("enrich: %v", err))
	}

	start := time.Now()
	outcome, err := p.Run(ctx, note, changedBlocks)
	if err != nil {
		return reactor.SoftError(e, fmt.Sprintf("enrich: %v", err))
	}

	if p.Sink != nil {
		if err := p.Sink(ctx, note, outcome); err != nil {
			return reactor.SoftError(e, fmt.Sprintf("enrich: storage sink: %v", err))
		}
	}

	path, _ := e.Payload["path"].(string)
	hctx.Emit(event.New(event.EmbeddingBatchComplete, "note:"+path, map[string]any{
		"entity": "note:" + path,
		"count":  len(outcome.Embeddings),
		"ms":     time.Since(start).Milliseconds(),
	}).WithSource("enrich"))

	return reactor.Continue(e)
}

// resolveNote extracts the ParsedNote and changed-block list an event
// carries, loading from disk when the event (note_modified) only names a
// path.
func (p *Pipeline) resolveNote(e event.Event) (kiln.ParsedNote, []string, error) {
	changed, _ := e.Payload["changed_blocks"].([]string)

	if note, ok := e.Payload["ast"].(kiln.ParsedNote); ok {
		return note, changed, nil
	}

	path, _ := e.Payload["path"].(string)
	if path == "" {
		return kiln.ParsedNote{}, nil, fmt.Errorf("event carries neither an ast nor a path")
	}
	note, err := p.Load(path)
	if err != nil {
		return kiln.ParsedNote{}, nil, err
	}
	return note, changed, nil
}

// Run executes the numbered algorithm from spec.md §4.8 against note,
// given the triggering event's changed-block list.
func (p *Pipeline) Run(ctx context.Context, note kiln.ParsedNote, changedBlocks []string) (Outcome, error) {
	crumbs := BreadcrumbMap(note)

	eligible := p.eligibleBlocks(note, changedBlocks)

	out := Outcome{
		Note:      note,
		Metadata:  computeMetadata(note),
		Relations: p.InferRelations(note),
	}

	if p.Provider == nil || len(eligible) == 0 {
		return out, nil
	}

	texts := make([]string, len(eligible))
	for i, b := range eligible {
		texts[i] = prefixBreadcrumb(crumbs[b.Offset], b.Text)
	}

	embeddings, err := p.embedBatched(ctx, eligible, texts)
	if err != nil {
		return out, err
	}
	out.Embeddings = embeddings
	return out, nil
}

// eligibleBlocks applies spec.md §4.8 steps 3-4: classify which blocks
// should be (re-)embedded given changedBlocks, in the fixed structural
// order, dropping anything under the word-count threshold.
func (p *Pipeline) eligibleBlocks(note kiln.ParsedNote, changedBlocks []string) []kiln.Block {
	fullReembed := len(changedBlocks) == 0
	sectionSignal := false
	changedSet := make(map[string]bool, len(changedBlocks))
	for _, c := range changedBlocks {
		changedSet[c] = true
		if strings.HasPrefix(c, "modified_section") || strings.HasPrefix(c, "added_section") || strings.HasPrefix(c, "removed_section") {
			sectionSignal = true
		}
	}

	var out []kiln.Block
	for _, kind := range p.Config.StructuralOrder {
		for _, b := range note.BlocksOf(kind) {
			if !(fullReembed || sectionSignal || changedSet[b.ID]) {
				continue
			}
			if b.WordCount < p.Config.MinWordCount {
				continue
			}
			out = append(out, b)
		}
	}
	return out
}

func (p *Pipeline) embedBatched(ctx context.Context, blocks []kiln.Block, texts []string) ([]BlockEmbedding, error) {
	var out []BlockEmbedding
	for start := 0; start < len(texts); start += p.Config.MaxBatchSize {
		end := start + p.Config.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := p.Provider.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(vectors), end-start)
		}
		model := p.Provider.Model()
		for i, v := range vectors {
			out = append(out, BlockEmbedding{
				BlockID:   blocks[start+i].ID,
				Vector:    v,
				ModelName: model,
			})
		}
	}
	return out, nil
}

// InferRelations is the open-question (a) hook: always empty until an
// algorithm is committed to.
func (p *Pipeline) InferRelations(note kiln.ParsedNote) []Relation {
	return nil
}

func prefixBreadcrumb(crumb, text string) string {
	if crumb == "" {
		return text
	}
	return "[" + crumb + "] " + text
}

func computeMetadata(note kiln.ParsedNote) Metadata {
	var headings, codeBlocks, lists, latex int
	for _, b := range note.Blocks {
		switch b.Kind {
		case kiln.BlockHeading:
			headings++
		case kiln.BlockCodeBlock:
			codeBlocks++
		case kiln.BlockList:
			lists++
		}
		latex += strings.Count(b.Text, "$")
	}
	latex /= 2 // count delimiter pairs, not individual '$' characters

	const (
		wHeading = 0.15
		wCode    = 0.35
		wList    = 0.1
		wLatex   = 0.4
	)
	raw := wHeading*clampWeight(headings) + wCode*clampWeight(codeBlocks) + wList*clampWeight(lists) + wLatex*clampWeight(latex)

	return Metadata{
		WordCount:   note.WordCount,
		ReadingTime: float64(note.WordCount) / 200.0,
		Complexity:  raw,
	}
}

// clampWeight squashes a raw structural count into [0,1] so the weighted
// sum in computeMetadata stays within the complexity contract's bounds
// regardless of how many of a given block kind a note contains.
func clampWeight(count int) float64 {
	if count <= 0 {
		return 0
	}
	v := float64(count) / 10.0
	if v > 1 {
		return 1
	}
	return v
}
