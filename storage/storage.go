// Package storage implements the two-operation storage contract (C10):
// upsert_note and subscribe_changes. The reactor and enrichment pipeline
// depend only on the Storage interface; FileStorage is a concrete,
// swappable, in-process adapter so the module runs standalone without an
// external SurrealDB collaborator (spec.md §6 names SurrealQL/tables/edges
// as the collaborator's own concern, never this module's).
package storage

import (
	"context"

	"github.com/kadirpekel/crucible/enrich"
	"github.com/kadirpekel/crucible/event"
	"github.com/kadirpekel/crucible/kiln"
)

// Storage is the contract spec.md §6 names: exactly two operations. All
// query-time concerns belong to the concrete collaborator, not this
// interface.
type Storage interface {
	// UpsertNote persists parsed and its enrichment outcome atomically per
	// note.
	UpsertNote(ctx context.Context, parsed kiln.ParsedNote, enriched enrich.Outcome) error

	// SubscribeChanges returns a channel of note_modified events with
	// block-granular change ids where possible.
	SubscribeChanges(ctx context.Context) (<-chan event.Event, error)
}
