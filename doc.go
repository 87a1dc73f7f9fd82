// Package crucible is a local-first assistant daemon for a directory of
// Markdown notes (a "kiln"). It scans and watches the kiln, maintains a
// sidecar metadata and embedding index, and drives interactive LLM-backed
// agent sessions whose tool calls read and write the kiln under a
// user-visible permission protocol.
//
// # Quick Start
//
// Install the daemon:
//
//	go install github.com/kadirpekel/crucible/cmd/crucibled@latest
//
// Write a config file naming the kiln to watch and the collaborators to use:
//
//	kiln_path: ~/notes
//	llm:
//	  name: ollama
//	  model: llama3
//	embedding:
//	  name: ollama
//
// Run the daemon:
//
//	crucibled serve --config crucible.yaml
//
// # Architecture
//
// A reactor dispatches events (note parsed, tool called, embedding batch
// complete, ...) to handlers registered by the kiln scanner, the
// enrichment pipeline, and the turn engine. The session manager drives one
// turn engine run per user message and broadcasts the resulting chunks to
// subscribers; tool calls that touch the kiln go through an interactive
// permission protocol before they run. Lua and goja-backed script runtimes
// can register additional handlers against the same reactor and session
// manager, through a narrow Bridge interface.
//
// # Scope
//
// Concrete LLM and embedding provider clients are not part of this
// module — see llm.Provider and embed.Provider. The internal/echoprovider
// package ships reference, non-production implementations of both so the
// daemon is runnable end to end without a model API key. crucibled always
// runs those: it uses the echo provider whatever llm.name says, and any
// non-empty enrichment.embedding_provider turns on the hash embedder (the
// embedding section alone does not enable embeddings).
package crucible
