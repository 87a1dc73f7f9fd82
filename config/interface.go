// Package config loads and validates Crucible's daemon configuration: a
// single YAML document naming the kiln to watch, the LLM and embedding
// collaborators to use, and the ambient knobs (logging, scanning,
// enrichment, pattern store) every other component reads at startup.
package config

// ConfigInterface is the contract every section of Config implements, so
// Load can cascade Validate/SetDefaults uniformly across them.
type ConfigInterface interface {
	// Validate checks if the configuration is valid and returns an error if not.
	Validate() error

	// SetDefaults sets default values for any unset fields.
	SetDefaults()
}
