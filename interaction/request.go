// Package interaction implements the request/response state machine for
// permission and question requests raised mid-turn (C5), plus the
// pattern-based permission allowlist.
package interaction

import (
	"fmt"
	"strings"
)

// PermKind discriminates the four permission request shapes.
type PermKind string

const (
	PermBash  PermKind = "BASH"
	PermRead  PermKind = "READ"
	PermWrite PermKind = "WRITE"
	PermTool  PermKind = "TOOL"
)

// Scope controls how long a saved pattern grants automatic approval.
type Scope string

const (
	ScopeOnce    Scope = "once"
	ScopeSession Scope = "session"
	ScopeProject Scope = "project"
)

// PermissionRequest is raised by a tool call (or any handler) that needs
// user sign-off before it may proceed.
type PermissionRequest struct {
	Kind PermKind

	BashTokens    []string
	ReadSegments  []string
	WriteSegments []string
	ToolName      string
	ToolArgs      map[string]any
}

// Tokens returns the ordered token view PatternAt builds patterns from.
// A pattern keeps a prefix of these tokens, and the fewer it keeps the
// broader it is: index 0 is the coarsest distinction, the last index the
// finest.
func (r PermissionRequest) Tokens() []string {
	switch r.Kind {
	case PermBash:
		return r.BashTokens
	case PermRead:
		return r.ReadSegments
	case PermWrite:
		return r.WriteSegments
	case PermTool:
		tokens := []string{r.ToolName}
		for _, k := range sortedKeys(r.ToolArgs) {
			tokens = append(tokens, fmt.Sprintf("%s=%v", k, r.ToolArgs[k]))
		}
		return tokens
	default:
		return nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// simple insertion sort is fine: tool arg maps are small.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// PatternAt returns a glob over the first k tokens with the remainder
// wildcarded. PatternAt(0) matches the strict superset of what any
// PatternAt(k>0) matches (pattern monotonicity).
func (r PermissionRequest) PatternAt(k int) string {
	tokens := r.Tokens()
	if k > len(tokens) {
		k = len(tokens)
	}
	if k <= 0 {
		return "*"
	}
	return strings.Join(tokens[:k], " ")
}

// Detail renders a short human description of the request for the wire
// shape in §6.
func (r PermissionRequest) Detail() string {
	switch r.Kind {
	case PermBash:
		return strings.Join(r.BashTokens, " ")
	case PermRead:
		return strings.Join(r.ReadSegments, "/")
	case PermWrite:
		return strings.Join(r.WriteSegments, "/")
	case PermTool:
		return r.ToolName
	default:
		return ""
	}
}

// PermResponse is the user's decision on a PermissionRequest.
type PermResponse struct {
	Allowed bool
	Pattern string // set when the user chose to save a pattern
	Scope   Scope
}

// AskRequest is a single prompt with an optional fixed choice list.
type AskRequest struct {
	Question    string
	Choices     []string
	MultiSelect bool
	AllowOther  bool
}

// AskBatch is an ordered sequence of questions advanced together by the
// UI (batch_index / batch_total in the wire shape).
type AskBatch struct {
	Questions []AskRequest
}

// AskResponse collects the user's answer to one question in a batch.
type AskResponse struct {
	SelectedIndices []int
	OtherText       string
}
