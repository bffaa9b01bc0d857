// Package respond drives response generation for an incoming support query:
// retrieval, context assembly, the generation call, confidence scoring, and
// the fallback policy when retrieval comes up empty.
package respond

// State is the lifecycle state of one response generation.
type State int

const (
	// StatePending is the initial state before any work starts.
	StatePending State = iota
	// StateRetrieving covers retrieval and context assembly.
	StateRetrieving
	// StateGenerating covers the language-model call.
	StateGenerating
	// StateSucceeded is terminal: a grounded reply was produced.
	StateSucceeded
	// StateFallback is terminal: no grounded knowledge was available and a
	// templated escalation reply was produced instead.
	StateFallback
	// StateFailed is terminal: the backend failed after bounded retry.
	StateFailed
	// StateCancelled is terminal: the caller's context expired.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateSucceeded:
		return "succeeded"
	case StateFallback:
		return "fallback"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFallback, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Result is the outcome of one handled query. ReplyText is set only for the
// terminal-success states (Succeeded and Fallback).
type Result struct {
	State           State
	ReplyText       string
	Confidence      float64
	UsedDocumentIDs []string
	FallbackUsed    bool
}
