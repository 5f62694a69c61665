// Package query defines the immutable request data model described in
// : Query, Message, and Hints.
package query

import (
	"errors"

	"github.com/spf13/cast"
)

// Role identifies the speaker of a Message in conversation history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of conversation history. Content is plain text;
// Attachments is optional and opaque to the orchestrator (passed through
// to backends that understand vision/file inputs).
type Message struct {
	Role        Role
	Content     string
	Attachments []Attachment
}

// Attachment is an opaque pointer to out-of-band content (e.g. an image
// URL or blob reference). Its contents are not interpreted by the core.
type Attachment struct {
	Kind string
	URI  string
}

// Hint keys. RouterCore reads the code-generation, vision and
// prefer-cheap hints; no component reads HintRequiresCreativity.
const (
	HintRequiresCodeGeneration = "requires-code-generation"
	HintRequiresVision         = "requires-vision"
	HintPreferCheap            = "prefer-cheap"
	HintRequiresCreativity     = "requires-creativity"
)

// Hints is a loosely-typed bag of routing hints. Values are coerced with
// cast so callers can pass bools, strings, or numbers interchangeably.
type Hints map[string]any

// Bool reads a hint as a boolean, defaulting to false when absent or
// unparsable.
func (h Hints) Bool(key string) bool {
	if h == nil {
		return false
	}
	v, ok := h[key]
	if !ok {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false
	}
	return b
}

// Query is the immutable unit of work the orchestrator processes.
// ConversationHistory keeps insertion order; ordering is semantically
// significant (oldest to newest).
type Query struct {
	Text                 string
	TenantID             string
	SessionID            string
	ConversationHistory  []Message
	Hints                Hints
}

// Validate enforces the minimal structural invariants callers must meet
// before the query enters the pipeline: a tenant must be set and the
// text must be non-empty. Backend/model-level validation (empty message
// lists, unknown model ids) happens in provider.Gateway.
func (q *Query) Validate() error {
	if q == nil {
		return errors.New("nil query")
	}
	if q.TenantID == "" {
		return errors.New("query: tenant-id is required")
	}
	if q.Text == "" {
		return errors.New("query: text is required")
	}
	return nil
}

// LastUserMessage returns the content of the most recent user-role
// message in history, or Text if history is empty. Used by the
// vision-keyword predicate in complexity.RequiresVisionModel.
func (q *Query) LastUserMessage() string {
	for i := len(q.ConversationHistory) - 1; i >= 0; i-- {
		if q.ConversationHistory[i].Role == RoleUser {
			return q.ConversationHistory[i].Content
		}
	}
	return q.Text
}
