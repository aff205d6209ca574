// Package llm defines the LLM capability boundary for the paper search
// service: free-form text completion and structured JSON completion, with a
// normalized error taxonomy.
//
// The package knows nothing about papers or search. Skills are written
// against the Client interface so they can be exercised with test doubles;
// OpenAIClient is the production adapter.
package llm

import (
	"context"
	"encoding/json"
)

// Client is the uniform completion interface all skills depend on.
//
// Implementations should:
//   - Respect context cancellation.
//   - Return *APIError for provider-level failures so callers can
//     distinguish authentication from transient errors.
//   - Return *ResponseError when the provider replied but the payload
//     could not be parsed as requested.
type Client interface {
	// Complete returns a free-form text completion.
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)

	// CompleteJSON returns a structured JSON completion. If schema is
	// non-nil the provider should use it to guide the output format
	// (e.g. via JSON mode or function calling); the raw JSON object is
	// returned for the caller to unmarshal.
	CompleteJSON(ctx context.Context, systemPrompt, userMessage string, schema json.RawMessage) (json.RawMessage, error)
}

// DecodeJSON unmarshals a CompleteJSON result into out, normalizing decode
// failures into *ResponseError so callers can treat schema violations the
// same way as provider-level malformed responses.
func DecodeJSON(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &ResponseError{Reason: "response does not match expected schema", Err: err}
	}
	return nil
}
