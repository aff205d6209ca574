// Package intent turns a free-text research query into a structured intent
// using an LLM.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/llm"
)

const systemPrompt = `You are a research librarian. Analyze the user's research query and extract a structured search intent.

Respond with a JSON object:
{
  "topic": "one-sentence summary of the research interest",
  "concepts": ["core concept 1", "core concept 2", ...],
  "intent_type": "survey|method|dataset|baseline",
  "constraints": {
    "year_from": 0,
    "year_to": 0,
    "language": "",
    "max_results": 0
  }
}

Rules:
- concepts are ordered by importance, most important first.
- intent_type: "survey" for broad overviews, "method" for specific techniques or protocols, "dataset" for data sources and benchmarks, "baseline" for reference materials and comparisons.
- constraints: only set fields the query explicitly asks for; leave the rest at zero values.`

var intentSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "topic": {"type": "string"},
    "concepts": {"type": "array", "items": {"type": "string"}},
    "intent_type": {"type": "string", "enum": ["survey", "method", "dataset", "baseline"]},
    "constraints": {
      "type": "object",
      "properties": {
        "year_from": {"type": "integer"},
        "year_to": {"type": "integer"},
        "language": {"type": "string"},
        "max_results": {"type": "integer"}
      }
    }
  },
  "required": ["topic", "concepts", "intent_type"]
}`)

// Parser extracts a ParsedIntent from a natural-language query.
// Intent parsing has no fallback: if the LLM cannot produce a usable
// intent the whole search cannot proceed, so errors propagate.
type Parser struct {
	client llm.Client
	logger zerolog.Logger
}

// NewParser creates an intent parser.
func NewParser(client llm.Client, logger zerolog.Logger) *Parser {
	return &Parser{client: client, logger: logger}
}

// Parse extracts the structured intent from query.
func (p *Parser) Parse(ctx context.Context, query string) (domain.ParsedIntent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.ParsedIntent{}, fmt.Errorf("intent: %w: empty query", domain.ErrInvalidInput)
	}

	raw, err := p.client.CompleteJSON(ctx, systemPrompt, query, intentSchema)
	if err != nil {
		return domain.ParsedIntent{}, fmt.Errorf("intent: completion: %w", err)
	}

	var parsed domain.ParsedIntent
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		return domain.ParsedIntent{}, fmt.Errorf("intent: %w", err)
	}

	if err := validate(&parsed); err != nil {
		return domain.ParsedIntent{}, fmt.Errorf("intent: %w", err)
	}

	p.logger.Debug().
		Str("topic", parsed.Topic).
		Strs("concepts", parsed.Concepts).
		Str("intent_type", string(parsed.IntentType)).
		Msg("intent parsed")

	return parsed, nil
}

// validate checks the decoded intent and applies constraint defaults.
func validate(parsed *domain.ParsedIntent) error {
	if strings.TrimSpace(parsed.Topic) == "" {
		return &llm.ResponseError{Reason: "intent is missing a topic"}
	}
	if len(parsed.Concepts) == 0 {
		return &llm.ResponseError{Reason: "intent has no concepts"}
	}
	if !parsed.IntentType.Valid() {
		return &llm.ResponseError{Reason: fmt.Sprintf("unknown intent type %q", parsed.IntentType)}
	}

	c := &parsed.Constraints
	if c.YearFrom > 0 && c.YearTo > 0 && c.YearFrom > c.YearTo {
		c.YearFrom, c.YearTo = c.YearTo, c.YearFrom
	}
	if c.MaxResults <= 0 {
		c.MaxResults = domain.DefaultMaxResults
	}
	return nil
}
