// Package query builds search strategies from a parsed intent, iterating on
// history and human feedback.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/llm"
)

// maxQueries caps how many queries one strategy may carry.
const maxQueries = 5

// maxResultsCeiling caps the per-strategy result limit.
const maxResultsCeiling = 200

const systemPrompt = `You are a search strategist for academic literature. Given a structured research intent, produce a concrete search strategy.

Respond with a JSON object:
{
  "queries": [
    {
      "keywords": ["term1", "term2"],
      "synonym_map": [{"keyword": "term1", "synonyms": ["alias1", "alias2"]}],
      "boolean_query": "(term1 OR alias1) AND term2"
    }
  ],
  "sources": ["google_scholar"],
  "filters": {"year_from": 0, "year_to": 0, "language": "", "max_results": 100}
}

Rules:
- Produce 1 to 5 queries, ordered from most to least specific.
- Expand keywords with domain abbreviations and synonyms.
- Never repeat a boolean query from the previous strategies; vary terms or structure instead.
- Use the user's feedback: emphasize terms from papers marked relevant, avoid directions marked irrelevant.`

var strategySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "keywords": {"type": "array", "items": {"type": "string"}},
          "synonym_map": {"type": "array"},
          "boolean_query": {"type": "string"}
        },
        "required": ["keywords", "boolean_query"]
      }
    },
    "sources": {"type": "array", "items": {"type": "string"}},
    "filters": {"type": "object"}
  },
  "required": ["queries"]
}`)

// Builder derives search strategies from an intent. A strategy from the LLM
// is always sanitized before use; if the LLM fails entirely, a deterministic
// strategy is synthesized from the intent so the workflow can proceed.
type Builder struct {
	client         llm.Client
	logger         zerolog.Logger
	allowedSources []string
}

// NewBuilder creates a strategy builder. allowedSources is the whitelist of
// source names strategies may reference.
func NewBuilder(client llm.Client, allowedSources []string, logger zerolog.Logger) *Builder {
	return &Builder{
		client:         client,
		logger:         logger,
		allowedSources: allowedSources,
	}
}

// Build produces the next search strategy for the given input.
func (b *Builder) Build(ctx context.Context, input domain.QueryBuilderInput) (domain.SearchStrategy, error) {
	raw, err := b.client.CompleteJSON(ctx, systemPrompt, b.userMessage(input), strategySchema)
	if err != nil {
		b.logger.Warn().Err(err).Msg("strategy completion failed, synthesizing fallback strategy")
		return b.fallback(input.Intent), nil
	}

	var strategy domain.SearchStrategy
	if err := llm.DecodeJSON(raw, &strategy); err != nil {
		b.logger.Warn().Err(err).Msg("strategy response malformed, synthesizing fallback strategy")
		return b.fallback(input.Intent), nil
	}

	b.sanitize(&strategy, input.Intent)
	return strategy, nil
}

// userMessage renders the intent, strategy history, and latest feedback into
// the prompt body.
func (b *Builder) userMessage(input domain.QueryBuilderInput) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Research topic: %s\n", input.Intent.Topic)
	fmt.Fprintf(&sb, "Core concepts: %s\n", strings.Join(input.Intent.Concepts, ", "))
	fmt.Fprintf(&sb, "Intent type: %s\n", input.Intent.IntentType)
	fmt.Fprintf(&sb, "Available sources: %s\n", strings.Join(b.allowedSources, ", "))

	c := input.Intent.Constraints
	if c.YearFrom > 0 || c.YearTo > 0 {
		fmt.Fprintf(&sb, "Year range: %d-%d\n", c.YearFrom, c.YearTo)
	}

	if len(input.PreviousStrategies) > 0 {
		sb.WriteString("\nPrevious strategies (do not repeat these queries):\n")
		for i, prev := range input.PreviousStrategies {
			for _, q := range prev.Queries {
				fmt.Fprintf(&sb, "- iteration %d: %s\n", i+1, q.BooleanQuery)
			}
		}
	}

	if fb := input.UserFeedback; fb != nil && !fb.IsZero() {
		sb.WriteString("\nUser feedback on the latest results:\n")
		if len(fb.MarkedRelevant) > 0 {
			fmt.Fprintf(&sb, "- papers marked relevant: %s\n", strings.Join(fb.MarkedRelevant, ", "))
		}
		if len(fb.MarkedIrrelevant) > 0 {
			fmt.Fprintf(&sb, "- papers marked irrelevant: %s\n", strings.Join(fb.MarkedIrrelevant, ", "))
		}
		if fb.FreeTextFeedback != "" {
			fmt.Fprintf(&sb, "- notes: %s\n", fb.FreeTextFeedback)
		}
	}

	return sb.String()
}

// sanitize enforces the source whitelist, repairs filters, and guarantees at
// least one usable query.
func (b *Builder) sanitize(strategy *domain.SearchStrategy, intent domain.ParsedIntent) {
	// Keep only whitelisted sources, preserving strategy order.
	allowed := make(map[string]bool, len(b.allowedSources))
	for _, s := range b.allowedSources {
		allowed[s] = true
	}
	var sources []string
	for _, s := range strategy.Sources {
		if allowed[s] {
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		sources = append(sources, b.allowedSources...)
	}
	strategy.Sources = sources

	// Drop queries with no boolean query; cap the count.
	var queries []domain.SearchQuery
	for _, q := range strategy.Queries {
		if strings.TrimSpace(q.BooleanQuery) == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) == maxQueries {
			break
		}
	}
	if len(queries) == 0 {
		queries = append(queries, synthesizeQuery(intent))
	}
	strategy.Queries = queries

	f := &strategy.Filters
	if f.YearFrom > 0 && f.YearTo > 0 && f.YearFrom > f.YearTo {
		f.YearFrom, f.YearTo = f.YearTo, f.YearFrom
	}
	if f.MaxResults <= 0 {
		f.MaxResults = intent.Constraints.MaxResults
	}
	if f.MaxResults <= 0 {
		f.MaxResults = domain.DefaultMaxResults
	}
	if f.MaxResults > maxResultsCeiling {
		f.MaxResults = maxResultsCeiling
	}
}

// fallback builds a deterministic strategy straight from the intent.
func (b *Builder) fallback(intent domain.ParsedIntent) domain.SearchStrategy {
	strategy := domain.SearchStrategy{
		Queries: []domain.SearchQuery{synthesizeQuery(intent)},
		Sources: append([]string(nil), b.allowedSources...),
		Filters: intent.Constraints,
	}
	b.sanitize(&strategy, intent)
	return strategy
}

// synthesizeQuery joins the intent's concepts into a plain AND query.
func synthesizeQuery(intent domain.ParsedIntent) domain.SearchQuery {
	concepts := intent.Concepts
	if len(concepts) == 0 {
		concepts = []string{intent.Topic}
	}
	return domain.SearchQuery{
		Keywords:     append([]string(nil), concepts...),
		BooleanQuery: strings.Join(concepts, " AND "),
	}
}
