package domain

// SynonymMap pairs a keyword with its synonym expansions.
type SynonymMap struct {
	Keyword  string   `json:"keyword"`
	Synonyms []string `json:"synonyms"`
}

// SearchQuery is one concrete query within a strategy.
type SearchQuery struct {
	// Keywords are the core search terms.
	Keywords []string `json:"keywords"`

	// SynonymMap expands keywords with abbreviations and alternatives.
	SynonymMap []SynonymMap `json:"synonym_map,omitempty"`

	// BooleanQuery is the AND/OR query string sent to search sources.
	BooleanQuery string `json:"boolean_query"`
}

// SearchStrategy is the concrete set of queries and filters derived from an
// intent. Strategies are immutable; the set of previous strategies
// accumulates as workflow history.
type SearchStrategy struct {
	Queries []SearchQuery     `json:"queries"`
	Sources []string          `json:"sources"`
	Filters SearchConstraints `json:"filters"`
}

// UserFeedback captures a human reviewer's reaction to one iteration's
// results. It is consumed by the next query-building step.
type UserFeedback struct {
	MarkedRelevant   []string `json:"marked_relevant,omitempty"`
	MarkedIrrelevant []string `json:"marked_irrelevant,omitempty"`
	FreeTextFeedback string   `json:"free_text_feedback,omitempty"`
}

// IsZero reports whether the feedback carries no information at all.
func (f UserFeedback) IsZero() bool {
	return len(f.MarkedRelevant) == 0 && len(f.MarkedIrrelevant) == 0 && f.FreeTextFeedback == ""
}

// QueryBuilderInput bundles everything the query builder needs for one
// iteration: the intent, the full strategy history, and the feedback from
// the immediately preceding iteration (nil on the first pass).
type QueryBuilderInput struct {
	Intent             ParsedIntent
	PreviousStrategies []SearchStrategy
	UserFeedback       *UserFeedback
}
