package domain

// IntentType classifies what kind of literature the user is after.
type IntentType string

const (
	// IntentSurvey is a broad overview of a field.
	IntentSurvey IntentType = "survey"
	// IntentMethod looks for specific methods, techniques, or protocols.
	IntentMethod IntentType = "method"
	// IntentDataset looks for data sources, databases, or benchmarks.
	IntentDataset IntentType = "dataset"
	// IntentBaseline looks for reference materials, standards, or comparisons.
	IntentBaseline IntentType = "baseline"
)

// Valid reports whether t is one of the defined intent types.
func (t IntentType) Valid() bool {
	switch t {
	case IntentSurvey, IntentMethod, IntentDataset, IntentBaseline:
		return true
	}
	return false
}

// SearchConstraints bound a search. Zero values mean "unconstrained",
// except MaxResults which defaults to 100 when unset.
type SearchConstraints struct {
	YearFrom   int    `json:"year_from,omitempty"`
	YearTo     int    `json:"year_to,omitempty"`
	Language   string `json:"language,omitempty"`
	MaxResults int    `json:"max_results"`
}

// DefaultMaxResults is applied when a constraint carries no result limit.
const DefaultMaxResults = 100

// ParsedIntent is the structured interpretation of a free-text research
// query. It is produced once per workflow run and never mutated.
type ParsedIntent struct {
	// Topic is a one-sentence summary of the research interest.
	Topic string `json:"topic"`

	// Concepts are the core concepts, ordered by importance.
	Concepts []string `json:"concepts"`

	// IntentType classifies the kind of literature sought.
	IntentType IntentType `json:"intent_type"`

	// Constraints bound subsequent searches.
	Constraints SearchConstraints `json:"constraints"`
}
