package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/workflow"
)

// SessionView is the API-facing snapshot of a session.
type SessionView struct {
	ID         string                 `json:"id"`
	Query      string                 `json:"query"`
	Status     Status                 `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	Progress   workflow.ProgressEvent `json:"progress"`
	Checkpoint *CheckpointView        `json:"checkpoint,omitempty"`
	Result     *domain.PaperCollection `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// CheckpointView presents a pending checkpoint for review: the decoded
// payload plus a human-readable question and, for result checkpoints,
// summary statistics.
type CheckpointView struct {
	Signature string                  `json:"signature"`
	Kind      workflow.CheckpointKind `json:"kind"`
	Iteration int                     `json:"iteration"`
	Question  string                  `json:"question"`

	Intent   *domain.ParsedIntent   `json:"intent,omitempty"`
	Strategy *domain.SearchStrategy `json:"strategy,omitempty"`
	Results  *ResultsSummary        `json:"results,omitempty"`
}

// ResultsSummary condenses a result checkpoint's collection so reviewers can
// judge it without reading every paper.
type ResultsSummary struct {
	TotalFound int `json:"total_found"`
	Kept       int `json:"kept"`

	// ScoreDistribution buckets kept papers by relevance score.
	ScoreDistribution map[string]int `json:"score_distribution"`

	// Facets carries the collection's aggregations.
	Facets domain.Facets `json:"facets"`

	// TopPapers previews the highest-ranked papers.
	TopPapers []domain.Paper `json:"top_papers"`

	// AccumulatedPapers are papers marked relevant in earlier iterations,
	// already guaranteed a place in the final collection.
	AccumulatedPapers []domain.Paper `json:"accumulated_papers,omitempty"`
}

// topPapersPreview bounds the result checkpoint preview.
const topPapersPreview = 5

// View assembles the current SessionView.
func (m *Manager) View(s *Session) (*SessionView, error) {
	status, result, runErr := s.snapshot()

	view := &SessionView{
		ID:        s.ID,
		Query:     s.Query,
		Status:    status,
		CreatedAt: s.CreatedAt,
		Progress:  s.lastProgress(),
	}

	if cp, ok := s.handler.Pending(); ok {
		cpView, err := newCheckpointView(cp)
		if err != nil {
			return nil, err
		}
		view.Checkpoint = cpView
	}
	if status == StatusCompleted {
		view.Result = result
	}
	if runErr != nil {
		view.Error = runErr.Error()
	}
	return view, nil
}

// newCheckpointView decodes a checkpoint payload into its review form.
func newCheckpointView(cp workflow.Checkpoint) (*CheckpointView, error) {
	view := &CheckpointView{
		Signature: cp.Signature(),
		Kind:      cp.Kind,
		Iteration: cp.Iteration,
	}

	switch cp.Kind {
	case workflow.CheckpointStrategy:
		var payload workflow.StrategyPayload
		if err := json.Unmarshal(cp.Payload, &payload); err != nil {
			return nil, fmt.Errorf("session: decode strategy checkpoint: %w", err)
		}
		view.Intent = &payload.Intent
		view.Strategy = &payload.Strategy
		view.Question = fmt.Sprintf(
			"Iteration %d proposes %d queries against %d sources. Approve to search, edit to revise the strategy, or reject with guidance.",
			cp.Iteration, len(payload.Strategy.Queries), len(payload.Strategy.Sources))

	case workflow.CheckpointResults:
		var payload workflow.ResultsPayload
		if err := json.Unmarshal(cp.Payload, &payload); err != nil {
			return nil, fmt.Errorf("session: decode results checkpoint: %w", err)
		}
		view.Results = summarizeResults(payload)
		view.Question = fmt.Sprintf(
			"Iteration %d kept %d of %d papers. Approve to finish, or reject with feedback to search again.",
			cp.Iteration, view.Results.Kept, view.Results.TotalFound)

	default:
		return nil, fmt.Errorf("session: unknown checkpoint kind %q", cp.Kind)
	}
	return view, nil
}

// summarizeResults builds the score distribution and preview.
func summarizeResults(payload workflow.ResultsPayload) *ResultsSummary {
	collection := payload.Collection
	summary := &ResultsSummary{
		TotalFound:        collection.Metadata.TotalFound,
		Kept:              len(collection.Papers),
		ScoreDistribution: map[string]int{},
		Facets:            collection.Facets,
		AccumulatedPapers: payload.AccumulatedPapers,
	}

	for _, p := range collection.Papers {
		summary.ScoreDistribution[scoreBucket(p.RelevanceScore)]++
	}

	preview := collection.Papers
	if len(preview) > topPapersPreview {
		preview = preview[:topPapersPreview]
	}
	summary.TopPapers = preview
	return summary
}

// scoreBucket maps a relevance score to its distribution bucket.
func scoreBucket(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.3:
		return "medium"
	default:
		return "low"
	}
}
