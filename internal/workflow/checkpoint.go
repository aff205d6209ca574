package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/helixir/paper-search-service/internal/domain"
)

// CheckpointKind identifies which pipeline stage raised a checkpoint.
type CheckpointKind string

const (
	// CheckpointStrategy pauses the run before searches execute, presenting
	// the proposed strategy for review.
	CheckpointStrategy CheckpointKind = "strategy"

	// CheckpointResults pauses the run after organizing, presenting the
	// iteration's collection for review.
	CheckpointResults CheckpointKind = "results"
)

// Valid reports whether k is a known checkpoint kind.
func (k CheckpointKind) Valid() bool {
	return k == CheckpointStrategy || k == CheckpointResults
}

// DecisionAction is the reviewer's verdict on a checkpoint.
type DecisionAction string

const (
	ActionApprove DecisionAction = "approve"
	ActionEdit    DecisionAction = "edit"
	ActionReject  DecisionAction = "reject"
)

// Valid reports whether a is a known decision action.
func (a DecisionAction) Valid() bool {
	return a == ActionApprove || a == ActionEdit || a == ActionReject
}

// Checkpoint is a pause point raised by the engine and answered by a human
// reviewer. Payload carries the kind-specific content under review: a
// StrategyPayload for strategy checkpoints, a ResultsPayload for result
// checkpoints.
type Checkpoint struct {
	Kind      CheckpointKind  `json:"kind"`
	RunID     string          `json:"run_id"`
	Iteration int             `json:"iteration"`
	Payload   json.RawMessage `json:"payload"`
}

// Signature uniquely identifies a checkpoint within a run so a decision can
// be matched to the exact pause it answers.
func (c Checkpoint) Signature() string {
	return fmt.Sprintf("%s:%d:%s", c.RunID, c.Iteration, c.Kind)
}

// Decision is the reviewer's answer to a checkpoint.
type Decision struct {
	// Action is the verdict.
	Action DecisionAction `json:"action"`

	// RevisedData carries edited content for edit decisions: a revised
	// SearchStrategy at strategy checkpoints, a UserFeedback at result
	// checkpoints.
	RevisedData json.RawMessage `json:"revised_data,omitempty"`

	// Note is free-text guidance accompanying the decision.
	Note string `json:"note,omitempty"`
}

// StrategyPayload is the content of a strategy checkpoint: the proposed
// strategy alongside the intent it was built from.
type StrategyPayload struct {
	Intent   domain.ParsedIntent   `json:"intent"`
	Strategy domain.SearchStrategy `json:"strategy"`
}

// ResultsPayload is the content of a results checkpoint: the iteration's
// collection plus papers the reviewer marked relevant in earlier iterations,
// which are guaranteed a place in the final collection.
type ResultsPayload struct {
	Collection        domain.PaperCollection `json:"collection"`
	AccumulatedPapers []domain.Paper         `json:"accumulated_papers,omitempty"`
}

// newStrategyCheckpoint wraps a proposed strategy for review.
func newStrategyCheckpoint(runID string, iteration int, intent domain.ParsedIntent, strategy domain.SearchStrategy) (Checkpoint, error) {
	payload, err := json.Marshal(StrategyPayload{Intent: intent, Strategy: strategy})
	if err != nil {
		return Checkpoint{}, fmt.Errorf("workflow: marshal strategy payload: %w", err)
	}
	return Checkpoint{
		Kind:      CheckpointStrategy,
		RunID:     runID,
		Iteration: iteration,
		Payload:   payload,
	}, nil
}

// newResultsCheckpoint wraps an iteration's collection for review.
func newResultsCheckpoint(runID string, iteration int, collection domain.PaperCollection, accumulated []domain.Paper) (Checkpoint, error) {
	payload, err := json.Marshal(ResultsPayload{Collection: collection, AccumulatedPapers: accumulated})
	if err != nil {
		return Checkpoint{}, fmt.Errorf("workflow: marshal results payload: %w", err)
	}
	return Checkpoint{
		Kind:      CheckpointResults,
		RunID:     runID,
		Iteration: iteration,
		Payload:   payload,
	}, nil
}

// feedbackFromDecision coerces a non-approve result decision into feedback
// for the next query-building step. Structured feedback in RevisedData wins;
// otherwise the note becomes free-text feedback.
func feedbackFromDecision(d Decision) *domain.UserFeedback {
	if len(d.RevisedData) > 0 {
		var fb domain.UserFeedback
		if err := json.Unmarshal(d.RevisedData, &fb); err == nil && !fb.IsZero() {
			return &fb
		}
	}
	if d.Note != "" {
		return &domain.UserFeedback{FreeTextFeedback: d.Note}
	}
	return nil
}
