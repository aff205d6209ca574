// Package workflow runs the iterative paper search loop: strategy building,
// searching, deduplication, scoring, and organizing, paused at human review
// checkpoints between stages.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

// defaultMaxIterations bounds the search loop.
const defaultMaxIterations = 5

// IntentParser extracts a structured intent from the user query.
type IntentParser interface {
	Parse(ctx context.Context, query string) (domain.ParsedIntent, error)
}

// StrategyBuilder derives the next search strategy.
type StrategyBuilder interface {
	Build(ctx context.Context, input domain.QueryBuilderInput) (domain.SearchStrategy, error)
}

// Searcher executes a strategy against the configured paper sources.
type Searcher interface {
	Execute(ctx context.Context, strategy domain.SearchStrategy) ([]domain.RawPaper, error)
}

// Deduplicator merges duplicate records across sources and queries.
type Deduplicator interface {
	Deduplicate(ctx context.Context, papers []domain.RawPaper) []domain.RawPaper
}

// Scorer assigns relevance scores against the intent.
type Scorer interface {
	Score(ctx context.Context, intent domain.ParsedIntent, papers []domain.RawPaper) []domain.ScoredPaper
}

// Organizer assembles scored papers into a collection.
type Organizer interface {
	Organize(query string, strategy domain.SearchStrategy, scored []domain.ScoredPaper) domain.PaperCollection
}

// Gate raises a checkpoint to a human reviewer and blocks until a decision
// arrives or ctx is done.
type Gate interface {
	Raise(ctx context.Context, checkpoint Checkpoint) (Decision, error)
}

// Stage labels a pipeline phase for progress reporting.
type Stage string

const (
	StageParsingIntent    Stage = "parsing_intent"
	StageBuildingStrategy Stage = "building_strategy"
	StageStrategyReview   Stage = "strategy_review"
	StageSearching        Stage = "searching"
	StageDeduplicating    Stage = "deduplicating"
	StageScoring          Stage = "scoring"
	StageOrganizing       Stage = "organizing"
	StageResultsReview    Stage = "results_review"
	StageComplete         Stage = "complete"
)

// ProgressEvent describes the run's current position for observers.
type ProgressEvent struct {
	RunID     string `json:"run_id"`
	Iteration int    `json:"iteration"`
	Stage     Stage  `json:"stage"`
	Message   string `json:"message,omitempty"`
}

// ProgressFunc receives progress events. It runs on the engine goroutine; a
// panicking reporter is recovered and must not abort the run.
type ProgressFunc func(event ProgressEvent)

// Config controls the engine loop.
type Config struct {
	// MaxIterations bounds the search loop.
	MaxIterations int

	// StrategyCheckpoint pauses each iteration for strategy review before
	// searches run. Result checkpoints are always raised.
	StrategyCheckpoint bool
}

// Pipeline bundles the skill implementations the engine drives.
type Pipeline struct {
	Intent    IntentParser
	Strategy  StrategyBuilder
	Searcher  Searcher
	Dedup     Deduplicator
	Scorer    Scorer
	Organizer Organizer
}

// Engine runs one search workflow end to end.
type Engine struct {
	pipeline Pipeline
	gate     Gate
	config   Config
	logger   zerolog.Logger
	metrics  *observability.Metrics
	progress ProgressFunc
}

// New creates an engine. gate, progress, and metrics may be nil; with a nil
// gate every checkpoint auto-approves.
func New(pipeline Pipeline, gate Gate, cfg Config, logger zerolog.Logger, metrics *observability.Metrics, progress ProgressFunc) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	return &Engine{
		pipeline: pipeline,
		gate:     gate,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		progress: progress,
	}
}

// Run executes the workflow for one user query. It returns the final curated
// collection: the approved iteration's collection, or on iteration
// exhaustion the last collection produced, either way merged with papers the
// reviewer marked relevant along the way.
func (e *Engine) Run(ctx context.Context, runID, query string) (domain.PaperCollection, error) {
	logger := observability.WithSessionContext(e.logger, runID)

	e.report(ProgressEvent{RunID: runID, Stage: StageParsingIntent})
	intent, err := e.pipeline.Intent.Parse(ctx, query)
	if err != nil {
		return domain.PaperCollection{}, fmt.Errorf("workflow: parse intent: %w", err)
	}
	logger.Info().Str("topic", intent.Topic).Msg("workflow started")

	state := newRunState()

	for iteration := 1; iteration <= e.config.MaxIterations; iteration++ {
		iterLogger := observability.WithIterationContext(e.logger, runID, iteration)
		iterCtx := observability.WithIteration(ctx, iteration)

		collection, approved, err := e.runIteration(iterCtx, runID, iteration, query, intent, state, iterLogger)
		if err != nil {
			return domain.PaperCollection{}, err
		}
		if approved {
			final := state.mergeAccumulated(collection)
			e.report(ProgressEvent{RunID: runID, Iteration: iteration, Stage: StageComplete})
			logger.Info().Int("iterations", iteration).Int("papers", len(final.Papers)).Msg("workflow approved")
			return final, nil
		}
	}

	// Iterations exhausted without approval: ship the best we have.
	last, ok := state.lastCollection()
	if !ok {
		last = domain.PaperCollection{Metadata: domain.SearchMetadata{Query: query}}
	}
	final := state.mergeAccumulated(last)
	e.report(ProgressEvent{RunID: runID, Iteration: e.config.MaxIterations, Stage: StageComplete, Message: "iteration limit reached"})
	logger.Info().Int("papers", len(final.Papers)).Msg("workflow exhausted iterations")
	return final, nil
}

// runIteration executes one loop pass. approved reports whether the reviewer
// accepted the results as final.
func (e *Engine) runIteration(ctx context.Context, runID string, iteration int, query string, intent domain.ParsedIntent, state *runState, logger zerolog.Logger) (domain.PaperCollection, bool, error) {
	e.report(ProgressEvent{RunID: runID, Iteration: iteration, Stage: StageBuildingStrategy})
	strategy, err := e.pipeline.Strategy.Build(ctx, domain.QueryBuilderInput{
		Intent:             intent,
		PreviousStrategies: state.previousStrategies(),
		UserFeedback:       state.latestFeedback(),
	})
	if err != nil {
		return domain.PaperCollection{}, false, fmt.Errorf("workflow: build strategy: %w", err)
	}

	if e.config.StrategyCheckpoint {
		revised, rejected, feedback, err := e.reviewStrategy(ctx, runID, iteration, intent, strategy)
		if err != nil {
			return domain.PaperCollection{}, false, err
		}
		if rejected {
			// Record the rejected strategy as a zero-result pass so the
			// next iteration plans around it.
			logger.Info().Msg("strategy rejected, replanning")
			state.recordIteration(iterationRecord{Strategy: strategy, Feedback: feedback})
			return domain.PaperCollection{}, false, nil
		}
		strategy = revised
	}

	e.report(ProgressEvent{RunID: runID, Iteration: iteration, Stage: StageSearching})
	raw, err := e.pipeline.Searcher.Execute(ctx, strategy)
	if err != nil {
		return domain.PaperCollection{}, false, fmt.Errorf("workflow: search: %w", err)
	}

	e.report(ProgressEvent{RunID: runID, Iteration: iteration, Stage: StageDeduplicating})
	deduped := e.pipeline.Dedup.Deduplicate(ctx, raw)

	e.report(ProgressEvent{RunID: runID, Iteration: iteration, Stage: StageScoring})
	scored := e.pipeline.Scorer.Score(ctx, intent, deduped)

	e.report(ProgressEvent{RunID: runID, Iteration: iteration, Stage: StageOrganizing})
	collection := e.pipeline.Organizer.Organize(query, strategy, scored)

	logger.Info().
		Int("found", len(raw)).
		Int("deduped", len(deduped)).
		Int("kept", len(collection.Papers)).
		Msg("iteration searched")

	e.report(ProgressEvent{RunID: runID, Iteration: iteration, Stage: StageResultsReview})
	checkpoint, err := newResultsCheckpoint(runID, iteration, collection, state.accumulatedPapers())
	if err != nil {
		return domain.PaperCollection{}, false, err
	}
	decision, err := e.raise(ctx, checkpoint)
	if err != nil {
		return domain.PaperCollection{}, false, err
	}

	if decision.Action == ActionApprove {
		state.recordIteration(iterationRecord{Strategy: strategy, Collection: collection})
		return collection, true, nil
	}

	// Edit and reject both feed the next iteration.
	feedback := feedbackFromDecision(decision)
	if feedback != nil {
		state.accumulate(collection.Papers, feedback.MarkedRelevant)
	}
	state.recordIteration(iterationRecord{
		Strategy:   strategy,
		Collection: collection,
		Feedback:   feedback,
	})
	return domain.PaperCollection{}, false, nil
}

// reviewStrategy raises the strategy checkpoint and applies the decision.
func (e *Engine) reviewStrategy(ctx context.Context, runID string, iteration int, intent domain.ParsedIntent, strategy domain.SearchStrategy) (revised domain.SearchStrategy, rejected bool, feedback *domain.UserFeedback, err error) {
	e.report(ProgressEvent{RunID: runID, Iteration: iteration, Stage: StageStrategyReview})

	checkpoint, err := newStrategyCheckpoint(runID, iteration, intent, strategy)
	if err != nil {
		return domain.SearchStrategy{}, false, nil, err
	}
	decision, err := e.raise(ctx, checkpoint)
	if err != nil {
		return domain.SearchStrategy{}, false, nil, err
	}

	switch decision.Action {
	case ActionEdit:
		var edited domain.SearchStrategy
		if uerr := json.Unmarshal(decision.RevisedData, &edited); uerr == nil && len(edited.Queries) > 0 {
			return edited, false, nil, nil
		}
		// Unusable edit payload: proceed with the proposed strategy.
		e.logger.Warn().Str("run_id", runID).Msg("strategy edit payload unusable, keeping proposed strategy")
		return strategy, false, nil, nil
	case ActionReject:
		return domain.SearchStrategy{}, true, feedbackFromDecision(decision), nil
	default:
		return strategy, false, nil, nil
	}
}

// raise forwards a checkpoint to the gate and records checkpoint metrics.
// Without a gate every checkpoint auto-approves, so the engine can run
// unattended.
func (e *Engine) raise(ctx context.Context, checkpoint Checkpoint) (Decision, error) {
	if e.gate == nil {
		return Decision{Action: ActionApprove}, nil
	}
	if e.metrics != nil {
		e.metrics.RecordCheckpointRaised(string(checkpoint.Kind))
	}
	decision, err := e.gate.Raise(ctx, checkpoint)
	if err != nil {
		return Decision{}, fmt.Errorf("workflow: %s checkpoint: %w", checkpoint.Kind, err)
	}
	return decision, nil
}

// report delivers a progress event, recovering reporter panics.
func (e *Engine) report(event ProgressEvent) {
	if e.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Any("panic", r).Msg("progress reporter panicked")
		}
	}()
	e.progress(event)
}
