package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
)

// fakePipeline implements every skill interface with canned behavior.
type fakePipeline struct {
	intent    domain.ParsedIntent
	intentErr error

	builds       []domain.QueryBuilderInput
	strategyFor  func(iteration int) domain.SearchStrategy
	searchFor    func(strategy domain.SearchStrategy) []domain.RawPaper
	searchErr    error
	searches     int
	organizeDrop bool
}

func (f *fakePipeline) Parse(ctx context.Context, query string) (domain.ParsedIntent, error) {
	if f.intentErr != nil {
		return domain.ParsedIntent{}, f.intentErr
	}
	return f.intent, nil
}

func (f *fakePipeline) Build(ctx context.Context, input domain.QueryBuilderInput) (domain.SearchStrategy, error) {
	f.builds = append(f.builds, input)
	if f.strategyFor != nil {
		return f.strategyFor(len(f.builds)), nil
	}
	return domain.SearchStrategy{
		Queries: []domain.SearchQuery{{BooleanQuery: "q"}},
		Sources: []string{"google_scholar"},
	}, nil
}

func (f *fakePipeline) Execute(ctx context.Context, strategy domain.SearchStrategy) ([]domain.RawPaper, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchFor != nil {
		return f.searchFor(strategy), nil
	}
	return []domain.RawPaper{
		{ID: "p1", Title: "Paper one"},
		{ID: "p2", Title: "Paper two"},
	}, nil
}

func (f *fakePipeline) Deduplicate(ctx context.Context, papers []domain.RawPaper) []domain.RawPaper {
	return papers
}

func (f *fakePipeline) Score(ctx context.Context, intent domain.ParsedIntent, papers []domain.RawPaper) []domain.ScoredPaper {
	scored := make([]domain.ScoredPaper, len(papers))
	for i, p := range papers {
		scored[i] = domain.ScoredPaper{Paper: p, RelevanceScore: 0.8}
	}
	return scored
}

func (f *fakePipeline) Organize(query string, strategy domain.SearchStrategy, scored []domain.ScoredPaper) domain.PaperCollection {
	papers := make([]domain.Paper, 0, len(scored))
	for _, sp := range scored {
		if f.organizeDrop && sp.RelevanceScore < 0.5 {
			continue
		}
		papers = append(papers, domain.Paper{
			ID:             sp.Paper.ID,
			Title:          sp.Paper.Title,
			RelevanceScore: sp.RelevanceScore,
		})
	}
	return domain.PaperCollection{
		Metadata: domain.SearchMetadata{Query: query, Strategy: strategy, TotalFound: len(scored)},
		Papers:   papers,
	}
}

// scriptGate answers checkpoints from a queue of decisions, recording every
// checkpoint raised.
type scriptGate struct {
	decisions []Decision
	raised    []Checkpoint
	err       error
}

func (g *scriptGate) Raise(ctx context.Context, checkpoint Checkpoint) (Decision, error) {
	g.raised = append(g.raised, checkpoint)
	if g.err != nil {
		return Decision{}, g.err
	}
	if len(g.decisions) == 0 {
		return Decision{Action: ActionApprove}, nil
	}
	d := g.decisions[0]
	g.decisions = g.decisions[1:]
	return d, nil
}

func newEngine(p *fakePipeline, g Gate, cfg Config, progress ProgressFunc) *Engine {
	pipeline := Pipeline{
		Intent:    p,
		Strategy:  p,
		Searcher:  p,
		Dedup:     p,
		Scorer:    p,
		Organizer: p,
	}
	return New(pipeline, g, cfg, zerolog.Nop(), nil, progress)
}

func TestEngine_Run(t *testing.T) {
	intent := domain.ParsedIntent{Topic: "t", Concepts: []string{"c"}, IntentType: domain.IntentSurvey}

	t.Run("approve on first iteration", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		g := &scriptGate{}
		engine := newEngine(p, g, Config{StrategyCheckpoint: true}, nil)

		coll, err := engine.Run(context.Background(), "run1", "find papers")
		require.NoError(t, err)

		assert.Len(t, coll.Papers, 2)
		require.Len(t, g.raised, 2)
		assert.Equal(t, CheckpointStrategy, g.raised[0].Kind)
		assert.Equal(t, CheckpointResults, g.raised[1].Kind)
		assert.Equal(t, "run1:1:strategy", g.raised[0].Signature())
	})

	t.Run("strategy checkpoint disabled raises results only", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		g := &scriptGate{}
		engine := newEngine(p, g, Config{}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)
		require.Len(t, g.raised, 1)
		assert.Equal(t, CheckpointResults, g.raised[0].Kind)
	})

	t.Run("strategy edit replaces the strategy", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		edited, _ := json.Marshal(domain.SearchStrategy{
			Queries: []domain.SearchQuery{{BooleanQuery: "edited query"}},
			Sources: []string{"google_scholar"},
		})
		g := &scriptGate{decisions: []Decision{
			{Action: ActionEdit, RevisedData: edited},
			{Action: ActionApprove},
		}}
		var searched domain.SearchStrategy
		p.searchFor = func(s domain.SearchStrategy) []domain.RawPaper {
			searched = s
			return []domain.RawPaper{{ID: "p1", Title: "Paper"}}
		}
		engine := newEngine(p, g, Config{StrategyCheckpoint: true}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)
		assert.Equal(t, "edited query", searched.Queries[0].BooleanQuery)
	})

	t.Run("strategy edit with unusable payload keeps the proposal", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		g := &scriptGate{decisions: []Decision{
			{Action: ActionEdit, RevisedData: json.RawMessage(`"nope"`)},
			{Action: ActionApprove},
		}}
		var searched domain.SearchStrategy
		p.searchFor = func(s domain.SearchStrategy) []domain.RawPaper {
			searched = s
			return nil
		}
		engine := newEngine(p, g, Config{StrategyCheckpoint: true}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)
		assert.Equal(t, "q", searched.Queries[0].BooleanQuery)
	})

	t.Run("strategy reject skips searching and replans with feedback", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		g := &scriptGate{decisions: []Decision{
			{Action: ActionReject, Note: "wrong direction"},
			{Action: ActionApprove}, // second strategy
			{Action: ActionApprove}, // second results
		}}
		engine := newEngine(p, g, Config{StrategyCheckpoint: true}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)

		assert.Equal(t, 1, p.searches)
		require.Len(t, p.builds, 2)
		assert.Len(t, p.builds[1].PreviousStrategies, 1)
		require.NotNil(t, p.builds[1].UserFeedback)
		assert.Equal(t, "wrong direction", p.builds[1].UserFeedback.FreeTextFeedback)
	})

	t.Run("results reject feeds the next iteration", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		fb, _ := json.Marshal(domain.UserFeedback{
			MarkedIrrelevant: []string{"p2"},
			FreeTextFeedback: "narrow it down",
		})
		g := &scriptGate{decisions: []Decision{
			{Action: ActionReject, RevisedData: fb},
			{Action: ActionApprove},
		}}
		engine := newEngine(p, g, Config{}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)

		require.Len(t, p.builds, 2)
		assert.Empty(t, p.builds[0].PreviousStrategies)
		assert.Nil(t, p.builds[0].UserFeedback)
		assert.Len(t, p.builds[1].PreviousStrategies, 1)
		require.NotNil(t, p.builds[1].UserFeedback)
		assert.Equal(t, []string{"p2"}, p.builds[1].UserFeedback.MarkedIrrelevant)
		assert.Equal(t, "narrow it down", p.builds[1].UserFeedback.FreeTextFeedback)
	})

	t.Run("only the latest feedback is carried forward", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		g := &scriptGate{decisions: []Decision{
			{Action: ActionReject, Note: "first"},
			{Action: ActionReject, Note: "second"},
			{Action: ActionApprove},
		}}
		engine := newEngine(p, g, Config{}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)

		require.Len(t, p.builds, 3)
		assert.Equal(t, "second", p.builds[2].UserFeedback.FreeTextFeedback)
		assert.Len(t, p.builds[2].PreviousStrategies, 2)
	})

	t.Run("marked relevant papers survive into the final collection", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		calls := 0
		p.searchFor = func(domain.SearchStrategy) []domain.RawPaper {
			calls++
			if calls == 1 {
				return []domain.RawPaper{{ID: "keeper", Title: "Keeper"}, {ID: "noise", Title: "Noise"}}
			}
			return []domain.RawPaper{{ID: "other", Title: "Other"}}
		}
		fb, _ := json.Marshal(domain.UserFeedback{MarkedRelevant: []string{"keeper"}})
		g := &scriptGate{decisions: []Decision{
			{Action: ActionEdit, RevisedData: fb},
			{Action: ActionApprove},
		}}
		engine := newEngine(p, g, Config{}, nil)

		coll, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)

		ids := make([]string, len(coll.Papers))
		for i, paper := range coll.Papers {
			ids[i] = paper.ID
		}
		// Accumulated papers follow the final collection's own papers.
		assert.Equal(t, []string{"other", "keeper"}, ids)
	})

	t.Run("nil gate auto-approves every checkpoint", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		engine := newEngine(p, nil, Config{StrategyCheckpoint: true}, nil)

		coll, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)
		assert.Len(t, coll.Papers, 2)
		assert.Equal(t, 1, p.searches)
	})

	t.Run("strategy checkpoint carries the intent", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		g := &scriptGate{}
		engine := newEngine(p, g, Config{StrategyCheckpoint: true}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)
		require.Len(t, g.raised, 2)

		var payload StrategyPayload
		require.NoError(t, json.Unmarshal(g.raised[0].Payload, &payload))
		assert.Equal(t, "t", payload.Intent.Topic)
		assert.Equal(t, "q", payload.Strategy.Queries[0].BooleanQuery)
	})

	t.Run("results checkpoint carries accumulated papers", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		fb, _ := json.Marshal(domain.UserFeedback{MarkedRelevant: []string{"p1"}})
		g := &scriptGate{decisions: []Decision{
			{Action: ActionReject, RevisedData: fb},
			{Action: ActionApprove},
		}}
		engine := newEngine(p, g, Config{}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)
		require.Len(t, g.raised, 2)

		var first, second ResultsPayload
		require.NoError(t, json.Unmarshal(g.raised[0].Payload, &first))
		require.NoError(t, json.Unmarshal(g.raised[1].Payload, &second))

		assert.Empty(t, first.AccumulatedPapers)
		assert.Len(t, first.Collection.Papers, 2)
		require.Len(t, second.AccumulatedPapers, 1)
		assert.Equal(t, "p1", second.AccumulatedPapers[0].ID)
	})

	t.Run("exhaustion returns the last collection", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		g := &scriptGate{decisions: []Decision{
			{Action: ActionReject, Note: "no"},
			{Action: ActionReject, Note: "still no"},
		}}
		engine := newEngine(p, g, Config{MaxIterations: 2}, nil)

		coll, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)
		assert.Len(t, coll.Papers, 2)
	})

	t.Run("exhaustion with no papers returns an empty collection", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		p.searchFor = func(domain.SearchStrategy) []domain.RawPaper { return nil }
		g := &scriptGate{decisions: []Decision{
			{Action: ActionReject, Note: "no"},
		}}
		engine := newEngine(p, g, Config{MaxIterations: 1}, nil)

		coll, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)
		assert.Empty(t, coll.Papers)
		assert.Equal(t, "q", coll.Metadata.Query)
	})

	t.Run("intent failure aborts the run", func(t *testing.T) {
		wantErr := errors.New("no intent")
		p := &fakePipeline{intentErr: wantErr}
		engine := newEngine(p, &scriptGate{}, Config{}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("gate failure aborts the run", func(t *testing.T) {
		wantErr := errors.New("session cancelled")
		p := &fakePipeline{intent: intent}
		engine := newEngine(p, &scriptGate{err: wantErr}, Config{}, nil)

		_, err := engine.Run(context.Background(), "run1", "q")
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("progress reporter panic does not abort the run", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		engine := newEngine(p, &scriptGate{}, Config{}, func(ProgressEvent) {
			panic("observer bug")
		})

		_, err := engine.Run(context.Background(), "run1", "q")
		assert.NoError(t, err)
	})

	t.Run("reports stages in order", func(t *testing.T) {
		p := &fakePipeline{intent: intent}
		var stages []Stage
		engine := newEngine(p, &scriptGate{}, Config{StrategyCheckpoint: true}, func(e ProgressEvent) {
			stages = append(stages, e.Stage)
		})

		_, err := engine.Run(context.Background(), "run1", "q")
		require.NoError(t, err)
		assert.Equal(t, []Stage{
			StageParsingIntent,
			StageBuildingStrategy,
			StageStrategyReview,
			StageSearching,
			StageDeduplicating,
			StageScoring,
			StageOrganizing,
			StageResultsReview,
			StageComplete,
		}, stages)
	})
}

func TestCheckpoint(t *testing.T) {
	t.Run("signature", func(t *testing.T) {
		cp := Checkpoint{Kind: CheckpointResults, RunID: "r", Iteration: 3}
		assert.Equal(t, "r:3:results", cp.Signature())
	})

	t.Run("kind and action validity", func(t *testing.T) {
		assert.True(t, CheckpointStrategy.Valid())
		assert.True(t, CheckpointResults.Valid())
		assert.False(t, CheckpointKind("pause").Valid())

		assert.True(t, ActionApprove.Valid())
		assert.True(t, ActionEdit.Valid())
		assert.True(t, ActionReject.Valid())
		assert.False(t, DecisionAction("maybe").Valid())
	})
}

func TestFeedbackFromDecision(t *testing.T) {
	t.Run("structured feedback wins over note", func(t *testing.T) {
		data, _ := json.Marshal(domain.UserFeedback{MarkedRelevant: []string{"a"}})
		fb := feedbackFromDecision(Decision{Action: ActionReject, RevisedData: data, Note: "note"})
		require.NotNil(t, fb)
		assert.Equal(t, []string{"a"}, fb.MarkedRelevant)
		assert.Empty(t, fb.FreeTextFeedback)
	})

	t.Run("note becomes free text", func(t *testing.T) {
		fb := feedbackFromDecision(Decision{Action: ActionReject, Note: "go broader"})
		require.NotNil(t, fb)
		assert.Equal(t, "go broader", fb.FreeTextFeedback)
	})

	t.Run("empty feedback data falls through to note", func(t *testing.T) {
		fb := feedbackFromDecision(Decision{Action: ActionReject, RevisedData: json.RawMessage(`{}`), Note: "n"})
		require.NotNil(t, fb)
		assert.Equal(t, "n", fb.FreeTextFeedback)
	})

	t.Run("nothing yields nil", func(t *testing.T) {
		assert.Nil(t, feedbackFromDecision(Decision{Action: ActionReject}))
	})
}
