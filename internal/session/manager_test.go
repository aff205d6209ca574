package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/workflow"
)

// stubSkills implements every workflow pipeline interface with fixed data.
type stubSkills struct {
	papers []domain.RawPaper
}

func (s *stubSkills) Parse(ctx context.Context, query string) (domain.ParsedIntent, error) {
	return domain.ParsedIntent{Topic: query, Concepts: []string{"c"}, IntentType: domain.IntentSurvey}, nil
}

func (s *stubSkills) Build(ctx context.Context, input domain.QueryBuilderInput) (domain.SearchStrategy, error) {
	return domain.SearchStrategy{
		Queries: []domain.SearchQuery{{BooleanQuery: "q"}},
		Sources: []string{"google_scholar"},
	}, nil
}

func (s *stubSkills) Execute(ctx context.Context, strategy domain.SearchStrategy) ([]domain.RawPaper, error) {
	return s.papers, nil
}

func (s *stubSkills) Deduplicate(ctx context.Context, papers []domain.RawPaper) []domain.RawPaper {
	return papers
}

func (s *stubSkills) Score(ctx context.Context, intent domain.ParsedIntent, papers []domain.RawPaper) []domain.ScoredPaper {
	scored := make([]domain.ScoredPaper, len(papers))
	for i, p := range papers {
		scored[i] = domain.ScoredPaper{Paper: p, RelevanceScore: 0.9}
	}
	return scored
}

func (s *stubSkills) Organize(query string, strategy domain.SearchStrategy, scored []domain.ScoredPaper) domain.PaperCollection {
	papers := make([]domain.Paper, len(scored))
	for i, sp := range scored {
		papers[i] = domain.Paper{ID: sp.Paper.ID, Title: sp.Paper.Title, RelevanceScore: sp.RelevanceScore}
	}
	return domain.PaperCollection{
		Metadata: domain.SearchMetadata{Query: query, Strategy: strategy, TotalFound: len(scored)},
		Papers:   papers,
	}
}

func newTestManager(t *testing.T, workflowCfg workflow.Config, sessionCfg Config) *Manager {
	t.Helper()
	skills := &stubSkills{papers: []domain.RawPaper{
		{ID: "p1", Title: "Paper one"},
		{ID: "p2", Title: "Paper two"},
	}}
	pipeline := workflow.Pipeline{
		Intent:    skills,
		Strategy:  skills,
		Searcher:  skills,
		Dedup:     skills,
		Scorer:    skills,
		Organizer: skills,
	}
	factory := func(gate workflow.Gate, progress workflow.ProgressFunc) *workflow.Engine {
		return workflow.New(pipeline, gate, workflowCfg, zerolog.Nop(), nil, progress)
	}
	if sessionCfg.DecideWaitTimeout == 0 {
		sessionCfg.DecideWaitTimeout = 2 * time.Second
	}
	if sessionCfg.PollInterval == 0 {
		sessionCfg.PollInterval = time.Millisecond
	}
	return NewManager(factory, sessionCfg, zerolog.Nop(), nil)
}

// awaitCheckpoint waits for the session's next pending checkpoint.
func awaitCheckpoint(t *testing.T, m *Manager, id string) *CheckpointView {
	t.Helper()
	view, err := m.WaitForCheckpointOrComplete(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, view.Checkpoint, "expected a pending checkpoint, session is %s", view.Status)
	return view.Checkpoint
}

func TestManager_ApproveFlow(t *testing.T) {
	m := newTestManager(t, workflow.Config{MaxIterations: 3}, Config{})

	s, err := m.Start(context.Background(), "perovskite stability")
	require.NoError(t, err)

	cp := awaitCheckpoint(t, m, s.ID)
	assert.Equal(t, workflow.CheckpointResults, cp.Kind)
	assert.Equal(t, 1, cp.Iteration)
	require.NotNil(t, cp.Results)
	assert.Equal(t, 2, cp.Results.Kept)

	view, err := m.SubmitDecision(context.Background(), s.ID, cp.Signature, workflow.Decision{Action: workflow.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, view.Status)
	require.NotNil(t, view.Result)
	assert.Len(t, view.Result.Papers, 2)

	result, err := m.Result(s.ID)
	require.NoError(t, err)
	assert.Len(t, result.Papers, 2)
}

func TestManager_StrategyCheckpointFlow(t *testing.T) {
	m := newTestManager(t, workflow.Config{MaxIterations: 3, StrategyCheckpoint: true}, Config{})

	s, err := m.Start(context.Background(), "q")
	require.NoError(t, err)

	cp := awaitCheckpoint(t, m, s.ID)
	assert.Equal(t, workflow.CheckpointStrategy, cp.Kind)
	require.NotNil(t, cp.Strategy)
	assert.NotEmpty(t, cp.Strategy.Queries)
	require.NotNil(t, cp.Intent)
	assert.Equal(t, "q", cp.Intent.Topic)

	view, err := m.SubmitDecision(context.Background(), s.ID, cp.Signature, workflow.Decision{Action: workflow.ActionApprove})
	require.NoError(t, err)
	require.NotNil(t, view.Checkpoint)
	assert.Equal(t, workflow.CheckpointResults, view.Checkpoint.Kind)
}

func TestManager_RejectFlow(t *testing.T) {
	m := newTestManager(t, workflow.Config{MaxIterations: 2}, Config{RequireUserResponse: true})

	s, err := m.Start(context.Background(), "q")
	require.NoError(t, err)

	cp := awaitCheckpoint(t, m, s.ID)
	view, err := m.SubmitDecision(context.Background(), s.ID, cp.Signature, workflow.Decision{
		Action: workflow.ActionReject,
		Note:   "focus on encapsulation methods",
	})
	require.NoError(t, err)

	require.NotNil(t, view.Checkpoint)
	assert.Equal(t, 2, view.Checkpoint.Iteration)
}

func TestManager_AccumulatedPapersSurface(t *testing.T) {
	m := newTestManager(t, workflow.Config{MaxIterations: 2}, Config{})

	s, err := m.Start(context.Background(), "q")
	require.NoError(t, err)

	cp := awaitCheckpoint(t, m, s.ID)
	require.NotNil(t, cp.Results)
	assert.Empty(t, cp.Results.AccumulatedPapers)

	fb, _ := json.Marshal(domain.UserFeedback{MarkedRelevant: []string{"p1"}, FreeTextFeedback: "keep p1"})
	view, err := m.SubmitDecision(context.Background(), s.ID, cp.Signature, workflow.Decision{
		Action:      workflow.ActionReject,
		RevisedData: fb,
	})
	require.NoError(t, err)

	require.NotNil(t, view.Checkpoint)
	require.NotNil(t, view.Checkpoint.Results)
	require.Len(t, view.Checkpoint.Results.AccumulatedPapers, 1)
	assert.Equal(t, "p1", view.Checkpoint.Results.AccumulatedPapers[0].ID)
}

func TestManager_SubmitDecisionValidation(t *testing.T) {
	m := newTestManager(t, workflow.Config{MaxIterations: 2}, Config{RequireUserResponse: true})

	s, err := m.Start(context.Background(), "q")
	require.NoError(t, err)
	cp := awaitCheckpoint(t, m, s.ID)

	tests := []struct {
		name     string
		decision workflow.Decision
	}{
		{"unknown action", workflow.Decision{Action: "maybe"}},
		{"edit without data", workflow.Decision{Action: workflow.ActionEdit}},
		{"reject without content", workflow.Decision{Action: workflow.ActionReject}},
		{"trivial reject note", workflow.Decision{Action: workflow.ActionReject, Note: "ok"}},
		{"trivial reject note cased", workflow.Decision{Action: workflow.ActionReject, Note: "  Sure  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.SubmitDecision(context.Background(), s.ID, cp.Signature, tt.decision)
			assert.ErrorIs(t, err, domain.ErrInvalidDecision)
		})
	}

	// The checkpoint is still pending after failed submissions.
	view, err := m.View(s)
	require.NoError(t, err)
	require.NotNil(t, view.Checkpoint)
	assert.Equal(t, cp.Signature, view.Checkpoint.Signature)

	// Reject with structured data needs no note.
	fb, _ := json.Marshal(domain.UserFeedback{MarkedIrrelevant: []string{"p1"}})
	_, err = m.SubmitDecision(context.Background(), s.ID, cp.Signature, workflow.Decision{
		Action:      workflow.ActionReject,
		RevisedData: fb,
	})
	assert.NoError(t, err)
}

func TestManager_TrivialNoteAllowedWhenNotRequired(t *testing.T) {
	m := newTestManager(t, workflow.Config{MaxIterations: 2}, Config{RequireUserResponse: false})

	s, err := m.Start(context.Background(), "q")
	require.NoError(t, err)
	cp := awaitCheckpoint(t, m, s.ID)

	_, err = m.SubmitDecision(context.Background(), s.ID, cp.Signature, workflow.Decision{
		Action: workflow.ActionReject,
		Note:   "no",
	})
	assert.NoError(t, err)
}

func TestManager_SignatureMismatch(t *testing.T) {
	m := newTestManager(t, workflow.Config{}, Config{})

	s, err := m.Start(context.Background(), "q")
	require.NoError(t, err)
	awaitCheckpoint(t, m, s.ID)

	_, err = m.SubmitDecision(context.Background(), s.ID, "other:9:results", workflow.Decision{Action: workflow.ActionApprove})
	assert.ErrorIs(t, err, domain.ErrInvalidDecision)
}

func TestManager_SessionLifecycle(t *testing.T) {
	t.Run("rejects empty query", func(t *testing.T) {
		m := newTestManager(t, workflow.Config{}, Config{})
		_, err := m.Start(context.Background(), "  ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown session", func(t *testing.T) {
		m := newTestManager(t, workflow.Config{}, Config{})
		_, err := m.Get("nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("cancel removes the session", func(t *testing.T) {
		m := newTestManager(t, workflow.Config{}, Config{})
		s, err := m.Start(context.Background(), "q")
		require.NoError(t, err)
		awaitCheckpoint(t, m, s.ID)

		require.NoError(t, m.Cancel(s.ID))
		_, err = m.Get(s.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("decisions after completion fail", func(t *testing.T) {
		m := newTestManager(t, workflow.Config{}, Config{})
		s, err := m.Start(context.Background(), "q")
		require.NoError(t, err)

		cp := awaitCheckpoint(t, m, s.ID)
		_, err = m.SubmitDecision(context.Background(), s.ID, cp.Signature, workflow.Decision{Action: workflow.ActionApprove})
		require.NoError(t, err)

		_, err = m.SubmitDecision(context.Background(), s.ID, cp.Signature, workflow.Decision{Action: workflow.ActionApprove})
		assert.ErrorIs(t, err, domain.ErrSessionComplete)
	})

	t.Run("result of incomplete session is unavailable", func(t *testing.T) {
		m := newTestManager(t, workflow.Config{}, Config{})
		s, err := m.Start(context.Background(), "q")
		require.NoError(t, err)

		_, err = m.Result(s.ID)
		assert.Error(t, err)
	})
}

func TestScoreBucket(t *testing.T) {
	assert.Equal(t, "high", scoreBucket(0.95))
	assert.Equal(t, "high", scoreBucket(0.7))
	assert.Equal(t, "medium", scoreBucket(0.69))
	assert.Equal(t, "medium", scoreBucket(0.3))
	assert.Equal(t, "low", scoreBucket(0.29))
	assert.Equal(t, "low", scoreBucket(0.0))
}
