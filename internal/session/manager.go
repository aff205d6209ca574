package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/workflow"
)

// Status describes a session's lifecycle position.
type Status string

const (
	StatusRunning   Status = "running"
	StatusAwaiting  Status = "awaiting_decision"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// trivialResponses are acknowledgements that carry no steering information.
// A reject decision consisting only of one of these is sent back to the user
// when the session requires substantive input.
var trivialResponses = map[string]bool{
	"ok": true, "okay": true, "k": true, "y": true, "yes": true,
	"yeah": true, "yep": true, "sure": true, "fine": true,
	"go ahead": true, "sounds good": true, "continue": true,
	"proceed": true, "next": true, "no": true, "nope": true,
}

// Config controls session behavior.
type Config struct {
	// DecideWaitTimeout bounds how long waits on session progress block.
	DecideWaitTimeout time.Duration

	// PollInterval is the polling cadence for waits.
	PollInterval time.Duration

	// RequireUserResponse rejects trivial reject notes.
	RequireUserResponse bool
}

// EngineFactory builds a workflow engine bound to one session's gate and
// progress reporter.
type EngineFactory func(gate workflow.Gate, progress workflow.ProgressFunc) *workflow.Engine

// Session is one interactive search run.
type Session struct {
	ID        string
	Query     string
	CreatedAt time.Time

	handler *handler
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	status   Status
	result   *domain.PaperCollection
	runErr   error
	progress workflow.ProgressEvent
}

// snapshot returns the session's current status, result, and error.
func (s *Session) snapshot() (Status, *domain.PaperCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.status
	if status == StatusRunning {
		if _, ok := s.handler.Pending(); ok {
			status = StatusAwaiting
		}
	}
	return status, s.result, s.runErr
}

// lastProgress returns the most recent progress event.
func (s *Session) lastProgress() workflow.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Session) finish(status Status, result *domain.PaperCollection, err error) {
	s.mu.Lock()
	s.status = status
	s.result = result
	s.runErr = err
	s.mu.Unlock()
	close(s.done)
}

// Manager owns all live sessions and runs their workflows in the background.
type Manager struct {
	factory EngineFactory
	config  Config
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. metrics may be nil.
func NewManager(factory EngineFactory, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Manager {
	if cfg.DecideWaitTimeout <= 0 {
		cfg.DecideWaitTimeout = 15 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Manager{
		factory:  factory,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		sessions: map[string]*Session{},
	}
}

// Start launches a new search session for query. The workflow runs on a
// background goroutine; the returned session is immediately queryable.
func (m *Manager) Start(ctx context.Context, query string) (*Session, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("session: %w: empty query", domain.ErrInvalidInput)
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(observability.WithSessionID(context.WithoutCancel(ctx), id))
	s := &Session{
		ID:        id,
		Query:     query,
		CreatedAt: time.Now(),
		handler:   newHandler(),
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusRunning,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	progress := func(event workflow.ProgressEvent) {
		s.mu.Lock()
		s.progress = event
		s.mu.Unlock()
	}
	engine := m.factory(s.handler, progress)

	if m.metrics != nil {
		m.metrics.RecordSessionStarted()
	}
	logger := observability.WithSessionContext(m.logger, s.ID)
	logger.Info().Str("query", query).Msg("session started")

	go m.run(runCtx, engine, s, logger)
	return s, nil
}

// run executes the workflow and records the outcome.
func (m *Manager) run(ctx context.Context, engine *workflow.Engine, s *Session, logger zerolog.Logger) {
	started := time.Now()
	collection, err := engine.Run(ctx, s.ID, s.Query)

	switch {
	case ctx.Err() != nil:
		s.finish(StatusCancelled, nil, ctx.Err())
		if m.metrics != nil {
			m.metrics.RecordSessionCancelled()
		}
		logger.Info().Msg("session cancelled")
	case err != nil:
		s.finish(StatusFailed, nil, err)
		if m.metrics != nil {
			m.metrics.RecordSessionFailed(time.Since(started).Seconds())
		}
		logger.Error().Err(err).Msg("session failed")
	default:
		s.finish(StatusCompleted, &collection, nil)
		if m.metrics != nil {
			iterations := s.lastProgress().Iteration
			m.metrics.RecordSessionCompleted(time.Since(started).Seconds(), iterations)
		}
		logger.Info().Int("papers", len(collection.Papers)).Msg("session completed")
	}
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// Cancel aborts a running session and removes it from the registry.
func (m *Manager) Cancel(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.cancel()
	<-s.done

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// SubmitDecision validates and delivers a decision for the session's pending
// checkpoint, then waits for the workflow to reach its next pause or finish.
// Validation never disturbs the pending checkpoint: a bad decision leaves the
// session waiting as before.
func (m *Manager) SubmitDecision(ctx context.Context, id, signature string, decision workflow.Decision) (*SessionView, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	status, _, _ := s.snapshot()
	if status == StatusCompleted || status == StatusFailed || status == StatusCancelled {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionComplete)
	}

	if err := m.validateDecision(decision); err != nil {
		return nil, err
	}
	waited := s.handler.pendingWait()
	if err := s.handler.Submit(signature, decision); err != nil {
		return nil, err
	}

	if m.metrics != nil {
		_, _, kind := splitSignature(signature)
		m.metrics.RecordCheckpointDecision(kind, string(decision.Action), waited.Seconds())
	}

	return m.waitAfterDecision(ctx, s, signature)
}

// validateDecision enforces decision content rules before delivery.
func (m *Manager) validateDecision(d workflow.Decision) error {
	if !d.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidDecision, d.Action)
	}
	switch d.Action {
	case workflow.ActionEdit:
		if len(d.RevisedData) == 0 {
			return fmt.Errorf("%w: edit requires revised data", domain.ErrInvalidDecision)
		}
	case workflow.ActionReject:
		if len(d.RevisedData) > 0 {
			return nil
		}
		note := strings.TrimSpace(strings.ToLower(d.Note))
		if note == "" {
			return fmt.Errorf("%w: reject requires a note or revised data", domain.ErrInvalidDecision)
		}
		if m.config.RequireUserResponse && trivialResponses[note] {
			return fmt.Errorf("%w: reject note %q gives no direction to search in", domain.ErrInvalidDecision, d.Note)
		}
	}
	return nil
}

// WaitForCheckpointOrComplete polls until the session raises a checkpoint or
// finishes, bounded by the decide wait timeout.
func (m *Manager) WaitForCheckpointOrComplete(ctx context.Context, id string) (*SessionView, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return m.wait(ctx, s, func() bool {
		_, pending := s.handler.Pending()
		return pending
	})
}

// waitAfterDecision polls until the session moves past the answered
// checkpoint: a different checkpoint is pending, or the run finished.
func (m *Manager) waitAfterDecision(ctx context.Context, s *Session, answered string) (*SessionView, error) {
	return m.wait(ctx, s, func() bool {
		cp, pending := s.handler.Pending()
		return pending && cp.Signature() != answered
	})
}

// wait polls until ready() holds, the session finishes, or the timeout
// elapses. A timeout is not an error; the current view is returned so the
// client can keep polling.
func (m *Manager) wait(ctx context.Context, s *Session, ready func() bool) (*SessionView, error) {
	deadline := time.NewTimer(m.config.DecideWaitTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(m.config.PollInterval)
	defer tick.Stop()

	for {
		if ready() {
			return m.View(s)
		}
		select {
		case <-s.done:
			return m.View(s)
		case <-deadline.C:
			return m.View(s)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tick.C:
		}
	}
}

// Result returns the final collection of a completed session.
func (m *Manager) Result(id string) (*domain.PaperCollection, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	status, result, runErr := s.snapshot()
	switch status {
	case StatusCompleted:
		return result, nil
	case StatusFailed:
		return nil, fmt.Errorf("session %s failed: %w", id, runErr)
	default:
		return nil, fmt.Errorf("session %s is %s: %w", id, status, domain.ErrSessionNotComplete)
	}
}

// splitSignature parses "runID:iteration:kind"; kind is "" when malformed.
func splitSignature(signature string) (runID string, iteration string, kind string) {
	parts := strings.Split(signature, ":")
	if len(parts) != 3 {
		return "", "", ""
	}
	return parts[0], parts[1], parts[2]
}
