// Package session bridges running workflows and human reviewers: it holds
// checkpoints raised by the engine until a decision arrives over the API,
// and tracks the lifecycle of each search session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/workflow"
)

// handler is the rendezvous point between one engine goroutine and the API.
// At most one checkpoint is pending at a time; the engine blocks in Raise
// until Submit delivers the matching decision.
type handler struct {
	mu       sync.Mutex
	pending  *workflow.Checkpoint
	raisedAt time.Time
	decision chan workflow.Decision
}

func newHandler() *handler {
	return &handler{
		decision: make(chan workflow.Decision, 1),
	}
}

// Raise publishes a checkpoint and blocks until a decision or ctx is done.
func (h *handler) Raise(ctx context.Context, checkpoint workflow.Checkpoint) (workflow.Decision, error) {
	h.mu.Lock()
	cp := checkpoint
	h.pending = &cp
	h.raisedAt = time.Now()
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.pending = nil
		h.mu.Unlock()
	}()

	select {
	case d := <-h.decision:
		return d, nil
	case <-ctx.Done():
		return workflow.Decision{}, ctx.Err()
	}
}

// Pending returns the currently pending checkpoint, if any.
func (h *handler) Pending() (workflow.Checkpoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return workflow.Checkpoint{}, false
	}
	return *h.pending, true
}

// pendingWait reports how long the pending checkpoint has been waiting for a
// decision, or zero if none is pending.
func (h *handler) pendingWait() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return 0
	}
	return time.Since(h.raisedAt)
}

// Submit delivers a decision for the pending checkpoint. signature must
// match the pending checkpoint exactly so a stale client cannot answer a
// checkpoint it never saw.
func (h *handler) Submit(signature string, decision workflow.Decision) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending == nil {
		return domain.ErrNoPendingCheckpoint
	}
	if got := h.pending.Signature(); got != signature {
		return fmt.Errorf("%w: checkpoint %q is pending, not %q", domain.ErrInvalidDecision, got, signature)
	}

	select {
	case h.decision <- decision:
		// Clear immediately so polls do not re-observe an answered
		// checkpoint before the engine resumes.
		h.pending = nil
		return nil
	default:
		return domain.ErrNoPendingCheckpoint
	}
}
