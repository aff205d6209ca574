package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/paper-search-service/internal/session"
	"github.com/helixir/paper-search-service/internal/workflow"
)

const (
	// ssePollInterval is how often session state is polled for changes.
	ssePollInterval = 250 * time.Millisecond
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 4 * time.Hour
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType  string                  `json:"event_type"`
	SessionID  string                  `json:"session_id"`
	Status     session.Status          `json:"status"`
	Stage      workflow.Stage          `json:"stage,omitempty"`
	Iteration  int                     `json:"iteration,omitempty"`
	Checkpoint *session.CheckpointView `json:"checkpoint,omitempty"`
	Message    string                  `json:"message,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// streamProgress handles GET /searches/{sessionID}/progress (SSE).
// Events are emitted whenever the session's stage, status, or pending
// checkpoint changes, plus a final event when the session finishes.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	view, err := s.sessions.View(sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// If already terminal, send one event and close.
	if isTerminalStatus(view.Status) {
		sendSSEEvent(w, flusher, eventFromView(view, "completed", "session is in terminal state"))
		return
	}

	sendSSEEvent(w, flusher, eventFromView(view, "stream_started", "progress stream started"))

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	last := streamFingerprint(view)

	for {
		select {
		case <-r.Context().Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "timeout",
				SessionID: sess.ID,
				Message:   "stream max duration exceeded",
				Timestamp: time.Now(),
			})
			return

		case <-ticker.C:
			current, viewErr := s.sessions.View(sess)
			if viewErr != nil {
				s.logger.Error().Err(viewErr).Str("session_id", sess.ID).Msg("failed to snapshot session")
				continue
			}

			if isTerminalStatus(current.Status) {
				sendSSEEvent(w, flusher, eventFromView(current, "completed",
					"session finished with status: "+string(current.Status)))
				return
			}

			if fp := streamFingerprint(current); fp != last {
				last = fp
				sendSSEEvent(w, flusher, eventFromView(current, "progress_update", ""))
			}
		}
	}
}

// eventFromView builds an SSE event from a session snapshot.
func eventFromView(view *session.SessionView, eventType, message string) sseEvent {
	return sseEvent{
		EventType:  eventType,
		SessionID:  view.ID,
		Status:     view.Status,
		Stage:      view.Progress.Stage,
		Iteration:  view.Progress.Iteration,
		Checkpoint: view.Checkpoint,
		Message:    message,
		Timestamp:  time.Now(),
	}
}

// streamFingerprint condenses the parts of a view that warrant a new event.
func streamFingerprint(view *session.SessionView) string {
	signature := ""
	if view.Checkpoint != nil {
		signature = view.Checkpoint.Signature
	}
	return fmt.Sprintf("%s|%s|%d|%s", view.Status, view.Progress.Stage, view.Progress.Iteration, signature)
}

// isTerminalStatus reports whether the session has finished.
func isTerminalStatus(status session.Status) bool {
	return status == session.StatusCompleted ||
		status == session.StatusFailed ||
		status == session.StatusCancelled
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
