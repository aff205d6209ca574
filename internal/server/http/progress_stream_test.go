package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/session"
)

// readSSEEvents consumes an SSE response body and decodes its data lines.
func readSSEEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event sseEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		events = append(events, event)
	}
	return events
}

func TestStreamProgress(t *testing.T) {
	t.Run("unknown session is 404", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/searches/nope/progress", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("streams until the session completes", func(t *testing.T) {
		srv := newTestServer(t)
		id, cp := startSession(t, srv.Handler())

		// Stream in the background while the decision is submitted.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/searches/"+id+"/progress", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			defer close(done)
			srv.Handler().ServeHTTP(rec, req)
		}()

		time.Sleep(20 * time.Millisecond)
		decision := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/searches/"+id+"/decision", map[string]string{
			"signature": cp.Signature,
			"action":    "approve",
		})
		require.Equal(t, http.StatusOK, decision.Code)

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not terminate after completion")
		}

		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		events := readSSEEvents(t, rec.Body.String())
		require.NotEmpty(t, events)
		assert.Equal(t, "stream_started", events[0].EventType)

		last := events[len(events)-1]
		assert.Equal(t, "completed", last.EventType)
		assert.Equal(t, session.StatusCompleted, last.Status)
	})

	t.Run("terminal session gets a single event", func(t *testing.T) {
		srv := newTestServer(t)
		id, cp := startSession(t, srv.Handler())

		decision := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/searches/"+id+"/decision", map[string]string{
			"signature": cp.Signature,
			"action":    "approve",
		})
		require.Equal(t, http.StatusOK, decision.Code)

		rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/searches/"+id+"/progress", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		events := readSSEEvents(t, rec.Body.String())
		require.Len(t, events, 1)
		assert.Equal(t, "completed", events[0].EventType)
	})
}
