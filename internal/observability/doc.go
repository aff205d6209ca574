// Package observability provides logging and metrics support for the paper
// search service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for sessions, checkpoints, searches, and sources
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("session_id", sessionID).Msg("session started")
//
// Add session context to a logger:
//
//	logger = observability.WithSessionContext(logger, sessionID)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("paper_search")
//
// Record metrics:
//
//	metrics.RecordSessionStarted()
//	metrics.RecordSearchCompleted("google_scholar", 25, 1.2)
//	metrics.RecordPapersDiscovered("google_scholar", 25)
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithSessionID(ctx, sessionID)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	sessionID := observability.SessionIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - session_id: Search session identifier
//   - iteration: Workflow iteration number
//   - query: Boolean query sent to a source
//   - source: Paper source (google_scholar, etc.)
//   - paper_id: Paper identifier
//   - skill: LLM skill (intent, query, dedup, relevance)
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
