// Package papersources provides interfaces and types for academic paper source clients.
//
// This package defines the foundational abstractions that all paper source implementations
// must follow. Each search backend (Google Scholar, etc.) implements the Source interface,
// allowing the paper search service to search multiple sources concurrently with a
// unified API.
//
// Example usage:
//
//	source := scholar.New(cfg, httpClient)
//	params := papersources.SearchParams{
//		Query:      query,
//		Filters:    strategy.Filters,
//		MaxResults: 100,
//	}
//	papers, err := source.Search(ctx, params)
package papersources

import (
	"context"

	"github.com/helixir/paper-search-service/internal/domain"
)

// SearchParams defines the parameters for searching academic papers.
type SearchParams struct {
	// Query is the structured query to execute (required). Sources use the
	// boolean query string; some may also consult the keywords.
	Query domain.SearchQuery

	// Filters bound the search. Year bounds and language are applied by the
	// source when its API supports them.
	Filters domain.SearchConstraints

	// MaxResults limits the number of papers returned for this query.
	// Sources may have their own maximum limits that override this value.
	// A value of 0 uses the source's default limit.
	MaxResults int
}

// Source defines the interface that all paper source clients must implement.
type Source interface {
	// Search queries the paper source for papers matching the given parameters.
	// Returns the matching papers, which may be empty.
	// The context should be used for cancellation and deadline propagation.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Apply rate limiting as needed
	//   - Transform source-specific responses to domain.RawPaper
	//   - Include appropriate error wrapping with source context
	Search(ctx context.Context, params SearchParams) ([]domain.RawPaper, error)

	// Name returns the source identifier (e.g. "google_scholar").
	// Used for routing, attribution, logging, and metrics.
	Name() string

	// IsEnabled returns whether this paper source is currently enabled
	// and available for searches. A source may be disabled due to
	// configuration or missing API keys.
	IsEnabled() bool
}
