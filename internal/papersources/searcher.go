package papersources

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

// Searcher executes a full search strategy against the source registry.
// Every query in the strategy is sent to every source the strategy names,
// concurrently per query. A failing source never fails the strategy; its
// error is logged and its results are simply absent.
type Searcher struct {
	registry *Registry
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewSearcher creates a Searcher on top of a source registry.
// metrics may be nil, in which case no metrics are recorded.
func NewSearcher(registry *Registry, logger zerolog.Logger, metrics *observability.Metrics) *Searcher {
	return &Searcher{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute runs every query of the strategy against the strategy's sources
// and returns all papers found, in source order per query. Duplicates across
// queries and sources are expected; deduplication happens downstream.
func (s *Searcher) Execute(ctx context.Context, strategy domain.SearchStrategy) ([]domain.RawPaper, error) {
	var all []domain.RawPaper

	for _, query := range strategy.Queries {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		params := SearchParams{
			Query:      query,
			Filters:    strategy.Filters,
			MaxResults: strategy.Filters.MaxResults,
		}

		start := time.Now()
		for _, name := range strategy.Sources {
			if s.metrics != nil {
				s.metrics.RecordSearchStarted(name)
			}
		}

		results := s.registry.SearchSources(ctx, params, strategy.Sources)
		elapsed := time.Since(start).Seconds()

		for _, result := range results {
			log := observability.WithSearchContext(s.logger, query.BooleanQuery, result.Source)
			if result.Error != nil {
				log.Warn().Err(result.Error).Msg("source search failed")
				if s.metrics != nil {
					s.metrics.RecordSearchFailed(result.Source, elapsed)
				}
				continue
			}

			log.Debug().Int("papers", len(result.Papers)).Msg("source search completed")
			if s.metrics != nil {
				s.metrics.RecordSearchCompleted(result.Source, len(result.Papers), elapsed)
				s.metrics.RecordPapersDiscovered(result.Source, len(result.Papers))
			}
			all = append(all, result.Papers...)
		}
	}

	return all, nil
}
