package papersources

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
)

func TestSearcher_Execute(t *testing.T) {
	strategy := domain.SearchStrategy{
		Queries: []domain.SearchQuery{
			{Keywords: []string{"perovskite"}, BooleanQuery: "perovskite AND stability"},
			{Keywords: []string{"solar"}, BooleanQuery: "solar AND degradation"},
		},
		Sources: []string{"google_scholar"},
		Filters: domain.SearchConstraints{MaxResults: 50},
	}

	t.Run("runs every query against the strategy sources", func(t *testing.T) {
		registry := NewRegistry()
		source := newMockSource("google_scholar", true)
		source.searchFunc = func(ctx context.Context, params SearchParams) ([]domain.RawPaper, error) {
			return []domain.RawPaper{domain.NewRawPaper(params.Query.BooleanQuery, "google_scholar")}, nil
		}
		registry.Register(source)

		searcher := NewSearcher(registry, zerolog.Nop(), nil)
		papers, err := searcher.Execute(context.Background(), strategy)
		require.NoError(t, err)

		assert.Len(t, papers, 2)
		assert.Equal(t, 2, source.SearchCallCount())
		assert.Equal(t, "perovskite AND stability", papers[0].Title)
		assert.Equal(t, "solar AND degradation", papers[1].Title)
	})

	t.Run("passes filters through to sources", func(t *testing.T) {
		registry := NewRegistry()
		var got SearchParams
		source := newMockSource("google_scholar", true)
		source.searchFunc = func(ctx context.Context, params SearchParams) ([]domain.RawPaper, error) {
			got = params
			return nil, nil
		}
		registry.Register(source)

		searcher := NewSearcher(registry, zerolog.Nop(), nil)
		_, err := searcher.Execute(context.Background(), strategy)
		require.NoError(t, err)

		assert.Equal(t, 50, got.MaxResults)
		assert.Equal(t, strategy.Filters, got.Filters)
	})

	t.Run("isolates per-source failures", func(t *testing.T) {
		registry := NewRegistry()

		good := newMockSource("google_scholar", true)
		good.searchFunc = func(ctx context.Context, params SearchParams) ([]domain.RawPaper, error) {
			return []domain.RawPaper{domain.NewRawPaper("ok", "google_scholar")}, nil
		}
		bad := newMockSource("crossref", true)
		bad.searchFunc = func(ctx context.Context, params SearchParams) ([]domain.RawPaper, error) {
			return nil, errors.New("boom")
		}
		registry.Register(good)
		registry.Register(bad)

		multi := strategy
		multi.Sources = []string{"google_scholar", "crossref"}

		searcher := NewSearcher(registry, zerolog.Nop(), nil)
		papers, err := searcher.Execute(context.Background(), multi)
		require.NoError(t, err)

		// Two queries, one succeeding source each.
		assert.Len(t, papers, 2)
		for _, p := range papers {
			assert.Equal(t, "google_scholar", p.Source)
		}
	})

	t.Run("stops between queries on cancelled context", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(newMockSource("google_scholar", true))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		searcher := NewSearcher(registry, zerolog.Nop(), nil)
		_, err := searcher.Execute(ctx, strategy)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("empty strategy yields no papers", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(newMockSource("google_scholar", true))

		searcher := NewSearcher(registry, zerolog.Nop(), nil)
		papers, err := searcher.Execute(context.Background(), domain.SearchStrategy{})
		require.NoError(t, err)
		assert.Empty(t, papers)
	})
}
