package papersources

import (
	"context"
	"sync"

	"github.com/helixir/paper-search-service/internal/domain"
)

// SourceResult holds the result of a search from one source.
type SourceResult struct {
	// Source identifies which paper source produced the result.
	Source string

	// Papers contains the search results if the search succeeded.
	Papers []domain.RawPaper

	// Error contains the error if the search failed.
	// Will be nil if the search succeeded.
	Error error
}

// Registry manages paper sources and coordinates concurrent searches.
// It provides thread-safe registration and retrieval of paper sources,
// as well as concurrent search operations across multiple sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source to the registry.
// If a source with the same name already exists, it will be replaced.
// This method is thread-safe.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.Name()] = source
}

// Get returns a source by name, or nil if not found.
// This method is thread-safe.
func (r *Registry) Get(name string) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// Names returns the names of all registered sources.
// This method is thread-safe.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	return names
}

// EnabledSources returns only enabled sources.
// Sources are considered enabled if their IsEnabled() method returns true.
// The returned slice is a snapshot and is safe to iterate even if
// sources are added or removed concurrently.
// This method is thread-safe.
func (r *Registry) EnabledSources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.sources))
	for _, source := range r.sources {
		if source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	return sources
}

// SearchAll searches all enabled sources concurrently.
// Returns results for each source (including errors). Errors are not filtered;
// the caller is responsible for handling them appropriately.
// The search respects context cancellation - if the context is canceled,
// ongoing searches will be interrupted and their errors returned.
// This method is thread-safe.
func (r *Registry) SearchAll(ctx context.Context, params SearchParams) []SourceResult {
	return r.SearchSources(ctx, params, nil)
}

// SearchSources searches specific sources concurrently.
// If names is nil or empty, searches all enabled sources.
// Results are ordered by the caller's source order, not completion order.
// Returns results for each source (including errors). Errors are not filtered;
// the caller is responsible for handling them appropriately.
// If a requested source name is not found in the registry, it will be skipped.
// The search respects context cancellation - if the context is canceled,
// ongoing searches will be interrupted and their errors returned.
// This method is thread-safe.
func (r *Registry) SearchSources(ctx context.Context, params SearchParams, names []string) []SourceResult {
	var sources []Source

	if len(names) == 0 {
		// Search all enabled sources
		sources = r.EnabledSources()
	} else {
		// Search specific sources
		r.mu.RLock()
		sources = make([]Source, 0, len(names))
		for _, name := range names {
			if source, ok := r.sources[name]; ok {
				sources = append(sources, source)
			}
		}
		r.mu.RUnlock()
	}

	if len(sources) == 0 {
		return nil
	}

	// Each search writes into its own slot so results come back in the
	// caller's source order, not completion order.
	results := make([]SourceResult, len(sources))
	var wg sync.WaitGroup

	for i, source := range sources {
		wg.Add(1)
		go func(i int, s Source) {
			defer wg.Done()

			papers, err := s.Search(ctx, params)
			results[i] = SourceResult{
				Source: s.Name(),
				Papers: papers,
				Error:  err,
			}
		}(i, source)
	}

	wg.Wait()
	return results
}
