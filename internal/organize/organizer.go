// Package organize assembles scored papers into the final curated
// collection: relevance filtering, ranking, and facet aggregation.
package organize

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
)

const (
	defaultMinRelevance = 0.3

	topAuthorsLimit = 10
	keyThemesLimit  = 8

	// keyThemeMinScore is the relevance floor for papers whose titles
	// contribute to the key-theme facet.
	keyThemeMinScore = 0.5
)

// stopwords are excluded from key-theme extraction over titles.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"based": true, "be": true, "by": true, "for": true, "from": true,
	"in": true, "into": true, "is": true, "its": true, "new": true,
	"of": true, "on": true, "or": true, "over": true, "study": true,
	"the": true, "to": true, "toward": true, "towards": true, "under": true,
	"using": true, "via": true, "with": true,
}

// Config controls collection assembly.
type Config struct {
	// MinRelevance is the score floor; papers below it are dropped.
	MinRelevance float64
}

// Organizer turns scored papers into a PaperCollection.
type Organizer struct {
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// New creates an organizer.
func New(cfg Config, logger zerolog.Logger) *Organizer {
	if cfg.MinRelevance <= 0 {
		cfg.MinRelevance = defaultMinRelevance
	}
	return &Organizer{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Organize filters, ranks, and aggregates scored papers into a collection.
// TotalFound records the pre-filter count so callers can see how aggressive
// the relevance floor was.
func (o *Organizer) Organize(query string, strategy domain.SearchStrategy, scored []domain.ScoredPaper) domain.PaperCollection {
	kept := make([]domain.ScoredPaper, 0, len(scored))
	for _, sp := range scored {
		if sp.RelevanceScore >= o.config.MinRelevance {
			kept = append(kept, sp)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.Paper.CitationCount != b.Paper.CitationCount {
			return a.Paper.CitationCount > b.Paper.CitationCount
		}
		if a.Paper.Year != b.Paper.Year {
			return a.Paper.Year > b.Paper.Year
		}
		return strings.ToLower(a.Paper.Title) < strings.ToLower(b.Paper.Title)
	})

	papers := make([]domain.Paper, len(kept))
	for i, sp := range kept {
		papers[i] = finalize(sp)
	}

	o.logger.Debug().
		Int("scored", len(scored)).
		Int("kept", len(papers)).
		Float64("min_relevance", o.config.MinRelevance).
		Msg("collection organized")

	return domain.PaperCollection{
		Metadata: domain.SearchMetadata{
			Query:      query,
			Strategy:   strategy,
			TotalFound: len(scored),
			Timestamp:  o.now(),
		},
		Papers: papers,
		Facets: buildFacets(papers),
	}
}

// finalize converts a scored paper to its external form, dropping the
// transient snippet and raw payload.
func finalize(sp domain.ScoredPaper) domain.Paper {
	p := sp.Paper
	return domain.Paper{
		ID:              p.ID,
		DOI:             p.DOI,
		Title:           p.Title,
		Authors:         p.Authors,
		Abstract:        p.Abstract,
		Year:            p.Year,
		Venue:           p.Venue,
		Source:          p.Source,
		CitationCount:   p.CitationCount,
		RelevanceScore:  sp.RelevanceScore,
		RelevanceReason: sp.RelevanceReason,
		Tags:            sp.Tags,
		FullTextURL:     p.FullTextURL,
		BibTeX:          p.BibTeX,
	}
}

// buildFacets aggregates year, venue, author, and theme summaries.
func buildFacets(papers []domain.Paper) domain.Facets {
	facets := domain.Facets{
		ByYear:  map[int]int{},
		ByVenue: map[string]int{},
	}

	authorCounts := map[string]int{}
	themeCounts := map[string]int{}

	for _, p := range papers {
		if p.Year > 0 {
			facets.ByYear[p.Year]++
		}
		if venue := titleCaseVenue(p.Venue); venue != "" {
			facets.ByVenue[venue]++
		}
		for _, a := range p.Authors {
			if a.Name != "" {
				authorCounts[a.Name]++
			}
		}
		if p.RelevanceScore >= keyThemeMinScore {
			for _, word := range titleWords(p.Title) {
				themeCounts[word]++
			}
		}
	}

	facets.TopAuthors = topKeys(authorCounts, topAuthorsLimit)
	facets.KeyThemes = topKeys(themeCounts, keyThemesLimit)
	return facets
}

// titleCaseVenue normalizes venue casing so "nature energy" and
// "Nature Energy" count as one venue.
func titleCaseVenue(venue string) string {
	words := strings.Fields(venue)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// titleWords tokenizes a title into lowercase words eligible as themes.
func titleWords(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var words []string
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		words = append(words, f)
	}
	return words
}

// topKeys returns up to limit keys ordered by descending count, ties broken
// alphabetically for determinism.
func topKeys(counts map[string]int, limit int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
