package organize

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
)

func scored(id, title string, score float64) domain.ScoredPaper {
	return domain.ScoredPaper{
		Paper: domain.RawPaper{
			ID:     id,
			Title:  title,
			Source: "google_scholar",
		},
		RelevanceScore:  score,
		RelevanceReason: "reason",
	}
}

func TestOrganizer_Organize(t *testing.T) {
	strategy := domain.SearchStrategy{Sources: []string{"google_scholar"}}

	t.Run("filters below the relevance floor", func(t *testing.T) {
		o := New(Config{MinRelevance: 0.5}, zerolog.Nop())

		coll := o.Organize("q", strategy, []domain.ScoredPaper{
			scored("keep", "Kept paper", 0.9),
			scored("edge", "Edge paper", 0.5),
			scored("drop", "Dropped paper", 0.49),
		})

		require.Len(t, coll.Papers, 2)
		assert.Equal(t, "keep", coll.Papers[0].ID)
		assert.Equal(t, "edge", coll.Papers[1].ID)
		assert.Equal(t, 3, coll.Metadata.TotalFound)
	})

	t.Run("ranks by score, citations, year, then title", func(t *testing.T) {
		o := New(Config{MinRelevance: 0.1}, zerolog.Nop())

		a := scored("a", "Bravo", 0.8)
		a.Paper.CitationCount = 50
		b := scored("b", "Alpha", 0.8)
		b.Paper.CitationCount = 50
		c := scored("c", "Charlie", 0.8)
		c.Paper.CitationCount = 200
		d := scored("d", "Delta", 0.9)
		e := scored("e", "Echo", 0.8)
		e.Paper.CitationCount = 50
		e.Paper.Year = 2023

		coll := o.Organize("q", strategy, []domain.ScoredPaper{a, b, c, d, e})

		got := make([]string, len(coll.Papers))
		for i, p := range coll.Papers {
			got[i] = p.ID
		}
		assert.Equal(t, []string{"d", "c", "e", "b", "a"}, got)
	})

	t.Run("title tie-break ignores case", func(t *testing.T) {
		o := New(Config{MinRelevance: 0.1}, zerolog.Nop())

		coll := o.Organize("q", strategy, []domain.ScoredPaper{
			scored("z", "Zeta result", 0.8),
			scored("a", "alpha result", 0.8),
		})

		require.Len(t, coll.Papers, 2)
		assert.Equal(t, "a", coll.Papers[0].ID)
		assert.Equal(t, "z", coll.Papers[1].ID)
	})

	t.Run("drops snippet and raw payload", func(t *testing.T) {
		o := New(Config{}, zerolog.Nop())

		sp := scored("a", "Paper", 0.9)
		sp.Paper.Snippet = "transient"
		sp.Paper.Raw = map[string]any{"k": "v"}
		sp.Paper.DOI = "10.1/x"
		sp.Tags = []domain.PaperTag{domain.TagMethod}

		coll := o.Organize("q", strategy, []domain.ScoredPaper{sp})
		require.Len(t, coll.Papers, 1)

		p := coll.Papers[0]
		assert.Equal(t, "10.1/x", p.DOI)
		assert.Equal(t, 0.9, p.RelevanceScore)
		assert.Equal(t, []domain.PaperTag{domain.TagMethod}, p.Tags)
	})

	t.Run("records query and strategy in metadata", func(t *testing.T) {
		o := New(Config{}, zerolog.Nop())
		coll := o.Organize("perovskite stability", strategy, nil)

		assert.Equal(t, "perovskite stability", coll.Metadata.Query)
		assert.Equal(t, strategy, coll.Metadata.Strategy)
		assert.Zero(t, coll.Metadata.TotalFound)
		assert.False(t, coll.Metadata.Timestamp.IsZero())
		assert.Empty(t, coll.Papers)
	})

	t.Run("zero min relevance uses the default", func(t *testing.T) {
		o := New(Config{}, zerolog.Nop())
		coll := o.Organize("q", strategy, []domain.ScoredPaper{
			scored("a", "Above", 0.31),
			scored("b", "Below", 0.29),
		})
		require.Len(t, coll.Papers, 1)
		assert.Equal(t, "a", coll.Papers[0].ID)
	})
}

func TestBuildFacets(t *testing.T) {
	o := New(Config{MinRelevance: 0.1}, zerolog.Nop())

	a := scored("a", "Perovskite degradation under illumination", 0.9)
	a.Paper.Year = 2020
	a.Paper.Venue = "Nature Energy"
	a.Paper.Authors = []domain.Author{{Name: "J Smith"}, {Name: "A Jones"}}

	b := scored("b", "Perovskite encapsulation strategies", 0.8)
	b.Paper.Year = 2020
	b.Paper.Venue = "Joule"
	b.Paper.Authors = []domain.Author{{Name: "J Smith"}}

	c := scored("c", "Degradation pathways in perovskite films", 0.7)
	c.Paper.Year = 2022
	c.Paper.Venue = "nature energy"
	c.Paper.Authors = []domain.Author{{Name: "B Lee"}}

	// Low-relevance papers count toward years and venues but their titles
	// do not contribute themes.
	d := scored("d", "Perovskite degradation overview", 0.2)
	d.Paper.Year = 2019

	coll := o.Organize("q", domain.SearchStrategy{}, []domain.ScoredPaper{a, b, c, d})
	facets := coll.Facets

	assert.Equal(t, map[int]int{2019: 1, 2020: 2, 2022: 1}, facets.ByYear)

	// Venue casing is normalized before counting.
	assert.Equal(t, map[string]int{"Nature Energy": 2, "Joule": 1}, facets.ByVenue)

	assert.Equal(t, "J Smith", facets.TopAuthors[0])
	assert.Len(t, facets.TopAuthors, 3)

	// Ordered by frequency, ties alphabetical; single-occurrence words rank
	// behind repeated ones but still count.
	assert.Equal(t, []string{
		"perovskite", "degradation", "encapsulation", "films",
		"illumination", "pathways", "strategies",
	}, facets.KeyThemes)
}

func TestTitleCaseVenue(t *testing.T) {
	assert.Equal(t, "Nature Energy", titleCaseVenue("nature energy"))
	assert.Equal(t, "Nature Energy", titleCaseVenue("  NATURE ENERGY  "))
	assert.Equal(t, "Joule", titleCaseVenue("Joule"))
	assert.Equal(t, "", titleCaseVenue(""))
}

func TestTitleWords(t *testing.T) {
	words := titleWords("A Study of Deep Learning for NLP, using transformers!")
	assert.Equal(t, []string{"deep", "learning", "nlp", "transformers"}, words)
}
