// Package dedup merges duplicate paper records collected across sources and
// queries. Exact signals (DOI, source result ID, full-text URL, normalized
// title) are matched with a union-find pass; an optional LLM pass catches
// near-duplicate titles the exact signals miss.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/llm"
	"github.com/helixir/paper-search-service/internal/observability"
)

// defaultMaxLLMCandidates bounds the LLM pass prompt size.
const defaultMaxLLMCandidates = 60

const systemPrompt = `You identify duplicate academic papers. You are given a numbered list of paper titles with authors and years. Different entries may describe the same paper with formatting differences, subtitle variations, or preprint/published title drift.

Respond with a JSON object:
{"groups": [[0, 3], [2, 5, 7]]}

Rules:
- Each group lists the indexes of entries that are the SAME paper.
- Only include groups with two or more entries.
- When in doubt, do NOT merge.`

var dedupSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "groups": {
      "type": "array",
      "items": {"type": "array", "items": {"type": "integer"}}
    }
  },
  "required": ["groups"]
}`)

// Config controls the deduplicator.
type Config struct {
	// EnableLLMPass turns on the LLM near-duplicate pass.
	EnableLLMPass bool

	// MaxLLMCandidates caps how many ungrouped papers are sent to the LLM.
	// Values below 2 fall back to the default.
	MaxLLMCandidates int
}

// Deduplicator merges duplicate RawPaper records.
type Deduplicator struct {
	client  llm.Client
	config  Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates a deduplicator. client may be nil when the LLM pass is
// disabled. metrics may be nil.
func New(client llm.Client, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Deduplicator {
	if cfg.MaxLLMCandidates < 2 {
		cfg.MaxLLMCandidates = defaultMaxLLMCandidates
	}
	return &Deduplicator{
		client:  client,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Deduplicate merges duplicates in papers and returns the surviving records,
// ordered by first appearance. The input slice is not modified.
func (d *Deduplicator) Deduplicate(ctx context.Context, papers []domain.RawPaper) []domain.RawPaper {
	if len(papers) < 2 {
		return papers
	}

	dsu := newUnionFind(len(papers))
	d.unionExactSignals(papers, dsu)

	if d.config.EnableLLMPass && d.client != nil {
		d.unionLLMCandidates(ctx, papers, dsu)
	}

	merged := d.mergeGroups(papers, dsu)

	if dropped := len(papers) - len(merged); dropped > 0 {
		d.logger.Debug().
			Int("input", len(papers)).
			Int("output", len(merged)).
			Int("duplicates", dropped).
			Msg("papers deduplicated")
		if d.metrics != nil {
			d.metrics.RecordPaperDuplicates(dropped)
		}
	}
	return merged
}

// unionExactSignals unions papers sharing any exact identity signal.
func (d *Deduplicator) unionExactSignals(papers []domain.RawPaper, dsu *unionFind) {
	byDOI := map[string]int{}
	byResultID := map[string]int{}
	byURL := map[string]int{}
	byTitle := map[string]int{}

	unionOn := func(index map[string]int, key string, i int) {
		if key == "" {
			return
		}
		if j, ok := index[key]; ok {
			dsu.union(i, j)
			return
		}
		index[key] = i
	}

	for i, p := range papers {
		unionOn(byDOI, strings.ToLower(strings.TrimSpace(p.DOI)), i)
		unionOn(byResultID, p.ResultID, i)
		unionOn(byURL, p.FullTextURL, i)
		unionOn(byTitle, normalizeTitle(p.Title), i)
	}
}

// unionLLMCandidates asks the LLM to group near-duplicate titles among papers
// that no exact signal grouped. LLM failures leave the exact-signal grouping
// untouched.
func (d *Deduplicator) unionLLMCandidates(ctx context.Context, papers []domain.RawPaper, dsu *unionFind) {
	var singles []int
	for i := range papers {
		if dsu.componentSize(i) == 1 {
			singles = append(singles, i)
		}
	}
	if len(singles) < 2 {
		return
	}
	if len(singles) > d.config.MaxLLMCandidates {
		d.logger.Info().
			Int("candidates", len(singles)).
			Int("max_candidates", d.config.MaxLLMCandidates).
			Msg("skipping duplicate detection pass, too many candidates")
		return
	}

	var sb strings.Builder
	for pos, i := range singles {
		p := papers[i]
		fmt.Fprintf(&sb, "%d. %s", pos, p.Title)
		if len(p.Authors) > 0 {
			fmt.Fprintf(&sb, " (%s", p.Authors[0].Name)
			if p.Year > 0 {
				fmt.Fprintf(&sb, ", %d", p.Year)
			}
			sb.WriteString(")")
		} else if p.Year > 0 {
			fmt.Fprintf(&sb, " (%d)", p.Year)
		}
		sb.WriteString("\n")
	}

	raw, err := d.client.CompleteJSON(ctx, systemPrompt, sb.String(), dedupSchema)
	if err != nil {
		d.recordLLMPass("error")
		d.logger.Warn().Err(err).Msg("duplicate detection pass failed, keeping exact-signal groups")
		return
	}

	var decoded struct {
		Groups [][]int `json:"groups"`
	}
	if err := llm.DecodeJSON(raw, &decoded); err != nil {
		d.recordLLMPass("malformed")
		d.logger.Warn().Err(err).Msg("duplicate detection response malformed, keeping exact-signal groups")
		return
	}

	for _, group := range decoded.Groups {
		var prev = -1
		for _, pos := range group {
			if pos < 0 || pos >= len(singles) {
				continue
			}
			idx := singles[pos]
			if prev >= 0 {
				dsu.union(prev, idx)
			}
			prev = idx
		}
	}
	d.recordLLMPass("ok")
}

func (d *Deduplicator) recordLLMPass(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordDedupLLMPass(outcome)
	}
}

// mergeGroups collapses each union-find component into one paper, keeping the
// richest record and backfilling its gaps from the others.
func (d *Deduplicator) mergeGroups(papers []domain.RawPaper, dsu *unionFind) []domain.RawPaper {
	groups := map[int][]int{}
	var rootOrder []int
	for i := range papers {
		root := dsu.find(i)
		if _, seen := groups[root]; !seen {
			rootOrder = append(rootOrder, root)
		}
		groups[root] = append(groups[root], i)
	}

	merged := make([]domain.RawPaper, 0, len(rootOrder))
	for _, root := range rootOrder {
		members := groups[root]
		if len(members) == 1 {
			merged = append(merged, papers[members[0]])
			continue
		}

		best := members[0]
		for _, m := range members[1:] {
			if moreComplete(papers[m], papers[best]) {
				best = m
			}
		}

		winner := papers[best]
		for _, m := range members {
			if m == best {
				continue
			}
			backfill(&winner, papers[m])
		}
		merged = append(merged, winner)
	}
	return merged
}

// moreComplete reports whether a carries more metadata than b, breaking ties
// on citation count.
func moreComplete(a, b domain.RawPaper) bool {
	ra, rb := richness(a), richness(b)
	if ra != rb {
		return ra > rb
	}
	return a.CitationCount > b.CitationCount
}

// richness counts the populated optional fields of a paper.
func richness(p domain.RawPaper) int {
	n := 0
	for _, s := range []string{p.DOI, p.Snippet, p.Abstract, p.Venue, p.FullTextURL} {
		if s != "" {
			n++
		}
	}
	if p.Year > 0 {
		n++
	}
	return n
}

// backfill copies fields from loser into winner where the winner lacks them,
// and keeps the highest citation count seen across the group.
func backfill(winner *domain.RawPaper, loser domain.RawPaper) {
	if winner.DOI == "" {
		winner.DOI = loser.DOI
	}
	if winner.Snippet == "" {
		winner.Snippet = loser.Snippet
	}
	if winner.Abstract == "" {
		winner.Abstract = loser.Abstract
	}
	if winner.Year == 0 {
		winner.Year = loser.Year
	}
	if winner.Venue == "" {
		winner.Venue = loser.Venue
	}
	if winner.FullTextURL == "" {
		winner.FullTextURL = loser.FullTextURL
	}
	if winner.BibTeX == "" {
		winner.BibTeX = loser.BibTeX
	}
	if len(winner.Authors) == 0 {
		winner.Authors = loser.Authors
	}
	if loser.CitationCount > winner.CitationCount {
		winner.CitationCount = loser.CitationCount
	}
}

// normalizeTitle lowercases a title, strips punctuation, and collapses
// whitespace so formatting differences do not defeat exact matching.
func normalizeTitle(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) && !lastSpace:
			sb.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// unionFind is a standard disjoint-set with path compression and union by
// size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

func (uf *unionFind) componentSize(i int) int {
	return uf.size[uf.find(i)]
}
