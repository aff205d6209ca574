// Package relevance scores deduplicated papers against the research intent
// using an LLM, batching papers to bound prompt size and fanning batches out
// concurrently.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/llm"
	"github.com/helixir/paper-search-service/internal/observability"
)

const (
	defaultBatchSize   = 10
	defaultConcurrency = 5

	// Prompt caps keep batch prompts bounded regardless of source output.
	maxTitleLen   = 200
	maxSnippetLen = 500
)

// fallbackReason marks papers whose scoring batch failed.
const fallbackReason = "Scoring unavailable"

const systemPrompt = `You assess the relevance of academic papers to a research intent. For each paper, assign a relevance score between 0.0 and 1.0, a one-sentence reason, and contribution tags.

Respond with a JSON object:
{
  "results": [
    {
      "paper_id": "the paper's id, copied exactly",
      "relevance_score": 0.85,
      "relevance_reason": "one sentence",
      "tags": ["method", "empirical"]
    }
  ]
}

Rules:
- Score every paper in the input, using its exact paper_id.
- Allowed tags: method, review, empirical, theoretical, dataset.
- 0.9+ means directly on topic; below 0.3 means tangential at best.`

var scoreSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "paper_id": {"type": "string"},
          "relevance_score": {"type": "number"},
          "relevance_reason": {"type": "string"},
          "tags": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["paper_id", "relevance_score"]
      }
    }
  },
  "required": ["results"]
}`)

// Config controls batching and fan-out.
type Config struct {
	// BatchSize is the number of papers per LLM request.
	BatchSize int

	// Concurrency bounds in-flight batch requests.
	Concurrency int
}

// Scorer assigns relevance scores to papers. Scoring never fails a search
// run: papers in a failed batch get a zero score with a sentinel reason and
// flow on to organizing, where the relevance floor filters them out.
type Scorer struct {
	client  llm.Client
	config  Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates a scorer. metrics may be nil.
func New(client llm.Client, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Scorer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Scorer{
		client:  client,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// scoreResult is one per-paper entry in a batch response.
type scoreResult struct {
	PaperID         string   `json:"paper_id"`
	RelevanceScore  float64  `json:"relevance_score"`
	RelevanceReason string   `json:"relevance_reason"`
	Tags            []string `json:"tags"`
}

// Score scores all papers against the intent, preserving input order.
func (s *Scorer) Score(ctx context.Context, intent domain.ParsedIntent, papers []domain.RawPaper) []domain.ScoredPaper {
	if len(papers) == 0 {
		return nil
	}

	scored := make([]domain.ScoredPaper, len(papers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for start := 0; start < len(papers); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(papers))
		batch := papers[start:end]
		out := scored[start:end]

		g.Go(func() error {
			s.scoreBatch(gctx, intent, batch, out)
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()

	return scored
}

// scoreBatch scores one batch in place, falling back to zero scores on any
// failure.
func (s *Scorer) scoreBatch(ctx context.Context, intent domain.ParsedIntent, batch []domain.RawPaper, out []domain.ScoredPaper) {
	results, err := s.requestScores(ctx, intent, batch)
	if err != nil {
		s.recordBatch("error")
		s.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("scoring batch failed, applying fallback scores")
		for i, p := range batch {
			out[i] = fallbackScore(p)
		}
		return
	}

	byID := make(map[string]scoreResult, len(results))
	for _, r := range results {
		// First entry wins if the model repeats a paper_id.
		if _, seen := byID[r.PaperID]; !seen {
			byID[r.PaperID] = r
		}
	}

	for i, p := range batch {
		r, ok := byID[p.ID]
		if !ok {
			out[i] = fallbackScore(p)
			continue
		}
		out[i] = domain.ScoredPaper{
			Paper:           p,
			RelevanceScore:  clamp(r.RelevanceScore),
			RelevanceReason: r.RelevanceReason,
			Tags:            parseTags(r.Tags),
		}
	}
	s.recordBatch("ok")
}

// requestScores sends one batch to the LLM and decodes the response.
func (s *Scorer) requestScores(ctx context.Context, intent domain.ParsedIntent, batch []domain.RawPaper) ([]scoreResult, error) {
	raw, err := s.client.CompleteJSON(ctx, systemPrompt, batchPrompt(intent, batch), scoreSchema)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Results []scoreResult `json:"results"`
	}
	if err := llm.DecodeJSON(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded.Results, nil
}

// batchPrompt renders the intent and batch papers into the prompt body.
func batchPrompt(intent domain.ParsedIntent, batch []domain.RawPaper) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Research topic: %s\n", intent.Topic)
	fmt.Fprintf(&sb, "Core concepts: %s\n", strings.Join(intent.Concepts, ", "))
	fmt.Fprintf(&sb, "Intent type: %s\n\nPapers:\n", intent.IntentType)

	for _, p := range batch {
		fmt.Fprintf(&sb, "- paper_id: %s\n  title: %s\n", p.ID, truncate(p.Title, maxTitleLen))
		if p.Year > 0 {
			fmt.Fprintf(&sb, "  year: %d\n", p.Year)
		}
		if p.Venue != "" {
			fmt.Fprintf(&sb, "  venue: %s\n", p.Venue)
		}
		if excerpt := firstNonEmpty(p.Abstract, p.Snippet); excerpt != "" {
			fmt.Fprintf(&sb, "  excerpt: %s\n", truncate(excerpt, maxSnippetLen))
		}
	}
	return sb.String()
}

func (s *Scorer) recordBatch(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordScoringBatch(outcome)
	}
}

// fallbackScore marks a paper whose batch could not be scored.
func fallbackScore(p domain.RawPaper) domain.ScoredPaper {
	return domain.ScoredPaper{
		Paper:           p,
		RelevanceScore:  0.0,
		RelevanceReason: fallbackReason,
	}
}

// parseTags keeps only tags in the fixed vocabulary.
func parseTags(raw []string) []domain.PaperTag {
	var tags []domain.PaperTag
	for _, t := range raw {
		if tag, ok := domain.ParsePaperTag(t); ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
