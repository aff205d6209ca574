package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaperTag classifies a paper's contribution. The vocabulary is fixed;
// tags outside it are dropped during scoring rather than treated as errors.
type PaperTag string

const (
	TagMethod      PaperTag = "method"
	TagReview      PaperTag = "review"
	TagEmpirical   PaperTag = "empirical"
	TagTheoretical PaperTag = "theoretical"
	TagDataset     PaperTag = "dataset"
)

// ParsePaperTag returns the PaperTag for s and whether s is part of the
// fixed vocabulary.
func ParsePaperTag(s string) (PaperTag, bool) {
	switch PaperTag(s) {
	case TagMethod, TagReview, TagEmpirical, TagTheoretical, TagDataset:
		return PaperTag(s), true
	}
	return "", false
}

// Author represents a paper author.
type Author struct {
	Name     string `json:"name"`
	AuthorID string `json:"author_id,omitempty"`
}

// RawPaper is a source-agnostic paper record as returned by a search source.
// It may be a duplicate of another record; the deduplicator merges duplicates
// in place. Zero values (empty string, 0 year) mean "unknown".
type RawPaper struct {
	// ID is a generated identifier, unique within one search run.
	ID string `json:"id"`

	// DOI is the paper's DOI if the source provided one.
	DOI string `json:"doi,omitempty"`

	// Title is the paper title (required).
	Title string `json:"title"`

	// Authors is the ordered author list.
	Authors []Author `json:"authors,omitempty"`

	// Abstract is the full abstract if available.
	Abstract string `json:"abstract,omitempty"`

	// Snippet is a short result excerpt; transient, dropped from final papers.
	Snippet string `json:"snippet,omitempty"`

	// Year is the publication year, 0 if unknown.
	Year int `json:"year,omitempty"`

	// Venue is the journal or conference name.
	Venue string `json:"venue,omitempty"`

	// Source labels which search source produced this record.
	Source string `json:"source"`

	// CitationCount is the citation count reported by the source (>= 0).
	CitationCount int `json:"citation_count"`

	// FullTextURL links to the full text if available.
	FullTextURL string `json:"full_text_url,omitempty"`

	// ResultID is the source-native result identifier, used as a
	// deduplication signal when present.
	ResultID string `json:"result_id,omitempty"`

	// BibTeX is a source-provided BibTeX entry if available.
	BibTeX string `json:"bibtex,omitempty"`

	// Raw holds the opaque source-specific payload.
	Raw map[string]any `json:"raw,omitempty"`
}

// NewRawPaper creates a RawPaper with a generated unique ID.
func NewRawPaper(title, source string) RawPaper {
	return RawPaper{
		ID:     uuid.NewString(),
		Title:  title,
		Source: source,
	}
}

// ScoredPaper is a RawPaper annotated with relevance scoring output.
// It is immutable once created by the scorer.
type ScoredPaper struct {
	Paper           RawPaper   `json:"paper"`
	RelevanceScore  float64    `json:"relevance_score"`
	RelevanceReason string     `json:"relevance_reason"`
	Tags            []PaperTag `json:"tags,omitempty"`
}

// Paper is the externally visible, finalized paper record: the raw record
// plus scoring fields, minus transient fields (snippet, raw payload).
type Paper struct {
	ID              string     `json:"id"`
	DOI             string     `json:"doi,omitempty"`
	Title           string     `json:"title"`
	Authors         []Author   `json:"authors"`
	Abstract        string     `json:"abstract,omitempty"`
	Year            int        `json:"year,omitempty"`
	Venue           string     `json:"venue,omitempty"`
	Source          string     `json:"source"`
	CitationCount   int        `json:"citation_count"`
	RelevanceScore  float64    `json:"relevance_score"`
	RelevanceReason string     `json:"relevance_reason,omitempty"`
	Tags            []PaperTag `json:"tags,omitempty"`
	FullTextURL     string     `json:"full_text_url,omitempty"`
	BibTeX          string     `json:"bibtex,omitempty"`
}

// Facets summarizes a paper collection along common aggregation axes.
type Facets struct {
	ByYear     map[int]int    `json:"by_year"`
	ByVenue    map[string]int `json:"by_venue"`
	TopAuthors []string       `json:"top_authors"`
	KeyThemes  []string       `json:"key_themes"`
}

// SearchMetadata describes how a collection was produced.
type SearchMetadata struct {
	// Query is the original natural-language user query.
	Query string `json:"query"`

	// Strategy is the search strategy that produced the collection.
	Strategy SearchStrategy `json:"search_strategy"`

	// TotalFound is the number of scored papers before relevance filtering.
	TotalFound int `json:"total_found"`

	// Timestamp records when the collection was assembled.
	Timestamp time.Time `json:"timestamp"`
}

// PaperCollection is the final curated output of one workflow iteration.
// It is immutable once constructed; a new collection supersedes the old one
// on the next iteration.
type PaperCollection struct {
	Metadata SearchMetadata `json:"metadata"`
	Papers   []Paper        `json:"papers"`
	Facets   Facets         `json:"facets"`
}
