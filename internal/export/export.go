// Package export renders a finished paper collection as JSON, BibTeX, or
// Markdown.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Format identifies an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatBibTeX   Format = "bibtex"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatBibTeX:
		return FormatBibTeX, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", domain.ErrInvalidInput, s)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatBibTeX:
		return "application/x-bibtex"
	default:
		return "text/markdown"
	}
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatBibTeX:
		return "bib"
	default:
		return "md"
	}
}

// Export renders the collection in the requested format.
func Export(collection domain.PaperCollection, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return exportJSON(collection)
	case FormatBibTeX:
		return exportBibTeX(collection), nil
	case FormatMarkdown:
		return exportMarkdown(collection), nil
	}
	return nil, fmt.Errorf("%w: unknown export format %q", domain.ErrInvalidInput, format)
}

func exportJSON(collection domain.PaperCollection) ([]byte, error) {
	out, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal collection: %w", err)
	}
	return out, nil
}

// exportBibTeX synthesizes one @article entry per paper. Source-provided
// BibTeX is ignored so entry count and key uniqueness hold regardless of
// what a source emitted.
func exportBibTeX(collection domain.PaperCollection) []byte {
	var sb strings.Builder
	keys := map[string]bool{}

	for _, p := range collection.Papers {
		writeBibTeXEntry(&sb, p, uniqueKey(keys, citationKey(p)))
	}
	return []byte(sb.String())
}

func writeBibTeXEntry(sb *strings.Builder, p domain.Paper, key string) {
	fmt.Fprintf(sb, "@article{%s,\n", key)
	fmt.Fprintf(sb, "  title = {{%s}},\n", escapeBibTeX(p.Title))

	if len(p.Authors) > 0 {
		names := make([]string, len(p.Authors))
		for i, a := range p.Authors {
			names[i] = escapeBibTeX(a.Name)
		}
		fmt.Fprintf(sb, "  author = {%s},\n", strings.Join(names, " and "))
	}
	if p.Year > 0 {
		fmt.Fprintf(sb, "  year = {%d},\n", p.Year)
	}
	if p.Venue != "" {
		fmt.Fprintf(sb, "  journal = {%s},\n", escapeBibTeX(p.Venue))
	}
	if p.DOI != "" {
		fmt.Fprintf(sb, "  doi = {%s},\n", p.DOI)
	}
	if p.FullTextURL != "" {
		fmt.Fprintf(sb, "  url = {%s},\n", p.FullTextURL)
	}
	sb.WriteString("}\n\n")
}

// citationKey builds "surname_year_firstword" from paper metadata.
func citationKey(p domain.Paper) string {
	surname := "unknown"
	if len(p.Authors) > 0 {
		fields := strings.Fields(p.Authors[0].Name)
		if len(fields) > 0 {
			surname = fields[len(fields)-1]
		}
	}

	firstWord := "untitled"
	if fields := strings.Fields(p.Title); len(fields) > 0 {
		firstWord = fields[0]
	}

	key := fmt.Sprintf("%s_%d_%s", surname, p.Year, firstWord)
	return sanitizeKey(key)
}

// sanitizeKey lowercases a key and strips everything outside [a-z0-9_].
func sanitizeKey(key string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(key) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r == '_' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// uniqueKey suffixes colliding keys with _a, _b, and so on.
func uniqueKey(seen map[string]bool, key string) string {
	if !seen[key] {
		seen[key] = true
		return key
	}
	for suffix := 'a'; suffix <= 'z'; suffix++ {
		candidate := fmt.Sprintf("%s_%c", key, suffix)
		if !seen[candidate] {
			seen[candidate] = true
			return candidate
		}
	}
	// 26 collisions on one key; fall back to counting.
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", key, i)
		if !seen[candidate] {
			seen[candidate] = true
			return candidate
		}
	}
}

var bibtexEscaper = strings.NewReplacer(
	"&", `\&`,
	"%", `\%`,
	"_", `\_`,
	"#", `\#`,
)

func escapeBibTeX(s string) string {
	return bibtexEscaper.Replace(s)
}

// exportMarkdown renders the collection as a ranked table with a summary
// header.
func exportMarkdown(collection domain.PaperCollection) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Search results: %s\n\n", collection.Metadata.Query)
	fmt.Fprintf(&sb, "%d papers (from %d scored), assembled %s.\n\n",
		len(collection.Papers),
		collection.Metadata.TotalFound,
		collection.Metadata.Timestamp.Format("2006-01-02"))

	sb.WriteString("| # | Title | Authors | Year | Venue | Score |\n")
	sb.WriteString("|---|-------|---------|------|-------|-------|\n")

	for i, p := range collection.Papers {
		title := escapeMarkdown(p.Title)
		if p.FullTextURL != "" {
			title = fmt.Sprintf("[%s](%s)", title, p.FullTextURL)
		}
		year := ""
		if p.Year > 0 {
			year = fmt.Sprintf("%d", p.Year)
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s | %.2f |\n",
			i+1,
			title,
			escapeMarkdown(authorLine(p.Authors)),
			year,
			escapeMarkdown(p.Venue),
			p.RelevanceScore)
	}

	if len(collection.Facets.KeyThemes) > 0 {
		fmt.Fprintf(&sb, "\nKey themes: %s\n", strings.Join(collection.Facets.KeyThemes, ", "))
	}
	return []byte(sb.String())
}

// authorLine condenses long author lists to "First et al."
func authorLine(authors []domain.Author) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	if len(names) > 3 {
		return names[0] + " et al."
	}
	return strings.Join(names, ", ")
}

var markdownEscaper = strings.NewReplacer("|", `\|`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
