// Package scholar implements the Google Scholar paper source via the SerpAPI
// search endpoint.
package scholar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

// SourceName identifies this source in strategies, logs, and metrics.
const SourceName = "google_scholar"

// pageSize is the number of organic results requested per API call.
const pageSize = 20

// defaultMaxResults caps a search when the caller does not.
const defaultMaxResults = 100

// Config configures the Google Scholar client.
type Config struct {
	// Enabled controls whether this source is used.
	Enabled bool

	// APIKey is the SerpAPI key. The source reports itself disabled
	// without one.
	APIKey string

	// BaseURL is the SerpAPI base URL (default: https://serpapi.com).
	BaseURL string

	// MaxResults is the maximum results per query (default: 100).
	MaxResults int
}

// Client searches Google Scholar through SerpAPI.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// New creates a Google Scholar client.
func New(cfg Config, httpClient *papersources.HTTPClient) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://serpapi.com"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the source identifier.
func (c *Client) Name() string {
	return SourceName
}

// IsEnabled reports whether the source is configured for use.
// An API key is required; without one the source is disabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.config.APIKey != ""
}

// searchResponse mirrors the SerpAPI google_scholar response envelope.
type searchResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
}

type organicResult struct {
	Title           string          `json:"title"`
	ResultID        string          `json:"result_id"`
	Link            string          `json:"link"`
	Snippet         string          `json:"snippet"`
	PublicationInfo publicationInfo `json:"publication_info"`
	InlineLinks     inlineLinks     `json:"inline_links"`
	Resources       []resource      `json:"resources"`
}

type publicationInfo struct {
	Summary string          `json:"summary"`
	Authors []summaryAuthor `json:"authors"`
}

type summaryAuthor struct {
	Name     string `json:"name"`
	AuthorID string `json:"author_id"`
}

type inlineLinks struct {
	CitedBy citedBy `json:"cited_by"`
}

type citedBy struct {
	Total int `json:"total"`
}

type resource struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Search queries Google Scholar, paginating until MaxResults papers are
// collected or the API stops returning results.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) ([]domain.RawPaper, error) {
	maxResults := params.MaxResults
	if maxResults <= 0 || maxResults > c.config.MaxResults {
		maxResults = c.config.MaxResults
	}

	var papers []domain.RawPaper
	for offset := 0; len(papers) < maxResults; offset += pageSize {
		page, err := c.searchPage(ctx, params, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		papers = append(papers, page...)
	}

	if len(papers) > maxResults {
		papers = papers[:maxResults]
	}
	return papers, nil
}

// searchPage fetches one page of results starting at the given offset.
func (c *Client) searchPage(ctx context.Context, params papersources.SearchParams, offset int) ([]domain.RawPaper, error) {
	q := url.Values{}
	q.Set("engine", "google_scholar")
	q.Set("q", params.Query.BooleanQuery)
	q.Set("api_key", c.config.APIKey)
	q.Set("num", strconv.Itoa(pageSize))
	if offset > 0 {
		q.Set("start", strconv.Itoa(offset))
	}
	if params.Filters.YearFrom > 0 {
		q.Set("as_ylo", strconv.Itoa(params.Filters.YearFrom))
	}
	if params.Filters.YearTo > 0 {
		q.Set("as_yhi", strconv.Itoa(params.Filters.YearTo))
	}

	reqURL := fmt.Sprintf("%s/search.json?%s", c.config.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("scholar: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scholar: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scholar: search returned status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("scholar: decode response: %w", err)
	}

	papers := make([]domain.RawPaper, 0, len(body.OrganicResults))
	for _, result := range body.OrganicResults {
		if result.Title == "" {
			continue
		}
		papers = append(papers, c.parseResult(result))
	}
	return papers, nil
}

// parseResult converts one organic result into a RawPaper.
func (c *Client) parseResult(result organicResult) domain.RawPaper {
	paper := domain.NewRawPaper(result.Title, SourceName)
	paper.ResultID = result.ResultID
	paper.Snippet = result.Snippet
	paper.CitationCount = result.InlineLinks.CitedBy.Total

	authors, year, venue := parseSummary(result.PublicationInfo.Summary)
	paper.Year = year
	paper.Venue = venue

	// Structured author entries beat the summary parse when present.
	if len(result.PublicationInfo.Authors) > 0 {
		for _, a := range result.PublicationInfo.Authors {
			paper.Authors = append(paper.Authors, domain.Author{Name: a.Name, AuthorID: a.AuthorID})
		}
	} else {
		paper.Authors = authors
	}

	if doi := extractDOI(result.Link); doi != "" {
		paper.DOI = doi
	} else if doi := extractDOI(result.Snippet); doi != "" {
		paper.DOI = doi
	}

	for _, res := range result.Resources {
		if res.Link != "" {
			paper.FullTextURL = res.Link
			break
		}
	}
	if paper.FullTextURL == "" {
		paper.FullTextURL = result.Link
	}

	return paper
}

var (
	yearRe = regexp.MustCompile(`^(19|20)\d{2}$`)
	doiRe  = regexp.MustCompile(`10\.\d{4,9}/[^\s,;)}\]>]+`)
)

// parseSummary splits a publication_info summary of the form
// "A Author, B Author - Venue, 2021 - journals.example.org" into its parts.
// Any segment that looks like a hostname is dropped rather than treated as a
// venue.
func parseSummary(summary string) (authors []domain.Author, year int, venue string) {
	if summary == "" {
		return nil, 0, ""
	}

	segments := strings.Split(summary, " - ")
	for _, name := range strings.Split(segments[0], ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}

	for _, segment := range segments[1:] {
		if isHostname(segment) {
			continue
		}
		var venueParts []string
		for _, token := range strings.Split(segment, ",") {
			token = strings.TrimSpace(token)
			if yearRe.MatchString(token) {
				year, _ = strconv.Atoi(token)
				continue
			}
			if token != "" {
				venueParts = append(venueParts, token)
			}
		}
		if venue == "" && len(venueParts) > 0 {
			venue = strings.Join(venueParts, ", ")
		}
	}

	return authors, year, venue
}

// isHostname reports whether a summary segment is a bare domain like
// "link.springer.com" rather than a venue name.
func isHostname(segment string) bool {
	segment = strings.TrimSpace(segment)
	if segment == "" || strings.ContainsAny(segment, " ,") {
		return false
	}
	return strings.Contains(segment, ".")
}

// extractDOI pulls the first DOI found in s, if any.
func extractDOI(s string) string {
	return doiRe.FindString(s)
}
