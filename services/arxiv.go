package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/log"
)

// DefaultArxivBaseURL is the public arXiv Atom API endpoint.
const DefaultArxivBaseURL = "https://export.arxiv.org/api/query"

// ArxivPaper is one search hit.
type ArxivPaper struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Abstract   string    `json:"abstract"`
	Authors    []string  `json:"authors"`
	Categories []string  `json:"categories"`
	Published  time.Time `json:"published"`
	PDFURL     string    `json:"pdf_url,omitempty"`
}

// ArxivClient searches the arXiv Atom API.
type ArxivClient struct {
	BaseURL string
	client  *http.Client
}

// NewArxivClient returns a client against the public API. httpClient may be
// nil.
func NewArxivClient(baseURL string, httpClient *http.Client) *ArxivClient {
	if baseURL == "" {
		baseURL = DefaultArxivBaseURL
	}
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	return &ArxivClient{BaseURL: baseURL, client: httpClient}
}

// atom wire format, the subset we read.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Links      []atomLink     `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// Search queries arXiv and returns up to maxResults papers in the API's
// relevance order.
func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int) ([]*ArxivPaper, error) {
	if strings.TrimSpace(query) == "" {
		return nil, kg.NewValidation("query", "search query is required")
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, kg.Wrap(err, "build arxiv request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, kg.NewTransient("arxiv request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError("arxiv", resp)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, kg.NewValidation("response", "arxiv returned invalid atom: "+err.Error())
	}

	papers := make([]*ArxivPaper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		papers = append(papers, entryToPaper(entry))
	}
	log.Debug("arxiv: query %q returned %d papers", query, len(papers))
	return papers, nil
}

func entryToPaper(entry atomEntry) *ArxivPaper {
	paper := &ArxivPaper{
		ID:       strings.TrimSpace(entry.ID),
		Title:    collapseWhitespace(entry.Title),
		Abstract: collapseWhitespace(entry.Summary),
	}
	for _, a := range entry.Authors {
		paper.Authors = append(paper.Authors, strings.TrimSpace(a.Name))
	}
	for _, c := range entry.Categories {
		paper.Categories = append(paper.Categories, c.Term)
	}
	for _, l := range entry.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			paper.PDFURL = l.Href
		}
	}
	if at, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		paper.Published = at
	}
	return paper
}

// collapseWhitespace folds the newline-wrapped text arXiv emits into single
// spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
