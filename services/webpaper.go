package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// WebPaper is the metadata scraped from a paper landing page.
type WebPaper struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Year     string   `json:"year,omitempty"`
}

// WebPaperClient scrapes publisher landing pages for citation metadata,
// preferring the Highwire citation_* meta tags most repositories emit and
// falling back to OpenGraph and document structure.
type WebPaperClient struct {
	client *http.Client
}

// NewWebPaperClient returns a scraper. httpClient may be nil.
func NewWebPaperClient(httpClient *http.Client) *WebPaperClient {
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	return &WebPaperClient{client: httpClient}
}

// Fetch downloads and parses one landing page.
func (c *WebPaperClient) Fetch(ctx context.Context, pageURL string) (*WebPaper, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, kg.NewValidation("url", "page url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, kg.NewValidation("url", "invalid page url: "+err.Error())
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, kg.NewTransient("page fetch failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError("webpaper", resp)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, kg.NewValidation("response", "page is not parseable HTML: "+err.Error())
	}
	return parsePaperPage(pageURL, doc), nil
}

func parsePaperPage(pageURL string, doc *goquery.Document) *WebPaper {
	paper := &WebPaper{URL: pageURL}

	meta := func(name string) string {
		content, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
		return strings.TrimSpace(content)
	}
	property := func(name string) string {
		content, _ := doc.Find(`meta[property="` + name + `"]`).First().Attr("content")
		return strings.TrimSpace(content)
	}

	paper.Title = meta("citation_title")
	if paper.Title == "" {
		paper.Title = property("og:title")
	}
	if paper.Title == "" {
		paper.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	paper.Abstract = meta("citation_abstract")
	if paper.Abstract == "" {
		paper.Abstract = property("og:description")
	}
	if paper.Abstract == "" {
		paper.Abstract = strings.TrimSpace(doc.Find("blockquote.abstract, div.abstract").First().Text())
	}
	paper.Abstract = collapseWhitespace(paper.Abstract)

	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, s *goquery.Selection) {
		if author, ok := s.Attr("content"); ok {
			if author = strings.TrimSpace(author); author != "" {
				paper.Authors = append(paper.Authors, author)
			}
		}
	})

	if date := meta("citation_publication_date"); len(date) >= 4 {
		paper.Year = date[:4]
	}
	return paper
}
