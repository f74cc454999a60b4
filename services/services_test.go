package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

const sampleAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762</id>
    <title>Attention Is All
 You Need</title>
    <summary>We propose the Transformer,
 a new architecture.</summary>
    <published>2017-06-12T17:57:34Z</published>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <category term="cs.CL"/>
    <link href="http://arxiv.org/pdf/1706.03762" title="pdf" type="application/pdf"/>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		w.Write([]byte(sampleAtom))
	}))
	defer server.Close()

	client := NewArxivClient(server.URL, server.Client())
	papers, err := client.Search(context.Background(), "transformer", 5)
	require.NoError(t, err)
	require.Len(t, papers, 1)

	assert.Equal(t, "all:transformer", gotQuery)
	paper := papers[0]
	assert.Equal(t, "Attention Is All You Need", paper.Title)
	assert.Contains(t, paper.Abstract, "Transformer, a new architecture")
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, paper.Authors)
	assert.Equal(t, []string{"cs.CL"}, paper.Categories)
	assert.Equal(t, "http://arxiv.org/pdf/1706.03762", paper.PDFURL)
	assert.Equal(t, 2017, paper.Published.Year())
}

func TestArxivSearchErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewArxivClient(server.URL, server.Client())
	_, err := client.Search(context.Background(), "anything", 5)
	assert.Equal(t, kg.KindTransientIO, kg.KindOf(err))

	_, err = client.Search(context.Background(), "  ", 5)
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestUnpaywallAllowDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.URL.Query().Get("email"))
		w.Write([]byte(`{"doi": "10.1/abc", "is_oa": true, "best_oa_location": {"url_for_pdf": "https://repo.example/abc.pdf"}}`))
	}))
	defer server.Close()

	client := NewUnpaywallClient(server.URL, "research@example.org", server.Client())
	allowed, pdfURL, err := client.AllowDownload(context.Background(), "10.1/abc")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, "https://repo.example/abc.pdf", pdfURL)
}

func TestUnpaywallClosedAccessBlocksDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"doi": "10.1/closed", "is_oa": false}`))
	}))
	defer server.Close()

	client := NewUnpaywallClient(server.URL, "research@example.org", server.Client())
	allowed, pdfURL, err := client.AllowDownload(context.Background(), "10.1/closed")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Empty(t, pdfURL)
}

func TestUnpaywallUnknownDOI(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := NewUnpaywallClient(server.URL, "research@example.org", server.Client())
	_, err := client.Check(context.Background(), "10.1/missing")
	assert.Equal(t, kg.KindNotFound, kg.KindOf(err))
}

func TestUnpaywallRequiresEmail(t *testing.T) {
	client := NewUnpaywallClient("http://unused", "", nil)
	_, err := client.Check(context.Background(), "10.1/abc")
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestWebPaperFetchCitationMeta(t *testing.T) {
	page := `<html><head>
		<meta name="citation_title" content="Scaling Laws for Neural Language Models">
		<meta name="citation_author" content="Jared Kaplan">
		<meta name="citation_author" content="Sam McCandlish">
		<meta name="citation_abstract" content="We study scaling laws.">
		<meta name="citation_publication_date" content="2020/01/23">
		<title>fallback title</title>
	</head><body></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	client := NewWebPaperClient(server.Client())
	paper, err := client.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Scaling Laws for Neural Language Models", paper.Title)
	assert.Equal(t, "We study scaling laws.", paper.Abstract)
	assert.Equal(t, []string{"Jared Kaplan", "Sam McCandlish"}, paper.Authors)
	assert.Equal(t, "2020", paper.Year)
}

func TestWebPaperFetchFallbacks(t *testing.T) {
	page := `<html><head>
		<meta property="og:title" content="A Paper Page">
		<meta property="og:description" content="Short description.">
	</head><body></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	client := NewWebPaperClient(server.Client())
	paper, err := client.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "A Paper Page", paper.Title)
	assert.Equal(t, "Short description.", paper.Abstract)
	assert.Empty(t, paper.Authors)
}

func TestHTTPErrorKinds(t *testing.T) {
	cases := []struct {
		status int
		kind   kg.ErrorKind
	}{
		{http.StatusTooManyRequests, kg.KindRateLimited},
		{http.StatusNotFound, kg.KindNotFound},
		{http.StatusInternalServerError, kg.KindTransientIO},
		{http.StatusBadRequest, kg.KindValidation},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := NewArxivClient(server.URL, server.Client())
		_, err := client.Search(context.Background(), "x", 1)
		assert.Equal(t, tc.kind, kg.KindOf(err), "status %d", tc.status)
		server.Close()
	}
}
