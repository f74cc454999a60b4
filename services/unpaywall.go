package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// DefaultUnpaywallBaseURL is the public Unpaywall API endpoint.
const DefaultUnpaywallBaseURL = "https://api.unpaywall.org/v2"

// OpenAccess is the verdict for one DOI. PDF downloads are gated on IsOA.
type OpenAccess struct {
	DOI    string `json:"doi"`
	IsOA   bool   `json:"is_oa"`
	PDFURL string `json:"pdf_url,omitempty"`
}

// UnpaywallClient checks the open-access status of DOIs. The API requires a
// contact email on every request.
type UnpaywallClient struct {
	BaseURL string
	Email   string
	client  *http.Client
}

// NewUnpaywallClient returns a client. httpClient may be nil.
func NewUnpaywallClient(baseURL, email string, httpClient *http.Client) *UnpaywallClient {
	if baseURL == "" {
		baseURL = DefaultUnpaywallBaseURL
	}
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	return &UnpaywallClient{BaseURL: baseURL, Email: email, client: httpClient}
}

type unpaywallResponse struct {
	DOI            string `json:"doi"`
	IsOA           bool   `json:"is_oa"`
	BestOALocation *struct {
		URLForPDF string `json:"url_for_pdf"`
	} `json:"best_oa_location"`
}

// Check resolves the open-access status of one DOI. Unknown DOIs surface as
// NotFound.
func (c *UnpaywallClient) Check(ctx context.Context, doi string) (*OpenAccess, error) {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return nil, kg.NewValidation("doi", "doi is required")
	}
	if c.Email == "" {
		return nil, kg.NewValidation("email", "unpaywall requires a contact email")
	}

	endpoint := c.BaseURL + "/" + url.PathEscape(doi) + "?email=" + url.QueryEscape(c.Email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, kg.Wrap(err, "build unpaywall request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, kg.NewTransient("unpaywall request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError("unpaywall", resp)
	}

	var body unpaywallResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, kg.NewValidation("response", "unpaywall returned invalid JSON: "+err.Error())
	}

	oa := &OpenAccess{DOI: body.DOI, IsOA: body.IsOA}
	if body.BestOALocation != nil {
		oa.PDFURL = body.BestOALocation.URLForPDF
	}
	return oa, nil
}

// AllowDownload reports whether a PDF download for the DOI is permitted,
// returning the open-access PDF URL when it is.
func (c *UnpaywallClient) AllowDownload(ctx context.Context, doi string) (bool, string, error) {
	oa, err := c.Check(ctx, doi)
	if err != nil {
		return false, "", err
	}
	if !oa.IsOA || oa.PDFURL == "" {
		return false, "", nil
	}
	return true, oa.PDFURL, nil
}
