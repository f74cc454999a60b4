// Package services holds the external research-data clients: arXiv search,
// Unpaywall open-access checks, PDF text extraction, paper-page scraping,
// and translation with a persistent cache. Each service hides its wire
// format behind a small interface so pipelines can swap in fakes.
package services

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// defaultHTTPTimeout bounds every service call that does not carry its own
// deadline.
const defaultHTTPTimeout = 30 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// httpError maps a non-2xx response to the matching error kind.
func httpError(service string, resp *http.Response) error {
	msg := fmt.Sprintf("%s returned status %d", service, resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return kg.NewRateLimited(msg, retryAfter(resp))
	case resp.StatusCode == http.StatusNotFound:
		return kg.NewNotFound(service, resp.Request.URL.Path)
	case resp.StatusCode >= 500:
		return kg.NewTransient(msg, nil)
	default:
		return kg.NewValidation("request", msg)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
