package scraper

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"jobharvest/httputil"
	"jobharvest/identity"
)

// Request is an adapter-built description of one page fetch.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Page is the raw payload a fetch produced.
type Page struct {
	URL    string
	Status int
	Body   []byte
}

// Fetcher retrieves pages for one source within one run. Implementations
// hold the session state (HTTP client or browser context) and are
// released when the source finishes, success or failure.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Page, error)
	Close()
}

// challengeMarkers are body signatures that indicate an anti-bot wall
// rather than real content.
var challengeMarkers = []string{
	"Request unsuccessful. Incapsula",
	"Incapsula incident ID",
	"cf-challenge",
	"Attention Required! | Cloudflare",
	"g-recaptcha",
	"Access Denied",
	"This request was blocked",
	"Please verify you are a human",
}

func detectChallenge(status int, body []byte) bool {
	if status == http.StatusTooManyRequests || status == http.StatusForbidden {
		return true
	}
	// Redirects are never followed; a 3xx on a listing URL is a bounce
	// to a challenge or login wall.
	if status >= 300 && status < 400 {
		return true
	}
	head := body
	if len(head) > 64*1024 {
		head = head[:64*1024]
	}
	content := string(head)
	for _, marker := range challengeMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// HTTPFetcher fetches pages over plain HTTP with the run's assigned
// identity applied to every request.
type HTTPFetcher struct {
	client *http.Client
	id     identity.Identity
}

func NewHTTPFetcher(id identity.Identity, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: httputil.NewScrapingClient(id.ProxyURL, timeout),
		id:     id,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Page, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	httpReq.Header.Set("User-Agent", f.id.UserAgent)
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	if detectChallenge(resp.StatusCode, data) {
		return nil, ErrChallenge
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: req.URL, Status: resp.StatusCode}
	}

	return &Page{URL: req.URL, Status: resp.StatusCode, Body: data}, nil
}

func (f *HTTPFetcher) Close() {}
