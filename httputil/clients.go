package httputil

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"
)

// NewScrapingClient builds the client used against target sites. It never
// follows redirects (an unexpected redirect is a challenge signal the
// caller inspects) and disables HTTP/2 so the TLS fingerprint stays
// boring. proxyURL may be empty.
func NewScrapingClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}

	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
