// Package httpclient builds the HTTP clients shared by every outbound adapter.
package httpclient

import (
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds every outbound request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// New returns a client with the given timeout and an optional proxy.
// An unparsable proxy URL is ignored.
func New(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
