// Package httpclient provides the hardened HTTP client used for backend
// calls and reachability probes.
package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mdnaeem95/stupify-extension/errors"
)

// Client wraps http.Client with URL validation: scheme allow-list, redirect
// cap, and optional localhost/private-host blocking. The extension backend is
// always a public https endpoint, so anything resolving locally is a
// misconfiguration rather than a legitimate target.
type Client struct {
	*http.Client
	allowedSchemes []string
	blockLocal     bool
	maxRedirects   int
}

// New creates a hardened HTTP client with the given per-request timeout.
func New(timeout time.Duration) *Client {
	c := &Client{
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		allowedSchemes: []string{"http", "https"},
		blockLocal:     true,
		maxRedirects:   10,
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	return c
}

// validateURL validates a URL before making a request.
func (c *Client) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range c.allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}

	if c.blockLocal {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && (ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()) {
			return errors.Newf("private address blocked: %s", hostname)
		}
	}

	return nil
}

// ValidateURL validates a URL string before creating a request.
func (c *Client) ValidateURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Do executes an HTTP request after validating its URL.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	return c.Client.Do(req)
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}

// WrapClient wraps an existing http.Client without local-address blocking.
// Only for tests that need to hit an httptest.NewServer on localhost.
func WrapClient(client *http.Client) *Client {
	return &Client{
		Client:         client,
		allowedSchemes: []string{"http", "https"},
		blockLocal:     false,
		maxRedirects:   10,
	}
}
