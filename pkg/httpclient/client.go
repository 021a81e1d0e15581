package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxBodySize bounds how much of a response body GetJSON will decode.
const maxBodySize = 8 << 20

const errBodySize = 4 << 10

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
	Header     http.Header
	// Body holds at most the first 4 KiB of the response.
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: %s returned status %d", e.URL, e.StatusCode)
}

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects limits followed redirects; negative disables following.
	MaxRedirects int
	// Transport carries requests, e.g. a fingerprinted uTLS transport.
	Transport http.RoundTripper
	// UserAgent is called per request to fill an absent User-Agent header.
	UserAgent func() string
	// Header is added to every request that does not already set the key.
	Header http.Header
}

// Client wraps http.Client with context-first calls and default headers.
type Client struct {
	*http.Client
	userAgent func() string
	header    http.Header
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("httpclient: negative timeout %v", cfg.Timeout)
	}

	c := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
	}

	if cfg.MaxRedirects >= 0 {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) > cfg.MaxRedirects {
				return fmt.Errorf("httpclient: stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Client{
		Client:    c,
		userAgent: cfg.UserAgent,
		header:    cfg.Header.Clone(),
	}, nil
}

// Do executes req under ctx after applying the default headers.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	req = req.Clone(ctx)
	for k, vals := range c.header {
		if req.Header.Get(k) == "" {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}
	}
	if req.Header.Get("User-Agent") == "" && c.userAgent != nil {
		req.Header.Set("User-Agent", c.userAgent())
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = stripQuery(req.URL)
		}
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}

// stripQuery drops the query string, which may carry credentials.
func stripQuery(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.Fragment = ""
	c.User = nil
	return c.String()
}

// GetJSON fetches rawURL and decodes a 2xx JSON body into v. The HTTP status is
// returned whenever a response arrived, including with a *StatusError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("httpclient: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errBodySize))
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return resp.StatusCode, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        stripQuery(req.URL),
			Header:     resp.Header,
			Body:       body,
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("httpclient: decode %s: %w", stripQuery(req.URL), err)
	}
	return resp.StatusCode, nil
}
