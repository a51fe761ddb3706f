package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/ratelimit"
)

const (
	// UserAgent is sent on every request unless the caller overrides it.
	UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"

	maxBodySize = 10 * 1024 * 1024 // 10MB
)

// NewHTTPClient creates a hardened HTTP client with secure defaults.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			DisableCompression:  false,
			MaxIdleConnsPerHost: 5,
		},
	}
}

// ClientConfig tunes a direct Client.
type ClientConfig struct {
	// Timeout bounds each request, including reading the body. Zero means 30s.
	Timeout time.Duration

	// RequestsPerSecond throttles outbound requests. Zero disables throttling.
	RequestsPerSecond int

	// BrowserTLS presents a Chrome TLS fingerprint instead of Go's.
	BrowserTLS bool

	// MaxBodySize caps response bodies. Larger bodies fail with BodyTooLargeError. Zero means 10MB.
	MaxBodySize int64
}

// Client fetches resources directly from their origin.
type Client struct {
	http    *http.Client
	limiter ratelimit.Limiter
	timeout time.Duration
	maxBody int64
}

// NewClient creates a direct fetcher.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = maxBodySize
	}

	hc := NewHTTPClient(cfg.Timeout)
	if cfg.BrowserTLS {
		hc.Transport = BrowserTransport()
	}

	c := &Client{http: hc, timeout: cfg.Timeout, maxBody: cfg.MaxBodySize, limiter: ratelimit.NewUnlimited()}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = ratelimit.New(cfg.RequestsPerSecond)
	}
	return c
}

// WithHTTPClient replaces the underlying http.Client, typically with an httptest one.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	cp.http = hc
	return &cp
}

// Fetch performs the request described by opts against url.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	target, err := BuildURL(opts.BaseURL, rawURL, opts.Query)
	if err != nil {
		return nil, err
	}
	if err := ValidateURL(target); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	body, contentType, err := encodeBody(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("encoding body for %s: %w", target, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, opts.method(), target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	c.limiter.Take()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &NetworkError{URL: target, Err: fmt.Errorf("reading response: %w", err)}
	}
	if int64(len(data)) > c.maxBody {
		return nil, &BodyTooLargeError{URL: target, Limit: c.maxBody}
	}

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: final, Status: resp.StatusCode}
	}

	return &Response{
		URL:    final,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}
