// Package fetch is the single seam through which adapters, the runner and the
// manifest inliner reach the network. It offers a direct client and a client that
// routes requests through an operator-provided simple proxy.
package fetch

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Fetcher performs one HTTP request. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (*Response, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string, opts Options) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	return f(ctx, url, opts)
}

// Options describe a request. The zero value is a GET with no extra headers.
type Options struct {
	Method string

	// BaseURL is joined with a relative url. An absolute url ignores it.
	BaseURL string

	Headers map[string]string
	Query   url.Values

	// Body is sent as-is for string and []byte, form-encoded for url.Values
	// and JSON-encoded for anything else.
	Body any
}

func (o Options) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(o.Method)
}

// Response is a fully read HTTP response.
type Response struct {
	// URL is the final location of the resource, after redirects or proxying.
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// IsJSON reports whether the declared content type is JSON.
func (r *Response) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// Decode unmarshals the body as JSON into v regardless of the declared content type.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &DecodeError{URL: r.URL, ContentType: r.Header.Get("Content-Type"), Err: err}
	}
	return nil
}

// Value returns the decoded JSON document when the response declares a JSON
// content type, and the body text otherwise.
func (r *Response) Value() (any, error) {
	if !r.IsJSON() {
		return r.Text(), nil
	}
	var v any
	if err := r.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Text fetches url and returns the body text.
func Text(ctx context.Context, f Fetcher, url string, opts Options) (string, error) {
	resp, err := f.Fetch(ctx, url, opts)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// JSON fetches url and decodes the body into a T.
func JSON[T any](ctx context.Context, f Fetcher, url string, opts Options) (T, error) {
	var v T
	resp, err := f.Fetch(ctx, url, opts)
	if err != nil {
		return v, err
	}
	if err := resp.Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}
