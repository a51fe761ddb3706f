package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Headers a browser may not set itself. The proxy restores them from their X- prefixed form.
var restrictedHeaders = map[string]string{
	"cookie":     "X-Cookie",
	"referer":    "X-Referer",
	"origin":     "X-Origin",
	"user-agent": "X-User-Agent",
	"x-real-ip":  "X-X-Real-Ip",
}

// finalDestinationHeader carries the URL the proxy ended up fetching.
const finalDestinationHeader = "X-Final-Destination"

// Proxied routes requests through a simple-proxy deployment:
// GET {base}/?destination={url}.
type Proxied struct {
	base   string
	client *Client
}

// NewProxied wraps client so every request goes through the proxy at base.
func NewProxied(base string, client *Client) (*Proxied, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("proxy url must be http or https, got %q", base)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy url has no host: %q", base)
	}
	return &Proxied{base: strings.TrimRight(base, "/"), client: client}, nil
}

// Fetch sends the request to the proxy, renaming headers the proxy would otherwise drop.
func (p *Proxied) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	target, err := BuildURL(opts.BaseURL, rawURL, opts.Query)
	if err != nil {
		return nil, err
	}

	proxyURL := p.base + "/?destination=" + url.QueryEscape(target)
	resp, err := p.client.Fetch(ctx, proxyURL, Options{
		Method:  opts.Method,
		Headers: ProxyHeaders(opts.Headers),
		Body:    opts.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("proxying %s: %w", target, err)
	}

	resp.URL = target
	if dest := resp.Header.Get(finalDestinationHeader); dest != "" {
		resp.URL = dest
	}
	return resp, nil
}

// ProxyHeaders returns a copy of headers with restricted names moved to their X- form.
func ProxyHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if renamed, ok := restrictedHeaders[strings.ToLower(k)]; ok {
			out[renamed] = v
			continue
		}
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}
