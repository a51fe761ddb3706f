package webtor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"reelscout/internal/fetch"
)

// Resource is a torrent the Webtor service has accepted.
type Resource struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// File is one file inside a resource.
type File struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Content lists the files of a resource.
type Content struct {
	Files []File `json:"files"`
}

// ExportURLs are the locations a resource file can be fetched from.
type ExportURLs struct {
	Download string `json:"download"`
	Stream   string `json:"stream"`
}

// Client talks to an operator-run Webtor REST API.
type Client struct {
	base string
	f    fetch.Fetcher
}

// NewClient creates a client for the API at base, e.g. http://localhost:8097.
func NewClient(base string, f fetch.Fetcher) *Client {
	return &Client{base: strings.TrimRight(base, "/"), f: f}
}

// AddResource submits a torrent URL or magnet URI.
func (c *Client) AddResource(ctx context.Context, torrentOrMagnet string) (Resource, error) {
	r, err := fetch.JSON[Resource](ctx, c.f, "/resources", fetch.Options{
		Method:  "POST",
		BaseURL: c.base,
		Body:    map[string]string{"resource": torrentOrMagnet},
	})
	if err != nil {
		return Resource{}, fmt.Errorf("adding resource: %w", err)
	}
	if r.ID == "" {
		return Resource{}, fmt.Errorf("adding resource: response carries no id")
	}
	return r, nil
}

// Content lists the files of a resource.
func (c *Client) Content(ctx context.Context, id string) (Content, error) {
	content, err := fetch.JSON[Content](ctx, c.f, fetch.JoinPath("/resources", id), fetch.Options{BaseURL: c.base})
	if err != nil {
		return Content{}, fmt.Errorf("getting resource content: %w", err)
	}
	return content, nil
}

// Export returns the URLs a resource file can be fetched from.
func (c *Client) Export(ctx context.Context, id, path string) (ExportURLs, error) {
	urls, err := fetch.JSON[ExportURLs](ctx, c.f, fetch.JoinPath("/resources", id, "export"), fetch.Options{
		BaseURL: c.base,
		Query:   url.Values{"path": {path}},
	})
	if err != nil {
		return ExportURLs{}, fmt.Errorf("getting export URLs: %w", err)
	}
	return urls, nil
}
