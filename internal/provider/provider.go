// Package provider defines the descriptors that source and embed adapters register
// with, the context they are invoked with, and the registry that orders them.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"reelscout/internal/fetch"
	"reelscout/internal/media"
)

// Kind separates sources, which resolve a media query, from embeds, which resolve
// one embed page found by a source.
type Kind string

const (
	KindSource Kind = "source"
	KindEmbed  Kind = "embed"
)

// MovieScraper resolves a movie query.
type MovieScraper func(ctx context.Context, sc *ScrapeContext, m media.Movie) (*Output, error)

// ShowScraper resolves a show episode query.
type ShowScraper func(ctx context.Context, sc *ScrapeContext, s media.Show) (*Output, error)

// EmbedScraper resolves an embed page into streams.
type EmbedScraper func(ctx context.Context, ec *EmbedContext) (*Output, error)

// Descriptor describes one adapter. It is registered once at startup and never mutated.
type Descriptor struct {
	ID   string
	Name string

	// Rank orders candidates; higher is tried first.
	Rank int
	Kind Kind

	// Flags are the capability flags the adapter's streams usually carry.
	Flags media.Flags

	// Disabled adapters stay listed but are never scheduled.
	Disabled bool

	// ExternalSource marks adapters that depend on a service the operator runs
	// or that need extra input, such as a magnet URI.
	ExternalSource bool

	// ScrapeMovie and ScrapeShow are source entry points; either may be nil.
	ScrapeMovie MovieScraper
	ScrapeShow  ShowScraper

	// Scrape is the embed entry point.
	Scrape EmbedScraper
}

// Supports reports whether a source adapter can resolve q.
func (d *Descriptor) Supports(q media.Query) bool {
	switch q.(type) {
	case media.Movie:
		return d.ScrapeMovie != nil
	case media.Show:
		return d.ScrapeShow != nil
	}
	return false
}

// MediaTypes lists the query kinds a source adapter handles.
func (d *Descriptor) MediaTypes() []string {
	var types []string
	if d.ScrapeMovie != nil {
		types = append(types, "movie")
	}
	if d.ScrapeShow != nil {
		types = append(types, "show")
	}
	return types
}

func (d *Descriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("provider %q has no id", d.Name)
	}
	switch d.Kind {
	case KindSource:
		if d.ScrapeMovie == nil && d.ScrapeShow == nil {
			return fmt.Errorf("source %s has no scrape function", d.ID)
		}
		if d.Scrape != nil {
			return fmt.Errorf("source %s must not have an embed scrape function", d.ID)
		}
	case KindEmbed:
		if d.Scrape == nil {
			return fmt.Errorf("embed %s has no scrape function", d.ID)
		}
		if d.ScrapeMovie != nil || d.ScrapeShow != nil {
			return fmt.Errorf("embed %s must not have source scrape functions", d.ID)
		}
	default:
		return fmt.Errorf("provider %s has unknown kind %q", d.ID, d.Kind)
	}
	return nil
}

// ScrapeContext is handed to a source adapter for one attempt.
type ScrapeContext struct {
	Media media.Query

	// Fetch reaches origins directly.
	Fetch fetch.Fetcher

	// ProxiedFetch reaches origins through the operator's proxy. It is the direct
	// fetcher when no proxy is configured.
	ProxiedFetch fetch.Fetcher

	// Progress receives 0..100 for this attempt. Never nil.
	Progress func(percent float64)

	// MagnetURI is set for torrent-backed sources.
	MagnetURI string

	Logger logrus.FieldLogger
}

// EmbedContext is handed to an embed adapter for one attempt.
type EmbedContext struct {
	URL     string
	Headers map[string]string

	Fetch        fetch.Fetcher
	ProxiedFetch fetch.Fetcher

	Progress func(percent float64)
	Logger   logrus.FieldLogger
}

// Releaser frees a resource an adapter opened, such as a local relay server.
type Releaser interface {
	Release() error
}

// ReleaseFunc adapts a function to Releaser.
type ReleaseFunc func() error

func (f ReleaseFunc) Release() error { return f() }

// Output is what an adapter returns.
type Output struct {
	Embeds  []media.Embed
	Streams []media.Stream

	// Resources are owned by whoever ends up holding the Output and must be
	// released by it, whether the output is used or not.
	Resources []Releaser
}

// Usable reports whether the output has at least one embed or stream.
func (o *Output) Usable() bool {
	return o != nil && (len(o.Embeds) > 0 || len(o.Streams) > 0)
}

// Release frees every resource in the output. It is safe to call more than once.
func (o *Output) Release() error {
	if o == nil {
		return nil
	}
	var errs []error
	for _, r := range o.Resources {
		if err := r.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	o.Resources = nil
	return errors.Join(errs...)
}
