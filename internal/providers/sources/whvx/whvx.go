// Package whvx asks the VidBinge aggregator which of its upstream providers are up
// and returns one embed per provider, each carrying the query as JSON.
package whvx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"reelscout/internal/fetch"
	"reelscout/internal/media"
	"reelscout/internal/provider"
)

// DefaultBase is the public VidBinge API.
const DefaultBase = "https://api.whvx.net"

// Query is the embed URL payload the aggregator's embed adapters decode.
type Query struct {
	Title       string `json:"title"`
	ReleaseYear int    `json:"releaseYear"`
	TMDBID      string `json:"tmdbId"`
	IMDBID      string `json:"imdbId,omitempty"`
	Type        string `json:"type"`
	Season      string `json:"season,omitempty"`
	Episode     string `json:"episode,omitempty"`
}

type status struct {
	Providers []string `json:"providers"`
}

// New returns the VidBinge source descriptor for the API at base. It is disabled:
// the aggregator's own embed adapters run outside this process.
func New(base string) provider.Descriptor {
	base = strings.TrimRight(base, "/")
	scrape := func(ctx context.Context, sc *provider.ScrapeContext) (*provider.Output, error) {
		return comboScrape(ctx, sc, base)
	}
	return provider.Descriptor{
		ID:             "whvx",
		Name:           "VidBinge",
		Rank:           270,
		Kind:           provider.KindSource,
		Disabled:       true,
		ExternalSource: true,
		Flags:          media.NewFlags(media.FlagCorsAllowed),
		ScrapeMovie: func(ctx context.Context, sc *provider.ScrapeContext, _ media.Movie) (*provider.Output, error) {
			return scrape(ctx, sc)
		},
		ScrapeShow: func(ctx context.Context, sc *provider.ScrapeContext, _ media.Show) (*provider.Output, error) {
			return scrape(ctx, sc)
		},
	}
}

func comboScrape(ctx context.Context, sc *provider.ScrapeContext, base string) (*provider.Output, error) {
	st, err := fetch.JSON[status](ctx, sc.Fetch, "/status", fetch.Options{BaseURL: base})
	if err != nil {
		return nil, fmt.Errorf("fetching provider status: %w", err)
	}
	if len(st.Providers) == 0 {
		return nil, provider.NotFound("no providers available")
	}

	payload, err := json.Marshal(QueryFor(sc.Media))
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	embeds := make([]media.Embed, 0, len(st.Providers))
	for _, p := range st.Providers {
		embeds = append(embeds, media.Embed{EmbedID: p, URL: string(payload)})
	}
	return &provider.Output{Embeds: embeds}, nil
}

// QueryFor builds the aggregator payload for q.
func QueryFor(q media.Query) Query {
	base := q.Base()
	out := Query{
		Title:       base.Title,
		ReleaseYear: base.ReleaseYear,
		TMDBID:      base.TMDBID,
		IMDBID:      base.IMDBID,
		Type:        q.Kind(),
	}
	if sh, ok := q.(media.Show); ok {
		out.Season = strconv.Itoa(sh.Season.Number)
		out.Episode = strconv.Itoa(sh.Episode.Number)
	}
	return out
}
