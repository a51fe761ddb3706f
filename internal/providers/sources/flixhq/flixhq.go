// Package flixhq scrapes FlixHQ, which lists its streams as UpCloud and VidCloud
// embed servers.
package flixhq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"reelscout/internal/fetch"
	"reelscout/internal/media"
	"reelscout/internal/provider"
)

// DefaultBase is the public FlixHQ site.
const DefaultBase = "https://flixhq.to"

// maxSearchPages limits how many pages of search results to fetch.
const maxSearchPages = 3

// embedIDs maps server names on FlixHQ to the embed adapters that resolve them.
var embedIDs = map[string]string{
	"upcloud":  "upcloud",
	"vidcloud": "vidcloud",
}

// sourceLink is the JSON the sources endpoint returns:
// {"type":"iframe","link":"https://...","sources":[],"tracks":[],"title":""}
type sourceLink struct {
	Link string `json:"link"`
}

// scraper holds the site base URL so tests can point it at a local origin.
type scraper struct {
	base string
}

// New returns the FlixHQ source descriptor for the site at base.
func New(base string) provider.Descriptor {
	s := &scraper{base: strings.TrimRight(base, "/")}
	return provider.Descriptor{
		ID:   "flixhq",
		Name: "FlixHQ",
		Rank: 850,
		Kind: provider.KindSource,
		ScrapeMovie: func(ctx context.Context, sc *provider.ScrapeContext, m media.Movie) (*provider.Output, error) {
			return s.scrape(ctx, sc, m, func(ctx context.Context, id string) ([]server, error) {
				return s.movieServers(ctx, sc.ProxiedFetch, id)
			})
		},
		ScrapeShow: func(ctx context.Context, sc *provider.ScrapeContext, sh media.Show) (*provider.Output, error) {
			return s.scrape(ctx, sc, sh, func(ctx context.Context, id string) ([]server, error) {
				return s.episodeServers(ctx, sc.ProxiedFetch, id, sh)
			})
		},
	}
}

func (s *scraper) scrape(ctx context.Context, sc *provider.ScrapeContext, q media.Query, servers func(context.Context, string) ([]server, error)) (*provider.Output, error) {
	f := sc.ProxiedFetch

	id, err := s.find(ctx, f, q)
	if err != nil {
		return nil, err
	}
	sc.Progress(30)

	list, err := servers(ctx, id)
	if err != nil {
		return nil, err
	}
	sc.Progress(60)

	var (
		embeds []media.Embed
		errs   []error
	)
	for _, srv := range list {
		embedID, ok := embedIDs[strings.ToLower(srv.Name)]
		if !ok {
			continue
		}
		link, err := s.embedURL(ctx, f, srv.ID)
		if err != nil {
			sc.Logger.WithError(err).WithField("server", srv.Name).Debug("skipping server")
			errs = append(errs, err)
			continue
		}
		embeds = append(embeds, media.Embed{
			EmbedID: embedID,
			URL:     link,
			Headers: map[string]string{"Referer": s.base + "/"},
		})
	}
	sc.Progress(90)

	if len(embeds) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("resolving servers for %s: %w", id, errors.Join(errs...))
		}
		return nil, provider.NotFound("no supported servers for %s", id)
	}
	return &provider.Output{Embeds: embeds}, nil
}

// find searches for the query's title and returns the id of the matching result.
func (s *scraper) find(ctx context.Context, f fetch.Fetcher, q media.Query) (string, error) {
	base := q.Base()
	searchURL := fetch.JoinPath(s.base, "search") + "/" + fetch.SlugQuery(base.Title)

	doc, err := s.document(ctx, f, searchURL, nil)
	if err != nil {
		return "", fmt.Errorf("searching for %q: %w", base.Title, err)
	}

	results := parseSearchResults(doc)
	pages := min(parseLastPage(doc), maxSearchPages)
	for page := 2; page <= pages; page++ {
		pageDoc, err := s.document(ctx, f, searchURL, url.Values{"page": {strconv.Itoa(page)}})
		if err != nil {
			break
		}
		results = append(results, parseSearchResults(pageDoc)...)
	}

	_, wantShow := q.(media.Show)
	for _, r := range results {
		if r.Show == wantShow && media.CompareTitle(q, r.Title, r.Year) {
			return r.ID, nil
		}
	}
	return "", provider.NotFound("no search result matches %s", q)
}

func (s *scraper) movieServers(ctx context.Context, f fetch.Fetcher, id string) ([]server, error) {
	numID := extractNumericID(id)
	if numID == "" {
		return nil, fmt.Errorf("cannot extract numeric ID from %q", id)
	}

	doc, err := s.document(ctx, f, fetch.JoinPath(s.base, "ajax", "movie", "episodes", numID), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}
	return parseServers(doc), nil
}

func (s *scraper) episodeServers(ctx context.Context, f fetch.Fetcher, id string, sh media.Show) ([]server, error) {
	numID := extractNumericID(id)
	if numID == "" {
		return nil, fmt.Errorf("cannot extract numeric ID from %q", id)
	}

	doc, err := s.document(ctx, f, fetch.JoinPath(s.base, "ajax", "v2", "tv", "seasons", numID), nil)
	if err != nil {
		return nil, fmt.Errorf("getting seasons: %w", err)
	}
	var seasonID string
	for _, se := range parseSeasons(doc) {
		if se.Number == sh.Season.Number {
			seasonID = se.ID
			break
		}
	}
	if seasonID == "" {
		return nil, provider.NotFound("season %d not listed", sh.Season.Number)
	}
	if err := fetch.ValidateID(seasonID); err != nil {
		return nil, fmt.Errorf("invalid season ID: %w", err)
	}

	doc, err = s.document(ctx, f, fetch.JoinPath(s.base, "ajax", "v2", "season", "episodes", seasonID), nil)
	if err != nil {
		return nil, fmt.Errorf("getting episodes: %w", err)
	}
	var episodeID string
	for _, ep := range parseEpisodes(doc) {
		if ep.Number == sh.Episode.Number {
			episodeID = ep.ID
			break
		}
	}
	if episodeID == "" {
		return nil, provider.NotFound("episode %d not listed in season %d", sh.Episode.Number, sh.Season.Number)
	}
	if err := fetch.ValidateID(episodeID); err != nil {
		return nil, fmt.Errorf("invalid episode ID: %w", err)
	}

	doc, err = s.document(ctx, f, fetch.JoinPath(s.base, "ajax", "v2", "episode", "servers", episodeID), nil)
	if err != nil {
		return nil, fmt.Errorf("getting servers: %w", err)
	}
	return parseServers(doc), nil
}

// embedURL returns the embed URL for a given server.
func (s *scraper) embedURL(ctx context.Context, f fetch.Fetcher, serverID string) (string, error) {
	if err := fetch.ValidateID(serverID); err != nil {
		return "", fmt.Errorf("invalid server ID: %w", err)
	}

	result, err := fetch.JSON[sourceLink](ctx, f, fetch.JoinPath(s.base, "ajax", "episode", "sources", serverID), fetch.Options{
		Headers: map[string]string{"X-Requested-With": "XMLHttpRequest"},
	})
	if err != nil {
		return "", fmt.Errorf("getting embed URL: %w", err)
	}
	if result.Link == "" {
		return "", fmt.Errorf("no embed URL found for server %s", serverID)
	}
	return result.Link, nil
}

// document fetches a page and parses it into a goquery Document.
func (s *scraper) document(ctx context.Context, f fetch.Fetcher, pageURL string, query url.Values) (*goquery.Document, error) {
	resp, err := f.Fetch(ctx, pageURL, fetch.Options{Query: query})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}
