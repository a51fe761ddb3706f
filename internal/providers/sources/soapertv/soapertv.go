// Package soapertv scrapes SoaperTV. Its playlists are inlined before they are
// returned, so players never fetch its variant manifests themselves.
package soapertv

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"reelscout/internal/caption"
	"reelscout/internal/fetch"
	"reelscout/internal/hls"
	"reelscout/internal/media"
	"reelscout/internal/metrics"
	"reelscout/internal/provider"
	"reelscout/internal/routing"
)

// DefaultBase is the public SoaperTV site.
const DefaultBase = "https://soaper.live"

// proxyDepth covers the master playlist and its variants; segments load directly.
const proxyDepth = 2

func streamFlags() media.Flags { return media.NewFlags(media.FlagCorsAllowed) }

// infoResponse is the JSON returned by the movie and episode info endpoints.
type infoResponse struct {
	Val    string `json:"val"`
	ValBak string `json:"val_bak"`
	Subs   []sub  `json:"subs"`
}

type sub struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type searchResult struct {
	title string
	year  int
	url   string
}

type scraper struct {
	base           string
	variantTimeout time.Duration
	metrics        *metrics.Metrics
}

// Option tunes the playlist inliner the adapter uses.
type Option func(*scraper)

// WithVariantTimeout bounds each variant fetch while inlining.
func WithVariantTimeout(d time.Duration) Option {
	return func(s *scraper) { s.variantTimeout = d }
}

// WithMetrics reports inlined and degraded variants to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *scraper) { s.metrics = m }
}

// New returns the SoaperTV source descriptor for the site at base.
func New(base string, opts ...Option) provider.Descriptor {
	s := &scraper{base: strings.TrimRight(base, "/")}
	for _, opt := range opts {
		opt(s)
	}
	return provider.Descriptor{
		ID:    "soapertv",
		Name:  "SoaperTV",
		Rank:  160,
		Kind:  provider.KindSource,
		Flags: media.NewFlags(media.FlagCorsAllowed),
		ScrapeMovie: func(ctx context.Context, sc *provider.ScrapeContext, m media.Movie) (*provider.Output, error) {
			return s.scrape(ctx, sc, m)
		},
		ScrapeShow: func(ctx context.Context, sc *provider.ScrapeContext, sh media.Show) (*provider.Output, error) {
			return s.scrape(ctx, sc, sh)
		},
	}
}

func (s *scraper) scrape(ctx context.Context, sc *provider.ScrapeContext, q media.Query) (*provider.Output, error) {
	f := sc.ProxiedFetch

	doc, err := s.document(ctx, f, "/search.html", url.Values{"keyword": {q.Base().Title}})
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	var link string
	for _, r := range parseSearch(doc) {
		if media.CompareTitle(q, r.title, r.year) {
			link = r.url
			break
		}
	}
	if link == "" {
		return nil, provider.NotFound("content not found")
	}
	sc.Progress(20)

	infoEndpoint := "/home/index/getMInfoAjax"
	if sh, ok := q.(media.Show); ok {
		infoEndpoint = "/home/index/getEInfoAjax"
		showPage, err := s.document(ctx, f, link, nil)
		if err != nil {
			return nil, fmt.Errorf("fetching show page: %w", err)
		}
		link = findEpisode(showPage, sh.Season.Number, sh.Episode.Number)
		if link == "" {
			return nil, provider.NotFound("episode S%02dE%02d not listed", sh.Season.Number, sh.Episode.Number)
		}
	}

	contentPage, err := s.document(ctx, f, link, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching content page: %w", err)
	}
	pass, ok := contentPage.Find("#hId").Attr("value")
	if !ok || pass == "" {
		return nil, provider.NotFound("content not found")
	}
	sc.Progress(40)

	info, err := fetch.JSON[infoResponse](ctx, f, infoEndpoint, fetch.Options{
		Method:  "POST",
		BaseURL: s.base,
		Body:    url.Values{"pass": {pass}, "e2": {"0"}, "server": {"0"}},
		Headers: map[string]string{"Referer": s.base + link},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching stream info: %w", err)
	}
	if info.Val == "" {
		return nil, provider.NotFound("no stream in info response")
	}
	sc.Progress(60)

	captions := s.captions(info.Subs)
	inliner := &hls.Inliner{
		Fetcher:        f,
		VariantFetcher: routing.Select(&media.Stream{Flags: streamFlags(), ProxyDepth: proxyDepth}, 1, sc.Fetch, sc.ProxiedFetch),
		VariantTimeout: s.variantTimeout,
		Logger:         sc.Logger,
		Metrics:        s.metrics,
	}

	primary, err := s.stream(ctx, inliner, "primary", info.Val, captions)
	if err != nil {
		return nil, err
	}
	streams := []media.Stream{primary}
	sc.Progress(85)

	if info.ValBak != "" {
		backup, err := s.stream(ctx, inliner, "backup", info.ValBak, captions)
		if err != nil {
			sc.Logger.WithError(err).Warn("dropping backup stream")
		} else {
			streams = append(streams, backup)
		}
	}

	return &provider.Output{Streams: streams}, nil
}

func (s *scraper) stream(ctx context.Context, in *hls.Inliner, id, path string, captions []media.Caption) (media.Stream, error) {
	locator, err := fetch.BuildURL(s.base, path, nil)
	if err != nil {
		return media.Stream{}, err
	}
	playlist, err := in.Inline(ctx, locator)
	if err != nil {
		return media.Stream{}, fmt.Errorf("inlining %s playlist: %w", id, err)
	}
	return media.Stream{
		ID:         id,
		Kind:       media.HLS,
		Playlist:   playlist,
		Captions:   captions,
		Flags:      streamFlags(),
		ProxyDepth: proxyDepth,
	}, nil
}

// captions maps subtitle entries. Names come as "<Language>.srt", "<code>:hi" or a bare code.
func (s *scraper) captions(subs []sub) []media.Caption {
	captions := []media.Caption{}
	for _, sb := range subs {
		var lang string
		switch {
		case strings.Contains(sb.Name, ".srt"):
			lang = caption.LabelToLanguageCode(strings.Split(sb.Name, ".srt")[0])
		case strings.Contains(sb.Name, ":"):
			lang, _, _ = strings.Cut(sb.Name, ":")
		default:
			lang = sb.Name
		}
		if lang == "" || sb.Path == "" {
			continue
		}
		captions = append(captions, media.Caption{
			ID:       sb.Path,
			URL:      s.base + sb.Path,
			Type:     "srt",
			Language: lang,
		})
	}
	return captions
}

func parseSearch(doc *goquery.Document) []searchResult {
	var results []searchResult
	doc.Find(".thumbnail").Each(func(_ int, el *goquery.Selection) {
		a := el.Find("h5 a").First()
		r := searchResult{title: strings.TrimSpace(a.Text()), url: a.AttrOr("href", "")}
		if r.title == "" || r.url == "" {
			return
		}
		r.year, _ = strconv.Atoi(strings.TrimSpace(el.Find(".img-tip").First().Text()))
		results = append(results, r)
	})
	return results
}

// findEpisode returns the link of an episode on a show page. Seasons are headed by
// an h4 such as "Season2 : 2009"; episodes are links titled "3.Episode Name".
func findEpisode(doc *goquery.Document, season, episode int) string {
	want := "Season" + strconv.Itoa(season)

	var link string
	doc.Find("h4").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		label, _, _ := strings.Cut(h.Text(), ":")
		if strings.ReplaceAll(strings.TrimSpace(label), " ", "") != want {
			return true
		}
		h.Parent().Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			num, _, _ := strings.Cut(strings.TrimSpace(a.Text()), ".")
			if n, err := strconv.Atoi(strings.TrimSpace(num)); err == nil && n == episode {
				link = a.AttrOr("href", "")
				return false
			}
			return true
		})
		return false
	})
	return link
}

func (s *scraper) document(ctx context.Context, f fetch.Fetcher, path string, query url.Values) (*goquery.Document, error) {
	resp, err := f.Fetch(ctx, path, fetch.Options{BaseURL: s.base, Query: query})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}
