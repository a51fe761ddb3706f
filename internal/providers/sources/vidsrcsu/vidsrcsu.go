// Package vidsrcsu scrapes vidsrc.su, whose embed page lists HLS servers in an
// inline script.
package vidsrcsu

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"reelscout/internal/fetch"
	"reelscout/internal/media"
	"reelscout/internal/provider"
)

// DefaultBase is the public vidsrc.su site.
const DefaultBase = "https://vidsrc.su"

var (
	fixedServersPattern = regexp.MustCompile(`const fixedServers = \[([\s\S]*?)\];`)
	serverEntryPattern  = regexp.MustCompile(`\{\s*label:\s*'([^']+)',\s*url:\s*'([^']*?)'\s*\}`)
	doubleSlashPattern  = regexp.MustCompile(`([^:])//`)
)

// serverRanks orders servers by how reliably they play; unlisted servers rank 0.
var serverRanks = map[string]int{
	"Server 3":  90,
	"Server 7":  85,
	"Server 8":  80,
	"Server 12": 75,
	"Server 16": 70,
	"Server 19": 65,
	"Server 11": 60,
	"Server 10": 55,
	"Server 5":  50,
	"Server 1":  45,
	"Server 2":  40,
	"Server 6":  35,
	"Server 4":  30,
	"Server 9":  25,
	"Server 13": 20,
	"Server 15": 15,
	"Server 17": 10,
	"Server 18": 5,
}

type server struct {
	label string
	url   string
}

// proxyPayload is the base64 JSON some proxied server URLs carry in their last path segment.
type proxyPayload struct {
	URL     string `json:"u"`
	Origin  string `json:"o"`
	Referer string `json:"r"`
}

type scraper struct {
	base string
}

// New returns the vidsrc.su source descriptor for the site at base.
func New(base string) provider.Descriptor {
	s := &scraper{base: strings.TrimRight(base, "/")}
	return provider.Descriptor{
		ID:    "vidsrcsu",
		Name:  "alpha",
		Rank:  370,
		Kind:  provider.KindSource,
		Flags: media.NewFlags(media.FlagCorsAllowed),
		ScrapeMovie: func(ctx context.Context, sc *provider.ScrapeContext, m media.Movie) (*provider.Output, error) {
			return s.scrape(ctx, sc, s.base+"/embed/movie/"+url.PathEscape(m.TMDBID))
		},
		ScrapeShow: func(ctx context.Context, sc *provider.ScrapeContext, sh media.Show) (*provider.Output, error) {
			return s.scrape(ctx, sc, fmt.Sprintf("%s/embed/tv/%s/%d/%d",
				s.base, url.PathEscape(sh.TMDBID), sh.Season.Number, sh.Episode.Number))
		},
	}
}

func (s *scraper) scrape(ctx context.Context, sc *provider.ScrapeContext, embedURL string) (*provider.Output, error) {
	page, err := fetch.Text(ctx, sc.ProxiedFetch, embedURL, fetch.Options{})
	if err != nil {
		return nil, fmt.Errorf("fetching embed page: %w", err)
	}
	sc.Progress(40)

	servers, err := parseServers(page)
	if err != nil {
		return nil, err
	}

	for _, srv := range servers {
		stream, err := s.resolve(ctx, sc.ProxiedFetch, srv, embedURL)
		if err != nil {
			sc.Logger.WithError(err).WithField("server", srv.label).Debug("server unusable")
			continue
		}
		return &provider.Output{Streams: []media.Stream{stream}}, nil
	}
	return nil, provider.NotFound("no working streaming server found")
}

// parseServers extracts the server list from the embed page, best first.
func parseServers(page string) ([]server, error) {
	m := fixedServersPattern.FindStringSubmatch(page)
	if m == nil {
		return nil, provider.NotFound("could not find server list")
	}

	var servers []server
	for _, e := range serverEntryPattern.FindAllStringSubmatch(m[1], -1) {
		if u := strings.TrimSpace(e[2]); u != "" {
			servers = append(servers, server{label: e[1], url: u})
		}
	}
	if len(servers) == 0 {
		return nil, provider.NotFound("no valid streaming servers found")
	}

	sort.SliceStable(servers, func(i, j int) bool {
		return serverRanks[servers[i].label] > serverRanks[servers[j].label]
	})
	return servers, nil
}

// resolve turns a server entry into a stream. Servers behind orbitproxy are probed:
// a working proxy is used as-is, otherwise the origin URL encoded in the proxy path is used.
func (s *scraper) resolve(ctx context.Context, f fetch.Fetcher, srv server, embedURL string) (media.Stream, error) {
	headers := map[string]string{
		"Referer": embedURL,
		"Origin":  s.base,
	}
	streamURL := srv.url

	if strings.Contains(srv.url, "orbitproxy.cc") {
		body, err := fetch.Text(ctx, f, srv.url, fetch.Options{Headers: headers})
		if err != nil || !strings.Contains(body, "#EXTM3U") {
			if p, ok := decodeProxyPayload(srv.url); ok {
				streamURL = p.URL
				headers = map[string]string{"Origin": s.base, "Referer": s.base}
				if p.Origin != "" {
					headers["Origin"], headers["Referer"] = p.Origin, p.Origin
				}
				if p.Referer != "" {
					headers["Referer"] = p.Referer
				}
			}
		}
	}

	cleaned, err := cleanURL(streamURL)
	if err != nil {
		return media.Stream{}, err
	}
	return media.Stream{
		ID:       "primary",
		Kind:     media.HLS,
		Playlist: cleaned,
		Headers:  headers,
		Captions: []media.Caption{},
		Flags:    media.NewFlags(media.FlagCorsAllowed),
	}, nil
}

// decodeProxyPayload reads the JSON hidden in the last path segment of a proxy URL,
// e.g. https://orbitproxy.cc/<base64>.m3u8.
func decodeProxyPayload(proxyURL string) (proxyPayload, bool) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return proxyPayload{}, false
	}
	encoded, _, _ := strings.Cut(path.Base(u.Path), ".")

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		var p proxyPayload
		if err := json.Unmarshal(data, &p); err != nil || p.URL == "" {
			return proxyPayload{}, false
		}
		return p, true
	}
	return proxyPayload{}, false
}

// cleanURL collapses doubled slashes outside the scheme and adds a missing scheme.
func cleanURL(raw string) (string, error) {
	cleaned := doubleSlashPattern.ReplaceAllString(raw, "$1/")
	if !strings.HasPrefix(cleaned, "http") {
		cleaned = "https://" + strings.TrimLeft(cleaned, "/")
	}
	if err := fetch.ValidateURL(cleaned); err != nil {
		return "", fmt.Errorf("server URL %s: %w", strconv.Quote(raw), err)
	}
	return cleaned, nil
}
