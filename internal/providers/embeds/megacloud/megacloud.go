// Package megacloud resolves MegaCloud embed pages, served to FlixHQ as the UpCloud
// and VidCloud servers, by talking to the embed host's getSources endpoint.
package megacloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"reelscout/internal/caption"
	"reelscout/internal/fetch"
	"reelscout/internal/media"
	"reelscout/internal/provider"
)

const defaultReferer = "https://flixhq.to/"

var embedPrefixPattern = regexp.MustCompile(`^embed-\d+$`)

// Upcloud returns the descriptor of the UpCloud server.
func Upcloud() provider.Descriptor {
	return descriptor("upcloud", "UpCloud", 200)
}

// Vidcloud returns the descriptor of the VidCloud server.
func Vidcloud() provider.Descriptor {
	return descriptor("vidcloud", "VidCloud", 201)
}

func descriptor(id, name string, rank int) provider.Descriptor {
	return provider.Descriptor{
		ID:     id,
		Name:   name,
		Rank:   rank,
		Kind:   provider.KindEmbed,
		Scrape: scrape,
	}
}

// sourcesResponse represents the JSON from the getSources endpoint.
type sourcesResponse struct {
	Sources   json.RawMessage `json:"sources"`
	Tracks    []track         `json:"tracks"`
	Encrypted bool            `json:"encrypted"`
}

type track struct {
	File    string `json:"file"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Default bool   `json:"default"`
}

type source struct {
	File string `json:"file"`
	Type string `json:"type"`
}

func scrape(ctx context.Context, ec *provider.EmbedContext) (*provider.Output, error) {
	if err := fetch.ValidateURL(ec.URL); err != nil {
		return nil, fmt.Errorf("invalid embed URL: %w", err)
	}

	origin, embedPrefix, sourceID, err := parseEmbedURL(ec.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing embed URL: %w", err)
	}

	referer := defaultReferer
	if r := ec.Headers["Referer"]; r != "" {
		referer = r
	}

	// The client key is hidden in the embed page and changes per request.
	embedPage := fmt.Sprintf("%s/%s/v3/e-1/%s", origin, embedPrefix, sourceID)
	html, err := fetch.Text(ctx, ec.Fetch, embedPage, fetch.Options{
		Query: url.Values{"z": {""}},
		Headers: map[string]string{
			"Accept":  "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Referer": referer,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching embed page: %w", err)
	}
	ec.Progress(30)

	clientKey, err := extractClientKey(html)
	if err != nil {
		return nil, provider.NotFound("embed page carries no client key: %v", err)
	}

	resp, err := fetch.JSON[sourcesResponse](ctx, ec.Fetch, origin+"/"+embedPrefix+"/v3/e-1/getSources", fetch.Options{
		Query: url.Values{"id": {sourceID}, "_k": {clientKey}},
		Headers: map[string]string{
			"Accept":           "application/json",
			"X-Requested-With": "XMLHttpRequest",
			"Referer":          ec.URL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching sources: %w", err)
	}
	ec.Progress(70)

	if resp.Encrypted {
		return nil, provider.NotFound("sources for %s are encrypted", sourceID)
	}

	var sources []source
	if err := json.Unmarshal(resp.Sources, &sources); err != nil {
		return nil, fmt.Errorf("parsing plaintext sources: %w", err)
	}

	headers := map[string]string{
		"Referer": origin + "/",
		"Origin":  origin,
	}
	captions := mapTracks(resp.Tracks)

	var streams []media.Stream
	for _, s := range sources {
		if s.File == "" {
			continue
		}
		id := "primary"
		if len(streams) > 0 {
			id = fmt.Sprintf("mirror-%d", len(streams))
		}
		streams = append(streams, toStream(id, s, headers, captions))
	}
	if len(streams) == 0 {
		return nil, provider.NotFound("no sources found")
	}

	return &provider.Output{Streams: streams}, nil
}

func toStream(id string, s source, headers map[string]string, captions []media.Caption) media.Stream {
	stream := media.Stream{
		ID:       id,
		Captions: captions,
		Headers:  headers,
		Flags:    media.NewFlags(),
	}
	if s.Type == "hls" || strings.Contains(s.File, ".m3u8") {
		stream.Kind = media.HLS
		stream.Playlist = s.File
		return stream
	}
	stream.Kind = media.File
	stream.Qualities = map[media.Quality]media.FileSource{
		media.QualityUnknown: {Type: "mp4", URL: s.File},
	}
	return stream
}

// mapTracks keeps caption tracks whose label names a known language.
func mapTracks(tracks []track) []media.Caption {
	captions := []media.Caption{}
	for _, t := range tracks {
		if (t.Kind != "captions" && t.Kind != "subtitles") || t.File == "" {
			continue
		}
		lang := caption.LabelToLanguageCode(t.Label)
		typ := caption.TypeFromURL(t.File)
		if lang == "" || typ == "" {
			continue
		}
		captions = append(captions, media.Caption{
			ID:       t.File,
			URL:      t.File,
			Type:     typ,
			Language: lang,
		})
	}
	return captions
}

// parseEmbedURL extracts origin, embed prefix, and source ID from an embed URL.
// Example: https://streameeeeee.site/embed-1/v3/e-1/AbCdEf?z= -> ("https://streameeeeee.site", "embed-1", "AbCdEf")
func parseEmbedURL(embedURL string) (origin, embedPrefix, sourceID string, err error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing URL: %w", err)
	}
	if u.Host == "" {
		return "", "", "", fmt.Errorf("no host in %q", embedURL)
	}

	origin = u.Scheme + "://" + u.Host

	// Path format: /embed-N/... or /embed-N/v3/e-1/{sourceId}
	parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")

	embedPrefix = parts[0]
	if !embedPrefixPattern.MatchString(embedPrefix) {
		embedPrefix = "embed-2"
	}

	sourceID = parts[len(parts)-1]
	if sourceID == "" && len(parts) > 1 {
		sourceID = parts[len(parts)-2]
	}
	if sourceID == "" || sourceID == embedPrefix {
		return "", "", "", fmt.Errorf("could not extract source ID from %q", embedURL)
	}

	return origin, embedPrefix, sourceID, nil
}
