// Package hls inlines an HLS master playlist and its variant playlists into a single
// self-contained data URL, so a player never has to fetch a sub-manifest cross-origin.
package hls

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/grafov/m3u8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"reelscout/internal/fetch"
	"reelscout/internal/log"
	"reelscout/internal/metrics"
)

// DataURLPrefix starts every inlined playlist.
const DataURLPrefix = "data:application/vnd.apple.mpegurl;base64,"

const (
	defaultVariantTimeout = 10 * time.Second
	defaultConcurrency    = 4
)

// Inliner rewrites a master playlist so each variant reference becomes a data URL.
// Only one level is inlined: segments and keys inside a variant are left as they are.
type Inliner struct {
	Fetcher fetch.Fetcher

	// VariantFetcher fetches variant playlists. Nil means Fetcher.
	VariantFetcher fetch.Fetcher

	// Headers are sent with the root fetch and every variant fetch.
	Headers map[string]string

	// VariantTimeout bounds each variant fetch. Zero means 10s.
	VariantTimeout time.Duration

	// Concurrency caps parallel variant fetches. Zero means 4.
	Concurrency int

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Report lists which variants were inlined and which kept their remote locator.
type Report struct {
	Inlined  []string
	Degraded []string
}

// Inline fetches locator with f and returns the inlined playlist as a data URL.
func Inline(ctx context.Context, f fetch.Fetcher, locator string, headers map[string]string) (string, error) {
	in := &Inliner{Fetcher: f, Headers: headers}
	return in.Inline(ctx, locator)
}

// Inline returns the inlined playlist for locator as a data URL.
func (in *Inliner) Inline(ctx context.Context, locator string) (string, error) {
	out, _, err := in.InlineReport(ctx, locator)
	return out, err
}

// InlineReport is Inline that also reports the fate of each variant.
// Root fetch and parse failures are returned. Variant failures never are: the
// variant keeps its remote locator, in absolute form, and is listed as degraded.
func (in *Inliner) InlineReport(ctx context.Context, locator string) (string, *Report, error) {
	logger := in.logger().WithField("playlist", locator)

	resp, err := in.Fetcher.Fetch(ctx, locator, fetch.Options{Headers: in.Headers})
	if err != nil {
		return "", nil, &ManifestFetchError{URL: locator, Err: err}
	}

	listType, err := parse(resp.Body)
	if err != nil {
		return "", nil, &ManifestParseError{URL: locator, Err: err}
	}

	report := &Report{}
	if listType != m3u8.MASTER {
		return Encode(resp.Body), report, nil
	}

	base := resp.URL
	if base == "" {
		base = locator
	}

	lines := bytes.SplitAfter(resp.Body, []byte("\n"))
	refs := variantLines(lines)

	// Several entries may point at the same variant; fetch each location once.
	type result struct {
		inlined string
		ok      bool
	}
	locations := make(map[string]*result)
	resolved := make(map[int]string, len(refs))
	for _, i := range refs {
		abs, err := resolve(base, strings.TrimSpace(string(lines[i])))
		if err != nil {
			logger.WithError(err).Warn("unresolvable variant reference")
			continue
		}
		resolved[i] = abs
		locations[abs] = &result{}
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(in.concurrency())
	for loc, res := range locations {
		g.Go(func() error {
			body, err := in.fetchVariant(ctx, loc)
			if err != nil {
				logger.WithError(err).WithField("variant", loc).Warn("variant not inlined")
				return nil
			}
			mu.Lock()
			res.inlined, res.ok = Encode(body), true
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var out bytes.Buffer
	for i, line := range lines {
		abs, isRef := resolved[i]
		if !isRef {
			out.Write(line)
			continue
		}

		res := locations[abs]
		replacement := abs
		if res.ok {
			replacement = res.inlined
			report.Inlined = append(report.Inlined, abs)
		} else {
			report.Degraded = append(report.Degraded, abs)
		}
		out.WriteString(replacement)
		out.Write(lineEnding(line))
	}

	logger.WithFields(logrus.Fields{
		"inlined":  len(report.Inlined),
		"degraded": len(report.Degraded),
	}).Debug("playlist inlined")
	in.Metrics.ObserveVariants(len(report.Inlined), len(report.Degraded))

	return Encode(out.Bytes()), report, nil
}

// fetchVariant fetches and validates one variant playlist, returning its exact bytes.
func (in *Inliner) fetchVariant(ctx context.Context, loc string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, in.variantTimeout())
	defer cancel()

	f := in.VariantFetcher
	if f == nil {
		f = in.Fetcher
	}
	resp, err := f.Fetch(ctx, loc, fetch.Options{Headers: in.Headers})
	if err != nil {
		return nil, err
	}
	if _, err := parse(resp.Body); err != nil {
		return nil, &ManifestParseError{URL: loc, Err: err}
	}
	return resp.Body, nil
}

func (in *Inliner) logger() logrus.FieldLogger {
	if in.Logger == nil {
		return log.Discard()
	}
	return in.Logger
}

func (in *Inliner) variantTimeout() time.Duration {
	if in.VariantTimeout <= 0 {
		return defaultVariantTimeout
	}
	return in.VariantTimeout
}

func (in *Inliner) concurrency() int {
	if in.Concurrency <= 0 {
		return defaultConcurrency
	}
	return in.Concurrency
}

// parse checks that data is an HLS playlist and reports whether it is a master or media playlist.
func parse(data []byte) (m3u8.ListType, error) {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("#EXTM3U")) {
		return 0, fmt.Errorf("missing #EXTM3U header")
	}
	_, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return 0, err
	}
	return listType, nil
}

// variantLines returns the indexes of the URI lines that follow #EXT-X-STREAM-INF tags.
// I-frame playlists and alternative renditions carry their URI inside the tag and are not variants.
func variantLines(lines [][]byte) []int {
	var refs []int
	pending := false
	for i, raw := range lines {
		line := strings.TrimSpace(string(raw))
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			pending = true
		case strings.HasPrefix(line, "#"):
		default:
			if pending {
				refs = append(refs, i)
				pending = false
			}
		}
	}
	return refs
}

// variantURIs returns the variant locators of a master playlist in order of appearance.
func variantURIs(manifest []byte) []string {
	lines := bytes.SplitAfter(manifest, []byte("\n"))
	var uris []string
	for _, i := range variantLines(lines) {
		uris = append(uris, strings.TrimSpace(string(lines[i])))
	}
	return uris
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing reference %q: %w", ref, err)
	}
	if r.IsAbs() {
		return ref, nil
	}
	return b.ResolveReference(r).String(), nil
}

func lineEnding(line []byte) []byte {
	switch {
	case bytes.HasSuffix(line, []byte("\r\n")):
		return []byte("\r\n")
	case bytes.HasSuffix(line, []byte("\n")):
		return []byte("\n")
	}
	return nil
}

// Encode wraps a playlist in a data URL.
func Encode(playlist []byte) string {
	return DataURLPrefix + base64.StdEncoding.EncodeToString(playlist)
}

// IsDataURL reports whether locator is an inlined playlist.
func IsDataURL(locator string) bool {
	return strings.HasPrefix(locator, DataURLPrefix)
}

// Decode returns the playlist bytes embedded in a data URL produced by Encode.
func Decode(locator string) ([]byte, error) {
	if !IsDataURL(locator) {
		return nil, fmt.Errorf("not an inlined playlist: %.40q", locator)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(locator, DataURLPrefix))
	if err != nil {
		return nil, fmt.Errorf("decoding inlined playlist: %w", err)
	}
	return data, nil
}
