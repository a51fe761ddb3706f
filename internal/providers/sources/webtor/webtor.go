// Package webtor resolves a magnet URI through an operator-run Webtor service and
// serves the chosen file from a local relay that lives as long as the run result.
package webtor

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"

	"reelscout/internal/fetch"
	"reelscout/internal/media"
	"reelscout/internal/provider"
)

const minFallbackSize = 50 * 1024 * 1024

var (
	videoExtensions = []string{".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v"}
	wordPattern     = regexp.MustCompile(`\W+`)
)

// New returns the Webtor source descriptor for the API at base.
func New(base string) provider.Descriptor {
	scrape := func(ctx context.Context, sc *provider.ScrapeContext) (*provider.Output, error) {
		return resolve(ctx, sc, NewClient(base, sc.Fetch))
	}
	return provider.Descriptor{
		ID:             "webtor",
		Name:           "Webtor",
		Rank:           100,
		Kind:           provider.KindSource,
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

func resolve(ctx context.Context, sc *provider.ScrapeContext, c *Client) (*provider.Output, error) {
	if sc.MagnetURI == "" {
		return nil, provider.NotFound("no magnet URI supplied")
	}

	res, err := c.AddResource(ctx, sc.MagnetURI)
	if err != nil {
		return nil, err
	}
	sc.Progress(25)

	content, err := c.Content(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	file, ok := selectFile(content.Files, sc.Media.Base().Title)
	if !ok {
		return nil, provider.NotFound("no suitable video file in torrent %s", res.ID)
	}
	sc.Progress(50)

	urls, err := c.Export(ctx, res.ID, file.Path)
	if err != nil {
		return nil, err
	}
	remote := urls.Stream
	if remote == "" {
		remote = urls.Download
	}
	if err := fetch.ValidateURL(remote); err != nil {
		return nil, fmt.Errorf("export URL for %s: %w", file.Path, err)
	}
	target, err := url.Parse(remote)
	if err != nil {
		return nil, fmt.Errorf("export URL for %s: %w", file.Path, err)
	}
	sc.Progress(75)

	name := fileName(file)
	rl, err := startRelay(target, name, sc.Logger)
	if err != nil {
		return nil, err
	}
	sc.Logger.WithField("file", name).WithField("relay", rl.url).Info("relay started")

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	return &provider.Output{
		Streams: []media.Stream{{
			ID:   "primary",
			Kind: media.File,
			Qualities: map[media.Quality]media.FileSource{
				media.QualityUnknown: {Type: ext, URL: rl.url},
			},
			Captions: []media.Caption{},
			Flags:    media.NewFlags(media.FlagCorsAllowed),
		}},
		Resources: []provider.Releaser{rl},
	}, nil
}

// selectFile picks the video file to stream: the largest video whose name mentions
// a word of the title, else the largest video. Without recognisable video files,
// files over 50MB stand in.
func selectFile(files []File, title string) (File, bool) {
	videos := lo.Filter(files, func(f File, _ int) bool {
		name := strings.ToLower(fileName(f))
		return lo.SomeBy(videoExtensions, func(ext string) bool { return strings.HasSuffix(name, ext) })
	})
	if len(videos) == 0 {
		videos = lo.Filter(files, func(f File, _ int) bool { return f.Size > minFallbackSize })
	}
	if len(videos) == 0 {
		return File{}, false
	}

	slices.SortStableFunc(videos, func(a, b File) int {
		switch {
		case a.Size > b.Size:
			return -1
		case a.Size < b.Size:
			return 1
		}
		return 0
	})

	words := lo.Filter(wordPattern.Split(strings.ToLower(title), -1), func(w string, _ int) bool {
		return len(w) > 3
	})
	for _, v := range videos {
		name := strings.ToLower(fileName(v))
		if lo.SomeBy(words, func(w string) bool { return strings.Contains(name, w) }) {
			return v, true
		}
	}
	return videos[0], true
}

func fileName(f File) string {
	if f.Name != "" {
		return f.Name
	}
	return path.Base(f.Path)
}
