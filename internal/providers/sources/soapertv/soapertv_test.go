package soapertv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"reelscout/internal/fetch"
	"reelscout/internal/hls"
	"reelscout/internal/log"
	"reelscout/internal/media"
	"reelscout/internal/provider"
)

const (
	master  = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nlow/index.m3u8\n"
	variant = "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10,\nseg0.ts\n#EXT-X-ENDLIST\n"
)

type origin struct {
	*httptest.Server
	infoPaths []string
	forms     []string
	referers  []string
	backup    bool
}

func newOrigin(t *testing.T, backup bool) *origin {
	t.Helper()
	o := &origin{backup: backup}

	serve := func(fixture string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			data, err := os.ReadFile("testdata/" + fixture)
			if err != nil {
				t.Errorf("reading %s: %v", fixture, err)
				return
			}
			w.Write(data)
		}
	}
	info := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		r.ParseForm()
		o.infoPaths = append(o.infoPaths, r.URL.Path)
		o.forms = append(o.forms, r.PostForm.Encode())
		o.referers = append(o.referers, r.Header.Get("Referer"))
		bak := ""
		if o.backup {
			bak = "hls/bak.m3u8"
		}
		fmt.Fprintf(w, `{"val":"hls/main.m3u8","val_bak":%q,"subs":[
			{"name":"English.srt","path":"/subs/en.srt"},
			{"name":"fr:hi","path":"/subs/fr.srt"},
			{"name":"de","path":"/subs/de.srt"},
			{"name":"Gibberish.srt","path":"/subs/x.srt"}
		]}`, bak)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/search.html", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("keyword") == "" {
			http.Error(w, "no keyword", http.StatusBadRequest)
			return
		}
		serve("search.html")(w, r)
	})
	mux.HandleFunc("/movie_abc.html", serve("content.html"))
	mux.HandleFunc("/tv_xyz.html", serve("show.html"))
	mux.HandleFunc("/episode_s2e2.html", serve("content.html"))
	mux.HandleFunc("/home/index/getMInfoAjax", info)
	mux.HandleFunc("/home/index/getEInfoAjax", info)
	mux.HandleFunc("/hls/main.m3u8", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, master) })
	mux.HandleFunc("/hls/bak.m3u8", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	mux.HandleFunc("/hls/low/index.m3u8", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, variant) })

	o.Server = httptest.NewServer(mux)
	t.Cleanup(o.Close)
	return o
}

func scrapeContext(q media.Query) *provider.ScrapeContext {
	client := fetch.NewClient(fetch.ClientConfig{})
	return &provider.ScrapeContext{
		Media:        q,
		Fetch:        client,
		ProxiedFetch: client,
		Progress:     func(float64) {},
		Logger:       log.Discard(),
	}
}

func TestScrapeMovie(t *testing.T) {
	o := newOrigin(t, false)
	d := New(o.URL)

	m := media.Movie{Common: media.Common{Title: "Inception", ReleaseYear: 2010}}
	out, err := d.ScrapeMovie(context.Background(), scrapeContext(m), m)
	if err != nil {
		t.Fatalf("ScrapeMovie: %v", err)
	}

	if len(o.infoPaths) != 1 || o.infoPaths[0] != "/home/index/getMInfoAjax" {
		t.Errorf("info requests = %v", o.infoPaths)
	}
	if o.forms[0] != "e2=0&pass=pass123&server=0" {
		t.Errorf("form = %q", o.forms[0])
	}
	if o.referers[0] != o.URL+"/movie_abc.html" {
		t.Errorf("referer = %q", o.referers[0])
	}

	if len(out.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(out.Streams))
	}
	s := out.Streams[0]
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
	if s.ProxyDepth != 2 || !s.Flags.Has(media.FlagCorsAllowed) {
		t.Errorf("stream = %+v", s)
	}

	root, err := hls.Decode(s.Playlist)
	if err != nil {
		t.Fatalf("playlist is not a data URL: %v", err)
	}
	lines := strings.Split(string(root), "\n")
	got, err := hls.Decode(lines[2])
	if err != nil {
		t.Fatalf("variant not inlined: %q", lines[2])
	}
	if string(got) != variant {
		t.Errorf("variant = %q", got)
	}

	langs := make([]string, 0, len(s.Captions))
	for _, c := range s.Captions {
		langs = append(langs, c.Language)
	}
	if strings.Join(langs, ",") != "en,fr,de" {
		t.Errorf("caption languages = %v", langs)
	}
	if s.Captions[0].URL != o.URL+"/subs/en.srt" || s.Captions[0].Type != "srt" {
		t.Errorf("caption = %+v", s.Captions[0])
	}
}

func TestScrapeVariantsUseProxiedRoute(t *testing.T) {
	o := newOrigin(t, false)
	d := New(o.URL)

	m := media.Movie{Common: media.Common{Title: "Inception", ReleaseYear: 2010}}
	sc := scrapeContext(m)
	var direct int
	sc.Fetch = fetch.FetcherFunc(func(context.Context, string, fetch.Options) (*fetch.Response, error) {
		direct++
		return nil, errors.New("direct route used")
	})

	out, err := d.ScrapeMovie(context.Background(), sc, m)
	if err != nil {
		t.Fatalf("ScrapeMovie: %v", err)
	}
	if direct != 0 {
		t.Errorf("direct fetcher used %d times", direct)
	}
	root, err := hls.Decode(out.Streams[0].Playlist)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := hls.Decode(strings.Split(string(root), "\n")[2]); err != nil {
		t.Errorf("variant not inlined through the proxied fetcher: %v", err)
	}
}

func TestScrapeShowDropsBrokenBackup(t *testing.T) {
	o := newOrigin(t, true)
	d := New(o.URL)

	sh := media.Show{
		Common:  media.Common{Title: "Breaking Bad", ReleaseYear: 2008},
		Season:  media.Season{Number: 2},
		Episode: media.Episode{Number: 2},
	}
	out, err := d.ScrapeShow(context.Background(), scrapeContext(sh), sh)
	if err != nil {
		t.Fatalf("ScrapeShow: %v", err)
	}
	if len(o.infoPaths) != 1 || o.infoPaths[0] != "/home/index/getEInfoAjax" {
		t.Errorf("info requests = %v", o.infoPaths)
	}
	if o.referers[0] != o.URL+"/episode_s2e2.html" {
		t.Errorf("referer = %q", o.referers[0])
	}
	if len(out.Streams) != 1 || out.Streams[0].ID != "primary" {
		t.Errorf("streams = %+v", out.Streams)
	}
}

func TestScrapeNotFound(t *testing.T) {
	o := newOrigin(t, false)
	d := New(o.URL)

	tests := []struct {
		name string
		q    media.Query
	}{
		{"unknown title", media.Movie{Common: media.Common{Title: "Tenet", ReleaseYear: 2020}}},
		{"wrong year", media.Movie{Common: media.Common{Title: "Inception", ReleaseYear: 1999}}},
		{"missing episode", media.Show{
			Common:  media.Common{Title: "Breaking Bad", ReleaseYear: 2008},
			Season:  media.Season{Number: 1},
			Episode: media.Episode{Number: 7},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			switch q := tt.q.(type) {
			case media.Movie:
				_, err = d.ScrapeMovie(context.Background(), scrapeContext(q), q)
			case media.Show:
				_, err = d.ScrapeShow(context.Background(), scrapeContext(q), q)
			}
			if !provider.IsNotFound(err) {
				t.Errorf("want not found, got %v", err)
			}
		})
	}
}

func TestFindEpisode(t *testing.T) {
	data, err := os.ReadFile("testdata/show.html")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		season, episode int
		want            string
	}{
		{1, 1, "/episode_s1e1.html"},
		{1, 2, "/episode_s1e2.html"},
		{2, 2, "/episode_s2e2.html"},
		{3, 1, ""},
	}
	for _, tt := range tests {
		if got := findEpisode(doc, tt.season, tt.episode); got != tt.want {
			t.Errorf("findEpisode(S%d E%d) = %q, want %q", tt.season, tt.episode, got, tt.want)
		}
	}
}
