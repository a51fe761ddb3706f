package hls

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reelscout/internal/fetch"
)

const variantLow = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-MEDIA-SEQUENCE:0\n" +
	"#EXTINF:9.009,\nseg0.ts\n#EXTINF:9.009,\nseg1.ts\n# trailing comment   \n#EXT-X-ENDLIST\n"

const variantHigh = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n" +
	"#EXTINF:6.0,\nhttps://cdn.example/high/seg0.ts\n#EXT-X-ENDLIST\n"

func masterPlaylist(srvURL string) string {
	return "#EXTM3U\n" +
		"#EXT-X-VERSION:4\n" +
		`#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="en",DEFAULT=YES,URI="audio/en.m3u8"` + "\n" +
		`#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360,AUDIO="aud"` + "\n" +
		"low/index.m3u8\n" +
		`#EXT-X-STREAM-INF:BANDWIDTH=2400000,RESOLUTION=1280x720,AUDIO="aud"` + "\n" +
		srvURL + "/high/index.m3u8\n" +
		`#EXT-X-I-FRAME-STREAM-INF:BANDWIDTH=90000,URI="iframe.m3u8"` + "\n"
}

// origin serves a master playlist and its two variants. Handlers can be overridden per path.
type origin struct {
	srv       *httptest.Server
	overrides map[string]http.HandlerFunc
	referers  atomic.Int32
	requests  atomic.Int32
}

func newOrigin(t *testing.T, overrides map[string]http.HandlerFunc) *origin {
	t.Helper()
	o := &origin{overrides: overrides}
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.requests.Add(1)
		if r.Header.Get("Referer") == "https://site.example/" {
			o.referers.Add(1)
		}
		if h, ok := o.overrides[r.URL.Path]; ok {
			h(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		switch r.URL.Path {
		case "/master/playlist.m3u8":
			io.WriteString(w, masterPlaylist(o.srv.URL))
		case "/master/low/index.m3u8":
			io.WriteString(w, variantLow)
		case "/high/index.m3u8":
			io.WriteString(w, variantHigh)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *origin) master() string { return o.srv.URL + "/master/playlist.m3u8" }

func inlineRoot(t *testing.T, in *Inliner, locator string) ([]byte, *Report) {
	t.Helper()
	out, report, err := in.InlineReport(context.Background(), locator)
	if err != nil {
		t.Fatalf("InlineReport: %v", err)
	}
	if !IsDataURL(out) {
		t.Fatalf("result is not a data URL: %.60s", out)
	}
	root, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode root: %v", err)
	}
	return root, report
}

func newInliner(headers map[string]string) *Inliner {
	return &Inliner{
		Fetcher:        fetch.NewClient(fetch.ClientConfig{Timeout: 5 * time.Second}),
		Headers:        headers,
		VariantTimeout: 200 * time.Millisecond,
	}
}

func TestInlineRoundTrip(t *testing.T) {
	o := newOrigin(t, nil)
	root, report := inlineRoot(t, newInliner(nil), o.master())

	variants := variantURIs(root)
	if len(variants) != 2 {
		t.Fatalf("got %d variants, want 2:\n%s", len(variants), root)
	}

	want := []string{variantLow, variantHigh}
	for i, v := range variants {
		body, err := Decode(v)
		if err != nil {
			t.Fatalf("variant %d not inlined: %v", i, err)
		}
		if string(body) != want[i] {
			t.Errorf("variant %d bytes differ:\ngot  %q\nwant %q", i, body, want[i])
		}
	}

	if len(report.Inlined) != 2 || len(report.Degraded) != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestInlineLeavesOtherURIsUntouched(t *testing.T) {
	o := newOrigin(t, nil)
	root, _ := inlineRoot(t, newInliner(nil), o.master())

	for _, line := range []string{
		`URI="audio/en.m3u8"`,
		`#EXT-X-I-FRAME-STREAM-INF:BANDWIDTH=90000,URI="iframe.m3u8"`,
		`#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360,AUDIO="aud"`,
	} {
		if !strings.Contains(string(root), line) {
			t.Errorf("root lost %q:\n%s", line, root)
		}
	}
}

func TestInlinePartialFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not a playlist", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "<html>blocked</html>")
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrigin(t, map[string]http.HandlerFunc{"/high/index.m3u8": tt.handler})
			root, report := inlineRoot(t, newInliner(nil), o.master())

			variants := variantURIs(root)
			if len(variants) != 2 {
				t.Fatalf("got %d variants, want 2 (degraded variant must not be dropped)", len(variants))
			}

			body, err := Decode(variants[0])
			if err != nil || string(body) != variantLow {
				t.Errorf("variant A not inlined intact: %v", err)
			}

			wantB := o.srv.URL + "/high/index.m3u8"
			if variants[1] != wantB {
				t.Errorf("variant B = %q, want original locator %q", variants[1], wantB)
			}
			if len(report.Degraded) != 1 || report.Degraded[0] != wantB {
				t.Errorf("report.Degraded = %v", report.Degraded)
			}
		})
	}
}

func TestInlineDegradedRelativeBecomesAbsolute(t *testing.T) {
	o := newOrigin(t, map[string]http.HandlerFunc{
		"/master/low/index.m3u8": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	})
	root, _ := inlineRoot(t, newInliner(nil), o.master())

	variants := variantURIs(root)
	if variants[0] != o.srv.URL+"/master/low/index.m3u8" {
		t.Errorf("degraded relative variant = %q", variants[0])
	}
}

func TestInlineDegradedAbsoluteKeptVerbatim(t *testing.T) {
	var o *origin
	o = newOrigin(t, map[string]http.HandlerFunc{
		"/master/playlist.m3u8": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\n"+o.srv.URL+"/a/../b/v.m3u8?x=1\n")
		},
	})
	root, report := inlineRoot(t, newInliner(nil), o.master())

	want := o.srv.URL + "/a/../b/v.m3u8?x=1"
	if variants := variantURIs(root); len(variants) != 1 || variants[0] != want {
		t.Errorf("variants = %q, want [%q]", variants, want)
	}
	if len(report.Degraded) != 1 || report.Degraded[0] != want {
		t.Errorf("report.Degraded = %v", report.Degraded)
	}
}

func TestInlineVariantFetcher(t *testing.T) {
	o := newOrigin(t, nil)
	variants := &countingFetcher{Fetcher: fetch.NewClient(fetch.ClientConfig{Timeout: 5 * time.Second})}
	in := newInliner(nil)
	in.VariantFetcher = variants

	inlineRoot(t, in, o.master())
	if n := variants.calls.Load(); n != 2 {
		t.Errorf("variant fetcher used %d times, want 2", n)
	}
	if n := o.requests.Load(); n != 3 {
		t.Errorf("origin saw %d requests, want 3", n)
	}
}

type countingFetcher struct {
	fetch.Fetcher
	calls atomic.Int32
}

func (c *countingFetcher) Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error) {
	c.calls.Add(1)
	return c.Fetcher.Fetch(ctx, rawURL, opts)
}

func TestInlinePropagatesHeaders(t *testing.T) {
	o := newOrigin(t, nil)
	inlineRoot(t, newInliner(map[string]string{"Referer": "https://site.example/"}), o.master())

	if got, total := o.referers.Load(), o.requests.Load(); got != 3 || total != 3 {
		t.Errorf("Referer sent on %d of %d requests, want 3 of 3", got, total)
	}
}

func TestInlineMediaRoot(t *testing.T) {
	o := newOrigin(t, nil)
	root, report := inlineRoot(t, newInliner(nil), o.srv.URL+"/high/index.m3u8")
	if string(root) != variantHigh {
		t.Errorf("media playlist not embedded exactly: %q", root)
	}
	if len(report.Inlined)+len(report.Degraded) != 0 {
		t.Errorf("media playlist has no variants, report = %+v", report)
	}
}

func TestInlineRootErrors(t *testing.T) {
	o := newOrigin(t, map[string]http.HandlerFunc{
		"/html": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "<html></html>")
		},
	})

	_, err := Inline(context.Background(), fetch.NewClient(fetch.ClientConfig{}), o.srv.URL+"/missing.m3u8", nil)
	var fe *ManifestFetchError
	if !errors.As(err, &fe) {
		t.Errorf("missing root: want ManifestFetchError, got %v", err)
	}
	if !fetch.IsStatus(err, http.StatusNotFound) {
		t.Errorf("fetch error should wrap the status error, got %v", err)
	}

	_, err = Inline(context.Background(), fetch.NewClient(fetch.ClientConfig{}), o.srv.URL+"/html", nil)
	var pe *ManifestParseError
	if !errors.As(err, &pe) {
		t.Errorf("html root: want ManifestParseError, got %v", err)
	}
}

func TestInlineFetchesSharedVariantOnce(t *testing.T) {
	var hits atomic.Int32
	master := "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800000\nv.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800001\nv.m3u8\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v.m3u8" {
			hits.Add(1)
			io.WriteString(w, variantHigh)
			return
		}
		io.WriteString(w, master)
	}))
	defer srv.Close()

	root, report := inlineRoot(t, newInliner(nil), srv.URL+"/master.m3u8")
	if hits.Load() != 1 {
		t.Errorf("shared variant fetched %d times", hits.Load())
	}
	for _, v := range variantURIs(root) {
		if !IsDataURL(v) {
			t.Errorf("variant %q not inlined", v)
		}
	}
	if len(report.Inlined) != 2 {
		t.Errorf("report.Inlined = %v", report.Inlined)
	}
}

func TestDecodeRejectsRemote(t *testing.T) {
	if _, err := Decode("https://x.example/a.m3u8"); err == nil {
		t.Error("Decode accepted a remote locator")
	}
	got, err := Decode(Encode([]byte("#EXTM3U\n")))
	if err != nil || string(got) != "#EXTM3U\n" {
		t.Errorf("Decode(Encode) = %q, %v", got, err)
	}
}
