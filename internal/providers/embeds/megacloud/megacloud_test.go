package megacloud

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelscout/internal/fetch"
	"reelscout/internal/log"
	"reelscout/internal/media"
	"reelscout/internal/provider"
)

func TestParseEmbedURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantOrigin string
		wantPrefix string
		wantID     string
		wantErr    bool
	}{
		{
			name:       "standard embed-1 URL",
			url:        "https://streameeeeee.site/embed-1/v3/e-1/AbCdEf123?z=",
			wantOrigin: "https://streameeeeee.site",
			wantPrefix: "embed-1",
			wantID:     "AbCdEf123",
		},
		{
			name:       "embed-2 URL",
			url:        "https://megacloud.blog/embed-2/v3/e-1/XyZ789?k=1",
			wantOrigin: "https://megacloud.blog",
			wantPrefix: "embed-2",
			wantID:     "XyZ789",
		},
		{
			name:       "trailing slash",
			url:        "https://example.com/embed-4/v3/e-1/testId/",
			wantOrigin: "https://example.com",
			wantPrefix: "embed-4",
			wantID:     "testId",
		},
		{
			name:       "unknown prefix falls back to embed-2",
			url:        "http://127.0.0.1:8080/e/abc",
			wantOrigin: "http://127.0.0.1:8080",
			wantPrefix: "embed-2",
			wantID:     "abc",
		},
		{
			name:    "empty URL",
			url:     "",
			wantErr: true,
		},
		{
			name:    "prefix only",
			url:     "https://example.com/embed-1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin, prefix, id, err := parseEmbedURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseEmbedURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if origin != tt.wantOrigin {
				t.Errorf("origin = %q, want %q", origin, tt.wantOrigin)
			}
			if prefix != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", prefix, tt.wantPrefix)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

// embedHost mimics a MegaCloud host serving one source.
func embedHost(t *testing.T, sourcesJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embed-1/v3/e-1/src42", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://flixhq.to/" {
			http.Error(w, "bad referer", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `<html><head><meta name="_gg_fb" content="key123"></head></html>`)
	})
	mux.HandleFunc("/embed-1/v3/e-1/getSources", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "src42" || r.URL.Query().Get("_k") != "key123" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sourcesJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func embedContext(url string) *provider.EmbedContext {
	client := fetch.NewClient(fetch.ClientConfig{})
	return &provider.EmbedContext{
		URL:          url,
		Fetch:        client,
		ProxiedFetch: client,
		Progress:     func(float64) {},
		Logger:       log.Discard(),
	}
}

func TestScrapePlaintextSources(t *testing.T) {
	srv := embedHost(t, `{
		"sources": [{"file": "https://cdn.example/master.m3u8", "type": "hls"}],
		"tracks": [
			{"file": "https://cdn.example/en.vtt", "label": "English", "kind": "captions"},
			{"file": "https://cdn.example/xx.vtt", "label": "Nonsense", "kind": "captions"},
			{"file": "https://cdn.example/thumbs.vtt", "kind": "thumbnails"}
		],
		"encrypted": false
	}`)

	out, err := scrape(context.Background(), embedContext(srv.URL+"/embed-1/v3/e-1/src42?z="))
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(out.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(out.Streams))
	}

	s := out.Streams[0]
	if err := s.Validate(); err != nil {
		t.Errorf("stream invalid: %v", err)
	}
	if s.Kind != media.HLS || s.Playlist != "https://cdn.example/master.m3u8" {
		t.Errorf("stream = %+v", s)
	}
	if s.Headers["Referer"] != srv.URL+"/" || s.Headers["Origin"] != srv.URL {
		t.Errorf("headers = %v", s.Headers)
	}
	if len(s.Captions) != 1 || s.Captions[0].Language != "en" || s.Captions[0].Type != "vtt" {
		t.Errorf("captions = %+v", s.Captions)
	}
}

func TestScrapeEncryptedIsNotFound(t *testing.T) {
	srv := embedHost(t, `{"sources": "U2FsdGVkX1...", "tracks": [], "encrypted": true}`)

	_, err := scrape(context.Background(), embedContext(srv.URL+"/embed-1/v3/e-1/src42"))
	if !provider.IsNotFound(err) {
		t.Errorf("want not found, got %v", err)
	}
}

func TestScrapeEmptySourcesIsNotFound(t *testing.T) {
	srv := embedHost(t, `{"sources": [], "tracks": [], "encrypted": false}`)

	_, err := scrape(context.Background(), embedContext(srv.URL+"/embed-1/v3/e-1/src42"))
	if !provider.IsNotFound(err) {
		t.Errorf("want not found, got %v", err)
	}
}

func TestScrapeRejectsBadURL(t *testing.T) {
	_, err := scrape(context.Background(), embedContext("ftp://example.com/embed-1/v3/e-1/x"))
	if err == nil || provider.IsNotFound(err) {
		t.Errorf("want validation error, got %v", err)
	}
}

func TestDescriptors(t *testing.T) {
	reg := provider.NewRegistry(provider.DefaultRankBounds)
	reg.MustRegister(Upcloud(), Vidcloud())

	embeds := reg.Embeds()
	if len(embeds) != 2 || embeds[0].ID != "vidcloud" || embeds[1].ID != "upcloud" {
		t.Errorf("embeds = %v", embeds)
	}
}
