package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelscout/internal/fetch"
	"reelscout/internal/media"
)

func newTestClient(t *testing.T, key string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(key, fetch.NewClient(fetch.ClientConfig{}))
	c.Base = srv.URL + "/3"
	return c
}

func TestMovie(t *testing.T) {
	c := newTestClient(t, "k3y", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/movie/9552" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("api_key") != "k3y" {
			http.Error(w, "no key", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":9552,"title":"The Exorcist","release_date":"1973-12-26","imdb_id":"tt0070047"}`))
	})

	got, err := c.Movie(context.Background(), "9552")
	if err != nil {
		t.Fatalf("Movie() error: %v", err)
	}
	want := media.Movie{Common: media.Common{TMDBID: "9552", IMDBID: "tt0070047", Title: "The Exorcist", ReleaseYear: 1973}}
	if got != want {
		t.Errorf("Movie() = %+v, want %+v", got, want)
	}
}

func TestShow(t *testing.T) {
	c := newTestClient(t, "header.payload.sig", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer header.payload.sig" || r.URL.Query().Has("api_key") {
			http.Error(w, "bad auth", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/3/tv/1396":
			if r.URL.Query().Get("append_to_response") != "external_ids" {
				t.Errorf("missing append_to_response")
			}
			w.Write([]byte(`{"id":1396,"name":"Breaking Bad","first_air_date":"2008-01-20","external_ids":{"imdb_id":"tt0903747"}}`))
		case "/3/tv/1396/season/2":
			w.Write([]byte(`{"id":3573,"season_number":2,"episodes":[{"id":62096,"episode_number":1},{"id":62100,"episode_number":5}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	got, err := c.Show(context.Background(), "1396", 2, 5)
	if err != nil {
		t.Fatalf("Show() error: %v", err)
	}
	if got.Title != "Breaking Bad" || got.ReleaseYear != 2008 || got.IMDBID != "tt0903747" {
		t.Errorf("common = %+v", got.Common)
	}
	if got.Season != (media.Season{Number: 2, TMDBID: "3573"}) || got.Episode != (media.Episode{Number: 5, TMDBID: "62100"}) {
		t.Errorf("season/episode = %+v %+v", got.Season, got.Episode)
	}

	if _, err := c.Show(context.Background(), "1396", 2, 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing episode error = %v, want ErrNotFound", err)
	}
	if _, err := c.Show(context.Background(), "1396", 7, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing season error = %v, want ErrNotFound", err)
	}
}

func TestInvalidIDs(t *testing.T) {
	c := New("k", fetch.FetcherFunc(func(context.Context, string, fetch.Options) (*fetch.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}))

	if _, err := c.Movie(context.Background(), "../admin"); err == nil {
		t.Error("Movie accepted a non-numeric id")
	}
	if _, err := c.Show(context.Background(), "1396", 1, 0); err == nil {
		t.Error("Show accepted episode 0")
	}
}

func TestYear(t *testing.T) {
	tests := map[string]int{"1973-12-26": 1973, "": 0, "unknown": 0, "2024": 2024}
	for in, want := range tests {
		if got := year(in); got != want {
			t.Errorf("year(%q) = %d, want %d", in, got, want)
		}
	}
}
