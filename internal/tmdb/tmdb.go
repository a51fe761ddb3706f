// Package tmdb turns TMDB ids into media queries using the TMDB v3 API.
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"reelscout/internal/fetch"
	"reelscout/internal/media"
)

// DefaultBase is the TMDB v3 API root.
const DefaultBase = "https://api.themoviedb.org/3"

// ErrNotFound is returned when TMDB has no such title, season or episode.
var ErrNotFound = errors.New("not found on TMDB")

// Client looks up titles on TMDB.
type Client struct {
	// APIKey is either a v3 key (sent as api_key) or a v4 read access token (sent as a bearer token).
	APIKey  string
	Base    string
	Fetcher fetch.Fetcher
}

// New creates a client against the public API.
func New(apiKey string, f fetch.Fetcher) *Client {
	return &Client{APIKey: apiKey, Base: DefaultBase, Fetcher: f}
}

type movieDetails struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	IMDBID      string `json:"imdb_id"`
}

type showDetails struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	FirstAirDate string `json:"first_air_date"`
	ExternalIDs  struct {
		IMDBID string `json:"imdb_id"`
	} `json:"external_ids"`
}

type seasonDetails struct {
	ID           int `json:"id"`
	SeasonNumber int `json:"season_number"`
	Episodes     []struct {
		ID            int `json:"id"`
		EpisodeNumber int `json:"episode_number"`
	} `json:"episodes"`
}

// Movie builds the query for the movie with TMDB id.
func (c *Client) Movie(ctx context.Context, id string) (media.Movie, error) {
	if err := fetch.ValidateNumericID(id); err != nil {
		return media.Movie{}, fmt.Errorf("tmdb id: %w", err)
	}

	d, err := get[movieDetails](ctx, c, fetch.JoinPath(c.base(), "movie", id), nil)
	if err != nil {
		return media.Movie{}, fmt.Errorf("fetching movie %s: %w", id, err)
	}

	return media.Movie{Common: media.Common{
		TMDBID:      strconv.Itoa(d.ID),
		IMDBID:      d.IMDBID,
		Title:       d.Title,
		ReleaseYear: year(d.ReleaseDate),
	}}, nil
}

// Show builds the query for one episode of the show with TMDB id.
func (c *Client) Show(ctx context.Context, id string, season, episode int) (media.Show, error) {
	if err := fetch.ValidateNumericID(id); err != nil {
		return media.Show{}, fmt.Errorf("tmdb id: %w", err)
	}
	if season < 0 || episode < 1 {
		return media.Show{}, fmt.Errorf("invalid episode S%dE%d", season, episode)
	}

	d, err := get[showDetails](ctx, c, fetch.JoinPath(c.base(), "tv", id),
		url.Values{"append_to_response": {"external_ids"}})
	if err != nil {
		return media.Show{}, fmt.Errorf("fetching show %s: %w", id, err)
	}

	s, err := get[seasonDetails](ctx, c, fetch.JoinPath(c.base(), "tv", id, "season", strconv.Itoa(season)), nil)
	if err != nil {
		return media.Show{}, fmt.Errorf("fetching season %d of show %s: %w", season, id, err)
	}

	q := media.Show{
		Common: media.Common{
			TMDBID:      strconv.Itoa(d.ID),
			IMDBID:      d.ExternalIDs.IMDBID,
			Title:       d.Name,
			ReleaseYear: year(d.FirstAirDate),
		},
		Season: media.Season{Number: s.SeasonNumber, TMDBID: strconv.Itoa(s.ID)},
	}
	for _, ep := range s.Episodes {
		if ep.EpisodeNumber == episode {
			q.Episode = media.Episode{Number: episode, TMDBID: strconv.Itoa(ep.ID)}
			return q, nil
		}
	}
	return media.Show{}, fmt.Errorf("episode %d of season %d: %w", episode, season, ErrNotFound)
}

func get[T any](ctx context.Context, c *Client, u string, query url.Values) (T, error) {
	opts := fetch.Options{Query: query, Headers: map[string]string{"Accept": "application/json"}}
	if strings.Contains(c.APIKey, ".") {
		opts.Headers["Authorization"] = "Bearer " + c.APIKey
	} else {
		if opts.Query == nil {
			opts.Query = url.Values{}
		}
		opts.Query.Set("api_key", c.APIKey)
	}

	v, err := fetch.JSON[T](ctx, c.Fetcher, u, opts)
	if fetch.IsStatus(err, http.StatusNotFound) {
		return v, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return v, err
}

func (c *Client) base() string {
	if c.Base == "" {
		return DefaultBase
	}
	return c.Base
}

// year parses the year out of a TMDB "YYYY-MM-DD" date. Unknown dates give 0.
func year(date string) int {
	y, _, _ := strings.Cut(date, "-")
	n, err := strconv.Atoi(y)
	if err != nil {
		return 0
	}
	return n
}
