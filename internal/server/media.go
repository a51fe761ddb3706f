package server

import (
	"errors"
	"fmt"

	"reelscout/internal/media"
)

// mediaRequest is the wire form of a query: {"type": "movie"|"show", ...}.
type mediaRequest struct {
	Type string `json:"type"`
	media.Common
	Season  *media.Season  `json:"season,omitempty"`
	Episode *media.Episode `json:"episode,omitempty"`
}

func (m mediaRequest) query() (media.Query, error) {
	if m.TMDBID == "" || m.Title == "" {
		return nil, errors.New("media needs tmdbId and title")
	}
	switch m.Type {
	case "movie":
		return media.Movie{Common: m.Common}, nil
	case "show":
		if m.Season == nil || m.Episode == nil {
			return nil, errors.New("show needs season and episode")
		}
		if m.Episode.Number < 1 || m.Season.Number < 0 {
			return nil, fmt.Errorf("invalid episode S%dE%d", m.Season.Number, m.Episode.Number)
		}
		return media.Show{Common: m.Common, Season: *m.Season, Episode: *m.Episode}, nil
	}
	return nil, fmt.Errorf("unknown media type %q", m.Type)
}
