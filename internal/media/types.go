// Package media defines shared types for the reelscout resolver.
package media

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Query is a request to resolve one piece of media. It is either a Movie or a Show.
type Query interface {
	// Kind returns "movie" or "show".
	Kind() string

	// Base returns the fields common to movies and shows.
	Base() Common

	sealed()
}

// Common holds the fields every query carries.
type Common struct {
	TMDBID      string `json:"tmdbId"`
	IMDBID      string `json:"imdbId,omitempty"`
	Title       string `json:"title"`
	ReleaseYear int    `json:"releaseYear"`
}

// Movie is a query for a feature film.
type Movie struct {
	Common
}

// Show is a query for a single episode of a series.
type Show struct {
	Common
	Season  Season  `json:"season"`
	Episode Episode `json:"episode"`
}

// Season identifies a season of a show.
type Season struct {
	Number int    `json:"number"`
	TMDBID string `json:"tmdbId,omitempty"`
}

// Episode identifies an episode within a season.
type Episode struct {
	Number int    `json:"number"`
	TMDBID string `json:"tmdbId,omitempty"`
}

func (Movie) Kind() string   { return "movie" }
func (m Movie) Base() Common { return m.Common }
func (Movie) sealed()        {}

func (Show) Kind() string   { return "show" }
func (s Show) Base() Common { return s.Common }
func (Show) sealed()        {}

func (m Movie) String() string {
	return fmt.Sprintf("%s (%d)", m.Title, m.ReleaseYear)
}

func (s Show) String() string {
	return fmt.Sprintf("%s (%d) S%02dE%02d", s.Title, s.ReleaseYear, s.Season.Number, s.Episode.Number)
}

// MarshalJSON tags the query with its kind so API consumers can tell the two apart.
func (m Movie) MarshalJSON() ([]byte, error) {
	type alias Movie
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"movie", alias(m)})
}

// MarshalJSON tags the query with its kind so API consumers can tell the two apart.
func (s Show) MarshalJSON() ([]byte, error) {
	type alias Show
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"show", alias(s)})
}

// StreamKind says how a stream is consumed.
type StreamKind string

const (
	HLS  StreamKind = "hls"
	File StreamKind = "file"
)

// Flag is a consumption requirement attached to a stream.
type Flag string

const (
	// FlagCorsAllowed marks a stream whose first-level locator can be fetched by a browser directly.
	FlagCorsAllowed Flag = "cors-allowed"

	// FlagIPLocked marks a stream that only plays from the IP address that resolved it.
	FlagIPLocked Flag = "ip-locked"

	// FlagCFBlocked marks origins that block Cloudflare egress IPs.
	FlagCFBlocked Flag = "cf-blocked"

	// FlagProxyBlocked marks origins that refuse known proxy endpoints.
	FlagProxyBlocked Flag = "proxy-blocked"
)

// Flags is a set of capability flags.
type Flags map[Flag]struct{}

// NewFlags builds a set from the given flags.
func NewFlags(flags ...Flag) Flags {
	set := make(Flags, len(flags))
	for _, f := range flags {
		set[f] = struct{}{}
	}
	return set
}

// Has reports whether f is in the set.
func (fs Flags) Has(f Flag) bool {
	_, ok := fs[f]
	return ok
}

// List returns the flags sorted by name.
func (fs Flags) List() []Flag {
	out := make([]Flag, 0, len(fs))
	for f := range fs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (fs Flags) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.List())
}

func (fs *Flags) UnmarshalJSON(data []byte) error {
	var list []Flag
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*fs = NewFlags(list...)
	return nil
}

// Quality labels a progressive file rendition.
type Quality string

const (
	QualityUnknown Quality = "unknown"
	Quality360     Quality = "360"
	Quality480     Quality = "480"
	Quality720     Quality = "720"
	Quality1080    Quality = "1080"
	Quality4K      Quality = "4k"
)

// qualityOrder lists qualities from best to worst.
var qualityOrder = []Quality{Quality4K, Quality1080, Quality720, Quality480, Quality360, QualityUnknown}

// FileSource is one progressive rendition of a file stream.
type FileSource struct {
	Type string `json:"type"` // e.g. "mp4"
	URL  string `json:"url"`
}

// Caption is a subtitle track attached to a stream.
type Caption struct {
	ID                  string `json:"id"`
	URL                 string `json:"url"`
	Type                string `json:"type"` // "srt" or "vtt"
	Language            string `json:"language"`
	HasCorsRestrictions bool   `json:"hasCorsRestrictions"`
}

// Stream is a playable stream produced by an adapter.
type Stream struct {
	ID   string     `json:"id"`
	Kind StreamKind `json:"type"`

	// Playlist is the manifest locator of an HLS stream. It may be a data: URL after inlining.
	Playlist string `json:"playlist,omitempty"`

	// Qualities holds the renditions of a file stream.
	Qualities map[Quality]FileSource `json:"qualities,omitempty"`

	Captions []Caption         `json:"captions"`
	Headers  map[string]string `json:"headers,omitempty"`

	// PreferredHeaders are sent when possible but not required to play.
	PreferredHeaders map[string]string `json:"preferredHeaders,omitempty"`

	Flags      Flags `json:"flags"`
	ProxyDepth int   `json:"proxyDepth"`
}

// Validate checks that exactly the locator matching the stream kind is set.
func (s *Stream) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("stream has no id")
	}
	if s.ProxyDepth < 0 {
		return fmt.Errorf("stream %s: negative proxy depth %d", s.ID, s.ProxyDepth)
	}
	switch s.Kind {
	case HLS:
		if s.Playlist == "" {
			return fmt.Errorf("hls stream %s has no playlist", s.ID)
		}
		if len(s.Qualities) > 0 {
			return fmt.Errorf("hls stream %s must not carry file qualities", s.ID)
		}
	case File:
		if len(s.Qualities) == 0 {
			return fmt.Errorf("file stream %s has no qualities", s.ID)
		}
		if s.Playlist != "" {
			return fmt.Errorf("file stream %s must not carry a playlist", s.ID)
		}
	default:
		return fmt.Errorf("stream %s has unknown kind %q", s.ID, s.Kind)
	}
	return nil
}

// Locator returns the playlist of an HLS stream, or the best-quality URL of a file stream.
func (s *Stream) Locator() string {
	if s.Kind == HLS {
		return s.Playlist
	}
	for _, q := range qualityOrder {
		if f, ok := s.Qualities[q]; ok {
			return f.URL
		}
	}
	return ""
}

// Embed is a reference to a page that an embed adapter can resolve into streams.
type Embed struct {
	EmbedID string            `json:"embedId"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}
