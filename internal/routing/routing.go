// Package routing decides, per nesting level, whether a stream's resources must be
// fetched through the operator's proxy.
package routing

import (
	"reelscout/internal/fetch"
	"reelscout/internal/media"
)

// Route is the way one level of a stream is fetched.
type Route int

const (
	Direct Route = iota
	Proxied
)

func (r Route) String() string {
	if r == Proxied {
		return "proxied"
	}
	return "direct"
}

// Decide returns the route for the resource at the given nesting level of s.
// Level 0 is the stream's own locator, level 1 what it references, and so on.
//
// An ip-locked stream is proxied at every level. Otherwise level 0 is direct only
// when the stream is cors-allowed, levels 1 through ProxyDepth are proxied, and
// anything deeper is direct.
func Decide(s *media.Stream, level int) Route {
	if s.Flags.Has(media.FlagIPLocked) {
		return Proxied
	}
	if level <= 0 {
		if s.Flags.Has(media.FlagCorsAllowed) {
			return Direct
		}
		return Proxied
	}
	if level <= s.ProxyDepth {
		return Proxied
	}
	return Direct
}

// Plan returns the routes for levels 0 through levels-1.
func Plan(s *media.Stream, levels int) []Route {
	routes := make([]Route, 0, levels)
	for level := 0; level < levels; level++ {
		routes = append(routes, Decide(s, level))
	}
	return routes
}

// Select returns the fetcher to use for the given level. A nil proxied fetcher
// falls back to direct.
func Select(s *media.Stream, level int, direct, proxied fetch.Fetcher) fetch.Fetcher {
	if Decide(s, level) == Proxied && proxied != nil {
		return proxied
	}
	return direct
}
