// Package providers is the adapter table: the one place every source and embed is
// registered at startup.
package providers

import (
	"fmt"
	"slices"
	"time"

	"reelscout/internal/config"
	"reelscout/internal/metrics"
	"reelscout/internal/provider"
	"reelscout/internal/providers/embeds/megacloud"
	"reelscout/internal/providers/sources/flixhq"
	"reelscout/internal/providers/sources/soapertv"
	"reelscout/internal/providers/sources/vidsrcsu"
	"reelscout/internal/providers/sources/webtor"
	"reelscout/internal/providers/sources/whvx"
)

// Settings carry the parts of the configuration adapters are built from.
type Settings struct {
	// Bases overrides site origins by provider id.
	Bases map[string]string

	// WebtorURL enables the torrent source when set.
	WebtorURL string

	VariantTimeout time.Duration
	Metrics        *metrics.Metrics
}

// All returns every adapter descriptor, sources then embeds.
func All(s Settings) []provider.Descriptor {
	base := func(id, fallback string) string {
		if b, ok := s.Bases[id]; ok && b != "" {
			return b
		}
		return fallback
	}

	wt := webtor.New(s.WebtorURL)
	wt.Disabled = s.WebtorURL == ""

	return []provider.Descriptor{
		flixhq.New(base("flixhq", flixhq.DefaultBase)),
		soapertv.New(base("soapertv", soapertv.DefaultBase),
			soapertv.WithVariantTimeout(s.VariantTimeout),
			soapertv.WithMetrics(s.Metrics)),
		vidsrcsu.New(base("vidsrcsu", vidsrcsu.DefaultBase)),
		whvx.New(base("whvx", whvx.DefaultBase)),
		wt,
		megacloud.Upcloud(),
		megacloud.Vidcloud(),
	}
}

// Build registers every adapter in a registry bounded by the configured ranks,
// applies the disabled list and freezes it. m may be nil.
func Build(cfg *config.Config, m *metrics.Metrics) (*provider.Registry, error) {
	reg := provider.NewRegistry(provider.RankBounds{Min: cfg.MinRank, Max: cfg.MaxRank})

	all := All(Settings{
		Bases:          cfg.Bases,
		WebtorURL:      cfg.WebtorURL,
		VariantTimeout: cfg.VariantTimeout.Duration,
		Metrics:        m,
	})
	for _, d := range all {
		if slices.Contains(cfg.Disabled, d.ID) {
			d.Disabled = true
		}
		if err := reg.Register(d); err != nil {
			return nil, fmt.Errorf("building provider registry: %w", err)
		}
	}

	for _, id := range append(slices.Clone(cfg.Disabled), cfg.Exclude...) {
		if _, err := reg.Get(id); err != nil {
			return nil, fmt.Errorf("config names %q: %w", id, err)
		}
	}

	reg.Freeze()
	return reg, nil
}
