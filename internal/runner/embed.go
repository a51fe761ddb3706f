package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"reelscout/internal/media"
	"reelscout/internal/provider"
)

// EmbedInput names the embed adapter and the page it should resolve.
type EmbedInput struct {
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// EmbedOptions tune one RunEmbedScraper call.
type EmbedOptions struct {
	// Timeout overrides the runner's per-provider budget.
	Timeout  time.Duration
	Progress ProgressFunc
}

// EmbedResult is the output of one embed adapter. The caller must Close it.
type EmbedResult struct {
	EmbedID string         `json:"embedId"`
	Streams []media.Stream `json:"streams"`
	Attempt Attempt        `json:"attempt"`

	resources []provider.Releaser
}

// HasResources reports whether the result still owns resources that Close would release.
func (r *EmbedResult) HasResources() bool {
	return r != nil && len(r.resources) > 0
}

// Close releases every resource the embed adapter opened.
func (r *EmbedResult) Close() error {
	if r == nil {
		return nil
	}
	out := &provider.Output{Resources: r.resources}
	r.resources = nil
	return out.Release()
}

// RunEmbedScraper resolves one embed with the adapter registered under in.ID.
// There is no fallback: a failure is returned as an *EmbedError.
func (r *Runner) RunEmbedScraper(ctx context.Context, in EmbedInput, opts EmbedOptions) (*EmbedResult, error) {
	d, err := r.registry.Get(in.ID)
	if err != nil {
		return nil, err
	}
	if d.Kind != provider.KindEmbed {
		return nil, fmt.Errorf("%s is a %s: %w", in.ID, d.Kind, &provider.UnknownProviderError{ID: in.ID})
	}
	if d.Disabled {
		return nil, &EmbedError{EmbedID: d.ID, Attempt: Attempt{
			ID: d.ID, Kind: d.Kind, Outcome: OutcomeFailed, Err: errors.New("embed is disabled"),
		}}
	}
	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Err: err}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.opts.ProviderTimeout
	}

	logger := r.logger.WithFields(logrus.Fields{"embed": d.ID, "url": in.URL})
	progress := newTracker(1, opts.Progress)
	ec := &provider.EmbedContext{
		URL:          in.URL,
		Headers:      in.Headers,
		Fetch:        r.opts.Fetcher,
		ProxiedFetch: r.opts.ProxiedFetcher,
		Progress:     progress.start(0, d.ID),
		Logger:       logger,
	}

	out, att := r.attempt(ctx, d, timeout, func(actx context.Context) (*provider.Output, error) {
		return d.Scrape(actx, ec)
	})
	if att.Outcome == OutcomeOK && len(out.Embeds) > 0 {
		r.release(logger, d.ID, out)
		att.Outcome, att.Err = OutcomeFailed, fmt.Errorf("embed %s returned nested embeds", d.ID)
	}
	if att.Outcome == OutcomeOK && len(out.Streams) == 0 {
		r.release(logger, d.ID, out)
		att.Outcome, att.Err = OutcomeNotFound, provider.NotFound("embed returned no streams")
	}
	if att.Outcome != OutcomeOK {
		r.opts.Metrics.ObserveRun("embed", string(att.Outcome))
		return nil, &EmbedError{EmbedID: d.ID, Attempt: att}
	}

	ec.Progress(100)
	r.opts.Metrics.ObserveRun("embed", string(OutcomeOK))
	return &EmbedResult{
		EmbedID:   d.ID,
		Streams:   out.Streams,
		Attempt:   att,
		resources: out.Resources,
	}, nil
}

// AllOptions tune one RunAll call.
type AllOptions struct {
	SourceOptions

	// EmbedTimeout bounds each embed attempt. Zero uses the runner's per-provider budget.
	EmbedTimeout time.Duration
}

// errNoEmbedResolved marks a source whose embeds all failed.
var errNoEmbedResolved = errors.New("no embed resolved")

// RunAll resolves query down to playable streams. A source that returns streams wins
// directly. A source that returns embeds wins with the first of its embeds, in order,
// that resolves; if none does, the source counts as failed and the run moves on.
func (r *Runner) RunAll(ctx context.Context, query media.Query, opts AllOptions) (*RunResult, error) {
	return r.run(ctx, "all", query, opts.SourceOptions, func(ctx context.Context, res *RunResult, out *provider.Output) (Outcome, error) {
		if len(out.Streams) > 0 {
			res.Streams = out.Streams
			return OutcomeOK, nil
		}

		var errs []error
		for _, e := range out.Embeds {
			if err := ctx.Err(); err != nil {
				return OutcomeCancelled, err
			}

			er, err := r.RunEmbedScraper(ctx, EmbedInput{ID: e.EmbedID, URL: e.URL, Headers: e.Headers}, EmbedOptions{
				Timeout: opts.EmbedTimeout,
			})

			var ee *EmbedError
			switch {
			case err == nil:
				res.Attempts = append(res.Attempts, er.Attempt)
				res.EmbedID = er.EmbedID
				res.Embeds = []media.Embed{e}
				res.Streams = er.Streams
				res.resources = append(res.resources, er.resources...)
				return OutcomeOK, nil
			case errors.As(err, &ee):
				res.Attempts = append(res.Attempts, ee.Attempt)
			default:
				res.Attempts = append(res.Attempts, Attempt{
					ID: e.EmbedID, Kind: provider.KindEmbed, Outcome: Classify(err), Err: err,
				})
			}
			errs = append(errs, err)
		}
		return OutcomeEmbedsFailed, fmt.Errorf("%w: %w", errNoEmbedResolved, errors.Join(errs...))
	})
}
