// Package runner tries adapters in rank order until one yields a usable result,
// isolating each adapter's failures from the rest of the run.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"reelscout/internal/fetch"
	"reelscout/internal/log"
	"reelscout/internal/media"
	"reelscout/internal/metrics"
	"reelscout/internal/provider"
)

const defaultProviderTimeout = 30 * time.Second

// RetryPolicy applies to every adapter invocation. Only network and timeout
// outcomes are retried.
type RetryPolicy struct {
	// Attempts is the total number of tries. Values below 1 mean 1.
	Attempts int

	// Backoff is the delay before the first retry; later retries back off exponentially.
	Backoff time.Duration
}

// Options configure a Runner.
type Options struct {
	Fetcher fetch.Fetcher

	// ProxiedFetcher routes through the operator's proxy. Nil means Fetcher is used.
	ProxiedFetcher fetch.Fetcher

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Retry   RetryPolicy

	// ProviderTimeout bounds each adapter invocation. Zero means 30s.
	ProviderTimeout time.Duration
}

// Runner drives adapters from a registry. It is safe for concurrent use; runs share nothing.
type Runner struct {
	registry *provider.Registry
	opts     Options
	logger   logrus.FieldLogger
}

// New creates a runner over registry.
func New(registry *provider.Registry, opts Options) *Runner {
	if opts.ProxiedFetcher == nil {
		opts.ProxiedFetcher = opts.Fetcher
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = defaultProviderTimeout
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &Runner{registry: registry, opts: opts, logger: logger}
}

// SourceOptions tune one RunSourceScraper call.
type SourceOptions struct {
	// ExcludeIDs are never scheduled.
	ExcludeIDs []string

	// Only, when set, restricts the run to these ids. Rank order still applies.
	Only []string

	// ProviderTimeout overrides the runner's per-provider budget.
	ProviderTimeout time.Duration

	Progress  ProgressFunc
	MagnetURI string
}

// RunResult is the output of the winning adapter. The caller owns any resources
// it carries and must Close it.
type RunResult struct {
	ID       uuid.UUID      `json:"id"`
	Query    media.Query    `json:"media"`
	SourceID string         `json:"sourceId"`
	EmbedID  string         `json:"embedId,omitempty"`
	Embeds   []media.Embed  `json:"embeds"`
	Streams  []media.Stream `json:"streams"`
	Attempts []Attempt      `json:"attempts"`

	resources []provider.Releaser
}

// Attempted lists the provider ids in the order they were started.
func (r *RunResult) Attempted() []string {
	return lo.Map(r.Attempts, func(a Attempt, _ int) string { return a.ID })
}

// HasResources reports whether the result still owns resources that Close would release.
func (r *RunResult) HasResources() bool {
	return r != nil && len(r.resources) > 0
}

// Close releases every resource the winning adapters opened.
func (r *RunResult) Close() error {
	if r == nil {
		return nil
	}
	out := &provider.Output{Resources: r.resources}
	r.resources = nil
	return out.Release()
}

// accept decides whether a usable adapter output wins the run, filling res when it does.
type accept func(ctx context.Context, res *RunResult, out *provider.Output) (Outcome, error)

// RunSourceScraper tries every enabled source for query, highest rank first, and
// returns the first one that produces embeds or streams.
func (r *Runner) RunSourceScraper(ctx context.Context, query media.Query, opts SourceOptions) (*RunResult, error) {
	return r.run(ctx, "source", query, opts, func(_ context.Context, res *RunResult, out *provider.Output) (Outcome, error) {
		res.Embeds, res.Streams = out.Embeds, out.Streams
		return OutcomeOK, nil
	})
}

// Candidates returns the sources a run for query would try, in order.
func (r *Runner) Candidates(query media.Query, opts SourceOptions) []provider.Descriptor {
	return lo.Filter(r.registry.Sources(), func(d provider.Descriptor, _ int) bool {
		if d.Disabled || !d.Supports(query) || slices.Contains(opts.ExcludeIDs, d.ID) {
			return false
		}
		return len(opts.Only) == 0 || slices.Contains(opts.Only, d.ID)
	})
}

func (r *Runner) run(ctx context.Context, entry string, query media.Query, opts SourceOptions, ok accept) (*RunResult, error) {
	candidates := r.Candidates(query, opts)
	res := &RunResult{ID: uuid.New(), Query: query}
	logger := r.logger.WithFields(logrus.Fields{"run": res.ID.String(), "media": fmt.Sprint(query)})
	progress := newTracker(len(candidates), opts.Progress)

	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = r.opts.ProviderTimeout
	}

	for k, d := range candidates {
		if err := ctx.Err(); err != nil {
			logger.WithField("attempted", len(res.Attempts)).Info("run cancelled")
			r.opts.Metrics.ObserveRun(entry, string(OutcomeCancelled))
			return nil, &CancelledError{Attempts: res.Attempts, Err: err}
		}

		report := progress.start(k, d.ID)
		sc := &provider.ScrapeContext{
			Media:        query,
			Fetch:        r.opts.Fetcher,
			ProxiedFetch: r.opts.ProxiedFetcher,
			Progress:     report,
			MagnetURI:    opts.MagnetURI,
			Logger:       logger.WithField("provider", d.ID),
		}

		out, att := r.attempt(ctx, d, timeout, func(actx context.Context) (*provider.Output, error) {
			return scrapeSource(actx, d, sc)
		})
		idx := len(res.Attempts)
		res.Attempts = append(res.Attempts, att)

		if att.Outcome == OutcomeOK {
			outcome, err := ok(ctx, res, out)
			if outcome == OutcomeOK {
				report(100)
				res.SourceID = d.ID
				res.resources = append(res.resources, out.Resources...)
				logger.WithFields(logrus.Fields{
					"provider": d.ID,
					"embeds":   len(res.Embeds),
					"streams":  len(res.Streams),
				}).Info("source resolved")
				r.opts.Metrics.ObserveRun(entry, string(OutcomeOK))
				return res, nil
			}

			att.Outcome, att.Err = outcome, err
			res.Attempts[idx] = att
			r.release(logger, d.ID, out)

			if outcome == OutcomeCancelled {
				r.opts.Metrics.ObserveRun(entry, string(OutcomeCancelled))
				return nil, &CancelledError{Attempts: res.Attempts, Err: err}
			}
		}

		logger.WithFields(logrus.Fields{
			"provider": d.ID,
			"outcome":  att.Outcome,
		}).Debug("advancing to next source")
	}

	r.opts.Metrics.ObserveRun(entry, "no_source")
	return nil, &NoSourceFoundError{Attempts: res.Attempts}
}

func scrapeSource(ctx context.Context, d provider.Descriptor, sc *provider.ScrapeContext) (*provider.Output, error) {
	switch q := sc.Media.(type) {
	case media.Movie:
		return d.ScrapeMovie(ctx, sc, q)
	case media.Show:
		return d.ScrapeShow(ctx, sc, q)
	}
	return nil, fmt.Errorf("unsupported media %T", sc.Media)
}

// attempt invokes call, retrying network and timeout failures per the retry policy.
// A usable output is returned only with OutcomeOK; anything else has been released.
func (r *Runner) attempt(ctx context.Context, d provider.Descriptor, timeout time.Duration, call func(context.Context) (*provider.Output, error)) (*provider.Output, Attempt) {
	logger := r.logger.WithField("provider", d.ID)
	att := Attempt{ID: d.ID, Kind: d.Kind}
	start := time.Now()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(r.opts.Retry.Backoff, time.Millisecond)
	b.MaxElapsedTime = timeout
	retries := backoff.WithMaxRetries(b, uint64(r.opts.Retry.Attempts-1))
	retries.Reset()

	for {
		att.Tries++
		tryStart := time.Now()
		out, err := r.invoke(ctx, d.ID, timeout, call)
		if err == nil {
			out, err = normalize(logger, out)
		}
		att.Outcome, att.Err = Classify(err), err
		r.opts.Metrics.ObserveAttempt(d.ID, string(att.Outcome), time.Since(tryStart))

		if att.Outcome == OutcomeOK {
			att.Elapsed = time.Since(start)
			return out, att
		}
		r.release(logger, d.ID, out)

		logger.WithError(err).WithFields(logrus.Fields{
			"outcome": att.Outcome,
			"try":     att.Tries,
		}).Log(levelFor(att.Outcome), "attempt failed")

		if !att.Outcome.Retryable() {
			break
		}
		wait := retries.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		if !sleep(ctx, wait) {
			break
		}
	}

	att.Elapsed = time.Since(start)
	return nil, att
}

// invoke runs one adapter call, detached from the caller's cancellation but bounded
// by timeout. A panic becomes a PanicError. An output that arrives after the timeout
// is released.
func (r *Runner) invoke(ctx context.Context, id string, timeout time.Duration, call func(context.Context) (*provider.Output, error)) (*provider.Output, error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	type reply struct {
		out *provider.Output
		err error
	}
	done := make(chan reply, 1)

	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- reply{err: &PanicError{ProviderID: id, Value: v, Stack: debug.Stack()}}
			}
		}()
		out, err := call(actx)
		done <- reply{out: out, err: err}
	}()

	select {
	case rep := <-done:
		return rep.out, rep.err
	case <-actx.Done():
		go func() {
			if rep := <-done; rep.out != nil {
				r.release(r.logger, id, rep.out)
			}
		}()
		return nil, fmt.Errorf("provider %s: budget of %v exhausted: %w", id, timeout, context.DeadlineExceeded)
	}
}

// normalize drops invalid streams and rejects empty outputs as not found.
func normalize(logger logrus.FieldLogger, out *provider.Output) (*provider.Output, error) {
	if out == nil {
		return nil, provider.NotFound("adapter returned no output")
	}
	valid := out.Streams[:0:0]
	for _, s := range out.Streams {
		if err := s.Validate(); err != nil {
			logger.WithError(err).Warn("dropping invalid stream")
			continue
		}
		valid = append(valid, s)
	}
	out.Streams = valid
	if !out.Usable() {
		return out, provider.NotFound("adapter returned no embeds or streams")
	}
	return out, nil
}

func (r *Runner) release(logger logrus.FieldLogger, id string, out *provider.Output) {
	if err := out.Release(); err != nil {
		logger.WithError(err).WithField("provider", id).Warn("releasing adapter resources")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func levelFor(o Outcome) logrus.Level {
	switch o {
	case OutcomeNotFound:
		return logrus.InfoLevel
	case OutcomePanic:
		return logrus.ErrorLevel
	}
	return logrus.WarnLevel
}
