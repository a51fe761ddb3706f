// Package server exposes the runner over a small JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"reelscout/internal/log"
	"reelscout/internal/media"
	"reelscout/internal/provider"
	"reelscout/internal/runner"
)

const (
	maxBodySize = 1 << 20

	// statusClientClosedRequest is nginx's code for a caller that went away mid-run.
	statusClientClosedRequest = 499

	defaultResourceTTL = 30 * time.Minute
)

// Options configure a Server.
type Options struct {
	Runner   *runner.Runner
	Registry *provider.Registry

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger

	// Exclude is added to every run's exclusion list.
	Exclude []string

	// ResourceTTL is how long resources of a returned result, such as a torrent
	// relay, stay open. Zero means 30 minutes.
	ResourceTTL time.Duration

	// OnRun is called after every source or all run, successful or not.
	OnRun func(q media.Query, res *runner.RunResult, err error)
}

// Server serves the API. Call Close on shutdown to release held resources.
type Server struct {
	opts   Options
	logger logrus.FieldLogger

	mu   sync.Mutex
	held map[*time.Timer]func() error
}

// New creates a server.
func New(opts Options) *Server {
	if opts.ResourceTTL <= 0 {
		opts.ResourceTTL = defaultResourceTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{opts: opts, logger: logger, held: make(map[*time.Timer]func() error)}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/providers", s.handleProviders)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/scrape", func(r chi.Router) {
		r.Post("/source", s.handleSource)
		r.Post("/embed", s.handleEmbed)
		r.Post("/all", s.handleAll)
	})
	return r
}

// Close releases every resource still held for earlier responses.
func (s *Server) Close() error {
	s.mu.Lock()
	held := s.held
	s.held = make(map[*time.Timer]func() error)
	s.mu.Unlock()

	var errs []error
	for t, release := range held {
		t.Stop()
		errs = append(errs, release())
	}
	return errors.Join(errs...)
}

// holder is a run result that may own resources streams depend on.
type holder interface {
	HasResources() bool
	Close() error
}

// hold keeps c open for the configured TTL. Results without resources are
// closed at once.
func (s *Server) hold(c holder) {
	if !c.HasResources() {
		c.Close()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(s.opts.ResourceTTL, func() {
		s.mu.Lock()
		_, ok := s.held[t]
		delete(s.held, t)
		s.mu.Unlock()
		if ok {
			if err := c.Close(); err != nil {
				s.logger.WithError(err).Warn("releasing expired resources")
			}
		}
	})
	s.held[t] = c.Close
}

type providerView struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Rank           int         `json:"rank"`
	Kind           string      `json:"kind"`
	Flags          media.Flags `json:"flags"`
	Disabled       bool        `json:"disabled"`
	ExternalSource bool        `json:"externalSource"`
	MediaTypes     []string    `json:"mediaTypes,omitempty"`
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	view := func(d provider.Descriptor, _ int) providerView {
		return providerView{
			ID:             d.ID,
			Name:           d.Name,
			Rank:           d.Rank,
			Kind:           string(d.Kind),
			Flags:          d.Flags,
			Disabled:       d.Disabled,
			ExternalSource: d.ExternalSource,
			MediaTypes:     d.MediaTypes(),
		}
	}
	writeJSON(w, http.StatusOK, map[string][]providerView{
		"sources": lo.Map(s.opts.Registry.Sources(), view),
		"embeds":  lo.Map(s.opts.Registry.Embeds(), view),
	})
}

type sourceRequest struct {
	Media   mediaRequest `json:"media"`
	Only    []string     `json:"only,omitempty"`
	Exclude []string     `json:"exclude,omitempty"`
	Magnet  string       `json:"magnet,omitempty"`
}

func (req sourceRequest) options(exclude []string) runner.SourceOptions {
	return runner.SourceOptions{
		ExcludeIDs: append(append([]string(nil), exclude...), req.Exclude...),
		Only:       req.Only,
		MagnetURI:  req.Magnet,
	}
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	q, ok := s.decodeSource(w, r, &req)
	if !ok {
		return
	}
	res, err := s.opts.Runner.RunSourceScraper(r.Context(), q, req.options(s.opts.Exclude))
	s.finishRun(w, q, res, err)
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	q, ok := s.decodeSource(w, r, &req)
	if !ok {
		return
	}
	res, err := s.opts.Runner.RunAll(r.Context(), q, runner.AllOptions{SourceOptions: req.options(s.opts.Exclude)})
	s.finishRun(w, q, res, err)
}

func (s *Server) decodeSource(w http.ResponseWriter, r *http.Request, req *sourceRequest) (media.Query, bool) {
	if err := decode(w, r, req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err, nil)
		return nil, false
	}
	q, err := req.Media.query()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err, nil)
		return nil, false
	}
	return q, true
}

func (s *Server) finishRun(w http.ResponseWriter, q media.Query, res *runner.RunResult, err error) {
	if s.opts.OnRun != nil {
		s.opts.OnRun(q, res, err)
	}
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	s.hold(res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var in runner.EmbedInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err, nil)
		return
	}
	if in.ID == "" || in.URL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("id and url are required"), nil)
		return
	}

	res, err := s.opts.Runner.RunEmbedScraper(r.Context(), in, runner.EmbedOptions{})
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	s.hold(res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var (
		nsf       *runner.NoSourceFoundError
		cancelled *runner.CancelledError
		embed     *runner.EmbedError
		unknown   *provider.UnknownProviderError
	)
	switch {
	case errors.As(err, &nsf):
		writeError(w, http.StatusNotFound, "no_source", err, nsf.Attempts)
	case errors.As(err, &cancelled):
		writeError(w, statusClientClosedRequest, "cancelled", err, cancelled.Attempts)
	case errors.As(err, &embed):
		writeError(w, http.StatusBadGateway, "embed_failed", err, []runner.Attempt{embed.Attempt})
	case errors.As(err, &unknown):
		writeError(w, http.StatusBadRequest, "unknown_provider", err, nil)
	default:
		s.logger.WithError(err).Error("run failed")
		writeError(w, http.StatusInternalServerError, "internal", err, nil)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"elapsed":    time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

type errorBody struct {
	Error    string           `json:"error"`
	Kind     string           `json:"kind"`
	Attempts []runner.Attempt `json:"attempts,omitempty"`
}

func writeError(w http.ResponseWriter, status int, kind string, err error, attempts []runner.Attempt) {
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind, Attempts: attempts})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
