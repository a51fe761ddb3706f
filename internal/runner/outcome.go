package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reelscout/internal/fetch"
	"reelscout/internal/hls"
	"reelscout/internal/provider"
)

// Outcome classifies one provider attempt.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeNetwork      Outcome = "network"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeParse        Outcome = "parse"
	OutcomeFailed       Outcome = "failed"
	OutcomePanic        Outcome = "panic"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeEmbedsFailed Outcome = "embeds_failed"
)

// Retryable reports whether an attempt with this outcome may be retried.
func (o Outcome) Retryable() bool {
	return o == OutcomeNetwork || o == OutcomeTimeout
}

// Classify maps an adapter error to an outcome.
func Classify(err error) Outcome {
	var (
		panicErr *PanicError
		status   *fetch.StatusError
		decode   *fetch.DecodeError
		parse    *hls.ManifestParseError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case provider.IsNotFound(err):
		return OutcomeNotFound
	case errors.As(err, &panicErr):
		return OutcomePanic
	case fetch.IsTimeout(err):
		return OutcomeTimeout
	case fetch.IsNetwork(err):
		return OutcomeNetwork
	case errors.As(err, &status):
		if status.Status >= 500 || status.Status == http.StatusTooManyRequests {
			return OutcomeNetwork
		}
		return OutcomeFailed
	case errors.As(err, &decode), errors.As(err, &parse):
		return OutcomeParse
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	}
	return OutcomeFailed
}

// Attempt records one provider invocation, including its retries.
type Attempt struct {
	ID      string
	Kind    provider.Kind
	Outcome Outcome
	Err     error
	Tries   int
	Elapsed time.Duration
}

func (a Attempt) MarshalJSON() ([]byte, error) {
	var msg string
	if a.Err != nil {
		msg = a.Err.Error()
	}
	return json.Marshal(struct {
		ID        string        `json:"id"`
		Kind      provider.Kind `json:"kind"`
		Outcome   Outcome       `json:"outcome"`
		Error     string        `json:"error,omitempty"`
		Tries     int           `json:"tries"`
		ElapsedMS int64         `json:"elapsedMs"`
	}{a.ID, a.Kind, a.Outcome, msg, a.Tries, a.Elapsed.Milliseconds()})
}

// summarize renders attempts as "id:outcome, id:outcome".
func summarize(attempts []Attempt) string {
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = a.ID + ":" + string(a.Outcome)
	}
	return strings.Join(parts, ", ")
}

// NoSourceFoundError is returned when every candidate was tried and none produced a result.
type NoSourceFoundError struct {
	Attempts []Attempt
}

func (e *NoSourceFoundError) Error() string {
	if len(e.Attempts) == 0 {
		return "no source found: no eligible providers"
	}
	return fmt.Sprintf("no source found after %d attempts (%s)", len(e.Attempts), summarize(e.Attempts))
}

// CancelledError is returned when the caller's context ended between attempts.
// Attempts lists only providers that were actually started.
type CancelledError struct {
	Attempts []Attempt
	Err      error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled after %d attempts: %v", len(e.Attempts), e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// EmbedError is returned when the single embed attempt fails.
type EmbedError struct {
	EmbedID string
	Attempt Attempt
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embed %s failed (%s): %v", e.EmbedID, e.Attempt.Outcome, e.Attempt.Err)
}

func (e *EmbedError) Unwrap() error { return e.Attempt.Err }

// PanicError wraps a value recovered from a panicking adapter.
type PanicError struct {
	ProviderID string
	Value      any
	Stack      []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("provider %s panicked: %v", e.ProviderID, e.Value)
}
