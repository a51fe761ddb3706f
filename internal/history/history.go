// Package history keeps a diagnostic log of resolution runs in TSV format:
// which media was asked for, which provider won and how every attempt ended.
// Uses atomic writes (temp+rename) to prevent data corruption.
package history

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"reelscout/internal/config"
	"reelscout/internal/media"
	"reelscout/internal/runner"
)

// TSV columns: run id, time, kind, tmdb id, title, season, episode, winner, attempts
const numColumns = 9

// mu serialises read-modify-write cycles on the history file within the process.
var mu sync.Mutex

// Attempt is one provider outcome as recorded in a row.
type Attempt struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

// Entry is one run.
type Entry struct {
	RunID   uuid.UUID `json:"runId"`
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	TMDBID  string    `json:"tmdbId"`
	Title   string    `json:"title"`
	Season  int       `json:"season,omitempty"`
	Episode int       `json:"episode,omitempty"`

	// Winner is "source" or "source/embed"; empty when the run found nothing.
	Winner   string    `json:"winner"`
	Attempts []Attempt `json:"attempts"`
}

// FromRun builds the entry for a run over q that ended with res or err.
func FromRun(q media.Query, res *runner.RunResult, err error) Entry {
	base := q.Base()
	e := Entry{
		RunID:  uuid.New(),
		Time:   time.Now().UTC(),
		Kind:   q.Kind(),
		TMDBID: base.TMDBID,
		Title:  base.Title,
	}
	if s, ok := q.(media.Show); ok {
		e.Season, e.Episode = s.Season.Number, s.Episode.Number
	}

	var attempts []runner.Attempt
	var (
		nsf       *runner.NoSourceFoundError
		cancelled *runner.CancelledError
	)
	switch {
	case res != nil:
		e.RunID = res.ID
		e.Winner = res.SourceID
		if res.EmbedID != "" {
			e.Winner += "/" + res.EmbedID
		}
		attempts = res.Attempts
	case errors.As(err, &nsf):
		attempts = nsf.Attempts
	case errors.As(err, &cancelled):
		attempts = cancelled.Attempts
	}

	e.Attempts = lo.Map(attempts, func(a runner.Attempt, _ int) Attempt {
		return Attempt{ID: a.ID, Outcome: string(a.Outcome)}
	})
	return e
}

// Load reads the history file and returns all entries, oldest first.
func Load() ([]Entry, error) {
	mu.Lock()
	defer mu.Unlock()
	return load()
}

func load() ([]Entry, error) {
	path, err := config.HistoryPath()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseLine(line)
		if err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	return entries, nil
}

// Append adds entry to the history file.
func Append(entry Entry) error {
	mu.Lock()
	defer mu.Unlock()

	entries, err := load()
	if err != nil {
		return err
	}
	return write(append(entries, entry))
}

// Trim keeps only the newest keep entries.
func Trim(keep int) error {
	mu.Lock()
	defer mu.Unlock()

	entries, err := load()
	if err != nil {
		return err
	}
	if len(entries) <= keep {
		return nil
	}
	return write(entries[len(entries)-max(keep, 0):])
}

// Remove deletes the entry for runID.
func Remove(runID uuid.UUID) error {
	mu.Lock()
	defer mu.Unlock()

	entries, err := load()
	if err != nil {
		return err
	}
	return write(lo.Reject(entries, func(e Entry, _ int) bool { return e.RunID == runID }))
}

// write replaces the history file atomically: temp file + rename.
func write(entries []Entry) error {
	path, err := config.HistoryPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "history-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	writer := bufio.NewWriter(tmpFile)
	for _, e := range entries {
		if _, err := writer.WriteString(formatLine(e) + "\n"); err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("writing history: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flushing history: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming history file: %w", err)
	}

	return nil
}

// FormatForDisplay renders one line per entry for the history command.
func FormatForDisplay(entries []Entry) []string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		title := e.Title
		if e.Kind == "show" {
			title = fmt.Sprintf("%s S%02dE%02d", e.Title, e.Season, e.Episode)
		}
		winner := e.Winner
		if winner == "" {
			winner = "no source"
		}
		items = append(items, fmt.Sprintf("%s  %s -> %s (%d attempts)",
			e.Time.Local().Format("2006-01-02 15:04"), title, winner, len(e.Attempts)))
	}
	return items
}

// parseLine parses a TSV line into an Entry.
func parseLine(line string) (Entry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < numColumns {
		return Entry{}, fmt.Errorf("expected %d columns, got %d", numColumns, len(fields))
	}

	id, err := uuid.Parse(fields[0])
	if err != nil {
		return Entry{}, fmt.Errorf("run id: %w", err)
	}
	when, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("time: %w", err)
	}

	season, _ := strconv.Atoi(fields[5])
	episode, _ := strconv.Atoi(fields[6])

	var attempts []Attempt
	if fields[8] != "" {
		for _, pair := range strings.Split(fields[8], ",") {
			provider, outcome, _ := strings.Cut(pair, ":")
			attempts = append(attempts, Attempt{ID: provider, Outcome: outcome})
		}
	}

	return Entry{
		RunID:    id,
		Time:     when,
		Kind:     fields[2],
		TMDBID:   fields[3],
		Title:    fields[4],
		Season:   season,
		Episode:  episode,
		Winner:   fields[7],
		Attempts: attempts,
	}, nil
}

// formatLine converts an Entry to a TSV line.
func formatLine(e Entry) string {
	attempts := lo.Map(e.Attempts, func(a Attempt, _ int) string { return a.ID + ":" + a.Outcome })
	return strings.Join([]string{
		e.RunID.String(),
		e.Time.UTC().Format(time.RFC3339),
		e.Kind,
		clean(e.TMDBID),
		clean(e.Title),
		strconv.Itoa(e.Season),
		strconv.Itoa(e.Episode),
		e.Winner,
		strings.Join(attempts, ","),
	}, "\t")
}

func clean(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}
