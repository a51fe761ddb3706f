package history

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"reelscout/internal/media"
	"reelscout/internal/runner"
)

var show = media.Show{
	Common:  media.Common{TMDBID: "1396", Title: "Breaking Bad", ReleaseYear: 2008},
	Season:  media.Season{Number: 2},
	Episode: media.Episode{Number: 5},
}

func entry(title, winner string) Entry {
	return Entry{
		RunID:    uuid.New(),
		Time:     time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Kind:     "movie",
		TMDBID:   "9552",
		Title:    title,
		Winner:   winner,
		Attempts: []Attempt{{"flixhq", "not_found"}, {"vidsrcsu", "ok"}},
	}
}

func TestAppendAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmpDir)

	want := entry("The Exorcist", "vidsrcsu")
	if err := Append(want); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := Append(entry("Other", "")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "reelscout", "history.tsv")); err != nil {
		t.Fatalf("history file not created: %v", err)
	}

	entries, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	got := entries[0]
	if got.RunID != want.RunID || got.Title != want.Title || got.Winner != want.Winner {
		t.Errorf("entry = %+v, want %+v", got, want)
	}
	if !got.Time.Equal(want.Time) {
		t.Errorf("Time = %v, want %v", got.Time, want.Time)
	}
	if len(got.Attempts) != 2 || got.Attempts[1] != (Attempt{"vidsrcsu", "ok"}) {
		t.Errorf("Attempts = %+v", got.Attempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	entries, err := Load()
	if err != nil || entries != nil {
		t.Errorf("Load() = %v, %v; want nil, nil", entries, err)
	}
}

func TestLoadSkipsMalformed(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmpDir)

	good := formatLine(entry("Good", "flixhq/upcloud"))
	content := "# comment\n" + "not\tenough\tcolumns\n" + "bad-uuid\t2026-01-01T00:00:00Z\tmovie\t1\tx\t0\t0\t\t\n" + good + "\n"
	dir := filepath.Join(tmpDir, "reelscout")
	os.MkdirAll(dir, 0700)
	if err := os.WriteFile(filepath.Join(dir, "history.tsv"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	entries, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Title != "Good" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRemoveAndTrim(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	a, b, c := entry("A", ""), entry("B", ""), entry("C", "")
	for _, e := range []Entry{a, b, c} {
		if err := Append(e); err != nil {
			t.Fatal(err)
		}
	}

	if err := Remove(b.RunID); err != nil {
		t.Fatal(err)
	}
	entries, _ := Load()
	if len(entries) != 2 || entries[0].Title != "A" || entries[1].Title != "C" {
		t.Fatalf("after Remove: %+v", entries)
	}

	if err := Trim(1); err != nil {
		t.Fatal(err)
	}
	entries, _ = Load()
	if len(entries) != 1 || entries[0].Title != "C" {
		t.Errorf("after Trim: %+v", entries)
	}
}

func TestFromRun(t *testing.T) {
	attempts := []runner.Attempt{
		{ID: "flixhq", Outcome: runner.OutcomeEmbedsFailed},
		{ID: "upcloud", Outcome: runner.OutcomeNotFound},
		{ID: "soapertv", Outcome: runner.OutcomeOK},
	}

	t.Run("success", func(t *testing.T) {
		res := &runner.RunResult{ID: uuid.New(), SourceID: "vidsrcsu", EmbedID: "", Attempts: attempts}
		e := FromRun(show, res, nil)
		if e.RunID != res.ID || e.Winner != "vidsrcsu" || e.Kind != "show" || e.Season != 2 || e.Episode != 5 {
			t.Errorf("entry = %+v", e)
		}
		if len(e.Attempts) != 3 || e.Attempts[0].Outcome != "embeds_failed" {
			t.Errorf("attempts = %+v", e.Attempts)
		}
	})

	t.Run("embed winner", func(t *testing.T) {
		res := &runner.RunResult{ID: uuid.New(), SourceID: "flixhq", EmbedID: "upcloud"}
		if e := FromRun(show, res, nil); e.Winner != "flixhq/upcloud" {
			t.Errorf("Winner = %q", e.Winner)
		}
	})

	t.Run("no source", func(t *testing.T) {
		err := &runner.NoSourceFoundError{Attempts: attempts[:2]}
		e := FromRun(show, nil, err)
		if e.Winner != "" || len(e.Attempts) != 2 || e.RunID == uuid.Nil {
			t.Errorf("entry = %+v", e)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		err := &runner.CancelledError{Attempts: attempts[:1], Err: errors.New("stop")}
		if e := FromRun(show, nil, err); len(e.Attempts) != 1 {
			t.Errorf("attempts = %+v", e.Attempts)
		}
	})
}

func TestFormatForDisplay(t *testing.T) {
	movie := entry("Movie A", "flixhq/upcloud")
	ep := FromRun(show, nil, &runner.NoSourceFoundError{})
	ep.Time = movie.Time

	items := FormatForDisplay([]Entry{movie, ep})
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	stamp := movie.Time.Local().Format("2006-01-02 15:04")
	if want := stamp + "  Movie A -> flixhq/upcloud (2 attempts)"; items[0] != want {
		t.Errorf("movie display = %q, want %q", items[0], want)
	}
	if want := stamp + "  Breaking Bad S02E05 -> no source (0 attempts)"; items[1] != want {
		t.Errorf("show display = %q, want %q", items[1], want)
	}
}

func TestFormatLine(t *testing.T) {
	e := entry("Tab\tTitle", "soapertv")
	line := formatLine(e)

	parsed, err := parseLine(line)
	if err != nil {
		t.Fatalf("parseLine error: %v", err)
	}
	if parsed.Title != "Tab Title" {
		t.Errorf("Title = %q, tabs must not split columns", parsed.Title)
	}
	if parsed.RunID != e.RunID || parsed.TMDBID != "9552" || parsed.Winner != "soapertv" {
		t.Errorf("parsed = %+v", parsed)
	}
}
