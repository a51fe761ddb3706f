// Package log builds the structured logger shared by the CLI, the runner and the server.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Options select the level, format and destination of log output.
type Options struct {
	// Level is a logrus level name. Empty or unknown means info.
	Level string

	// Debug forces the debug level.
	Debug bool

	// JSON switches from the text formatter to the JSON formatter.
	JSON bool

	// Dir, when set, sends output to a dated file in that directory instead of Output.
	Dir string

	// Output defaults to stderr.
	Output io.Writer
}

// Setup creates a logger from opts. The returned closer releases the log file, if any.
func Setup(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	var closer io.Closer = nopCloser{}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		path := filepath.Join(opts.Dir, fmt.Sprintf("%s.log", time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}
	logger.SetOutput(out)

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if opts.Debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	return logger, closer, nil
}

// Discard returns a logger that drops everything. Packages use it when the caller
// supplies no logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
