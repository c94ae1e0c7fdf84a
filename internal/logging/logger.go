// Package logging provides per-component structured loggers.
//
// Every subsystem obtains its logger once with NewLogger and attaches
// per-call fields with WithField/WithFields. Output goes to a log file when one
// is configured; stderr is only used when it is not an interactive terminal or
// when debug logging is enabled, because the editor UI owns the terminal.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Options controls how loggers are built.
type Options struct {
	// Level is a logrus level name ("debug", "info", "warn", ...).
	Level string

	// Format is "text" (default) or "json".
	Format string

	// File is an optional log file path. A leading ~ is expanded.
	File string

	// Output overrides all sinks when non-nil. Used by tests.
	Output io.Writer
}

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
	options   Options
	sink      io.Writer
)

// Configure sets the options used by loggers created afterwards and resets the
// logger cache. It is called once at startup.
func Configure(opts Options) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	options = opts
	sink = nil
	loggers = make(map[string]*logrus.Entry)
}

// NewLogger returns the logger for a component, creating it on first use.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if entry, ok := loggers[component]; ok {
		return entry
	}

	logger := logrus.New()
	logger.SetLevel(resolveLevel(options.Level))

	switch strings.ToLower(options.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	}

	logger.SetOutput(output(logger.GetLevel()))

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// resolveLevel picks the level from the environment, then options, then info.
func resolveLevel(configured string) logrus.Level {
	name := "info"
	if env := os.Getenv("KEYSYNC_LOG_LEVEL"); env != "" {
		name = env
	} else if configured != "" {
		name = configured
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// output builds the shared sink. Callers hold loggersMu.
func output(level logrus.Level) io.Writer {
	if options.Output != nil {
		return options.Output
	}
	if sink != nil {
		return sink
	}

	var writers []io.Writer
	if options.File != "" {
		path := expandPath(options.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				writers = append(writers, f)
			}
		}
	}

	interactive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if !interactive || level >= logrus.DebugLevel {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		sink = io.Discard
	case 1:
		sink = writers[0]
	default:
		sink = io.MultiWriter(writers...)
	}
	return sink
}

// expandPath expands a leading tilde to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
