// Package logging builds the process logger. Console output is human
// readable on a terminal and JSON otherwise; an optional log file is rotated
// and always has credentials redacted.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logMaxSizeMB   = 10
	logMaxBackups  = 5
	logMaxAgeDays  = 14
	logDirPerm     = 0o750
	consoleTimeFmt = "15:04:05.000"
)

type Options struct {
	Verbose bool
	Quiet   bool
	// File, when set, receives a JSON copy of every log line.
	File string
	// Console defaults to stderr.
	Console io.Writer
}

// Level maps the verbosity flags to a zerolog level. Verbose wins over quiet.
func Level(verbose, quiet bool) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates the logger and installs it as the zerolog global. The returned
// closer flushes the log file and must be called on exit.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = false

	var w io.Writer = console(opts.Console)
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		fw, err := fileWriter(opts.File)
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		w = zerolog.MultiLevelWriter(w, fw)
		closer = fw
	}

	logger := zerolog.New(w).
		Level(Level(opts.Verbose, opts.Quiet)).
		With().Timestamp().Logger()
	log.Logger = logger
	return logger, closer, nil
}

func console(out io.Writer) io.Writer {
	if out != nil {
		return NewFilteringWriter(out)
	}
	if term.IsTerminal(int(os.Stderr.Fd())) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{Out: NewFilteringWriter(os.Stderr), TimeFormat: consoleTimeFmt}
	}
	return NewFilteringWriter(os.Stderr)
}

func fileWriter(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), logDirPerm); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}
	return &filteringWriteCloser{FilteringWriter: NewFilteringWriter(lj), Closer: lj}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
