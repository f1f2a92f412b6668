// Package logger builds the zerolog.Logger the rest of the module logs
// through, grounded on cloudflared's logger/create.go: a console writer for
// humans plus an optional rolling file writer, fanned out through a writer
// that tolerates one sink failing without silencing the others.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleTimeFormat = time.RFC3339

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// resilientMultiWriter fans writes out to every configured sink, the way
// cloudflared's logger package does it, so a console writer failing (e.g.
// stderr not being a terminal when expected) can't silently swallow every
// other writer's output too.
type resilientMultiWriter struct {
	level   zerolog.Level
	writers []io.Writer
}

func (w resilientMultiWriter) Write(p []byte) (int, error) {
	for _, sink := range w.writers {
		_, _ = sink.Write(p)
	}
	return len(p), nil
}

func (w resilientMultiWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if w.level <= level {
		for _, sink := range w.writers {
			_, _ = sink.Write(p)
		}
	}
	return len(p), nil
}

var levelErrorLogged = false

// Create builds a logger from cfg. A nil cfg falls back to defaultConfig
// (console only, info level).
func Create(cfg *Config) *zerolog.Logger {
	if cfg == nil {
		cfg = &defaultConfig
	}

	var writers []io.Writer
	if cfg.ConsoleConfig != nil {
		writers = append(writers, createConsoleWriter(*cfg.ConsoleConfig))
	}
	if cfg.RollingConfig != nil {
		writers = append(writers, createRollingWriter(*cfg.RollingConfig))
	}

	level, err := zerolog.ParseLevel(cfg.MinLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	multi := resilientMultiWriter{level: level, writers: writers}
	log := zerolog.New(multi).With().Timestamp().Logger()
	if !levelErrorLogged && err != nil {
		log.Error().Msgf("failed to parse log level %q, using %q instead", cfg.MinLevel, level)
		levelErrorLogged = true
	}
	return &log
}

func createConsoleWriter(cfg ConsoleConfig) io.Writer {
	out := os.Stderr
	return zerolog.ConsoleWriter{
		Out:        colorable.NewColorable(out),
		NoColor:    cfg.noColor || !term.IsTerminal(int(out.Fd())),
		TimeFormat: consoleTimeFormat,
	}
}

var rollingInit struct {
	once   sync.Once
	writer io.Writer
}

func createRollingWriter(cfg RollingConfig) io.Writer {
	rollingInit.once.Do(func() {
		rollingInit.writer = &lumberjack.Logger{
			Filename:   cfg.fullpath(),
			MaxSize:    cfg.maxSize,
			MaxBackups: cfg.maxBackups,
			MaxAge:     cfg.maxAge,
		}
	})
	return rollingInit.writer
}
