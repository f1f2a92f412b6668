package logger

import "path/filepath"

// ConsoleConfig configures the human-readable stderr writer.
type ConsoleConfig struct {
	noColor bool
}

// RollingConfig configures a size/age-rotated log file, written with
// lumberjack.
type RollingConfig struct {
	Dirname    string
	Filename   string
	maxSize    int
	maxBackups int
	maxAge     int
}

func (r RollingConfig) fullpath() string {
	return filepath.Join(r.Dirname, r.Filename)
}

// Config bundles every writer Create can build. A nil field disables that
// writer entirely.
type Config struct {
	ConsoleConfig *ConsoleConfig
	RollingConfig *RollingConfig
	MinLevel      string
}

var defaultConfig = Config{
	ConsoleConfig: &ConsoleConfig{},
	MinLevel:      "info",
}

// NewConfig builds a Config from the flags package config exposes: a
// level name, and an optional directory to additionally roll JSON logs
// into (empty disables file logging).
func NewConfig(level string, logDirectory string) *Config {
	cfg := &Config{
		ConsoleConfig: &ConsoleConfig{},
		MinLevel:      level,
	}
	if logDirectory != "" {
		cfg.RollingConfig = &RollingConfig{
			Dirname:    logDirectory,
			Filename:   "fpy3d.log",
			maxSize:    100,
			maxBackups: 10,
			maxAge:     30,
		}
	}
	return cfg
}
