// Package config resolves the bridge server's settings from CLI flags and
// an optional YAML overlay, grounded on cloudflared's config package: a
// plain struct with yaml tags, read with gopkg.in/yaml.v3, then overridden
// by whatever flags the operator actually passed on the urfave/cli/v2
// command line.
package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCertFile = "cert.pem"
	DefaultKeyFile  = "key.pem"
)

// Config is every setting the bridge server needs to stand up a listener,
// its logging, and its metrics exposition.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`

	IdleTimeoutSeconds int   `yaml:"idleTimeoutSeconds"`
	MaxBidiStreams     int64 `yaml:"maxBidiStreams"`
	MaxUniStreams      int64 `yaml:"maxUniStreams"`

	LogLevel     string `yaml:"logLevel"`
	LogDirectory string `yaml:"logDirectory"`

	MetricsAddress string `yaml:"metricsAddress"`

	Debug bool `yaml:"debug"`
}

// Default returns the configuration used when no flags or overlay file
// are given.
func Default() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8443,
		CertFile:           DefaultCertFile,
		KeyFile:            DefaultKeyFile,
		IdleTimeoutSeconds: 30,
		MaxBidiStreams:     1000,
		MaxUniStreams:      100,
		LogLevel:           "info",
		MetricsAddress:     "localhost:8080",
	}
}

// LoadOverlay reads a YAML config file onto cfg if path is non-empty and
// exists. A missing file at the default path is not an error; an unreadable
// or malformed file at an explicitly requested path is.
func LoadOverlay(cfg *Config, path string, explicit bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "parsing config file %s", path)
	}
	return nil
}

// Flags is the urfave/cli/v2 flag set cmd/fpy3d registers; ApplyFlags
// layers them onto whatever the overlay file already set, so an explicit
// flag always wins.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to a YAML config file overlay"},
		&cli.StringFlag{Name: "host", Usage: "address to listen on"},
		&cli.IntFlag{Name: "port", Usage: "UDP port to listen on"},
		&cli.StringFlag{Name: "cert", Usage: "path to the TLS certificate"},
		&cli.StringFlag{Name: "key", Usage: "path to the TLS private key"},
		&cli.IntFlag{Name: "idle-timeout", Usage: "QUIC idle timeout in seconds"},
		&cli.Int64Flag{Name: "max-bidi-streams", Usage: "max concurrent peer-initiated request streams per connection"},
		&cli.Int64Flag{Name: "max-uni-streams", Usage: "max concurrent peer-initiated unidirectional streams per connection"},
		&cli.StringFlag{Name: "loglevel", Usage: "log level (debug, info, warn, error)"},
		&cli.StringFlag{Name: "log-directory", Usage: "directory to additionally write rolling log files into"},
		&cli.StringFlag{Name: "metrics", Usage: "address the Prometheus /metrics endpoint listens on"},
		&cli.BoolFlag{Name: "debug", Usage: "enable verbose per-stream/connection event logging"},
	}
}

// ApplyFlags overrides cfg's fields with whichever flags c.IsSet reports
// as explicitly provided.
func ApplyFlags(cfg *Config, c *cli.Context) {
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("cert") {
		cfg.CertFile = c.String("cert")
	}
	if c.IsSet("key") {
		cfg.KeyFile = c.String("key")
	}
	if c.IsSet("idle-timeout") {
		cfg.IdleTimeoutSeconds = c.Int("idle-timeout")
	}
	if c.IsSet("max-bidi-streams") {
		cfg.MaxBidiStreams = c.Int64("max-bidi-streams")
	}
	if c.IsSet("max-uni-streams") {
		cfg.MaxUniStreams = c.Int64("max-uni-streams")
	}
	if c.IsSet("loglevel") {
		cfg.LogLevel = c.String("loglevel")
	}
	if c.IsSet("log-directory") {
		cfg.LogDirectory = c.String("log-directory")
	}
	if c.IsSet("metrics") {
		cfg.MetricsAddress = c.String("metrics")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
}

// Resolve builds the final Config for one CLI invocation: defaults, then
// the YAML overlay (if any), then explicit flags.
func Resolve(c *cli.Context) (Config, error) {
	cfg := Default()
	path := c.String("config")
	if err := LoadOverlay(&cfg, path, c.IsSet("config")); err != nil {
		return Config{}, err
	}
	ApplyFlags(&cfg, c)
	return cfg, nil
}
