package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestDefaultHasUsableValues(t *testing.T) {
	cfg := Default()
	require.NotEmpty(t, cfg.Host)
	require.NotZero(t, cfg.Port)
	require.Equal(t, DefaultCertFile, cfg.CertFile)
	require.Equal(t, DefaultKeyFile, cfg.KeyFile)
}

func TestLoadOverlayAppliesYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9443\nlogLevel: debug\n"), 0o600))

	cfg := Default()
	require.NoError(t, LoadOverlay(&cfg, path, true))
	require.Equal(t, 9443, cfg.Port)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, DefaultCertFile, cfg.CertFile, "fields absent from the overlay keep their default")
}

func TestLoadOverlayMissingImplicitPathIsNotAnError(t *testing.T) {
	cfg := Default()
	err := LoadOverlay(&cfg, filepath.Join(t.TempDir(), "does-not-exist.yml"), false)
	require.NoError(t, err)
}

func TestLoadOverlayMissingExplicitPathIsAnError(t *testing.T) {
	cfg := Default()
	err := LoadOverlay(&cfg, filepath.Join(t.TempDir(), "does-not-exist.yml"), true)
	require.Error(t, err)
}

func TestApplyFlagsOnlyOverridesExplicitlySetFlags(t *testing.T) {
	flagSet := flag.NewFlagSet(t.Name(), flag.PanicOnError)
	flagSet.Int("port", 0, "")
	flagSet.String("host", "", "")
	c := cli.NewContext(cli.NewApp(), flagSet, nil)
	require.NoError(t, c.Set("port", "9999"))

	cfg := Default()
	cfg.Host = "overlay-host"
	ApplyFlags(&cfg, c)

	require.Equal(t, 9999, cfg.Port, "explicitly set flag overrides the overlay value")
	require.Equal(t, "overlay-host", cfg.Host, "unset flag leaves the overlay value untouched")
}
