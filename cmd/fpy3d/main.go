// Command fpy3d runs the HTTP/3-over-QUIC bridge as a standalone process:
// it resolves configuration, builds a logger and metrics registry, starts
// the metrics HTTP listener alongside the QUIC listener, and runs the QUIC
// accept loop, the metrics server and the executor loop concurrently under
// an errgroup until it receives a termination signal. Wiring is grounded on cloudflared's cmd/cloudflared entrypoint
// (flags -> config.Resolve -> logger.Create -> component construction ->
// run until signalled), trimmed to this bridge's single service instead of
// cloudflared's many subcommands.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wku/fpy3/apphandler"
	"github.com/wku/fpy3/bridge"
	"github.com/wku/fpy3/config"
	"github.com/wku/fpy3/executor"
	"github.com/wku/fpy3/logger"
	"github.com/wku/fpy3/metrics"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "fpy3d",
		Usage:   "HTTP/3-over-QUIC transport-to-application bridge",
		Version: version,
		Flags:   config.Flags(),
		Action:  run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fpy3d:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Resolve(c)
	if err != nil {
		return err
	}

	logLevel := cfg.LogLevel
	if cfg.Debug {
		// The per-connection/stream event traces are logged at debug level.
		logLevel = "debug"
	}
	log := logger.Create(logger.NewConfig(logLevel, cfg.LogDirectory))

	tlsConfig, err := config.BuildTLSConfig(cfg)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()

	loop := executor.New(0)
	state := bridge.NewServerState(loop, apphandler.EchoHandler{}, cfg.Debug, *log, reg)
	srv := bridge.NewServer(
		state,
		tlsConfig,
		cfg.Host,
		cfg.Port,
		time.Duration(cfg.IdleTimeoutSeconds)*time.Second,
		cfg.MaxBidiStreams,
		cfg.MaxUniStreams,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	metricsListener, err := net.Listen("tcp", cfg.MetricsAddress)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.Serve(egCtx) })
	eg.Go(func() error { return metrics.Serve(egCtx, metricsListener, 0, *log) })
	eg.Go(func() error { return loop.Run(egCtx) })

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	loop.Stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("error waiting for connections to drain")
	}

	if err := eg.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
