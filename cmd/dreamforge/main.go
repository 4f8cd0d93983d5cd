// Command dreamforge runs the job-orchestration control plane: it loads
// configuration, wires the application, and serves the HTTP API until
// interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/dreamforge/internal/app"
	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/server"
)

func main() {
	configPath := flag.String("config", "dreamforge.toml", "path to the TOML configuration file")
	port := flag.Int("port", 0, "override the configured server port")
	host := flag.String("host", "", "override the configured server host")
	flag.Parse()

	cfg, err := common.LoadFromFiles(*configPath)
	if err != nil {
		panic(err)
	}
	common.ApplyFlagOverrides(cfg, *port, *host)
	common.LoadVersionFromFile()

	logger := common.SetupLogger(cfg)
	defer common.Stop()

	common.PrintBanner(cfg, logger)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer application.Close()

	srv := server.New(application)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	common.PrintShutdownBanner(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}
