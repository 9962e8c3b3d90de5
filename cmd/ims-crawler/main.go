package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/app"
	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/server"
)

var (
	configPath   = flag.String("config", "", "Configuration file path")
	configPathC  = flag.String("c", "", "Configuration file path (shorthand)")
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func main() {
	flag.Parse()

	version := common.LoadVersionFromFile()

	if *showVersion || *showVersionV {
		fmt.Printf("ims-crawler version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence: config, logger, banner, app, server.
	path := *configPath
	if path == "" {
		path = *configPathC
	}
	if path == "" {
		// Auto-discover config file next to the working directory
		if _, err := os.Stat("ims-crawler.toml"); err == nil {
			path = "ims-crawler.toml"
		} else if _, err := os.Stat("deployments/local/ims-crawler.toml"); err == nil {
			path = "deployments/local/ims-crawler.toml"
		}
	}

	config, err := common.LoadFromFile(path)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Str("path", path).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if *serverPort != 0 {
		config.Server.Port = *serverPort
	}

	logger := common.InitLogger(config)
	common.PrintBanner(version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	if err := application.CrawlerService.StartCleanup(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start job cleanup scheduler")
		os.Exit(1)
	}

	srv := server.New(application)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server exited with error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
