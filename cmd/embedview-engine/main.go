package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/chrome"
	"github.com/embedview/embedview/internal/config"
	"github.com/embedview/embedview/internal/logging"
	"github.com/embedview/embedview/internal/remote"
)

func main() {
	configPath := flag.String("config", "embedview.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	launcher := chrome.NewLauncher(cfg.Engine.Chrome,
		chrome.WithLogger(logger.Named("chrome")),
		chrome.WithDefaultSize(cfg.Surface.Width, cfg.Surface.Height),
	)
	server := remote.NewServer(launcher,
		remote.WithServerLogger(logger.Named("remote")),
		remote.WithAuthToken(cfg.Server.Token),
		remote.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)
	defer server.Close()

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := remote.ListenAndServe(ctx, cfg.Server.Addr(), mux, logger); err != nil {
		logger.Error("embedview-engine: server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("embedview-engine: shut down")
}
