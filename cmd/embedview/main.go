package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/embedview/embedview/internal/app"
	"github.com/embedview/embedview/internal/assets"
	"github.com/embedview/embedview/internal/bridge"
	"github.com/embedview/embedview/internal/chrome"
	"github.com/embedview/embedview/internal/config"
	"github.com/embedview/embedview/internal/engine"
	"github.com/embedview/embedview/internal/frame"
	"github.com/embedview/embedview/internal/logging"
	"github.com/embedview/embedview/internal/remote"
	"github.com/embedview/embedview/internal/view"
)

func main() {
	configPath := flag.String("config", "embedview.yaml", "Path to config file")
	initialURL := flag.String("url", "", "Page to open (overrides surface.initial_url)")
	remoteURL := flag.String("remote", "", "WebSocket URL of an embedview-engine server")
	token := flag.String("token", "", "Auth token for the engine server")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *initialURL != "" {
		cfg.Surface.InitialURL = *initialURL
	}
	if *remoteURL != "" {
		cfg.Engine.Kind = config.EngineRemote
		cfg.Engine.RemoteURL = *remoteURL
	}
	if *token != "" {
		cfg.Engine.Token = *token
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The terminal is ours: only log to a file.
	logger, err := logging.NewForTerminal(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("embedview: exiting", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	clock := frame.NewTickerClock(cfg.Scroll.FPS, frame.WithLogger(logger.Named("frame")))
	defer clock.Close()

	dispatch := app.NewDispatcher(logger.Named("ui"))
	defer dispatch.Close()

	files := bridge.NewFileProvider(assets.Store(cfg.Assets.Dir), logger.Named("files"))
	v := view.New(newLauncher(cfg, logger), dispatch, clock,
		view.WithLogger(logger.Named("view")),
		view.WithFiles(files),
		view.WithInitialURL(cfg.Surface.InitialURL),
		view.WithScrollConfig(cfg.Scroll.Controller()),
	)
	defer v.Close()

	m := app.New(v, app.Options{
		Cells: app.Cells{Width: cfg.Surface.CellWidth, Height: cfg.Surface.CellHeight},
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	dispatch.Attach(p)

	_, err := p.Run()
	return err
}

func newLauncher(cfg *config.Config, logger *zap.Logger) engine.Launcher {
	if cfg.Engine.Kind == config.EngineRemote {
		return &remote.Launcher{
			URL:    cfg.Engine.RemoteURL,
			Token:  cfg.Engine.Token,
			Logger: logger.Named("remote"),
		}
	}
	return chrome.NewLauncher(cfg.Engine.Chrome,
		chrome.WithLogger(logger.Named("chrome")),
		chrome.WithDefaultSize(cfg.Surface.Width, cfg.Surface.Height),
	)
}
