package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/edgechat/internal/config"
	"github.com/harun/edgechat/internal/logger"
	"github.com/harun/edgechat/internal/metrics"
	"github.com/harun/edgechat/internal/web"
	"github.com/harun/edgechat/pkg/chat"
	"github.com/harun/edgechat/pkg/generate"
	"github.com/harun/edgechat/pkg/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Run the chat server in the foreground. The server exposes the
browser client on /, the chat API on /api/chat, and health and metrics
endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logw, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logw.Close()
	zl := logw.GetZerolog()

	m := metrics.NewMetrics()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if closer, ok := st.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	gen, err := generate.New(generate.Options{
		Provider:  cfg.Model.Provider,
		APIKey:    cfg.Model.APIKey,
		AccountID: cfg.Model.AccountID,
		BaseURL:   cfg.Model.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	manager, err := chat.NewManager(st, gen, chat.Options{
		Model:           cfg.Model.Name,
		MaxTurns:        cfg.Chat.MaxTurns,
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
		SystemPrompt:    cfg.Chat.SystemPrompt,
		MaxStoredTurns:  cfg.Store.MaxStoredTurns,
	}, zl, m)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}

	router, err := chat.NewRouter(manager, chat.RouterOptions{
		MissingIDPolicy: cfg.Chat.MissingIDPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	if cfg.Retention.Enabled {
		sweeper, err := chat.NewSweeper(st, cfg.Retention.MaxAge, cfg.Retention.SweepSchedule, zl, m)
		if err != nil {
			return fmt.Errorf("failed to create retention sweeper: %w", err)
		}
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start retention sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	server, err := web.NewServer(web.ServerOptions{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, router, m, zl)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Pick up log-level edits without a restart
	watcher, err := config.NewWatcher(loader.GetConfigPath(), zl, func() {
		reloaded, err := loader.Load()
		if err != nil {
			zl.Warn().Err(err).Msg("Config reload failed, keeping current settings")
			return
		}
		if err := logger.SetLevel(reloaded.Logging.Level); err != nil {
			zl.Warn().Err(err).Msg("Invalid log level in reloaded config")
			return
		}
		zl.Info().Str("level", reloaded.Logging.Level).Msg("Log level updated")
	})
	if err != nil {
		zl.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		return server.Stop()
	case err := <-errCh:
		return err
	}
}

func openStore(cfg *config.Config) (chat.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.Path)
	case "file":
		return store.NewFileStore(cfg.Store.Path)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
