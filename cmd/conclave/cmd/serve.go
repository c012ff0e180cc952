package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/covalent-hq/conclave/internal/api"
	"github.com/covalent-hq/conclave/internal/cache"
	"github.com/covalent-hq/conclave/internal/config"
	"github.com/covalent-hq/conclave/internal/events"
	"github.com/covalent-hq/conclave/internal/logging"
	"github.com/covalent-hq/conclave/internal/runtime"
	"github.com/covalent-hq/conclave/internal/session"
	"github.com/covalent-hq/conclave/internal/storage"
	"github.com/covalent-hq/conclave/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordination server",
	Long: `Start the conclave server.

The server hosts one actor per entity id (chat room, cache namespace,
workflow execution, terminal session, document) with durable state and
per-entity SSE event streams.

Examples:
  # Start with defaults (localhost:8080)
  conclave serve

  # Start on custom host and port
  conclave serve --host 0.0.0.0 --port 3000

  # Use the JSON file storage backend
  conclave serve --storage-backend json`,
	RunE: runServe,
}

var (
	serveHost    string
	servePort    int
	serveNoCORS  bool
	serveBackend string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "",
		"Host address to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"Port to listen on")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false,
		"Disable CORS headers")
	serveCmd.Flags().StringVar(&serveBackend, "storage-backend", "",
		"Storage backend (sqlite, json)")
}

func runServe(_ *cobra.Command, _ []string) error {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flags override config file values.
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveNoCORS {
		cfg.Server.EnableCORS = false
	}
	if serveBackend != "" {
		cfg.Storage.Backend = serveBackend
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})

	events.DefaultBufferSize = cfg.Runtime.EventBufferSize

	store, err := storage.New(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("failed to close storage", "error", closeErr)
		}
	}()
	logger.Info("storage initialized",
		"backend", cfg.Storage.Backend, "path", cfg.Storage.Path)

	rt := runtime.New(
		runtime.WithLogger(logger.Logger),
		runtime.WithMaxActiveActors(cfg.Runtime.MaxActiveActors),
	)
	defer rt.Close()

	rt.RegisterKind(cache.Kind, cache.NewFactory(store, logger.Logger, cfg.Cache.SweepInterval))
	rt.RegisterKind(workflow.Kind, workflow.NewFactory(store, logger.Logger))
	rt.RegisterKind(session.ChatKind, session.NewChatFactory(store, logger.Logger))
	rt.RegisterKind(session.TerminalKind, session.NewTerminalFactory(store, logger.Logger))
	rt.RegisterKind(session.DocumentKind, session.NewDocumentFactory(store, logger.Logger))
	for _, kind := range session.LogKinds {
		rt.RegisterKind(kind, session.NewLogFactory(kind, store, logger.Logger))
	}

	server := api.NewServer(rt,
		api.WithLogger(logger.Logger),
		api.WithCORS(cfg.Server.EnableCORS),
	)

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		return server.ListenAndServe(ctx, addr)
	})

	if path := loader.ConfigFileUsed(); path != "" {
		watcher := config.NewWatcher(path, logger.Logger, func(next *config.Config) {
			logger.SetLevel(next.Log.Level)
		})
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
