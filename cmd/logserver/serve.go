package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akave-ai/logserver/internal/config"
	"github.com/akave-ai/logserver/internal/database"
	"github.com/akave-ai/logserver/internal/logstore"
	"github.com/akave-ai/logserver/internal/observability"
	"github.com/akave-ai/logserver/internal/repository"
	"github.com/akave-ai/logserver/internal/server"
	"github.com/akave-ai/logserver/internal/storage"
	"github.com/akave-ai/logserver/internal/token"
)

const newRelicShutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the log server",
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			if ops, _ := cmd.Flags().GetString("ops-addr"); ops != "" {
				cfg.Server.OpsAddr = ops
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("addr", "", "log protocol listen address (overrides LOGSERVER_SERVER__ADDR)")
	cmd.Flags().String("ops-addr", "", "ops API listen address (overrides LOGSERVER_SERVER__OPS_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Observability)

	nrApp, err := observability.NewRelicApp(cfg.Observability, logger)
	if err != nil {
		return err
	}
	if nrApp != nil {
		defer nrApp.Shutdown(newRelicShutdownTimeout)
	}

	keys, err := token.LoadKeyPair(cfg.Keys.PrivateKey, cfg.Keys.PublicKey)
	if err != nil {
		return fmt.Errorf("load keys (run `logserver keygen` first): %w", err)
	}
	store, err := logstore.New(cfg.Storage.LogDir)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Tokens:   token.NewService(keys, cfg.Auth.Issuer),
		Store:    store,
		NewRelic: nrApp,
		Logger:   logger,
	}

	if cfg.Database != nil {
		if err := database.RunMigrations(ctx, cfg.Database.URL, logger); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err := database.NewPool(ctx, cfg.Database, logger, nrApp != nil)
		if err != nil {
			return fmt.Errorf("database pool: %w", err)
		}
		defer pool.Close()
		deps.Journal = repository.NewJournalRepository(pool)
		logger.Info().Msg("journal enabled")
	}

	archive, err := storage.NewArchiver(cfg.Archive)
	if err != nil {
		return fmt.Errorf("archive client: %w", err)
	}
	if archive != nil {
		if err := archive.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("archive ensure bucket failed, uploads may fail")
		}
		deps.Archive = archive
	}

	if cfg.Auth.DebugBypass {
		logger.Warn().Msg("debug bypass enabled: GET /<user>?debug=true skips token checks")
	}

	srv := server.New(cfg, deps)
	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("log_dir", store.Dir()).
		Str("identity", cfg.Server.Identity).
		Msg("starting log server")
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info().Msg("log server stopped")
	return nil
}
