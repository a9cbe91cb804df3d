package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/web-cat/core/internal/coresrv/authdomain"
	"github.com/web-cat/core/internal/coresrv/config"
	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/server"
	"github.com/web-cat/core/internal/coresrv/store"
	"github.com/web-cat/core/internal/coresrv/usersession"
	"github.com/web-cat/core/internal/coresrv/webcommon"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			return runServer(ctx)
		},
	}
}

func runServer(ctx context.Context) error {
	slog := log.With().Str("state", "init").Logger()

	slog.Info().Str("config_file", configFile).Msg("loading config file")
	if err := config.LoadConfig(configFile); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}

	st, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening object store: %w", err)
	}
	defer st.Close()

	// No other instance holds valid sessions across a restart.
	if err := usersession.PurgeLoginSessions(ctx, st); err != nil {
		return fmt.Errorf("purging login sessions: %w", err)
	}

	registry := authdomain.NewRegistry(st)
	if err := registry.Refresh(ctx, config.Config().Properties); err != nil {
		return fmt.Errorf("refreshing authentication domains: %w", err)
	}

	sessions := usersession.NewManager(
		st,
		registry,
		webcommon.LogNotifier{},
		config.Config().Session.GetTimeoutOrDefault(),
		config.Config().Session.PageCacheSize,
	)

	s, err := server.CreateNewServer(st, registry, sessions)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	s.MountHandlers()

	srv := &http.Server{
		Addr:              ":" + config.Config().ServerPort,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info().Str("addr", srv.Addr).Msg("server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	slog.Info().Msg("server stopped")
	return nil
}

func openStore(ctx context.Context) (store.ObjectStore, error) {
	cfg := config.Config()
	switch cfg.Store.Type {
	case "postgresql":
		return store.NewPgStore(ctx, entity.Schemas(), cfg.DSN(), cfg.Store.MaxChannels)
	case "memory":
		log.Warn().Msg("using in-memory object store; data will not survive a restart")
		return store.NewMemStore(entity.Schemas(), cfg.Store.MaxChannels), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}
