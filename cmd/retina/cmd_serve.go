package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/retinalabs/retina/internal/cache"
	"github.com/retinalabs/retina/internal/config"
	"github.com/retinalabs/retina/internal/guardrail"
	"github.com/retinalabs/retina/internal/notify"
	"github.com/retinalabs/retina/internal/persistence"
	"github.com/retinalabs/retina/internal/persistence/postgres"
	"github.com/retinalabs/retina/internal/refresh"
	"github.com/retinalabs/retina/internal/stream"

	httpiface "github.com/retinalabs/retina/internal/interfaces/http"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and outcome stream",
		Long: `Starts the JSON API (/simulate, /outcomes, guardrail CRUD), the
websocket outcome stream, and the Prometheus scrape endpoint.`,
		RunE: runServe,
	}
	cmd.Flags().String("templates", "", "Guardrail template profiles file (YAML)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	store, closeStore, err := buildStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var notifier guardrail.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout,
			cfg.Notify.RatePerSec, cfg.Notify.Burst)
		log.Info().Str("url", cfg.Notify.WebhookURL).Msg("webhook notifications enabled")
	}
	engine := guardrail.NewEngine(store, notifier)

	var resultCache *cache.ResultCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(cmd.Context()).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		resultCache = cache.New(client, cfg.Redis.TTL)
		defer client.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("result cache enabled")
	}

	debouncer := refresh.New(cfg.Refresh.Debounce, func(decisionID string) {
		// Clients poll /simulate with their stored inputs; the coalesced
		// signal just marks the decision stale.
		log.Info().Str("decision_id", decisionID).Msg("decision marked stale, recompute advised")
	})
	defer debouncer.Close()

	var templates *config.TemplatesConfig
	if path, _ := cmd.Flags().GetString("templates"); path != "" {
		templates, err = config.LoadTemplates(path)
		if err != nil {
			return err
		}
		log.Info().Int("profiles", len(templates.Profiles)).Msg("guardrail templates loaded")
	}

	server := httpiface.NewServer(cfg, httpiface.Deps{
		Store:     store,
		Engine:    engine,
		Cache:     resultCache,
		Debouncer: debouncer,
		Templates: templates,
		Stream:    stream.NewHandler(engine, debouncer),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

func buildStore(ctx context.Context, cfg config.Config) (persistence.Store, func(), error) {
	if cfg.Postgres.DSN == "" {
		log.Warn().Msg("no postgres DSN configured, guardrail state is in-memory only")
		return persistence.NewMemoryStore(), func() {}, nil
	}

	store, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Postgres.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	log.Info().Msg("postgres store connected")
	return store, func() { store.Close() }, nil
}
