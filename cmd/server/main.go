package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"accwatch/internal/accounts"
	"accwatch/internal/authclient"
	"accwatch/internal/cache"
	"accwatch/internal/config"
	"accwatch/internal/handlers"
	"accwatch/internal/logging"
	"accwatch/internal/runner"
	"accwatch/internal/runtime"
	"accwatch/internal/server"
	"accwatch/internal/source"
	"accwatch/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *debug {
		cfg.Security.Debug = true
	}
	if err := logging.Setup(cfg.Security.Debug, cfg.Security.LogFile); err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	if err := run(cfg, *configPath); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func run(cfg *config.Config, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := source.NewHTTPFetcher(cfg.Source.URL,
		source.WithUserAgent(cfg.Source.UserAgent),
		source.WithMaxAttempts(cfg.Source.MaxAttempts),
	)
	verifiers := func(region string) cache.Verifier {
		if region == "" {
			region = cfg.Auth.Region
		}
		return authclient.New(cfg.Auth.BaseURL,
			authclient.WithRegion(region),
			authclient.WithTimeout(cfg.Auth.Timeout()),
		)
	}

	policy := policyFromConfig(cfg.Refresh)

	opts := []cache.Option{
		cache.WithTTL(cfg.Refresh.TTL()),
		cache.WithPolicy(policy),
	}
	var store *storage.SnapshotStore
	if cfg.Refresh.StatePath != "" {
		store = storage.NewSnapshotStore(cfg.Refresh.StatePath)
		opts = append(opts, cache.WithCycleDoneHook(func(snap accounts.Snapshot) {
			if err := store.Save(snap); err != nil {
				log.WithError(err).Warn("persist snapshot failed")
			}
		}))
	}

	c := cache.New(fetcher, verifiers(""), opts...)
	defer c.Close()

	if store != nil {
		if snap, ok, err := store.Load(); err != nil {
			log.WithError(err).Warn("load persisted snapshot failed")
		} else if ok {
			c.Seed(snap)
			log.WithField("accounts", len(snap.Accounts)).Info("seeded cache from disk")
		}
	}

	tm := runtime.NewTaskManager(ctx)
	if err := tm.Start("refresh-poller", "periodic snapshot refresh", func(ctx context.Context) error {
		return c.RunPeriodic(ctx, cfg.Refresh.PollInterval())
	}); err != nil {
		return err
	}
	if err := tm.Start("config-watcher", "hot reload of refresh settings", func(ctx context.Context) error {
		return config.Watch(ctx, configPath, func(next *config.Config) {
			c.SetTTL(next.Refresh.TTL())
			c.SetPolicy(policyFromConfig(next.Refresh))
			log.Info("refresh settings reloaded")
		})
	}); err != nil {
		return err
	}

	h := handlers.New(c, verifiers, policy, cfg.Security.RefreshKey)
	srv := &http.Server{
		Addr:    server.Addr(cfg),
		Handler: server.NewEngine(cfg, h),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	tm.StopAll()
	tm.Wait()
	return nil
}

func policyFromConfig(r config.RefreshConfig) runner.Policy {
	kind, err := runner.ParseKind(r.Policy)
	if err != nil {
		kind = runner.PolicySequential
	}
	return runner.Policy{
		Kind:        kind,
		Delay:       r.Delay(),
		BatchSize:   r.BatchSize,
		MaxParallel: r.MaxParallel,
	}
}
