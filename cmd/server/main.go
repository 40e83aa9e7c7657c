package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"anoa.com/drawsocial/internal/bootstrap"
	"anoa.com/drawsocial/internal/config"
	"anoa.com/drawsocial/internal/logger"
	"anoa.com/drawsocial/internal/modules/search/index"
	"anoa.com/drawsocial/internal/server"
	"anoa.com/drawsocial/pkg/database"
	"anoa.com/drawsocial/pkg/docstore"
	"anoa.com/drawsocial/pkg/storage"
	"github.com/meilisearch/meilisearch-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := database.Connect(cfg.DatabaseURL, cfg.AppEnv == "development")
	if err != nil {
		return err
	}
	if err := bootstrap.Migrate(db); err != nil {
		return err
	}

	var rdb *redis.Client
	var store docstore.Store
	if cfg.RedisURL != "" {
		rdb, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = docstore.NewRedisStore(rdb, cfg.StorePrefix, cfg.StoreMaxTxAttempts, log)
	} else {
		log.Warn("REDIS_URL not set, relationships are kept in memory")
		store = docstore.NewMemoryStore(docstore.WithMaxAttempts(cfg.StoreMaxTxAttempts))
	}

	var userIndex index.UserIndex
	if cfg.MeiliSearchHost != "" {
		host := cfg.MeiliSearchHost
		if !strings.HasPrefix(host, "http") {
			host = "http://" + host + ":7700"
		}
		userIndex, err = index.NewMeiliIndex(meilisearch.New(host, meilisearch.WithAPIKey(cfg.MeiliMasterKey)))
		if err != nil {
			log.Warn("meilisearch settings not applied", slog.String("error", err.Error()))
		}
	} else {
		log.Warn("MEILISEARCH_HOST not set, using in-memory user index")
		userIndex = index.NewMemoryIndex()
	}

	var avatars storage.AvatarResolver
	if cfg.CloudinaryCloudName != "" {
		avatars, err = storage.NewCloudinaryAvatars(cfg.CloudinaryCloudName, cfg.CloudinaryAvatarTransform)
		if err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := server.NewServer(server.Deps{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Store:    store,
		Index:    userIndex,
		Avatars:  avatars,
		Registry: registry,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	if cfg.AppEnv == "development" {
		seeded, err := bootstrap.SeedDemoUsers(ctx, srv.Users(), log)
		if err != nil {
			return err
		}
		if err := srv.Search().IndexUsers(ctx, seeded); err != nil {
			log.Warn("failed to index demo users", slog.String("error", err.Error()))
		}
	}

	srv.StartBackground(ctx)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("port", cfg.Port), slog.String("env", cfg.AppEnv))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	srv.Shutdown(shutdownCtx)
	return nil
}
