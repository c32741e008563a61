// cmd/server/root.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/memorymatch/internal/cache"
	"github.com/jason-s-yu/memorymatch/internal/config"
	"github.com/jason-s-yu/memorymatch/internal/database"
	"github.com/jason-s-yu/memorymatch/internal/deck"
	"github.com/jason-s-yu/memorymatch/internal/game"
	"github.com/jason-s-yu/memorymatch/internal/handlers"
	"github.com/jason-s-yu/memorymatch/internal/hub"
	"github.com/jason-s-yu/memorymatch/internal/identity"
	"github.com/jason-s-yu/memorymatch/internal/rooms"
	"github.com/jason-s-yu/memorymatch/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "memorymatch",
		Short:         "Multiplayer memory card-matching room server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(cfgFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "optional config file (yaml, toml or json)")
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().String("store_backend", config.BackendMemory, "room store: memory, redis or postgres")
	cmd.Flags().String("log_level", "info", "log level")
	return cmd
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := cache.NewRedisClient(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(rdb, cfg.RedisKeyPrefix), func() { rdb.Close() }, nil
	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	defer closeStore()
	logger.Infof("Using %s room store", cfg.StoreBackend)

	provider, err := deck.NewThemeProvider(deck.Config{
		Pairs:        cfg.DeckPairs,
		FetchTimeout: cfg.ThemeFetchTimeout,
		CacheTTL:     cfg.ThemeCacheTTL,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer provider.Close()

	expiry, err := cfg.TokenExpiry()
	if err != nil {
		return err
	}
	iss, err := identity.NewIssuer(cfg.IdentitySecret, expiry)
	if err != nil {
		return err
	}
	if cfg.IdentitySecret == "" {
		logger.Warn("IDENTITY_SECRET is empty; player tokens are valid for this process only")
	}

	engine := game.NewEngine(cfg.MismatchDelay)
	h := hub.New(logger)
	dir := rooms.NewDirectory(st, engine, provider, h, rooms.Options{
		Grace:  cfg.DisconnectGrace,
		Logger: logger,
	})
	defer dir.Close()

	rs := &handlers.RoomServer{
		Directory:   dir,
		Hub:         h,
		Identity:    iss,
		Deck:        provider,
		Engine:      engine,
		Logger:      logger,
		Origins:     cfg.Origins(),
		ActionRate:  rate.Limit(cfg.ActionRate),
		ActionBurst: cfg.ActionBurst,
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           rs.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
