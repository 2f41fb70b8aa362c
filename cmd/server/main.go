package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"cajadiaria/backend/internal/cache"
	"cajadiaria/backend/internal/config"
	"cajadiaria/backend/internal/domain"
	"cajadiaria/backend/internal/feed"
	firestorefeed "cajadiaria/backend/internal/feed/firestore"
	memfeed "cajadiaria/backend/internal/feed/memory"
	"cajadiaria/backend/internal/httpapi"
	"cajadiaria/backend/internal/logger"
	"cajadiaria/backend/internal/metrics"
	"cajadiaria/backend/internal/scheduler"
	"cajadiaria/backend/internal/service"
	"cajadiaria/backend/internal/store"
	"cajadiaria/backend/internal/store/memory"
	pgstore "cajadiaria/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.Component("main")

	if err := validateSecurityConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.WithError(err).Fatal("failed to apply schema")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	ledgerCache := cache.LedgerCache(cache.NoopLedgerCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisLedgerCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, using noop cache")
		} else {
			ledgerCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: noop")
	}

	loc := cfg.Location()
	m := metrics.New()

	hub := feed.NewHub(feed.HubOptions{
		Location:     loc,
		LookbackDays: cfg.FeedLookbackDays,
		Metrics:      m,
		Logger:       logger.Component("feed"),
		Notifier: feed.NotifierFunc(func(source domain.Source, err error) {
			log.WithFields(logrus.Fields{"source": source}).WithError(err).Warn("source degraded, figures exclude its updates")
		}),
	})

	var subscriber feed.Subscriber
	if cfg.FirestoreProjectID != "" {
		client, err := firestorefeed.NewClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile)
		if err != nil {
			log.WithError(err).Fatal("firestore unavailable")
		}
		subscriber = firestorefeed.NewSubscriber(client)
		closers = append(closers, client.Close)
		log.WithField("project", cfg.FirestoreProjectID).Info("feed: firestore")
	} else {
		dev := memfeed.New()
		for _, source := range domain.AllSources {
			dev.Publish(source, nil)
		}
		subscriber = dev
		log.Info("feed: in-memory")
	}

	svc := service.New(repo, hub, service.Options{
		Cache:    ledgerCache,
		CacheTTL: cfg.LedgerCacheTTL(),
		Metrics:  m,
		Logger:   logger.Component("service"),
		Location: loc,
	})

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	if err := auth.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.WithError(err).Fatal("failed to provision admin account")
	}

	apiOpts := httpapi.Options{AllowedOrigin: cfg.AllowedOrigin, Feed: hub}
	if cfg.MetricsEnabled {
		apiOpts.Metrics = m.Handler()
		log.Info("metrics: /metrics enabled")
	}
	api := httpapi.New(svc, auth, apiOpts)

	runCtx, stopRun := context.WithCancel(context.Background())

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		hub.Run(runCtx, subscriber)
	}()

	closer := scheduler.NewDayCloser(svc, scheduler.Options{
		Location: loc,
		Offset:   cfg.DayCloseOffset(),
		Metrics:  m,
		Logger:   logger.Component("scheduler"),
	})
	closer.Start(runCtx)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Address()).Info("ledger backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}

	stopRun()
	closer.Stop()
	select {
	case <-feedDone:
	case <-shutdownCtx.Done():
		log.Warn("feed subscriptions did not stop in time")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Warn("close error")
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.DatabaseURL != "" && cfg.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD must be set when DATABASE_URL is used")
	}
	if cfg.AdminPassword != "" {
		if err := validatePasswordStrength(cfg.AdminPassword); err != nil {
			return fmt.Errorf("ADMIN_PASSWORD is too weak: %w", err)
		}
	}
	return nil
}

// validatePasswordStrength rejects short passwords and a small list of
// defaults operators tend to leave in place.
func validatePasswordStrength(password string) error {
	if len(password) < 10 {
		return fmt.Errorf("at least 10 characters required")
	}
	known := map[string]bool{
		"admin12345": true, "password123": true, "1234567890": true,
		"contrasena1": true, "qwertyuiop": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}
	return nil
}
