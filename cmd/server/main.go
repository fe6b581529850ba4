package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/athlia-api/internal/config"
	"github.com/iliyamo/athlia-api/internal/database"
	"github.com/iliyamo/athlia-api/internal/handler"
	"github.com/iliyamo/athlia-api/internal/logging"
	"github.com/iliyamo/athlia-api/internal/metrics"
	"github.com/iliyamo/athlia-api/internal/middleware"
	"github.com/iliyamo/athlia-api/internal/queue"
	"github.com/iliyamo/athlia-api/internal/repository"
	"github.com/iliyamo/athlia-api/internal/router"
	"github.com/iliyamo/athlia-api/internal/service"
	"github.com/iliyamo/athlia-api/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.SetDefault("athlia-api", cfg.LogFormat, cfg.LogLevel)

	tokens, err := utils.NewTokenService(cfg.TokenSecret,
		time.Duration(cfg.AccessTTLSeconds)*time.Second,
		time.Duration(cfg.RefreshTTLSeconds)*time.Second)
	if err != nil {
		logger.Error("token service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	var consumers sync.WaitGroup
	var events service.EventPublisher = service.NopPublisher{}
	if cfg.Events.Enabled {
		events = service.NewPublisher(cfg.Events.URL, cfg.Events.Queue)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := queue.StartAccountConsumer(ctx, cfg.Events.URL, cfg.Events.Queue, cfg.Events.LogDir); err != nil {
				logger.Error("account consumer stopped", "error", err)
			}
		}()
	}

	m := metrics.New()
	accounts := repository.NewAccountRepo(db)
	profiles := repository.NewProfileRepo(db)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(m.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.CORSAllowOrigins}))
	e.Use(echomw.BodyLimit("1M"))

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	router.RegisterRoutes(e, m)
	router.RegisterAuth(e, handler.NewAuthHandler(accounts, tokens, events, m), tokens, accounts, m, limiter)
	router.RegisterUsers(e, handler.NewUsersHandler(profiles, events), tokens, accounts, m)

	addr := ":" + cfg.Port
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()
	logger.Info("athlia-api started", "addr", addr, "env", cfg.Env, "events", cfg.Events.Enabled)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return
	}

	// the consumer returns once ctx is done
	if !waitGroupDone(shutdownCtx, &consumers) {
		logger.Warn("account consumer did not stop in time")
	}
	logger.Info("athlia-api stopped cleanly")
}

// waitGroupDone waits for wg until ctx ends and reports whether wg finished.
func waitGroupDone(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
