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

	"github.com/edibez/tokenagent/internal/app"
	"github.com/edibez/tokenagent/internal/auth"
	"github.com/edibez/tokenagent/internal/config"
	"github.com/edibez/tokenagent/internal/ratelimit"
	"github.com/edibez/tokenagent/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		logger.Log.Fatal("Failed to init logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewAgent(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to build agent", zap.Error(err))
	}

	s := &server{agent: a.Agent, registry: a.Registry, wsOrigins: cfg.WSOrigins}

	// Auth store and rate limiter are optional
	if cfg.DBPath != "" {
		store, err := auth.NewStore(cfg.DBPath)
		if err != nil {
			logger.Log.Fatal("Failed to initialize auth store", zap.Error(err))
		}
		defer store.Close()
		s.keys = store
	}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewLimiter(ctx, cfg.RedisAddr, cfg.RateLimit)
		if err != nil {
			logger.Log.Fatal("Failed to initialize rate limiter", zap.Error(err))
		}
		defer limiter.Close()
		s.limiter = limiter
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Starting token agent",
			zap.String("port", cfg.Port),
			zap.Int("tokens", a.Registry.Len()),
			zap.Bool("auth", s.keys != nil),
			zap.Bool("rate_limit", s.limiter != nil),
			zap.Bool("classifier", cfg.ClassifierEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Shutdown failed", zap.Error(err))
	}
}
