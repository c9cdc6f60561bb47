package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/gomoku-arena/arena-backend/internal/config"
	"github.com/gomoku-arena/arena-backend/internal/httpapi"
	"github.com/gomoku-arena/arena-backend/internal/hub"
	"github.com/gomoku-arena/arena-backend/internal/reward"
	"github.com/gomoku-arena/arena-backend/internal/room"
	"github.com/gomoku-arena/arena-backend/internal/series"
	"github.com/gomoku-arena/arena-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	rewards := reward.NewService(st, logger)
	coord := series.NewCoordinator(st, rewards, logger)

	h := hub.NewHub(ctx, func(ctx context.Context, rcfg room.Config, snap *room.Resume) *room.Room {
		return room.New(ctx, rcfg, room.Deps{
			Store:  st,
			Series: coord,
			Log:    logger,
			Resume: snap,
		})
	})

	api := &httpapi.API{
		Hub:          h,
		Series:       coord,
		Store:        st,
		Log:          logger,
		TimeBudget:   cfg.TimeBudget,
		GraceTimeout: cfg.GraceTimeout,
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(api),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
