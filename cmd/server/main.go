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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dustfall/arcade-backend/internal/config"
	"github.com/dustfall/arcade-backend/internal/directory"
	"github.com/dustfall/arcade-backend/internal/httpapi"
	"github.com/dustfall/arcade-backend/internal/registry"
	"github.com/dustfall/arcade-backend/internal/room"
	"github.com/dustfall/arcade-backend/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.Load()

	log, err := buildLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(cfg.SendQueueSize, log)
	dir := directory.New(ctx, cfg, reg, log, room.LogScores{Log: log})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(dir, ws.NewHandler(dir, reg, log)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		dir.Shutdown("server shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		reg.CloseAll()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("goodbye")
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
