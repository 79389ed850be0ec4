package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/4cecoder/raceroom/config"
	"github.com/4cecoder/raceroom/handlers"
	"github.com/4cecoder/raceroom/room"
	"github.com/4cecoder/raceroom/telemetry"
)

func main() {
	logger := telemetry.WrapLogger(log.Default())
	cfg := config.Load(logger)
	logger.Printf("starting race room server: %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := room.NewManager(ctx, cfg.RoomOptions(logger))
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handlers.NewServer(manager, cfg, logger).Routes(),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("Server started on %s", cfg.Addr())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Printf("room shutdown: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
