package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindmesh/roomcall/internal/logging"
	"github.com/mindmesh/roomcall/internal/server"
	"github.com/mindmesh/roomcall/internal/signaling"
)

const defaultAddr = ":8080"

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Logger().Level(logging.LevelFromEnv())

	addr := defaultAddr
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	hub := signaling.NewHub(l)
	go hub.Run()

	srv := &http.Server{
		Addr:    addr,
		Handler: server.NewRouter(hub, l),
	}

	go func() {
		l.Info().Str("addr", addr).Msg("starting signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("server exited")
}
