package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"sql2csv/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("SQL2CSV_CONFIG"))
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("Load configuration")
	}
	logger := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newServer(ctx, cfg, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown")
		}
	}()

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("data_dir", cfg.Server.DataDir).
		Msg("sql2csv server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("Serve")
	}
}
