package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gainfair/internal/config"
	"gainfair/internal/logging"
	"gainfair/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg)
	log.Info().Str("version", version.Current().String()).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup")
	}
	defer a.Close()

	var workers sync.WaitGroup
	for _, job := range a.jobs {
		workers.Add(1)
		go func(job func(context.Context)) {
			defer workers.Done()
			job(ctx)
		}(job)
	}

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := hsrv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
	if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server")
		stop()
	}
	workers.Wait()
	log.Info().Msg("stopped")
}
