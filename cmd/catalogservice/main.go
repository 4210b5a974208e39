// cmd/catalogservice/main.go

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

	"github.com/alecthomas/kong"
	"github.com/norun9/rocketshoes-cart/catalog"
	"github.com/norun9/rocketshoes-cart/config"
	"github.com/norun9/rocketshoes-cart/telemetry"
	"github.com/sirupsen/logrus"
)

func main() {
	var cfg config.CatalogService
	kong.Parse(&cfg,
		kong.Name("catalogservice"),
		kong.Description("Fake stock and catalog API for local development."),
	)

	log, err := telemetry.NewLogger(cfg.LogLevel, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, "catalogservice", cfg.TraceEndpoint())
		if err != nil {
			log.WithError(err).Fatal("failed to initialize tracer provider")
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("error shutting down tracer provider")
			}
		}()
	}

	seed, err := catalog.LoadSeed(cfg.SeedFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load seed")
	}
	log.WithFields(logrus.Fields{"products": len(seed.Products), "stock": len(seed.Stock)}).Info("seed loaded")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           catalog.NewServer(seed, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("received shutdown signal, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", srv.Addr).Info("catalog HTTP server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("failed to serve")
	}
}
