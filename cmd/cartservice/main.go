// cmd/cartservice/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/norun9/rocketshoes-cart/cart"
	"github.com/norun9/rocketshoes-cart/cartstore"
	"github.com/norun9/rocketshoes-cart/catalog"
	"github.com/norun9/rocketshoes-cart/config"
	"github.com/norun9/rocketshoes-cart/notify"
	"github.com/norun9/rocketshoes-cart/services"
	"github.com/norun9/rocketshoes-cart/telemetry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	var cfg config.CartService
	kong.Parse(&cfg,
		kong.Name("cartservice"),
		kong.Description("Shopping cart API backed by a persistent cart store."),
	)

	log, err := telemetry.NewLogger(cfg.LogLevel, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("cartservice stopped")
	}
}

func run(ctx context.Context, cfg config.CartService, log *logrus.Logger) error {
	// ----------------------------------------------------------------
	// 1) OpenTelemetry
	if cfg.OTelEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, "cartservice", cfg.TraceEndpoint())
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("error shutting down tracer provider")
			}
		}()

		if !cfg.OTelStdout {
			mp, err := telemetry.InitMeterProvider(ctx, "cartservice", cfg.OTelEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				if err := mp.Shutdown(context.Background()); err != nil {
					log.WithError(err).Warn("error shutting down meter provider")
				}
			}()
		}
		log.WithFields(logrus.Fields{"endpoint": cfg.OTelEndpoint, "stdout": cfg.OTelStdout}).Info("OpenTelemetry initialized")
	}
	// ----------------------------------------------------------------

	// ----------------------------------------------------------------
	// 2) Cart store (REDIS_ADDR selects Redis, otherwise memory)
	var store cartstore.ICartStore
	if addr := cfg.RedisAddress(); addr != "" {
		redisStore, err := cartstore.NewRedisCartStore(addr, log)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		store = redisStore
		log.WithField("addr", addr).Info("using RedisCartStore")
	} else {
		store = cartstore.NewLocalCartStore(log)
		log.Info("using LocalCartStore")
	}
	if err := store.Initialize(ctx); err != nil {
		return err
	}
	// ----------------------------------------------------------------

	// ----------------------------------------------------------------
	// 3) Stock/catalog client, notifications and the cart itself
	client, err := catalog.NewClient(cfg.APIURL, catalog.WithTimeout(cfg.APITimeout))
	if err != nil {
		return err
	}
	notifier := notify.Multi{notify.NewLogNotifier(log), notify.ContextRecorder{}}

	container, err := cart.New(ctx, store, client, notifier, cart.WithLogger(log))
	if err != nil {
		return err
	}
	// ----------------------------------------------------------------

	// ----------------------------------------------------------------
	// 4) gRPC health server and HTTP API
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthpb.RegisterHealthServer(grpcServer, services.NewHealthCheckService(store, log))

	healthAddr := fmt.Sprintf(":%s", cfg.HealthPort)
	lis, err := net.Listen("tcp", healthAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", healthAddr, err)
	}

	httpServer := newHTTPServer(fmt.Sprintf(":%s", cfg.Port), services.NewCartHandler(container, log))

	errCh := make(chan error, 2)
	go func() {
		log.WithField("addr", healthAddr).Info("health gRPC server listening")
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		log.WithField("addr", httpServer.Addr).Info("cart HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	// ----------------------------------------------------------------

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, initiating graceful shutdown")
	case err := <-errCh:
		if err != nil {
			grpcServer.Stop()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	grpcServer.GracefulStop()
	return nil
}

// newHTTPServer returns a server whose request contexts are cancelled when
// Shutdown starts, so open /cart/events streams end instead of holding the
// shutdown until its deadline.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}
