package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"touristid/internal/digitalid/expiry"
	"touristid/internal/digitalid/handler"
	"touristid/internal/digitalid/reconcile"
	"touristid/internal/digitalid/service"
	jwttoken "touristid/internal/jwt_token"
	"touristid/internal/platform/config"
	"touristid/internal/platform/httpserver"
	"touristid/internal/platform/logger"
	"touristid/pkg/platform/httputil"
)

const shutdownTimeout = 15 * time.Second

// main wires dependencies from the environment, serves HTTP and runs the
// background workers until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := service.New(infra.tx, infra.stores, infra.ledger, infra.keyring, infra.queue,
		service.WithLogger(log),
		service.WithMetrics(infra.metrics),
		service.WithLedgerTimeout(cfg.Ledger.Timeout),
		service.WithStoreTimeout(cfg.StoreTimeout),
		service.WithSweep(cfg.Expiry.BatchSize, cfg.Expiry.Parallelism),
	)
	if err != nil {
		return err
	}

	worker := reconcile.NewWorker(infra.queue, svc,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(infra.metrics),
		reconcile.WithInterval(cfg.Reconcile.Interval),
		reconcile.WithMaxAttempts(cfg.Reconcile.MaxAttempts),
	)
	scheduler := expiry.New(svc,
		expiry.WithLogger(log),
		expiry.WithInterval(cfg.Expiry.Interval),
		expiry.WithLocker(infra.locker),
	)

	jwt := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	router := chi.NewRouter()
	router.Get("/health", infra.healthHandler)
	router.Handle("/metrics", infra.registry.Handler())
	handler.New(svc, jwttoken.NewJWTServiceAdapter(jwt), log).
		WithTimeout(cfg.StoreTimeout + cfg.Ledger.Timeout).
		Register(router)

	srv := httpserver.New(cfg.Addr, router, cfg.StoreTimeout+cfg.Ledger.Timeout+5*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	if infra.relay != nil {
		g.Go(func() error { return infra.relay.Run(gctx) })
	}
	g.Go(func() error {
		log.Info("starting touristid",
			"addr", cfg.Addr,
			"postgres", infra.db != nil,
			"redis", infra.redis != nil,
			"kafka", infra.relay != nil,
			"local_ledger", cfg.LocalOnly(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (i *infra) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if i.db != nil {
		status["postgres"] = "ok"
		if err := i.db.PingContext(ctx); err != nil {
			status["postgres"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if i.redis != nil {
		status["redis"] = "ok"
		if err := i.redis.Health(ctx); err != nil {
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	httputil.WriteJSON(w, code, status)
}
