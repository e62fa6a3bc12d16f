package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/manucarbs/marketplace-backend/internal/checkout"
	"github.com/manucarbs/marketplace-backend/internal/config"
	"github.com/manucarbs/marketplace-backend/internal/httpx"
	kafkax "github.com/manucarbs/marketplace-backend/internal/kafka"
	"github.com/manucarbs/marketplace-backend/internal/metrics"
	"github.com/manucarbs/marketplace-backend/internal/orders"
	"github.com/manucarbs/marketplace-backend/internal/payments"
	"github.com/manucarbs/marketplace-backend/internal/postgres"
	"github.com/manucarbs/marketplace-backend/internal/redisx"
	"github.com/manucarbs/marketplace-backend/internal/stock"
	"github.com/manucarbs/marketplace-backend/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("kafka"))
	prod.Start(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCheckout(reg)

	gateway := payments.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayKey, cfg.GatewayTimeout)

	svc := &checkout.Service{
		Orders:          &orders.Repo{DB: db},
		Carts:           &orders.CartRepo{DB: db},
		Ledger:          &stock.Repo{DB: db},
		Gateway:         gateway,
		Producer:        prod,
		Cache:           rdb,
		Metrics:         m,
		Log:             log.Named("checkout"),
		ServiceName:     cfg.ServiceName,
		GatewayAttempts: cfg.GatewayAttempts,
	}

	sw := &sweeper.Sweeper{
		Orders:      &orders.Repo{DB: db},
		Gateway:     gateway,
		Producer:    prod,
		Metrics:     m,
		Log:         log.Named("sweeper"),
		ServiceName: cfg.ServiceName,
		PendingTTL:  cfg.PendingTTL,
		Interval:    cfg.SweepInterval,
	}

	router := httpx.NewRouter(log.Named("http"))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	(&httpx.CheckoutHandler{Service: svc, Products: &orders.Repo{DB: db}}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sw.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", zap.Error(err))
	}

	prod.WaitClosed() // producer flushes once ctx is cancelled
	log.Info("bye")
}
