package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/manucarbs/marketplace-backend/internal/config"
	kafkax "github.com/manucarbs/marketplace-backend/internal/kafka"
	"github.com/manucarbs/marketplace-backend/internal/notifier"
	"github.com/manucarbs/marketplace-backend/internal/orders"
	"github.com/manucarbs/marketplace-backend/internal/redisx"
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

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{Redis: rdb, Log: log.Named("notifier")}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := atoi(getenv("NOTIFIER_WORKERS", "4"))
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderPaid, workers, log.Named("consumer"))

	log.Info("notifier consumer started",
		zap.String("group", group),
		zap.String("topic", orders.TopicOrderPaid),
		zap.Int("workers", workers))

	if err := cons.Start(ctx, svc.HandleOrderPaid); err != nil {
		log.Error("consumer exit", zap.Error(err))
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}
