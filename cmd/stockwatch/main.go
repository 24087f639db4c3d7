package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gretalab/go-commerce-orders/internal/catalog"
	"github.com/gretalab/go-commerce-orders/internal/config"
	kafkax "github.com/gretalab/go-commerce-orders/internal/kafka"
	"github.com/gretalab/go-commerce-orders/internal/orders"
	"github.com/gretalab/go-commerce-orders/internal/postgres"
	"github.com/gretalab/go-commerce-orders/internal/redisx"
	"github.com/gretalab/go-commerce-orders/internal/stockwatch"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	svc := &stockwatch.Service{
		Stock:       &catalog.Repo{DB: db},
		Cache:       redisx.NewCache(rdb),
		Producer:    prod,
		ServiceName: cfg.ServiceName + "-stockwatch",
		Threshold:   cfg.LowStockThreshold,
		Log:         log,
	}

	group := getenv("STOCKWATCH_GROUP", "stockwatch-svc")
	workers := mustAtoi(os.Getenv("STOCKWATCH_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderPlaced, workers, log)

	go func() {
		log.Info("stockwatch consumer started",
			zap.String("group", group),
			zap.String("topic", orders.TopicOrderPlaced),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleOrderPlaced); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
