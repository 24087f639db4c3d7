package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gretalab/go-commerce-orders/internal/catalog"
	"github.com/gretalab/go-commerce-orders/internal/config"
	"github.com/gretalab/go-commerce-orders/internal/httpx"
	kafkax "github.com/gretalab/go-commerce-orders/internal/kafka"
	"github.com/gretalab/go-commerce-orders/internal/orders"
	"github.com/gretalab/go-commerce-orders/internal/postgres"
	"github.com/gretalab/go-commerce-orders/internal/redisx"
	"github.com/gretalab/go-commerce-orders/internal/stock"
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
	cache := redisx.NewCache(rdb)

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	ledger := &stock.Ledger{DB: db}
	catalogRepo := &catalog.Repo{DB: db}
	store := &orders.Repo{DB: db}

	engine := &orders.Engine{Ledger: ledger, Catalog: catalogRepo, Store: store, Log: log}
	lifecycle := &orders.Lifecycle{Store: store, Log: log}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Engine:    engine,
		Lifecycle: lifecycle,
		Store:     store,
		Cache:     cache,
		Producer:  prod,
		Service:   cfg.ServiceName,
		Timeout:   cfg.RequestTimeout,
		Log:       log,
	}
	oh.Register(router)
	ph := &httpx.ProductsHandler{
		Catalog:  catalogRepo,
		Ledger:   ledger,
		Producer: prod,
		Service:  cfg.ServiceName,
		Timeout:  cfg.RequestTimeout,
		Log:      log,
	}
	ph.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // stop intake, flush remaining messages
	cancel()
	prod.WaitClosed()
}
