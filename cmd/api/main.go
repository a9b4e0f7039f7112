package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hollybrook/storefront/internal/auth"
	"github.com/hollybrook/storefront/internal/catalog"
	"github.com/hollybrook/storefront/internal/checkout"
	"github.com/hollybrook/storefront/internal/config"
	"github.com/hollybrook/storefront/internal/httpx"
	kafkax "github.com/hollybrook/storefront/internal/kafka"
	"github.com/hollybrook/storefront/internal/payment"
	"github.com/hollybrook/storefront/internal/postgres"
	"github.com/hollybrook/storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	paidProd := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderPaid, 1024)
	paidProd.Start(ctx)
	cancelledProd := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderCancelled, 1024)
	cancelledProd.Start(ctx)

	// Repos & services
	catalogRepo := &catalog.Repo{DB: db}
	ledger := &checkout.Ledger{DB: db}
	store := &checkout.Store{DB: db, Ledger: ledger}

	orchestrator := &checkout.Orchestrator{
		Catalog: catalogRepo,
		Ledger:  ledger,
		Orders:  store,
		Provider: payment.NewClient(cfg.PaymentProviderURL, cfg.PaymentAPIKey,
			cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL),
		TTL: cfg.ReservationTTL,
	}
	reconciler := &checkout.Reconciler{
		Store:     store,
		Dedup:     &redisx.Deduper{R: rdb, Service: cfg.ServiceName},
		Paid:      paidProd,
		Cancelled: cancelledProd,
		Service:   cfg.ServiceName,
	}

	// Expired-reservation sweeper
	sweeper := &checkout.Sweeper{DB: db, Store: store, Interval: cfg.SweepInterval}
	go sweeper.Run(ctx)

	// Router & handlers
	router := httpx.NewRouter()
	(&httpx.CatalogHandler{Catalog: catalogRepo}).Register(router)
	(&httpx.CheckoutHandler{Orchestrator: orchestrator, Orders: store, Redis: rdb}).Register(router)
	(&httpx.WebhookHandler{Secret: cfg.PaymentWebhookSecret, Reconciler: reconciler}).Register(router)
	(&httpx.AdminHandler{Catalog: catalogRepo, Auth: &auth.AdminAuth{Secret: []byte(cfg.AdminJWTSecret)}}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	paidProd.Close()
	cancelledProd.Close()
	cancel()
	paidProd.WaitClosed()
	cancelledProd.WaitClosed()
}
