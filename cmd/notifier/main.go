package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hollybrook/storefront/internal/checkout"
	"github.com/hollybrook/storefront/internal/config"
	kafkax "github.com/hollybrook/storefront/internal/kafka"
	"github.com/hollybrook/storefront/internal/notify"
	"github.com/hollybrook/storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Dedup:  &redisx.Deduper{R: rdb, Service: cfg.ServiceName + "-notifier"},
		Sender: notify.LogSender{},
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), 4)

	paidCons := kafkax.NewConsumer(cfg.KafkaBrokers, group, checkout.TopicOrderPaid, workers)
	cancelledCons := kafkax.NewConsumer(cfg.KafkaBrokers, group, checkout.TopicOrderCancelled, workers)

	go func() {
		log.Printf("notifier consumer started: group=%s topic=%s workers=%d", group, checkout.TopicOrderPaid, workers)
		if err := paidCons.Start(ctx, svc.HandleOrderPaid); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()
	go func() {
		log.Printf("notifier consumer started: group=%s topic=%s workers=%d", group, checkout.TopicOrderCancelled, workers)
		if err := cancelledCons.Start(ctx, svc.HandleOrderCancelled); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down notifier...")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
