package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buildmart/internal/adapters/web"
	"buildmart/internal/cache"
	"buildmart/internal/config"
	"buildmart/internal/core"
	"buildmart/internal/db"
	"buildmart/internal/events"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	// Kafka producer; no brokers configured means events are disabled.
	var publisher core.EventPublisher
	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, "buildmart-server", 1024)
		producer.Start(ctx)
		publisher = producer
	}

	pricing := core.NewPricingService(pool, publisher)
	if cfg.RedisAddr != "" {
		rdb := cache.New(cfg.RedisAddr)
		defer rdb.Close()
		pricing = cache.NewCachedPricing(pricing, rdb)
	}

	wallets := core.NewWalletService(pool)
	orders := core.NewOrderService(pool, pricing)
	phases := core.NewPhaseService(pool, wallets, publisher)

	handler := web.NewHandler(pricing, orders, phases, wallets, cfg.AllowedOrigins)
	srv := &http.Server{Addr: ":" + cfg.ServerPort, Handler: handler}

	go func() {
		log.Printf("HTTP listening at :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	if producer != nil {
		cancel() // stop the producer loop; it flushes the inbox on the way out
		producer.WaitClosed()
	}
}
