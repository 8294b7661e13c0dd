package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buildmart/internal/config"
	"buildmart/internal/core"
	"buildmart/internal/db"
	"buildmart/internal/events"

	"github.com/joho/godotenv"
)

// contract-sweeper runs the contract expiry sweep on an interval. The sweep is
// idempotent, so overlapping deployments of this binary are harmless.
func main() {
	interval := flag.Duration("interval", time.Hour, "time between sweeps")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

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

	var publisher core.EventPublisher
	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, "buildmart-contract-sweeper", 256)
		producer.Start(ctx)
		publisher = producer
	}

	pricing := core.NewPricingService(pool, publisher)

	sweep := func() {
		result, err := pricing.CheckExpiredContracts(ctx)
		if err != nil {
			log.Printf("sweep failed: %v", err)
			return
		}
		log.Printf("sweep: expired %d, expiring within 7 days %d", result.Expired, result.ExpiringSoon)
	}

	sweep()
	if *once {
		shutdown(cancel, producer)
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-sig:
			log.Println("shutting down...")
			shutdown(cancel, producer)
			return
		}
	}
}

func shutdown(cancel context.CancelFunc, producer *events.Producer) {
	if producer != nil {
		cancel()
		producer.WaitClosed()
		return
	}
	cancel()
}
