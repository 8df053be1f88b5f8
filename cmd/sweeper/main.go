package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/verdex/carbonmarket/internal/config"
	"github.com/verdex/carbonmarket/internal/market"
	"github.com/verdex/carbonmarket/internal/postgres"
)

// The sweeper runs the two TTL jobs: expired reservations (frees claimed
// capacity) and expired carts. Both are idempotent deletes, so running extra
// instances is safe.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	reservations := &market.ReservationRepo{DB: db, TTL: cfg.ReservationTTL}
	carts := &market.CartRepo{DB: db, TTL: cfg.CartTTL}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return every(gctx, cfg.ReservationSweep, func(now time.Time) {
			n, err := reservations.SweepExpired(gctx, now)
			if err != nil {
				log.Printf("reservation sweep: %v", err)
				return
			}
			if n > 0 {
				log.Printf("reservation sweep: released %d expired claims", n)
			}
		})
	})

	g.Go(func() error {
		return every(gctx, cfg.CartSweep, func(now time.Time) {
			n, err := carts.CleanupExpired(gctx, now)
			if err != nil {
				log.Printf("cart cleanup: %v", err)
				return
			}
			if n > 0 {
				log.Printf("cart cleanup: deleted %d expired carts", n)
			}
		})
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("shutting down sweeper...")
		cancel()
	}()

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("sweeper: %v", err)
	}
}

func every(ctx context.Context, interval time.Duration, fn func(now time.Time)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			fn(now.UTC())
		}
	}
}
