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

	"github.com/verdex/carbonmarket/internal/audit"
	"github.com/verdex/carbonmarket/internal/checkout"
	"github.com/verdex/carbonmarket/internal/config"
	"github.com/verdex/carbonmarket/internal/httpx"
	kafkax "github.com/verdex/carbonmarket/internal/kafka"
	"github.com/verdex/carbonmarket/internal/market"
	"github.com/verdex/carbonmarket/internal/payment"
	"github.com/verdex/carbonmarket/internal/postgres"
	"github.com/verdex/carbonmarket/internal/redisx"
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

	// Audit producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, market.TopicOrderAudit, 1024)
	prod.Start(ctx)

	// Repos & services
	ledger := &market.LedgerRepo{DB: db}
	carts := &market.CartRepo{DB: db, TTL: cfg.CartTTL}
	reservations := &market.ReservationRepo{DB: db, TTL: cfg.ReservationTTL}
	orders := &market.OrderRepo{DB: db}

	svc := &checkout.Service{
		Carts:        carts,
		Reservations: reservations,
		Orders:       orders,
		Ledger:       ledger,
		Gateway:      payment.Sandbox{},
		Audit:        &audit.KafkaSink{Producer: prod, Service: cfg.ServiceName},
	}

	router := httpx.NewRouter()
	ch := &httpx.CartHandler{Carts: carts, Lots: ledger}
	ch.Register(router)
	oh := &httpx.CheckoutHandler{Checkout: svc, Orders: orders, Redis: rdb}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // close inbox -> flush & close writer
	cancel()
	prod.WaitClosed() // drain
}
