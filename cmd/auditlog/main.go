package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/verdex/carbonmarket/internal/config"
	kafkax "github.com/verdex/carbonmarket/internal/kafka"
	"github.com/verdex/carbonmarket/internal/market"
	"github.com/verdex/carbonmarket/internal/postgres"
	"github.com/verdex/carbonmarket/internal/redisx"
)

// auditlog drains the order audit topic into the audit_events table. The
// checkout core never waits on this; losing the consumer delays the trail
// but cannot fail a purchase.
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

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	repo := &market.AuditRepo{DB: db}

	handler := func(ctx context.Context, m kafkago.Message) error {
		var env market.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			return err
		}

		// dedup via Redis (insert is idempotent anyway, this skips the work)
		dkey := fmt.Sprintf(redisx.KeyDedup, "auditlog", env.EventID)
		if exists, _ := redisx.Exists(ctx, rdb, dkey); exists {
			return nil
		}

		ev, err := kafkax.UnwrapPayload[market.AuditEvent](env.Payload)
		if err != nil {
			return err
		}
		if err := repo.Insert(ctx, env.EventID, env.Producer, ev); err != nil {
			return err
		}
		_ = rdb.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
		return nil
	}

	group := getenv("AUDITLOG_GROUP", "auditlog-svc")
	workers := mustAtoi(os.Getenv("AUDITLOG_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, market.TopicOrderAudit, workers)

	go func() {
		log.Printf("auditlog consumer started: group=%s topic=%s workers=%d", group, market.TopicOrderAudit, workers)
		if err := cons.Start(ctx, handler); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Println("shutting down consumer...")
		cancel()
	case <-ctx.Done():
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
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
