package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"voiceattend/internal/attendance"
	"voiceattend/internal/config"
	"voiceattend/internal/queue"
	"voiceattend/internal/store"
)

// Worker consumes session events from the queue and writes the audit trail.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the memory queue is drained by the api process")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if err := store.Migrate(ctx, db.Client); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis not reachable at %s, will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	audit := attendance.NewAuditService(attendance.NewRepository(db.Client))

	log.Printf("worker started, waiting for events on %s...", cfg.QueueKey)
	err = queue.Run(ctx, q, func(ctx context.Context, evt attendance.SessionEvent) error {
		if err := audit.Record(ctx, evt); err != nil {
			return err
		}
		log.Printf("recorded %s for class %s (%d records)", evt.Kind, evt.ClassID, len(evt.Records))
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("worker stopped: %v", err)
		return
	}
	log.Println("worker stopped")
}
