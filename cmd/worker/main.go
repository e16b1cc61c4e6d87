package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chapattend/internal/attendance"
	"chapattend/internal/config"
	"chapattend/internal/queue"
	"chapattend/internal/store"
)

// Worker consumes check-in messages and keeps the per-session Redis tally
// cache current. The cache is advisory: the API recomputes from records
// whenever a session has no cached tally.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "chapattend:checkins")
	}

	repo := attendance.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "checkin" {
			continue
		}

		id := string(msg.Body)
		rec, err := repo.GetRecord(ctx, id)
		if err != nil {
			log.Printf("fetch record %s failed: %v", id, err)
			continue
		}

		if err := redisClient.BumpTally(ctx, rec.SessionID, rec.Status); err != nil {
			// Drop the stale hash; the API falls back to recomputing.
			log.Printf("tally bump failed for session %s: %v", rec.SessionID, err)
			_ = redisClient.DropTally(ctx, rec.SessionID)
			continue
		}
		log.Printf("tallied %s check-in for session %s", rec.Status, rec.SessionID)
	}

	log.Println("worker stopped")
}
