// cmd/historian/main.go
//
// The historian is a standalone consumer: it pops finished-match results off
// the Redis queue the game server publishes to and upserts them into
// Postgres. Run it next to the server (or scaled separately); the queue
// absorbs bursts and outages on either side.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/barrage-gg/barrage/internal/config"
	"github.com/barrage-gg/barrage/internal/database"
	"github.com/barrage-gg/barrage/internal/history"
	"github.com/barrage-gg/barrage/internal/models"
)

func main() {
	cfg := config.Load()

	queue := os.Getenv("HISTORIAN_QUEUE_NAME")
	if queue == "" {
		queue = history.DefaultQueueName
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg.PostgresUser, cfg.PostgresPassword, cfg.PGHost, cfg.PGPort, cfg.PGDatabase)
	if err != nil {
		log.Fatalf("postgres connect: %v", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer rdb.Close()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Println("barrage-historian shutting down.")
		cancel()
	}()

	log.Println("barrage-historian service started.")
	readQueueLoop(ctx, rdb, pool, queue)
}

// readQueueLoop continuously uses BLPop to retrieve match results from the
// Redis queue and persist them. A malformed record is logged and dropped; a
// DB failure requeues the record so nothing is lost across restarts.
func readQueueLoop(ctx context.Context, rdb *redis.Client, pool *pgxpool.Pool, queue string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// BLPop with a 3-second timeout so context cancellation is handled.
		res, err := rdb.BLPop(ctx, 3*time.Second, queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Printf("[ERROR] BLPop: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		payload := res[1]
		var record models.MatchResult
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			log.Printf("invalid match result record: %v", err)
			continue
		}

		persistCtx, persistCancel := context.WithTimeout(ctx, 10*time.Second)
		err = database.RecordMatchResult(persistCtx, pool, record)
		persistCancel()
		if err != nil {
			log.Printf("[ERROR] record match %s: %v", record.MatchID, err)
			if pushErr := rdb.RPush(context.Background(), queue, payload).Err(); pushErr != nil {
				log.Printf("[ERROR] requeue match %s: %v", record.MatchID, pushErr)
			}
			time.Sleep(time.Second)
			continue
		}
		log.Printf("Recorded match %s (%d players).", record.MatchID, len(record.Players))
	}
}
