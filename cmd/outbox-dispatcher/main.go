package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/models"
)

const dispatchInterval = 2 * time.Second

// Drains the ledger-event outbox into Pub/Sub on a fixed cadence. Safe to
// run more than one instance: rows are claimed with a lock column.
func main() {
	godotenv.Load()
	config.ConnectDatabaseWithRetry()

	if !config.OutboxDirectProcessing() {
		log.Println("outbox dispatching disabled via OUTBOX_DIRECT_PROCESSING")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	log.Println("outbox dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Println("outbox dispatcher stopped")
			return
		case <-ticker.C:
			published, err := models.ProcessUnpublishedLedgerEvents(ctx)
			if err != nil {
				config.LogError(config.GetLogger(), "cmd", "outbox-dispatcher", "drain", nil, err)
				continue
			}
			if published > 0 {
				log.Printf("published %d ledger events", published)
			}
		}
	}
}
