package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/models"
)

// One-shot sweep of staged import data past each church's retention window.
// Run from cron; approved rows and posted transactions are never touched.
func main() {
	godotenv.Load()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()

	result, err := models.PurgeExpiredImportBatches(context.Background())
	if err != nil {
		log.Fatalf("retention sweep failed: %v", err)
	}
	log.Printf("retention sweep done: %d batches, %d rows purged", result.BatchesPurged, result.RowsPurged)
}
