package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/stewardbooks/churchbooks_backend/ai"
	"github.com/stewardbooks/churchbooks_backend/bankfeed"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/models"
	"github.com/stewardbooks/churchbooks_backend/utils"
)

// Pulls new movements from the bank aggregator for one church and stages
// them through the import pipeline. Run from cron per connected account.
func main() {
	godotenv.Load()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()

	churchId := os.Getenv("CHURCH_ID")
	if churchId == "" {
		log.Fatal("CHURCH_ID is required")
	}
	providerName := os.Getenv("BANK_FEED_PROVIDER")
	if providerName == "" {
		providerName = "open-banking"
	}

	provider, err := bankfeed.NewHTTPProvider()
	if err != nil {
		log.Fatalf("bank feed config: %v", err)
	}

	var suggester ai.CategorySuggester
	if config.AiCategorizationEnabled() && os.Getenv("GEMINI_API_KEY") != "" {
		suggester = ai.NewGeminiSuggester(config.GetLogger())
	}

	ctx := context.Background()
	ctx = utils.SetChurchIdInContext(ctx, churchId)
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "bankfeed-sync")

	result, err := models.SyncBankFeed(ctx, providerName, provider, suggester)
	if err != nil {
		if result != nil {
			log.Printf("staged %d rows before failure", result.Staged)
		}
		log.Fatalf("bank feed sync failed: %v", err)
	}
	log.Printf("bank feed sync done: batch=%d staged=%d skipped=%d",
		result.BatchId, result.Staged, result.SkippedExisting)
}
