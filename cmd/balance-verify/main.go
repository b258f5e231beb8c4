package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/models"
)

// Replays every fund's transactions and compares the sum with the stored
// balance. Any drift is a bug in a write path, not something to repair here;
// the tool reports and exits non-zero so an operator can investigate.
func main() {
	godotenv.Load()
	config.ConnectDatabaseWithRetry()

	ctx := context.Background()
	db := config.GetDB()

	query := db.WithContext(ctx)
	if churchId := os.Getenv("CHURCH_ID"); churchId != "" {
		query = query.Where("church_id = ?", churchId)
	}

	var funds []*models.Fund
	if err := query.Find(&funds).Error; err != nil {
		log.Fatalf("loading funds: %v", err)
	}

	drift := 0
	for _, fund := range funds {
		expected, err := models.RecomputeFundBalance(ctx, fund.ChurchId, fund.ID)
		if err != nil {
			log.Fatalf("recomputing fund %d: %v", fund.ID, err)
		}
		if !expected.Equal(fund.Balance) {
			drift++
			log.Printf("DRIFT church=%s fund=%d (%s): stored=%s replayed=%s",
				fund.ChurchId, fund.ID, fund.Name, fund.Balance.String(), expected.String())
		}
	}

	if drift > 0 {
		log.Fatalf("%d of %d funds drifted", drift, len(funds))
	}
	log.Printf("all %d fund balances verified", len(funds))
}
