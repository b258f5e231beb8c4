package models_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/models"
	"github.com/stewardbooks/churchbooks_backend/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupLedgerTest opens a fresh in-memory database, migrates the schema and
// returns a context carrying a new church and a test user. Each test gets
// its own database, named after the test so shared-cache connections within
// one test see the same data.
func setupLedgerTest(t *testing.T) context.Context {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// the in-memory database lives as long as one connection does
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	config.SetDB(db)
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	church, err := models.CreateChurch(ctx, &models.NewChurch{Name: "St Test"})
	if err != nil {
		t.Fatalf("CreateChurch: %v", err)
	}
	return utils.SetChurchIdInContext(ctx, church.ID)
}

func createTestFund(t *testing.T, ctx context.Context, name string, fundType models.FundType) *models.Fund {
	t.Helper()
	fund, err := models.CreateFund(ctx, &models.NewFund{Name: name, FundType: fundType})
	if err != nil {
		t.Fatalf("CreateFund %s: %v", name, err)
	}
	return fund
}

func setDefaultFund(t *testing.T, ctx context.Context, fundId int) {
	t.Helper()
	_, err := models.UpdateChurchSettings(ctx, &models.UpdateChurchSettingsInput{DefaultFundId: &fundId})
	if err != nil {
		t.Fatalf("UpdateChurchSettings: %v", err)
	}
}

func createTestCategory(t *testing.T, ctx context.Context, name string, categoryType models.CategoryType) *models.Category {
	t.Helper()
	category, err := models.CreateCategory(ctx, &models.NewCategory{Name: name, CategoryType: categoryType})
	if err != nil {
		t.Fatalf("CreateCategory %s: %v", name, err)
	}
	return category
}

func createTestKeyword(t *testing.T, ctx context.Context, keyword string, categoryId int) {
	t.Helper()
	_, err := models.CreateCategoryKeyword(ctx, &models.NewCategoryKeyword{Keyword: keyword, CategoryId: categoryId})
	if err != nil {
		t.Fatalf("CreateCategoryKeyword %s: %v", keyword, err)
	}
}

func postIncome(t *testing.T, ctx context.Context, fundId int, amount string, date time.Time, reference string) *models.Transaction {
	t.Helper()
	txn, err := models.CreateTransaction(ctx, &models.NewTransaction{
		FundId:          fundId,
		TransactionType: models.TransactionTypeIncome,
		Amount:          dec(amount),
		TransactionDate: date,
		Reference:       reference,
	})
	if err != nil {
		t.Fatalf("CreateTransaction income: %v", err)
	}
	return txn
}

func fundBalance(t *testing.T, ctx context.Context, fundId int) decimal.Decimal {
	t.Helper()
	fund, err := models.GetFund(ctx, fundId)
	if err != nil {
		t.Fatalf("GetFund: %v", err)
	}
	return fund.Balance
}

// wantBalance asserts both the stored projection and a full replay agree.
func wantBalance(t *testing.T, ctx context.Context, fundId int, want string) {
	t.Helper()
	got := fundBalance(t, ctx, fundId)
	if !got.Equal(dec(want)) {
		t.Fatalf("fund %d balance = %s, want %s", fundId, got.String(), want)
	}

	churchId, _ := utils.GetChurchIdFromContext(ctx)
	replayed, err := models.RecomputeFundBalance(ctx, churchId, fundId)
	if err != nil {
		t.Fatalf("RecomputeFundBalance: %v", err)
	}
	if !replayed.Equal(dec(want)) {
		t.Fatalf("fund %d replay = %s, want %s", fundId, replayed.String(), want)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int { return &v }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
