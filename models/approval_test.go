package models_test

import (
	"context"
	"testing"

	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/models"
	"github.com/stewardbooks/churchbooks_backend/utils"
)

func floatPtr(v float64) *float64 { return &v }

// seedBatch stages ready rows with scripted confidences, the way processing
// would have left them.
func seedBatch(t *testing.T, ctx context.Context, fundId int, confs [][2]*float64) (*models.CsvImportBatch, []*models.CsvRow) {
	t.Helper()
	churchId, _ := utils.GetChurchIdFromContext(ctx)
	db := config.GetDB()

	batch := models.CsvImportBatch{ChurchId: churchId, FileName: "seeded.csv", Status: models.CsvBatchStatusProcessing, TotalRows: len(confs)}
	if err := db.WithContext(ctx).Create(&batch).Error; err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	rows := make([]*models.CsvRow, 0, len(confs))
	for i, c := range confs {
		row := models.CsvRow{
			ChurchId:        churchId,
			BatchId:         batch.ID,
			RowNumber:       i + 1,
			TransactionDate: day(2026, 6, 1),
			Amount:          dec("10"),
			TransactionType: models.TransactionTypeIncome,
			Description:     "seeded row",
			Status:          models.CsvRowStatusReady,
			Source:          models.TransactionSourceCsv,
			SuggestedFundId: &fundId,
			DonorConfidence: c[0],
		}
		if c[1] != nil {
			row.CategoryConfidence = c[1]
			row.CategorySource = models.CategorySourceKeyword
		}
		if err := db.WithContext(ctx).Create(&row).Error; err != nil {
			t.Fatalf("seed row: %v", err)
		}
		rows = append(rows, &row)
	}
	return &batch, rows
}

func TestAutoApproveBatchMeanConfidenceGate(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)

	batch, rows := seedBatch(t, ctx, fund.ID, [][2]*float64{
		{floatPtr(1.0), floatPtr(0.95)}, // mean 0.975: approve
		{nil, floatPtr(0.9)},            // 0.9: review
		{floatPtr(1.0), nil},            // 1.0 alone: approve
		{nil, nil},                      // nothing to judge: review
	})

	result, err := models.AutoApproveBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("AutoApproveBatch: %v", err)
	}
	if result.Approved != 2 || result.LeftForReview != 2 {
		t.Fatalf("result = %+v, want 2 approved / 2 left", result)
	}
	wantBalance(t, ctx, fund.ID, "20")

	approved, err := models.GetCsvRows(ctx, batch.ID, statusPtr(models.CsvRowStatusApproved))
	if err != nil {
		t.Fatalf("GetCsvRows: %v", err)
	}
	if len(approved) != 2 {
		t.Fatalf("got %d approved rows, want 2", len(approved))
	}
	for _, row := range approved {
		if row.TransactionId == nil {
			t.Fatalf("approved row %d has no transaction", row.ID)
		}
	}
	_ = rows

	// a second sweep finds nothing new and moves no money
	result, err = models.AutoApproveBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("second AutoApproveBatch: %v", err)
	}
	if result.Approved != 0 || result.LeftForReview != 2 {
		t.Fatalf("second sweep result = %+v, want 0 approved / 2 left", result)
	}
	wantBalance(t, ctx, fund.ID, "20")
}

func TestAutoApproveRespectsChurchThreshold(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)

	threshold := dec("0.80")
	if _, err := models.UpdateChurchSettings(ctx, &models.UpdateChurchSettingsInput{AutoApproveThreshold: &threshold}); err != nil {
		t.Fatalf("UpdateChurchSettings: %v", err)
	}

	batch, _ := seedBatch(t, ctx, fund.ID, [][2]*float64{
		{nil, floatPtr(0.9)},  // clears the lowered bar
		{nil, floatPtr(0.75)}, // still under it
	})

	result, err := models.AutoApproveBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("AutoApproveBatch: %v", err)
	}
	if result.Approved != 1 || result.LeftForReview != 1 {
		t.Fatalf("result = %+v, want 1 approved / 1 left", result)
	}
}

func statusPtr(s models.CsvRowStatus) *models.CsvRowStatus { return &s }
