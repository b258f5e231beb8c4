package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/models"
	"github.com/stewardbooks/churchbooks_backend/utils"
)

func backdateBatch(t *testing.T, ctx context.Context, batchId int, daysAgo int) {
	t.Helper()
	old := time.Now().AddDate(0, 0, -daysAgo)
	err := config.GetDB().WithContext(ctx).Model(&models.CsvImportBatch{}).
		Where("id = ?", batchId).
		Update("created_at", old).Error
	if err != nil {
		t.Fatalf("backdating batch: %v", err)
	}
}

func TestRetentionPurgesSettledBatches(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	setDefaultFund(t, ctx, fund.ID)

	csv := "date,amount,description,reference\n2026-01-05,40.00,Hall hire,HALL-9\n2026-01-06,10.00,Gift,G-1\n"
	batch, err := models.CreateCsvImportBatch(ctx, "old.csv", []byte(csv))
	if err != nil {
		t.Fatalf("CreateCsvImportBatch: %v", err)
	}
	if _, err := models.ProcessCsvImportBatch(ctx, batch.ID, nil); err != nil {
		t.Fatalf("ProcessCsvImportBatch: %v", err)
	}
	rows, err := models.GetCsvRows(ctx, batch.ID, nil)
	if err != nil {
		t.Fatalf("GetCsvRows: %v", err)
	}
	txn, err := models.ApproveCsvRow(ctx, rows[0].ID, nil)
	if err != nil {
		t.Fatalf("ApproveCsvRow: %v", err)
	}
	if _, err := models.SkipCsvRow(ctx, rows[1].ID, "not ours"); err != nil {
		t.Fatalf("SkipCsvRow: %v", err)
	}
	backdateBatch(t, ctx, batch.ID, 120)

	result, err := models.PurgeExpiredImportBatches(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredImportBatches: %v", err)
	}
	if result.BatchesPurged != 0 {
		t.Fatal("a batch with approved rows must be slimmed, not dropped")
	}
	if result.RowsPurged != 1 {
		t.Fatalf("rows purged = %d, want the skipped row only", result.RowsPurged)
	}

	remaining, err := models.GetCsvRows(ctx, batch.ID, nil)
	if err != nil {
		t.Fatalf("GetCsvRows after purge: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Status != models.CsvRowStatusApproved {
		t.Fatal("the audit trail row behind a posted transaction must survive")
	}

	// the posted transaction itself is untouched
	if _, err := models.GetTransaction(ctx, txn.ID); err != nil {
		t.Fatalf("transaction lost in purge: %v", err)
	}
	wantBalance(t, ctx, fund.ID, "40")
}

func TestRetentionDropsFullySkippedBatchesAndSparesOpenOnes(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	setDefaultFund(t, ctx, fund.ID)

	csv := "date,amount,description,reference\n2026-01-05,40.00,Hall hire,HALL-9\n"

	settled, err := models.CreateCsvImportBatch(ctx, "settled.csv", []byte(csv))
	if err != nil {
		t.Fatalf("CreateCsvImportBatch: %v", err)
	}
	if _, err := models.ProcessCsvImportBatch(ctx, settled.ID, nil); err != nil {
		t.Fatalf("ProcessCsvImportBatch: %v", err)
	}
	settledRows, err := models.GetCsvRows(ctx, settled.ID, nil)
	if err != nil {
		t.Fatalf("GetCsvRows: %v", err)
	}
	if _, err := models.SkipCsvRow(ctx, settledRows[0].ID, "not ours"); err != nil {
		t.Fatalf("SkipCsvRow: %v", err)
	}
	backdateBatch(t, ctx, settled.ID, 120)

	open, err := models.CreateCsvImportBatch(ctx, "open.csv", []byte(csv))
	if err != nil {
		t.Fatalf("CreateCsvImportBatch: %v", err)
	}
	backdateBatch(t, ctx, open.ID, 120)

	result, err := models.PurgeExpiredImportBatches(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredImportBatches: %v", err)
	}
	if result.BatchesPurged != 1 {
		t.Fatalf("batches purged = %d, want 1", result.BatchesPurged)
	}

	if _, err := models.GetCsvImportBatch(ctx, settled.ID); !utils.IsNotFound(err) {
		t.Fatal("settled batch should be gone")
	}
	// rows still awaiting a decision keep their batch alive regardless of age
	if _, err := models.GetCsvImportBatch(ctx, open.ID); err != nil {
		t.Fatalf("open batch should survive: %v", err)
	}
}
