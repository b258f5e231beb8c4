package models_test

import (
	"testing"

	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/models"
	"github.com/stewardbooks/churchbooks_backend/utils"
)

const sampleBankCsv = `date,amount,description,reference
2026-05-04,25.00,Standing order J Smith,REF123
2026-05-04,-85.50,BRITISH GAS DD,DD-GAS
2026-05-05,40.00,Hall hire,HALL-9
not-a-date,12.00,garbage line,BAD
2026-05-06,0,zero amount line,NIL
`

func TestCreateCsvImportBatchStagesRows(t *testing.T) {
	ctx := setupLedgerTest(t)

	batch, err := models.CreateCsvImportBatch(ctx, "may.csv", []byte(sampleBankCsv))
	if err != nil {
		t.Fatalf("CreateCsvImportBatch: %v", err)
	}
	if batch.TotalRows != 3 {
		t.Fatalf("TotalRows = %d, want 3", batch.TotalRows)
	}
	if batch.ErrorRows != 2 {
		t.Fatalf("ErrorRows = %d, want 2", batch.ErrorRows)
	}

	rows, err := models.GetCsvRows(ctx, batch.ID, nil)
	if err != nil {
		t.Fatalf("GetCsvRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for _, row := range rows {
		if row.Status != models.CsvRowStatusPending {
			t.Fatalf("row %d status = %s, want pending", row.RowNumber, row.Status)
		}
	}
	if rows[1].TransactionType != models.TransactionTypeExpense || !rows[1].Amount.Equal(dec("85.50")) {
		t.Fatalf("negative amount should stage as expense 85.50, got %s %s",
			rows[1].TransactionType, rows[1].Amount.String())
	}
}

func TestCreateCsvImportBatchRejectsUnusableFile(t *testing.T) {
	ctx := setupLedgerTest(t)

	if _, err := models.CreateCsvImportBatch(ctx, "empty.csv", []byte("  \n")); err == nil {
		t.Fatal("empty file should be rejected")
	}
	junk := "date,amount,description,reference\nnope,zero,x,y\n"
	if _, err := models.CreateCsvImportBatch(ctx, "junk.csv", []byte(junk)); err == nil {
		t.Fatal("file with no usable rows should be rejected")
	}
}

func TestProcessBatchFlagsDuplicatesAndEnrichesRows(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	setDefaultFund(t, ctx, fund.ID)

	gas := createTestCategory(t, ctx, "Gas & Electric", models.CategoryTypeExpense)
	createTestKeyword(t, ctx, "british gas", gas.ID)
	donor, err := models.CreateDonor(ctx, &models.NewDonor{Name: "J Smith", BankReference: "REF123"})
	if err != nil {
		t.Fatalf("CreateDonor: %v", err)
	}

	// the hall hire is already in the ledger; its CSV row must be flagged
	existing := postIncome(t, ctx, fund.ID, "40.00", day(2026, 5, 5), "HALL-9")

	batch, err := models.CreateCsvImportBatch(ctx, "may.csv", []byte(sampleBankCsv))
	if err != nil {
		t.Fatalf("CreateCsvImportBatch: %v", err)
	}
	batch, err = models.ProcessCsvImportBatch(ctx, batch.ID, nil)
	if err != nil {
		t.Fatalf("ProcessCsvImportBatch: %v", err)
	}
	if batch.DuplicateRows != 1 || batch.ReadyRows != 2 {
		t.Fatalf("counters = %d dup / %d ready, want 1 / 2", batch.DuplicateRows, batch.ReadyRows)
	}

	rows, err := models.GetCsvRows(ctx, batch.ID, nil)
	if err != nil {
		t.Fatalf("GetCsvRows: %v", err)
	}

	smith, gasRow, hall := rows[0], rows[1], rows[2]

	if smith.Status != models.CsvRowStatusReady {
		t.Fatalf("smith row status = %s", smith.Status)
	}
	if smith.MatchedDonorId == nil || *smith.MatchedDonorId != donor.ID {
		t.Fatal("smith row should match the donor by bank reference")
	}
	if smith.DonorConfidence == nil || *smith.DonorConfidence != 1.0 {
		t.Fatal("exact bank reference match should carry confidence 1.0")
	}
	if smith.SuggestedFundId == nil || *smith.SuggestedFundId != fund.ID {
		t.Fatal("default fund should be suggested")
	}

	if gasRow.SuggestedCategoryId == nil || *gasRow.SuggestedCategoryId != gas.ID {
		t.Fatal("gas row should be keyword-classified")
	}
	if gasRow.CategorySource != models.CategorySourceKeyword {
		t.Fatalf("gas row category source = %s", gasRow.CategorySource)
	}
	if gasRow.MatchedDonorId != nil {
		t.Fatal("expense rows never match donors")
	}

	if hall.Status != models.CsvRowStatusDuplicate {
		t.Fatalf("hall row status = %s, want duplicate", hall.Status)
	}
	if hall.DuplicateOfId == nil || *hall.DuplicateOfId != existing.ID {
		t.Fatal("hall row should point at the posted transaction")
	}
}

func TestApproveCsvRowPostsExactlyOneTransaction(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	setDefaultFund(t, ctx, fund.ID)

	batch, err := models.CreateCsvImportBatch(ctx, "may.csv", []byte(sampleBankCsv))
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
	if txn.Source != models.TransactionSourceCsv {
		t.Fatalf("source = %s, want csv", txn.Source)
	}
	if txn.CsvRowId == nil || *txn.CsvRowId != rows[0].ID {
		t.Fatal("transaction should link back to its row")
	}
	wantBalance(t, ctx, fund.ID, "25")

	// approval is terminal: a second approve changes nothing
	again, err := models.ApproveCsvRow(ctx, rows[0].ID, nil)
	if err != nil {
		t.Fatalf("second ApproveCsvRow: %v", err)
	}
	if again.ID != txn.ID {
		t.Fatalf("second approve returned transaction %d, want %d", again.ID, txn.ID)
	}
	wantBalance(t, ctx, fund.ID, "25")

	all, err := models.GetTransactions(ctx, nil)
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d transactions, want 1", len(all))
	}
}

func TestSkipAndApproveAreMutuallyTerminal(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	setDefaultFund(t, ctx, fund.ID)

	batch, err := models.CreateCsvImportBatch(ctx, "may.csv", []byte(sampleBankCsv))
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

	if _, err := models.SkipCsvRow(ctx, rows[0].ID, "not ours"); err != nil {
		t.Fatalf("SkipCsvRow: %v", err)
	}
	if _, err := models.ApproveCsvRow(ctx, rows[0].ID, nil); err == nil {
		t.Fatal("approving a skipped row should fail")
	}

	if _, err := models.ApproveCsvRow(ctx, rows[1].ID, nil); err != nil {
		t.Fatalf("ApproveCsvRow: %v", err)
	}
	if _, err := models.SkipCsvRow(ctx, rows[1].ID, "changed my mind"); err == nil {
		t.Fatal("skipping an approved row should fail")
	}
}

func TestApprovingDuplicateIsAReviewerOverride(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	setDefaultFund(t, ctx, fund.ID)

	postIncome(t, ctx, fund.ID, "40.00", day(2026, 5, 5), "HALL-9")

	csv := "date,amount,description,reference\n2026-05-05,40.00,Hall hire again,HALL-9\n"
	batch, err := models.CreateCsvImportBatch(ctx, "dup.csv", []byte(csv))
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
	if rows[0].Status != models.CsvRowStatusDuplicate {
		t.Fatalf("row status = %s, want duplicate", rows[0].Status)
	}
	if rows[0].SuggestedFundId == nil || *rows[0].SuggestedFundId != fund.ID {
		t.Fatal("duplicate row should still carry the default fund suggestion")
	}

	// two genuine 40.00 hall hires on the same day do happen
	if _, err := models.ApproveCsvRow(ctx, rows[0].ID, nil); err != nil {
		t.Fatalf("ApproveCsvRow on duplicate: %v", err)
	}
	wantBalance(t, ctx, fund.ID, "80")

	batch, err = models.GetCsvImportBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetCsvImportBatch: %v", err)
	}
	if batch.Status != models.CsvBatchStatusCompleted {
		t.Fatalf("batch status = %s, want completed once every row is settled", batch.Status)
	}
}

func TestApproveWithoutFundNeedsReviewerChoice(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	// no default fund configured

	csv := "date,amount,description,reference\n2026-05-05,40.00,Hall hire,HALL-9\n"
	batch, err := models.CreateCsvImportBatch(ctx, "nodefault.csv", []byte(csv))
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
	if rows[0].Status != models.CsvRowStatusReady {
		t.Fatalf("row status = %s; missing default fund must not block processing", rows[0].Status)
	}

	if _, err := models.ApproveCsvRow(ctx, rows[0].ID, nil); err == nil {
		t.Fatal("approve without any fund should fail")
	}
	if _, err := models.ApproveCsvRow(ctx, rows[0].ID, &models.ApproveCsvRowInput{FundId: intPtr(fund.ID)}); err != nil {
		t.Fatalf("approve with explicit fund: %v", err)
	}
	wantBalance(t, ctx, fund.ID, "40")
}

func TestProcessWithoutDefaultFundSkipsClassification(t *testing.T) {
	ctx := setupLedgerTest(t)
	createTestFund(t, ctx, "General", models.FundTypeGeneral)
	// no default fund configured

	gas := createTestCategory(t, ctx, "Gas & Electric", models.CategoryTypeExpense)
	createTestKeyword(t, ctx, "british gas", gas.ID)

	csv := "date,amount,description,reference\n2026-05-04,-85.50,BRITISH GAS DD,DD-GAS\n"
	batch, err := models.CreateCsvImportBatch(ctx, "nodefault.csv", []byte(csv))
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
	row := rows[0]
	if row.Status != models.CsvRowStatusReady {
		t.Fatalf("row status = %s, want ready", row.Status)
	}
	if row.SuggestedFundId != nil {
		t.Fatal("no default fund means no fund suggestion")
	}
	if row.SuggestedCategoryId != nil || row.CategorySource != models.CategorySourceNone {
		t.Fatalf("row classified as %s without a fund to classify against", row.CategorySource)
	}
}

func TestProcessBatchFailureIsRecordedOnTheBatch(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	setDefaultFund(t, ctx, fund.ID)

	csv := "date,amount,description,reference\n2026-05-05,40.00,Hall hire,HALL-9\n"
	batch, err := models.CreateCsvImportBatch(ctx, "may.csv", []byte(csv))
	if err != nil {
		t.Fatalf("CreateCsvImportBatch: %v", err)
	}

	churchId, _ := utils.GetChurchIdFromContext(ctx)
	err = config.GetDB().WithContext(ctx).
		Where("church_id = ?", churchId).
		Delete(&models.ChurchSettings{}).Error
	if err != nil {
		t.Fatalf("deleting settings: %v", err)
	}

	if _, err := models.ProcessCsvImportBatch(ctx, batch.ID, nil); err == nil {
		t.Fatal("processing without church settings should fail")
	}
	batch, err = models.GetCsvImportBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetCsvImportBatch: %v", err)
	}
	if batch.Status != models.CsvBatchStatusFailed {
		t.Fatalf("batch status = %s, want failed", batch.Status)
	}
	if batch.LastError == nil || *batch.LastError == "" {
		t.Fatal("batch should record what went wrong")
	}
}
