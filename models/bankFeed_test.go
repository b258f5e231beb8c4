package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/models"
	"github.com/stewardbooks/churchbooks_backend/utils"
)

// scriptedFeed serves predefined pages keyed by cursor and can be told to
// fail on a given cursor.
type scriptedFeed struct {
	pages   map[string]scriptedPage
	failOn  string
	failSet bool
	calls   int
}

type scriptedPage struct {
	rows    []models.BankFeedRow
	next    string
	hasMore bool
}

func (f *scriptedFeed) FetchRows(ctx context.Context, cursor string) ([]models.BankFeedRow, string, bool, error) {
	f.calls++
	if f.failSet && cursor == f.failOn {
		return nil, "", false, errors.New("aggregator 502")
	}
	page, ok := f.pages[cursor]
	if !ok {
		return nil, cursor, false, nil
	}
	return page.rows, page.next, page.hasMore, nil
}

func feedRow(id string, amount string, desc string) models.BankFeedRow {
	return models.BankFeedRow{
		ExternalId:  id,
		Date:        day(2026, 7, 1),
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
		Reference:   id,
	}
}

func TestSyncBankFeedStagesAndDedupes(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	setDefaultFund(t, ctx, fund.ID)

	feed := &scriptedFeed{pages: map[string]scriptedPage{
		"": {rows: []models.BankFeedRow{
			feedRow("ext-1", "50.00", "gift"),
			feedRow("ext-2", "-12.50", "candles"),
		}, next: "p2", hasMore: true},
		"p2": {rows: []models.BankFeedRow{
			feedRow("ext-2", "-12.50", "candles"), // page overlap
			feedRow("ext-3", "8.00", "booklet sales"),
		}, next: "p3", hasMore: false},
	}}

	result, err := models.SyncBankFeed(ctx, "test-bank", feed, nil)
	if err != nil {
		t.Fatalf("SyncBankFeed: %v", err)
	}
	if result.Staged != 3 || result.SkippedExisting != 1 {
		t.Fatalf("result = %+v, want 3 staged / 1 skipped", result)
	}

	rows, err := models.GetCsvRows(ctx, result.BatchId, nil)
	if err != nil {
		t.Fatalf("GetCsvRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for _, row := range rows {
		if row.Source != models.TransactionSourceApi {
			t.Fatalf("row source = %s, want api", row.Source)
		}
		if row.ExternalId == nil {
			t.Fatal("feed rows must carry their external id")
		}
		// the batch went through processing
		if row.Status != models.CsvRowStatusReady {
			t.Fatalf("row status = %s, want ready", row.Status)
		}
	}

	// cursor landed at the end of the feed
	cursor := loadFeedCursor(t, ctx, "test-bank")
	if cursor.Cursor != "p3" {
		t.Fatalf("cursor = %q, want p3", cursor.Cursor)
	}

	// a rerun re-reads the final page and stages nothing new
	rerun, err := models.SyncBankFeed(ctx, "test-bank", feed, nil)
	if err != nil {
		t.Fatalf("rerun SyncBankFeed: %v", err)
	}
	if rerun.Staged != 0 {
		t.Fatalf("rerun staged %d rows, want 0", rerun.Staged)
	}
	if rerun.BatchId != 0 {
		t.Fatal("an empty sync should not leave a batch behind")
	}
}

func TestSyncBankFeedFailureKeepsCommittedPages(t *testing.T) {
	ctx := setupLedgerTest(t)
	fund := createTestFund(t, ctx, "General", models.FundTypeGeneral)
	setDefaultFund(t, ctx, fund.ID)

	feed := &scriptedFeed{
		pages: map[string]scriptedPage{
			"": {rows: []models.BankFeedRow{feedRow("ext-1", "50.00", "gift")}, next: "p2", hasMore: true},
		},
		failOn:  "p2",
		failSet: true,
	}

	result, err := models.SyncBankFeed(ctx, "test-bank", feed, nil)
	if err == nil {
		t.Fatal("expected an error from the failing page")
	}
	var extErr *utils.ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("error type %T, want ExternalServiceError", err)
	}
	if result.Staged != 1 {
		t.Fatalf("staged = %d, want the committed first page", result.Staged)
	}

	// the cursor points at the failed page, not past it
	cursor := loadFeedCursor(t, ctx, "test-bank")
	if cursor.Cursor != "p2" {
		t.Fatalf("cursor = %q, want p2", cursor.Cursor)
	}

	// after the aggregator recovers, the retry picks up where it stopped
	feed.failSet = false
	feed.pages["p2"] = scriptedPage{rows: []models.BankFeedRow{feedRow("ext-4", "5.00", "gift")}, next: "p3", hasMore: false}

	result, err = models.SyncBankFeed(ctx, "test-bank", feed, nil)
	if err != nil {
		t.Fatalf("retry SyncBankFeed: %v", err)
	}
	if result.Staged != 1 || result.SkippedExisting != 0 {
		t.Fatalf("retry result = %+v, want 1 staged", result)
	}
}

func loadFeedCursor(t *testing.T, ctx context.Context, provider string) *models.BankFeedCursor {
	t.Helper()
	churchId, _ := utils.GetChurchIdFromContext(ctx)
	var cursor models.BankFeedCursor
	err := config.GetDB().WithContext(ctx).
		Where("church_id = ? AND provider = ?", churchId, provider).
		First(&cursor).Error
	if err != nil {
		t.Fatalf("loading feed cursor: %v", err)
	}
	return &cursor
}
