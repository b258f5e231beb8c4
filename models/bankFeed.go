package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/ai"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
	"gorm.io/gorm"
)

const bankFeedLockTTL = 10 * time.Minute

// BankFeedRow is one movement as the aggregator reports it. Amount keeps the
// aggregator's sign: negative means money out.
type BankFeedRow struct {
	ExternalId  string          `json:"external_id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
}

// BankFeedProvider pages through an account's movements. FetchRows is called
// outside any DB transaction and may be slow or flaky; SyncBankFeed treats
// its failures as external-service errors, never as fatal ones.
type BankFeedProvider interface {
	FetchRows(ctx context.Context, cursor string) (rows []BankFeedRow, nextCursor string, hasMore bool, err error)
}

// BankFeedCursor is the per-(church, provider) sync position. It only moves
// forward, and only after the page it covers has been committed, so a crash
// mid-sync re-reads a page instead of losing one. Re-read rows are dropped by
// external-id dedupe.
type BankFeedCursor struct {
	ID           int        `gorm:"primary_key" json:"id"`
	ChurchId     string     `gorm:"index:idx_feed_cursor,unique;size:64;not null" json:"church_id"`
	Provider     string     `gorm:"index:idx_feed_cursor,unique;size:50;not null" json:"provider"`
	Cursor       string     `gorm:"size:255" json:"cursor"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c BankFeedCursor) GetId() int {
	return c.ID
}

// BankFeedSyncResult reports one sync run.
type BankFeedSyncResult struct {
	BatchId         int `json:"batch_id"`
	Staged          int `json:"staged"`
	SkippedExisting int `json:"skipped_existing"`
}

// SyncBankFeed pulls new movements from the aggregator and stages them as
// import rows (Source = api) in a synthetic batch, which then flows through
// the same processing pipeline as an uploaded file. Pages are committed one
// at a time with the cursor advancing after each, and rows whose external id
// was seen before, in this run or any earlier one, are dropped.
func SyncBankFeed(ctx context.Context, providerName string, feed BankFeedProvider, suggester ai.CategorySuggester) (*BankFeedSyncResult, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}
	if feed == nil {
		return nil, errors.New("bank feed provider is required")
	}

	release, err := utils.ChurchLock(ctx, churchId, "bankfeed-sync", bankFeedLockTTL)
	if err != nil {
		return nil, err
	}
	if release != nil {
		defer release()
	}

	cursor, err := fetchOrCreateFeedCursor(ctx, churchId, providerName)
	if err != nil {
		return nil, err
	}

	batch := CsvImportBatch{
		ChurchId: churchId,
		FileName: fmt.Sprintf("%s feed %s", providerName, time.Now().Format("2006-01-02 15:04")),
		Status:   CsvBatchStatusUploaded,
	}
	if err := config.GetDB().WithContext(ctx).Create(&batch).Error; err != nil {
		return nil, err
	}

	result := BankFeedSyncResult{BatchId: batch.ID}
	position := cursor.Cursor
	rowNumber := 0

	for {
		rows, nextCursor, hasMore, err := feed.FetchRows(ctx, position)
		if err != nil {
			// keep whatever pages already landed; the cursor still points
			// at the failed page so the next run retries it
			return &result, utils.NewExternalServiceError(providerName, err)
		}

		err = utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {
			staged, skipped, err := stageFeedPageTx(tx, churchId, batch.ID, rows, &rowNumber)
			if err != nil {
				return err
			}
			result.Staged += staged
			result.SkippedExisting += skipped

			now := time.Now()
			return tx.Model(&BankFeedCursor{}).Where("id = ?", cursor.ID).
				Updates(map[string]interface{}{"cursor": nextCursor, "last_synced_at": now}).Error
		})
		if err != nil {
			return &result, err
		}
		position = nextCursor

		if !hasMore {
			break
		}
	}

	if result.Staged == 0 {
		// nothing landed; drop the empty shell so review queues stay clean
		err := config.GetDB().WithContext(ctx).
			Where("church_id = ? AND id = ?", churchId, batch.ID).
			Delete(&CsvImportBatch{}).Error
		if err != nil {
			return &result, err
		}
		result.BatchId = 0
		return &result, nil
	}

	err = config.GetDB().WithContext(ctx).Model(&CsvImportBatch{}).
		Where("id = ?", batch.ID).
		Update("total_rows", result.Staged).Error
	if err != nil {
		return &result, err
	}

	if _, err := ProcessCsvImportBatch(ctx, batch.ID, suggester); err != nil {
		return &result, err
	}
	return &result, nil
}

func stageFeedPageTx(tx *gorm.DB, churchId string, batchId int, rows []BankFeedRow, rowNumber *int) (staged int, skipped int, err error) {

	for _, r := range rows {
		externalId := strings.TrimSpace(r.ExternalId)
		if externalId == "" || r.Amount.IsZero() {
			continue
		}

		seen, err := externalIdSeen(tx, churchId, externalId)
		if err != nil {
			return staged, skipped, err
		}
		if seen {
			skipped++
			continue
		}

		amount := r.Amount
		txType := TransactionTypeIncome
		if amount.IsNegative() {
			txType = TransactionTypeExpense
			amount = amount.Neg()
		}

		*rowNumber++
		row := CsvRow{
			ChurchId:        churchId,
			BatchId:         batchId,
			RowNumber:       *rowNumber,
			ExternalId:      &externalId,
			Source:          TransactionSourceApi,
			TransactionDate: r.Date,
			Amount:          amount,
			TransactionType: txType,
			Description:     strings.TrimSpace(r.Description),
			Reference:       strings.TrimSpace(r.Reference),
			Status:          CsvRowStatusPending,
		}
		if err := tx.Create(&row).Error; err != nil {
			return staged, skipped, err
		}
		staged++
	}
	return staged, skipped, nil
}

// externalIdSeen checks both staged rows and posted transactions, so a row
// survives dedupe across batch purges once its transaction exists.
func externalIdSeen(tx *gorm.DB, churchId string, externalId string) (bool, error) {
	var n int64
	err := tx.Model(&CsvRow{}).
		Where("church_id = ? AND external_id = ?", churchId, externalId).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	err = tx.Model(&Transaction{}).
		Where("church_id = ? AND external_id = ?", churchId, externalId).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func fetchOrCreateFeedCursor(ctx context.Context, churchId string, provider string) (*BankFeedCursor, error) {
	db := config.GetDB()

	var cursor BankFeedCursor
	err := db.WithContext(ctx).
		Where("church_id = ? AND provider = ?", churchId, provider).
		First(&cursor).Error
	if err == nil {
		return &cursor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cursor = BankFeedCursor{ChurchId: churchId, Provider: provider}
	if err := db.WithContext(ctx).Create(&cursor).Error; err != nil {
		return nil, err
	}
	return &cursor, nil
}
