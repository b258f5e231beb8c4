package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/ai"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
	"gorm.io/gorm"
)

const csvImportLockTTL = 5 * time.Minute

// CsvImportBatch is one uploaded bank export. Rows are staged under it and
// reviewed (or auto-approved) into real transactions; the batch itself is
// bookkeeping and can be purged once its rows are settled.
type CsvImportBatch struct {
	ID            int            `gorm:"primary_key" json:"id"`
	ChurchId      string         `gorm:"index;size:64;not null" json:"church_id"`
	FileName      string         `gorm:"size:255;not null" json:"file_name"`
	Status        CsvBatchStatus `gorm:"size:12;not null;default:'uploaded'" json:"status"`
	TotalRows     int            `gorm:"default:0" json:"total_rows"`
	DuplicateRows int            `gorm:"default:0" json:"duplicate_rows"`
	ReadyRows     int            `gorm:"default:0" json:"ready_rows"`
	ApprovedRows  int            `gorm:"default:0" json:"approved_rows"`
	SkippedRows   int            `gorm:"default:0" json:"skipped_rows"`
	ErrorRows     int            `gorm:"default:0" json:"error_rows"`
	LastError     *string        `gorm:"type:text" json:"last_error"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// CsvRow is one staged bank movement. Status walks
// pending -> duplicate | ready -> approved | skipped; approved and skipped
// are terminal, and an approved row points at exactly one Transaction.
type CsvRow struct {
	ID                  int               `gorm:"primary_key" json:"id"`
	ChurchId            string            `gorm:"index;size:64;not null" json:"church_id"`
	BatchId             int               `gorm:"index;not null" json:"batch_id"`
	RowNumber           int               `gorm:"not null" json:"row_number"`
	ExternalId          *string           `gorm:"index;size:100" json:"external_id"`
	Source              TransactionSource `gorm:"size:10;not null;default:'csv'" json:"source"`
	TransactionDate     time.Time         `gorm:"not null" json:"transaction_date"`
	Amount              decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"amount"`
	TransactionType     TransactionType   `gorm:"size:10;not null" json:"transaction_type"`
	Description         string            `gorm:"size:500" json:"description"`
	Reference           string            `gorm:"size:100" json:"reference"`
	Status              CsvRowStatus      `gorm:"index;size:10;not null;default:'pending'" json:"status"`
	DuplicateOfId       *int              `json:"duplicate_of_id"`
	SuggestedFundId     *int              `json:"suggested_fund_id"`
	SuggestedCategoryId *int              `json:"suggested_category_id"`
	CategorySource      CategorySource    `gorm:"size:10;not null;default:'none'" json:"category_source"`
	CategoryConfidence  *float64          `json:"category_confidence"`
	MatchedDonorId      *int              `json:"matched_donor_id"`
	DonorConfidence     *float64          `json:"donor_confidence"`
	TransactionId       *int              `gorm:"index" json:"transaction_id"`
	SkipReason          *string           `gorm:"size:255" json:"skip_reason"`
	LastError           *string           `gorm:"size:500" json:"last_error"`
	CreatedAt           time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b CsvImportBatch) GetId() int {
	return b.ID
}

func (r CsvRow) GetId() int {
	return r.ID
}

// csvBankLine is the expected file shape. Fields stay strings here; parsing
// into dates and decimals happens per line so one bad cell fails one row,
// not the file.
type csvBankLine struct {
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Description string `csv:"description"`
	Reference   string `csv:"reference"`
}

var csvDateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

func parseCsvDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// parseCsvLine turns a raw line into a staged row. The amount's sign decides
// the transaction type; the stored amount is always positive.
func parseCsvLine(line *csvBankLine) (date time.Time, amount decimal.Decimal, txType TransactionType, err error) {
	date, err = parseCsvDate(line.Date)
	if err != nil {
		return
	}
	raw := strings.ReplaceAll(strings.TrimSpace(line.Amount), ",", "")
	amount, err = decimal.NewFromString(raw)
	if err != nil {
		err = fmt.Errorf("unrecognized amount %q", line.Amount)
		return
	}
	if amount.IsZero() {
		err = errors.New("zero amount")
		return
	}
	txType = TransactionTypeIncome
	if amount.IsNegative() {
		txType = TransactionTypeExpense
		amount = amount.Neg()
	}
	return
}

// ParseCsvFile normalizes an uploaded bank CSV into staged-row prototypes
// (no church or batch attached yet). A bad line fails that line, not the
// file; the count of unparseable lines comes back alongside the rows.
func ParseCsvFile(content []byte) ([]CsvRow, int, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, 0, utils.NewValidationError("file", "file is empty")
	}

	var lines []*csvBankLine
	if err := gocsv.UnmarshalBytes(content, &lines); err != nil {
		return nil, 0, utils.NewValidationError("file", "could not parse CSV: "+err.Error())
	}

	var rows []CsvRow
	badLines := 0
	for i, line := range lines {
		date, amount, txType, err := parseCsvLine(line)
		if err != nil {
			badLines++
			continue
		}
		rows = append(rows, CsvRow{
			RowNumber:       i + 1,
			TransactionDate: date,
			Amount:          amount,
			TransactionType: txType,
			Description:     strings.TrimSpace(line.Description),
			Reference:       strings.TrimSpace(line.Reference),
			Status:          CsvRowStatusPending,
			Source:          TransactionSourceCsv,
		})
	}
	return rows, badLines, nil
}

// CreateCsvImportBatch parses the uploaded file and stages every parseable
// line as a pending row. A file with zero usable lines is rejected.
func CreateCsvImportBatch(ctx context.Context, fileName string, content []byte) (*CsvImportBatch, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	rows, badLines, err := ParseCsvFile(content)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, utils.NewValidationError("file", "no usable rows in file")
	}

	batch := CsvImportBatch{
		ChurchId:  churchId,
		FileName:  fileName,
		Status:    CsvBatchStatusUploaded,
		TotalRows: len(rows),
		ErrorRows: badLines,
	}

	err = utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].ChurchId = churchId
			rows[i].BatchId = batch.ID
			if err := tx.Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return SaveHistoryCreate(tx, "CsvImportBatch", batch.ID, &batch, "CSV import batch uploaded.")
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// ProcessCsvImportBatch runs detection and matching over the batch's pending
// rows. The expensive collaborators (AI suggestions) are called outside the
// per-row write transaction; each row's state change is its own atomic step,
// so one failing row leaves the rest of the batch processed.
func ProcessCsvImportBatch(ctx context.Context, batchId int, suggester ai.CategorySuggester) (*CsvImportBatch, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	release, err := utils.ChurchLock(ctx, churchId, "csv-import", csvImportLockTTL)
	if err != nil {
		return nil, err
	}
	if release != nil {
		defer release()
	}

	batch, err := utils.FetchModel[CsvImportBatch](ctx, churchId, batchId)
	if err != nil {
		return nil, err
	}
	if batch.Status == CsvBatchStatusCompleted {
		return batch, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&CsvImportBatch{}).Where("id = ?", batch.ID).
		Update("status", CsvBatchStatusProcessing).Error; err != nil {
		return nil, err
	}

	settings, err := GetChurchSettings(ctx, churchId)
	if err != nil {
		return nil, markBatchFailed(ctx, batch.ID, err)
	}
	var defaultFund *Fund
	if settings.DefaultFundId > 0 {
		defaultFund, err = utils.FetchModel[Fund](ctx, churchId, settings.DefaultFundId)
		if err != nil && !utils.IsNotFound(err) {
			return nil, markBatchFailed(ctx, batch.ID, err)
		}
	}

	var rows []*CsvRow
	err = db.WithContext(ctx).
		Where("church_id = ? AND batch_id = ? AND status = ?", churchId, batchId, CsvRowStatusPending).
		Order("row_number").
		Find(&rows).Error
	if err != nil {
		return nil, markBatchFailed(ctx, batch.ID, err)
	}

	for _, row := range rows {
		if err := processOneCsvRow(ctx, row, defaultFund, suggester); err != nil {
			config.LogError(config.GetLogger(), "models", "ProcessCsvImportBatch", "row", row.ID, err)
			msg := err.Error()
			if len(msg) > 500 {
				msg = msg[:500]
			}
			db.WithContext(ctx).Model(&CsvRow{}).Where("id = ?", row.ID).Update("last_error", msg)
		}
	}

	if err := refreshBatchCounters(ctx, churchId, batchId); err != nil {
		return nil, err
	}
	return utils.FetchModel[CsvImportBatch](ctx, churchId, batchId)
}

// markBatchFailed records a batch-level error (not a per-row one) and parks
// the batch in failed until the next processing attempt. Returns the original
// error so callers can pass it straight through.
func markBatchFailed(ctx context.Context, batchId int, cause error) error {
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	err := config.GetDB().WithContext(ctx).Model(&CsvImportBatch{}).Where("id = ?", batchId).
		Updates(map[string]interface{}{"status": CsvBatchStatusFailed, "last_error": msg}).Error
	if err != nil {
		config.LogError(config.GetLogger(), "models", "markBatchFailed", "batch", batchId, err)
	}
	return cause
}

func processOneCsvRow(ctx context.Context, row *CsvRow, defaultFund *Fund, suggester ai.CategorySuggester) error {

	duplicates, err := FindDuplicateTransactions(ctx, row.ChurchId, row.TransactionDate, row.Amount, row.Reference)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{"status": CsvRowStatusReady, "last_error": nil}
	// Duplicate-flagged rows still run detection: a reviewer may approve one
	// as a coincidence and needs the same suggestions to work from.
	if len(duplicates) > 0 {
		updates["status"] = CsvRowStatusDuplicate
		updates["duplicate_of_id"] = duplicates[0].ID
	}

	if row.TransactionType == TransactionTypeIncome {
		match, err := MatchDonor(ctx, row.ChurchId, row.Reference, row.Description)
		if err != nil {
			return err
		}
		if match != nil {
			updates["matched_donor_id"] = match.DonorId
			updates["donor_confidence"] = match.Confidence
		}
	}

	// Without a default fund there is no fund type to classify against, so
	// the row stays uncategorized until a reviewer picks a fund.
	if defaultFund != nil {
		updates["suggested_fund_id"] = defaultFund.ID

		// AI and keyword lookups run before the row's write tx opens
		category, err := ClassifyCategory(ctx, row.ChurchId, row.Description, row.Amount, row.TransactionType, defaultFund.FundType, suggester)
		if err != nil {
			return err
		}
		if category != nil {
			updates["suggested_category_id"] = category.CategoryId
			updates["category_source"] = category.Source
			updates["category_confidence"] = category.Confidence
		}
	}

	return utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {
		return tx.Model(&CsvRow{}).Where("id = ? AND status = ?", row.ID, CsvRowStatusPending).
			Updates(updates).Error
	})
}

// refreshBatchCounters recomputes the batch's per-status counts from its rows
// and settles its status: completed once nothing awaits a decision.
func refreshBatchCounters(ctx context.Context, churchId string, batchId int) error {
	return utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {

		type statusCount struct {
			Status CsvRowStatus
			N      int
		}
		var counts []statusCount
		err := tx.Model(&CsvRow{}).
			Select("status, count(*) as n").
			Where("church_id = ? AND batch_id = ?", churchId, batchId).
			Group("status").
			Scan(&counts).Error
		if err != nil {
			return err
		}

		byStatus := map[CsvRowStatus]int{}
		for _, c := range counts {
			byStatus[c.Status] = c.N
		}
		open := byStatus[CsvRowStatusPending] + byStatus[CsvRowStatusReady] + byStatus[CsvRowStatusDuplicate]

		status := CsvBatchStatusProcessing
		if open == 0 {
			status = CsvBatchStatusCompleted
		}

		return tx.Model(&CsvImportBatch{}).
			Where("church_id = ? AND id = ?", churchId, batchId).
			Updates(map[string]interface{}{
				"duplicate_rows": byStatus[CsvRowStatusDuplicate],
				"ready_rows":     byStatus[CsvRowStatusReady],
				"approved_rows":  byStatus[CsvRowStatusApproved],
				"skipped_rows":   byStatus[CsvRowStatusSkipped],
				"status":         status,
			}).Error
	})
}

// ApproveCsvRowInput lets the reviewer override what processing suggested.
type ApproveCsvRowInput struct {
	FundId     *int `json:"fund_id"`
	CategoryId *int `json:"category_id"`
	DonorId    *int `json:"donor_id"`
}

// ApproveCsvRow turns a staged row into exactly one posted transaction.
// Approval is terminal: approving an already-approved row returns the
// existing transaction and writes nothing. A duplicate-flagged row may be
// approved, which is the reviewer saying the match was a coincidence.
func ApproveCsvRow(ctx context.Context, rowId int, input *ApproveCsvRowInput) (*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	var posted *Transaction
	err := utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {
		var err error
		posted, err = approveCsvRowTx(ctx, tx, churchId, rowId, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := refreshBatchCountersForRow(ctx, churchId, rowId); err != nil {
		return nil, err
	}
	return posted, nil
}

func approveCsvRowTx(ctx context.Context, tx *gorm.DB, churchId string, rowId int, input *ApproveCsvRowInput) (*Transaction, error) {

	var row CsvRow
	err := tx.Where("church_id = ? AND id = ?", churchId, rowId).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if row.Status == CsvRowStatusApproved {
		if row.TransactionId == nil {
			return nil, utils.NewInvariantViolation("approved row %d has no transaction", row.ID)
		}
		var existing Transaction
		if err := tx.Where("church_id = ? AND id = ?", churchId, *row.TransactionId).First(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if row.Status == CsvRowStatusSkipped {
		return nil, utils.NewValidationError("id", "skipped rows cannot be approved")
	}
	if row.Status == CsvRowStatusPending {
		return nil, utils.NewValidationError("id", "row has not been processed yet")
	}

	fundId := 0
	if input != nil && input.FundId != nil {
		fundId = *input.FundId
	} else if row.SuggestedFundId != nil {
		fundId = *row.SuggestedFundId
	}
	if fundId == 0 {
		return nil, utils.NewValidationError("fund_id", "no fund for this row; pick one")
	}

	categoryId := row.SuggestedCategoryId
	categorySource := row.CategorySource
	if input != nil && input.CategoryId != nil {
		categoryId = input.CategoryId
		categorySource = CategorySourceManual
	}
	donorId := row.MatchedDonorId
	if input != nil && input.DonorId != nil {
		donorId = input.DonorId
	}
	if row.TransactionType != TransactionTypeIncome {
		donorId = nil
	}

	if err := validateTransactionRefs(ctx, churchId, fundId, categoryId, donorId, row.TransactionType); err != nil {
		return nil, err
	}

	txn := Transaction{
		ChurchId:        churchId,
		FundId:          fundId,
		CategoryId:      categoryId,
		DonorId:         donorId,
		TransactionType: row.TransactionType,
		Amount:          row.Amount,
		TransactionDate: row.TransactionDate,
		Description:     row.Description,
		Reference:       row.Reference,
		Source:          row.Source,
		PendingStatus:   PendingStatusNone,
		CategorySource:  categorySource,
		CsvRowId:        &row.ID,
		ExternalId:      row.ExternalId,
	}
	if err := postTransactionTx(tx, &txn, "", nil); err != nil {
		return nil, err
	}

	err = tx.Model(&CsvRow{}).Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"status":         CsvRowStatusApproved,
			"transaction_id": txn.ID,
		}).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// SkipCsvRow discards a staged row. Terminal, like approval, but approved
// rows stay approved: their money already moved.
func SkipCsvRow(ctx context.Context, rowId int, reason string) (*CsvRow, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	var skipped CsvRow
	err := utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {

		var row CsvRow
		err := tx.Where("church_id = ? AND id = ?", churchId, rowId).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			return err
		}
		if row.Status == CsvRowStatusSkipped {
			skipped = row
			return nil
		}
		if row.Status == CsvRowStatusApproved {
			return utils.NewValidationError("id", "approved rows cannot be skipped")
		}

		err = tx.Model(&CsvRow{}).Where("id = ?", row.ID).
			Updates(map[string]interface{}{"status": CsvRowStatusSkipped, "skip_reason": reason}).Error
		if err != nil {
			return err
		}
		row.Status = CsvRowStatusSkipped
		row.SkipReason = &reason
		skipped = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := refreshBatchCountersForRow(ctx, churchId, rowId); err != nil {
		return nil, err
	}
	return &skipped, nil
}

func refreshBatchCountersForRow(ctx context.Context, churchId string, rowId int) error {
	var row CsvRow
	err := config.GetDB().WithContext(ctx).Select("batch_id").
		Where("church_id = ? AND id = ?", churchId, rowId).
		First(&row).Error
	if err != nil {
		return err
	}
	return refreshBatchCounters(ctx, churchId, row.BatchId)
}

func GetCsvImportBatch(ctx context.Context, id int) (*CsvImportBatch, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}
	return utils.FetchModel[CsvImportBatch](ctx, churchId, id)
}

func GetCsvRows(ctx context.Context, batchId int, status *CsvRowStatus) ([]*CsvRow, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	dbCtx := config.GetDB().WithContext(ctx).
		Where("church_id = ? AND batch_id = ?", churchId, batchId)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	var rows []*CsvRow
	err := dbCtx.Order("row_number").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
