package models

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
	"gorm.io/gorm"
)

// Transaction is the single source of truth for money movement. Fund.Balance
// is a projection of these rows: every write path below patches the fund
// inside the same DB transaction that touches the row, so the two can never
// diverge on a committed state.
//
// Pending/cleared and reconciled are independent axes. A pending transaction
// already counts toward its fund balance; reconciliation changes nothing
// about the balance either, it only locks the financial fields.
type Transaction struct {
	ID                 int               `gorm:"primary_key" json:"id"`
	ChurchId           string            `gorm:"index;size:64;not null" json:"church_id"`
	FundId             int               `gorm:"index;not null" json:"fund_id"`
	Fund               *Fund             `json:"fund"`
	CategoryId         *int              `gorm:"index" json:"category_id"`
	Category           *Category         `json:"category"`
	DonorId            *int              `gorm:"index" json:"donor_id"`
	Donor              *Donor            `json:"donor"`
	TransactionType    TransactionType   `gorm:"size:10;not null" json:"transaction_type"`
	Amount             decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"amount"`
	TransactionDate    time.Time         `gorm:"index;not null" json:"transaction_date"`
	Description        string            `gorm:"size:500" json:"description"`
	Reference          string            `gorm:"size:100" json:"reference"`
	Method             string            `gorm:"size:30" json:"method"`
	Source             TransactionSource `gorm:"size:10;not null;default:'manual'" json:"source"`
	PendingStatus      PendingStatus     `gorm:"size:10;not null;default:'none'" json:"pending_status"`
	ClearedAt          *time.Time        `json:"cleared_at"`
	IsReconciled       bool              `gorm:"index;not null;default:false" json:"is_reconciled"`
	ReconciledAt       *time.Time        `json:"reconciled_at"`
	CategorySource     CategorySource    `gorm:"size:10;not null;default:'none'" json:"category_source"`
	CsvRowId           *int              `gorm:"index" json:"csv_row_id"`
	ExternalId         *string           `gorm:"index;size:100" json:"external_id"`
	ReceiptObjectId    *string           `gorm:"size:200" json:"receipt_object_id"`
	CreatedAt          time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTransaction struct {
	FundId          int             `json:"fund_id" binding:"required"`
	CategoryId      *int            `json:"category_id"`
	DonorId         *int            `json:"donor_id"`
	TransactionType TransactionType `json:"transaction_type" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	TransactionDate time.Time       `json:"transaction_date" binding:"required"`
	Description     string          `json:"description"`
	Reference       string          `json:"reference"`
	Method          string          `json:"method"`
	Pending         bool            `json:"pending"`
	PendingReason   string          `json:"pending_reason"`
	ExpectedDate    *time.Time      `json:"expected_date"`
}

// UpdateTransactionInput carries only the fields to change; nil leaves the
// stored value alone.
type UpdateTransactionInput struct {
	FundId          *int             `json:"fund_id"`
	CategoryId      *int             `json:"category_id"`
	DonorId         *int             `json:"donor_id"`
	TransactionType *TransactionType `json:"transaction_type"`
	Amount          *decimal.Decimal `json:"amount"`
	TransactionDate *time.Time       `json:"transaction_date"`
	Description     *string          `json:"description"`
	Reference       *string          `json:"reference"`
	Method          *string          `json:"method"`
}

func (t Transaction) GetId() int {
	return t.ID
}

func validateTransactionRefs(ctx context.Context, churchId string, fundId int, categoryId *int, donorId *int, txType TransactionType) error {

	fund, err := utils.FetchModel[Fund](ctx, churchId, fundId)
	if err != nil {
		if utils.IsNotFound(err) {
			return utils.NewValidationError("fund_id", "fund not found")
		}
		return err
	}
	if fund.IsActive != nil && !*fund.IsActive {
		return utils.NewValidationError("fund_id", "fund is inactive")
	}

	switch txType {
	case TransactionTypeIncome, TransactionTypeExpense:
	default:
		return utils.NewValidationError("transaction_type", "invalid transaction type")
	}

	if categoryId != nil {
		category, err := utils.FetchModel[Category](ctx, churchId, *categoryId)
		if err != nil {
			if utils.IsNotFound(err) {
				return utils.NewValidationError("category_id", "category not found")
			}
			return err
		}
		if string(category.CategoryType) != string(txType) {
			return utils.NewValidationError("category_id", "category type does not match transaction type")
		}
	}

	if donorId != nil {
		if txType != TransactionTypeIncome {
			return utils.NewValidationError("donor_id", "donors attach to income only")
		}
		if err := utils.ValidateResourceId[Donor](ctx, churchId, *donorId); err != nil {
			if utils.IsNotFound(err) {
				return utils.NewValidationError("donor_id", "donor not found")
			}
			return err
		}
	}
	return nil
}

func (input *NewTransaction) validate(ctx context.Context, churchId string) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return utils.NewValidationError("amount", "amount must be positive")
	}
	if input.TransactionDate.IsZero() {
		return utils.NewValidationError("transaction_date", "transaction date is required")
	}
	return validateTransactionRefs(ctx, churchId, input.FundId, input.CategoryId, input.DonorId, input.TransactionType)
}

// postTransactionTx writes a new transaction row, its fund-balance patch,
// the pending record when applicable, the audit entry and the outbox event,
// all inside the caller's tx. Shared by manual create, CSV row approval and
// the bank feed so every entry point posts identically.
func postTransactionTx(tx *gorm.DB, txn *Transaction, pendingReason string, expectedDate *time.Time) error {

	if err := tx.Create(txn).Error; err != nil {
		return err
	}

	if txn.PendingStatus == PendingStatusPending {
		if err := createPendingRecord(tx, txn.ChurchId, txn.ID, pendingReason, expectedDate); err != nil {
			return err
		}
	}

	if err := applyFundBalance(tx, txn.ChurchId, txn.FundId, signedAmount(txn.Amount, txn.TransactionType)); err != nil {
		return err
	}

	if err := SaveHistoryCreate(tx, "Transaction", txn.ID, txn, "Transaction created."); err != nil {
		return err
	}
	return writeLedgerEvent(tx.Statement.Context, tx, txn.ChurchId, txn.TransactionDate, txn.ID, "Transaction", LedgerEventActionCreate, nil, txn)
}

func CreateTransaction(ctx context.Context, input *NewTransaction) (*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if err := input.validate(ctx, churchId); err != nil {
		return nil, err
	}

	pendingStatus := PendingStatusNone
	if input.Pending {
		pendingStatus = PendingStatusPending
	}

	txn := Transaction{
		ChurchId:        churchId,
		FundId:          input.FundId,
		CategoryId:      input.CategoryId,
		DonorId:         input.DonorId,
		TransactionType: input.TransactionType,
		Amount:          input.Amount,
		TransactionDate: input.TransactionDate,
		Description:     input.Description,
		Reference:       input.Reference,
		Method:          input.Method,
		Source:          TransactionSourceManual,
		PendingStatus:   pendingStatus,
		CategorySource:  categorySourceForManual(input.CategoryId),
	}

	err := utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {
		return postTransactionTx(tx, &txn, input.PendingReason, input.ExpectedDate)
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func categorySourceForManual(categoryId *int) CategorySource {
	if categoryId != nil {
		return CategorySourceManual
	}
	return CategorySourceNone
}

// UpdateTransaction rewrites the financial fields of a posted transaction.
// The balance effect is expressed as two patches inside one tx: the stored
// contribution is reversed against the stored fund, then the new contribution
// is applied to the (possibly different) new fund. Both patches commit or
// neither does.
func UpdateTransaction(ctx context.Context, id int, input *UpdateTransactionInput) (*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	var updated Transaction
	err := utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {

		var stored Transaction
		err := tx.Where("church_id = ? AND id = ?", churchId, id).First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			return err
		}

		financialChange := input.FundId != nil || input.Amount != nil || input.TransactionType != nil
		if stored.IsReconciled && financialChange {
			return utils.NewValidationError("id", "reconciled transactions cannot change fund, amount or type")
		}

		next := stored
		if input.FundId != nil {
			next.FundId = *input.FundId
		}
		if input.CategoryId != nil {
			next.CategoryId = input.CategoryId
			next.CategorySource = CategorySourceManual
		}
		if input.DonorId != nil {
			next.DonorId = input.DonorId
		}
		if input.TransactionType != nil {
			next.TransactionType = *input.TransactionType
		}
		if input.Amount != nil {
			if input.Amount.LessThanOrEqual(decimal.Zero) {
				return utils.NewValidationError("amount", "amount must be positive")
			}
			next.Amount = *input.Amount
		}
		if input.TransactionDate != nil {
			next.TransactionDate = *input.TransactionDate
		}
		if input.Description != nil {
			next.Description = *input.Description
		}
		if input.Reference != nil {
			next.Reference = *input.Reference
		}
		if input.Method != nil {
			next.Method = *input.Method
		}

		if err := validateTransactionRefs(ctx, churchId, next.FundId, next.CategoryId, next.DonorId, next.TransactionType); err != nil {
			return err
		}

		// Reverse what the stored row contributed, then apply the new
		// contribution. When the fund is unchanged this still nets correctly.
		if err := applyFundBalance(tx, churchId, stored.FundId, signedAmount(stored.Amount, stored.TransactionType).Neg()); err != nil {
			return err
		}
		if err := applyFundBalance(tx, churchId, next.FundId, signedAmount(next.Amount, next.TransactionType)); err != nil {
			return err
		}

		err = tx.Model(&Transaction{}).Where("church_id = ? AND id = ?", churchId, id).
			Updates(map[string]interface{}{
				"fund_id":          next.FundId,
				"category_id":      next.CategoryId,
				"donor_id":         next.DonorId,
				"transaction_type": next.TransactionType,
				"amount":           next.Amount,
				"transaction_date": next.TransactionDate,
				"description":      next.Description,
				"reference":        next.Reference,
				"method":           next.Method,
				"category_source":  next.CategorySource,
			}).Error
		if err != nil {
			return err
		}

		if err := SaveHistoryUpdate(tx, "Transaction", id, &stored, &next, "Transaction updated."); err != nil {
			return err
		}
		if err := writeLedgerEvent(ctx, tx, churchId, next.TransactionDate, id, "Transaction", LedgerEventActionUpdate, &stored, &next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTransaction reverses the row's fund contribution and removes it along
// with any pending records. The receipt blob, if one is attached, is deleted
// best effort after the commit; a failed blob delete never unwinds the ledger.
func DeleteTransaction(ctx context.Context, id int, receipts utils.ReceiptStore) (*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	var deleted Transaction
	err := utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {

		var stored Transaction
		err := tx.Where("church_id = ? AND id = ?", churchId, id).First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			return err
		}

		if err := applyFundBalance(tx, churchId, stored.FundId, signedAmount(stored.Amount, stored.TransactionType).Neg()); err != nil {
			return err
		}
		if err := deletePendingRecords(tx, churchId, stored.ID); err != nil {
			return err
		}
		if err := tx.Delete(&Transaction{}, stored.ID).Error; err != nil {
			return err
		}

		if err := SaveHistoryDelete(tx, "Transaction", stored.ID, &stored, "Transaction deleted."); err != nil {
			return err
		}
		if err := writeLedgerEvent(ctx, tx, churchId, stored.TransactionDate, stored.ID, "Transaction", LedgerEventActionDelete, &stored, nil); err != nil {
			return err
		}
		deleted = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	if deleted.ReceiptObjectId != nil && receipts != nil {
		if err := receipts.Delete(ctx, *deleted.ReceiptObjectId); err != nil {
			config.LogError(config.GetLogger(), "models", "DeleteTransaction", "delete receipt blob", *deleted.ReceiptObjectId, err)
		}
	}
	return &deleted, nil
}

func MarkTransactionPending(ctx context.Context, id int, reason string, expectedDate *time.Time) (*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	var result Transaction
	err := utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {

		var stored Transaction
		err := tx.Where("church_id = ? AND id = ?", churchId, id).First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			return err
		}
		if stored.PendingStatus == PendingStatusPending {
			result = stored
			return nil
		}
		if stored.IsReconciled {
			return utils.NewValidationError("id", "reconciled transactions cannot go pending")
		}

		err = tx.Model(&Transaction{}).Where("church_id = ? AND id = ?", churchId, id).
			Updates(map[string]interface{}{"pending_status": PendingStatusPending, "cleared_at": nil}).Error
		if err != nil {
			return err
		}
		if err := createPendingRecord(tx, churchId, id, reason, expectedDate); err != nil {
			return err
		}

		after := stored
		after.PendingStatus = PendingStatusPending
		after.ClearedAt = nil
		if err := SaveHistoryUpdate(tx, "Transaction", id, &stored, &after, "Transaction marked pending."); err != nil {
			return err
		}
		result = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ResolvePendingTransaction closes the pending lifecycle. cleared = true
// stamps the clear; cleared = false returns the row to the plain state
// (entered in error). Either way the open pending record is resolved and the
// fund balance is untouched, since pending amounts were counted all along.
func ResolvePendingTransaction(ctx context.Context, id int, cleared bool) (*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	var result Transaction
	err := utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {

		var stored Transaction
		err := tx.Where("church_id = ? AND id = ?", churchId, id).First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			return err
		}
		if stored.PendingStatus != PendingStatusPending {
			return utils.NewValidationError("id", "transaction is not pending")
		}

		now := time.Now()
		updates := map[string]interface{}{}
		after := stored
		if cleared {
			updates["pending_status"] = PendingStatusCleared
			updates["cleared_at"] = now
			after.PendingStatus = PendingStatusCleared
			after.ClearedAt = &now
		} else {
			updates["pending_status"] = PendingStatusNone
			updates["cleared_at"] = nil
			after.PendingStatus = PendingStatusNone
			after.ClearedAt = nil
		}

		err = tx.Model(&Transaction{}).Where("church_id = ? AND id = ?", churchId, id).Updates(updates).Error
		if err != nil {
			return err
		}
		if err := resolvePendingRecord(tx, churchId, id, now); err != nil {
			return err
		}
		if err := SaveHistoryUpdate(tx, "Transaction", id, &stored, &after, "Pending transaction resolved."); err != nil {
			return err
		}
		result = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SetTransactionReconciled matches the row against a bank statement line.
// Reconciling a still-pending transaction implies the money actually moved,
// so the pending state is cleared in the same step.
func SetTransactionReconciled(ctx context.Context, id int, reconciled bool) (*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	var result Transaction
	err := utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {

		var stored Transaction
		err := tx.Where("church_id = ? AND id = ?", churchId, id).First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			return err
		}
		if stored.IsReconciled == reconciled {
			result = stored
			return nil
		}

		now := time.Now()
		updates := map[string]interface{}{"is_reconciled": reconciled}
		after := stored
		after.IsReconciled = reconciled
		if reconciled {
			updates["reconciled_at"] = now
			after.ReconciledAt = &now
			if stored.PendingStatus == PendingStatusPending {
				updates["pending_status"] = PendingStatusCleared
				updates["cleared_at"] = now
				after.PendingStatus = PendingStatusCleared
				after.ClearedAt = &now
				if err := resolvePendingRecord(tx, churchId, id, now); err != nil {
					return err
				}
			}
		} else {
			updates["reconciled_at"] = nil
			after.ReconciledAt = nil
		}

		err = tx.Model(&Transaction{}).Where("church_id = ? AND id = ?", churchId, id).Updates(updates).Error
		if err != nil {
			return err
		}
		if err := SaveHistoryUpdate(tx, "Transaction", id, &stored, &after, "Transaction reconciliation changed."); err != nil {
			return err
		}
		result = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AttachTransactionReceipt uploads the blob first and links it afterwards, so
// a failed upload leaves the row untouched. A replaced receipt's old blob is
// removed best effort.
func AttachTransactionReceipt(ctx context.Context, id int, content io.Reader, receipts utils.ReceiptStore) (*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}
	if receipts == nil {
		return nil, errors.New("receipt store is not configured")
	}

	stored, err := utils.FetchModel[Transaction](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	objectId, err := receipts.Put(ctx, content)
	if err != nil {
		return nil, utils.NewExternalServiceError("receipt-store", err)
	}

	previous := stored.ReceiptObjectId
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&Transaction{}).
		Where("church_id = ? AND id = ?", churchId, id).
		Update("receipt_object_id", objectId).Error
	if err != nil {
		return nil, err
	}

	if previous != nil && *previous != objectId {
		if err := receipts.Delete(ctx, *previous); err != nil {
			config.LogError(config.GetLogger(), "models", "AttachTransactionReceipt", "delete old receipt blob", *previous, err)
		}
	}

	stored.ReceiptObjectId = &objectId
	return stored, nil
}

func GetTransaction(ctx context.Context, id int) (*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}
	return utils.FetchModel[Transaction](ctx, churchId, id, "Fund", "Category", "Donor")
}

type TransactionFilter struct {
	FundId          *int
	DonorId         *int
	TransactionType *TransactionType
	PendingOnly     bool
	Unreconciled    bool
	FromDate        *time.Time
	ToDate          *time.Time
	Search          *string
}

func GetTransactions(ctx context.Context, filter *TransactionFilter) ([]*Transaction, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("church_id = ?", churchId)

	if filter != nil {
		if filter.FundId != nil {
			dbCtx = dbCtx.Where("fund_id = ?", *filter.FundId)
		}
		if filter.DonorId != nil {
			dbCtx = dbCtx.Where("donor_id = ?", *filter.DonorId)
		}
		if filter.TransactionType != nil {
			dbCtx = dbCtx.Where("transaction_type = ?", *filter.TransactionType)
		}
		if filter.PendingOnly {
			dbCtx = dbCtx.Where("pending_status = ?", PendingStatusPending)
		}
		if filter.Unreconciled {
			dbCtx = dbCtx.Where("is_reconciled = ?", false)
		}
		if filter.FromDate != nil {
			dbCtx = dbCtx.Where("transaction_date >= ?", *filter.FromDate)
		}
		if filter.ToDate != nil {
			dbCtx = dbCtx.Where("transaction_date <= ?", *filter.ToDate)
		}
		if filter.Search != nil && len(*filter.Search) > 0 {
			like := "%" + *filter.Search + "%"
			dbCtx = dbCtx.Where("description LIKE ? OR reference LIKE ?", like, like)
		}
	}

	var results []*Transaction
	err := dbCtx.Order("transaction_date desc, id desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
