package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
	"gorm.io/gorm"
)

// Fund balances are a derived projection of posted transactions. Only the
// ledger operations in transaction.go write the Balance column.
type Fund struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ChurchId  string          `gorm:"index;size:64;not null" json:"church_id"`
	Name      string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	FundType  FundType        `gorm:"size:12;not null;default:'general'" json:"fund_type" binding:"required"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewFund struct {
	Name     string   `json:"name" binding:"required"`
	FundType FundType `json:"fund_type" binding:"required"`
}

func (f Fund) GetId() int {
	return f.ID
}

// validate input for both create & update. (id = 0 for create)

func (input *NewFund) validate(ctx context.Context, churchId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateResourceId[Fund](ctx, churchId, id); err != nil {
			return err
		}
	}
	// name
	if err := utils.ValidateUnique[Fund](ctx, churchId, "name", input.Name, id); err != nil {
		return err
	}
	switch input.FundType {
	case FundTypeGeneral, FundTypeRestricted, FundTypeDesignated:
	default:
		return utils.NewValidationError("fund_type", "invalid fund type")
	}
	return nil
}

func CreateFund(ctx context.Context, input *NewFund) (*Fund, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if err := input.validate(ctx, churchId, 0); err != nil {
		return nil, err
	}

	fund := Fund{
		ChurchId: churchId,
		Name:     input.Name,
		FundType: input.FundType,
		Balance:  decimal.Zero,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&fund).Error
	if err != nil {
		return nil, err
	}
	return &fund, nil
}

func UpdateFund(ctx context.Context, id int, input *NewFund) (*Fund, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if err := input.validate(ctx, churchId, id); err != nil {
		return nil, err
	}

	fund, err := utils.FetchModel[Fund](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	// Balance is deliberately absent here: it belongs to the ledger.
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&fund).Updates(map[string]interface{}{
		"Name":     input.Name,
		"FundType": input.FundType,
	}).Error
	if err != nil {
		return nil, err
	}
	return fund, nil
}

func MarkFundActive(ctx context.Context, id int, isActive bool) (*Fund, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	fund, err := utils.FetchModel[Fund](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&fund).Updates(Fund{IsActive: &isActive}).Error
	if err != nil {
		return nil, err
	}
	return fund, nil
}

func DeleteFund(ctx context.Context, id int) (*Fund, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	fund, err := utils.FetchModel[Fund](ctx, churchId, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Transaction](ctx, churchId, "fund_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("this fund has transactions")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Delete(&fund).Error
	if err != nil {
		return nil, err
	}
	return fund, nil
}

func GetFund(ctx context.Context, id int) (*Fund, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}
	return utils.FetchModel[Fund](ctx, churchId, id)
}

func GetFunds(ctx context.Context, name *string) ([]*Fund, error) {

	db := config.GetDB()
	var results []*Fund

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	dbCtx := db.WithContext(ctx).Where("church_id = ?", churchId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// signedAmount is the fund-balance contribution of a transaction:
// income adds, expense subtracts.
func signedAmount(amount decimal.Decimal, txType TransactionType) decimal.Decimal {
	if txType == TransactionTypeExpense {
		return amount.Neg()
	}
	return amount
}

// applyFundBalance patches a fund balance by delta inside tx and verifies
// the patch landed: the balance is read before and after the atomic UPDATE
// and any disagreement aborts the whole transaction. A balance that does not
// move by exactly delta means a write path is broken, and a broken projection
// must never commit.
func applyFundBalance(tx *gorm.DB, churchId string, fundId int, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}

	var before Fund
	err := tx.Where("church_id = ? AND id = ?", churchId, fundId).First(&before).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewInvariantViolation("fund %d vanished mid-transaction", fundId)
	}
	if err != nil {
		return err
	}

	// The sum is taken in decimal here, not in SQL: a SQL-side addition runs
	// in the column's native arithmetic, which is floating point on some
	// backends and would drift the projection.
	want := before.Balance.Add(delta)
	res := tx.Model(&Fund{}).
		Where("church_id = ? AND id = ?", churchId, fundId).
		Update("balance", want)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return utils.NewInvariantViolation("balance patch touched %d rows for fund %d", res.RowsAffected, fundId)
	}

	var after Fund
	if err := tx.Where("church_id = ? AND id = ?", churchId, fundId).First(&after).Error; err != nil {
		return err
	}
	if !after.Balance.Equal(want) {
		return utils.NewInvariantViolation("fund %d balance is %s after patch, expected %s",
			fundId, after.Balance.String(), want.String())
	}
	return nil
}

// RecomputeFundBalance replays all posted transactions for a fund. Used by the
// balance-verify tool; it never writes.
func RecomputeFundBalance(ctx context.Context, churchId string, fundId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var txns []*Transaction
	if err := db.WithContext(ctx).
		Where("church_id = ? AND fund_id = ?", churchId, fundId).
		Find(&txns).Error; err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, t := range txns {
		sum = sum.Add(signedAmount(t.Amount, t.TransactionType))
	}
	return sum, nil
}
