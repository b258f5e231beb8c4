package models

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/config"
)

// Amounts closer than this are considered the same money movement. Bank
// exports round to the penny, so anything under a penny is formatting noise.
var duplicateAmountEpsilon = decimal.NewFromFloat(0.01)

// FindDuplicateTransactions returns posted transactions that look like the
// same bank movement as the given candidate: same calendar day, amount within
// a penny, and the same reference ignoring case. All three must hold; a
// same-day same-amount row with a different reference is two real gifts, not
// a duplicate.
func FindDuplicateTransactions(ctx context.Context, churchId string, date time.Time, amount decimal.Decimal, reference string) ([]*Transaction, error) {

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	db := config.GetDB()
	var sameDay []*Transaction
	err := db.WithContext(ctx).
		Where("church_id = ?", churchId).
		Where("transaction_date >= ? AND transaction_date < ?", dayStart, dayEnd).
		Order("id").
		Find(&sameDay).Error
	if err != nil {
		return nil, err
	}

	wantRef := strings.ToLower(strings.TrimSpace(reference))
	var matches []*Transaction
	for _, t := range sameDay {
		if t.Amount.Sub(amount).Abs().GreaterThanOrEqual(duplicateAmountEpsilon) {
			continue
		}
		if strings.ToLower(strings.TrimSpace(t.Reference)) != wantRef {
			continue
		}
		matches = append(matches, t)
	}
	return matches, nil
}
