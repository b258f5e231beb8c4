package models

import (
	"context"
	"errors"

	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
	"gorm.io/gorm"
)

// AutoApprovalResult reports what a sweep over a batch did.
type AutoApprovalResult struct {
	Approved      int `json:"approved"`
	LeftForReview int `json:"left_for_review"`
}

// rowAutoApprovalScore is the mean of the confidences the row actually has.
// A row with a donor match and a category suggestion averages both; a row
// with only one of them is judged on that one alone. Rows with neither never
// auto-approve, there is nothing to be confident about.
func rowAutoApprovalScore(row *CsvRow) (float64, bool) {
	sum := 0.0
	n := 0
	if row.DonorConfidence != nil {
		sum += *row.DonorConfidence
		n++
	}
	if row.CategoryConfidence != nil {
		sum += *row.CategoryConfidence
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// AutoApproveBatch approves every ready row whose confidence score meets the
// church's threshold. Each approval is its own atomic step, so a failure on
// one row leaves earlier approvals standing; the result carries the partial
// counts either way. Running the sweep twice is safe: approved rows are
// terminal and are not revisited.
func AutoApproveBatch(ctx context.Context, batchId int) (*AutoApprovalResult, error) {

	churchId, ok := utils.GetChurchIdFromContext(ctx)
	if !ok || churchId == "" {
		return nil, errors.New("church id is required")
	}

	if _, err := utils.FetchModel[CsvImportBatch](ctx, churchId, batchId); err != nil {
		return nil, err
	}

	settings, err := GetChurchSettings(ctx, churchId)
	if err != nil {
		return nil, err
	}
	threshold, _ := settings.AutoApproveThreshold.Float64()

	db := config.GetDB()
	var rows []*CsvRow
	err = db.WithContext(ctx).
		Where("church_id = ? AND batch_id = ? AND status = ?", churchId, batchId, CsvRowStatusReady).
		Order("row_number").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := AutoApprovalResult{}
	for _, row := range rows {
		score, ok := rowAutoApprovalScore(row)
		if !ok || score < threshold {
			result.LeftForReview++
			continue
		}

		err := utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {
			_, err := approveCsvRowTx(ctx, tx, churchId, row.ID, nil)
			return err
		})
		if err != nil {
			config.LogError(config.GetLogger(), "models", "AutoApproveBatch", "approve row", row.ID, err)
			result.LeftForReview++
			continue
		}
		result.Approved++
	}

	if err := refreshBatchCounters(ctx, churchId, batchId); err != nil {
		return nil, err
	}
	return &result, nil
}
