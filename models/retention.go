package models

import (
	"context"
	"time"

	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
	"gorm.io/gorm"
)

// RetentionSweepResult reports one sweep across all churches.
type RetentionSweepResult struct {
	BatchesPurged int `json:"batches_purged"`
	RowsPurged    int `json:"rows_purged"`
}

// PurgeExpiredImportBatches removes staged import data past each church's
// retention window. Only settled batches are touched (nothing pending, ready
// or duplicate), and approved rows are never deleted: they anchor the audit
// link from a posted transaction back to its source row. A batch whose
// approved rows must stay is slimmed, not dropped.
func PurgeExpiredImportBatches(ctx context.Context) (*RetentionSweepResult, error) {

	db := config.GetDB()
	result := &RetentionSweepResult{}

	var churches []*Church
	if err := db.WithContext(ctx).Where("is_active = ?", true).Find(&churches).Error; err != nil {
		return nil, err
	}

	for _, church := range churches {
		settings, err := GetChurchSettings(ctx, church.ID)
		if err != nil {
			if utils.IsNotFound(err) {
				continue
			}
			return result, err
		}
		retentionDays := settings.ImportRetentionDays
		if retentionDays <= 0 {
			continue
		}
		cutoff := time.Now().AddDate(0, 0, -retentionDays)

		var batches []*CsvImportBatch
		err = db.WithContext(ctx).
			Where("church_id = ? AND created_at < ?", church.ID, cutoff).
			Find(&batches).Error
		if err != nil {
			return result, err
		}

		for _, batch := range batches {
			purgedBatch, purgedRows, err := purgeBatchIfSettled(ctx, church.ID, batch.ID)
			if err != nil {
				config.LogError(config.GetLogger(), "models", "PurgeExpiredImportBatches", "batch", batch.ID, err)
				continue
			}
			if purgedBatch {
				result.BatchesPurged++
			}
			result.RowsPurged += purgedRows
		}
	}
	return result, nil
}

func purgeBatchIfSettled(ctx context.Context, churchId string, batchId int) (purgedBatch bool, purgedRows int, err error) {

	err = utils.RunInTxWithRetry(ctx, func(tx *gorm.DB) error {
		purgedBatch = false
		purgedRows = 0

		var open int64
		err := tx.Model(&CsvRow{}).
			Where("church_id = ? AND batch_id = ?", churchId, batchId).
			Where("status IN ?", []CsvRowStatus{CsvRowStatusPending, CsvRowStatusReady, CsvRowStatusDuplicate}).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return nil
		}

		res := tx.Where("church_id = ? AND batch_id = ? AND status <> ?", churchId, batchId, CsvRowStatusApproved).
			Delete(&CsvRow{})
		if res.Error != nil {
			return res.Error
		}
		purgedRows = int(res.RowsAffected)

		var approved int64
		err = tx.Model(&CsvRow{}).
			Where("church_id = ? AND batch_id = ? AND status = ?", churchId, batchId, CsvRowStatusApproved).
			Count(&approved).Error
		if err != nil {
			return err
		}
		if approved > 0 {
			return nil
		}

		if err := tx.Where("church_id = ? AND id = ?", churchId, batchId).Delete(&CsvImportBatch{}).Error; err != nil {
			return err
		}
		purgedBatch = true
		return nil
	})
	return purgedBatch, purgedRows, err
}
