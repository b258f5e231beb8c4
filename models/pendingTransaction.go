package models

import (
	"time"

	"gorm.io/gorm"
)

// PendingTransactionRecord tracks the secondary lifecycle of a transaction
// whose funds have not yet cleared (outstanding cheques and the like).
// Exactly one unresolved record exists per transaction in pendingStatus =
// pending; the ledger engine resolves it on clear, revert, or delete.
type PendingTransactionRecord struct {
	ID            int        `gorm:"primary_key" json:"id"`
	ChurchId      string     `gorm:"index;size:64;not null" json:"church_id"`
	TransactionId int        `gorm:"index;not null" json:"transaction_id"`
	Reason        string     `gorm:"size:255" json:"reason"`
	ExpectedDate  *time.Time `json:"expected_date"`
	ResolvedAt    *time.Time `json:"resolved_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p PendingTransactionRecord) GetId() int {
	return p.ID
}

func createPendingRecord(tx *gorm.DB, churchId string, transactionId int, reason string, expectedDate *time.Time) error {
	record := PendingTransactionRecord{
		ChurchId:      churchId,
		TransactionId: transactionId,
		Reason:        reason,
		ExpectedDate:  expectedDate,
	}
	return tx.Create(&record).Error
}

// resolvePendingRecord timestamps the open record for a transaction.
// No-op when none is open.
func resolvePendingRecord(tx *gorm.DB, churchId string, transactionId int, at time.Time) error {
	return tx.Model(&PendingTransactionRecord{}).
		Where("church_id = ? AND transaction_id = ? AND resolved_at IS NULL", churchId, transactionId).
		Update("resolved_at", at).Error
}

// deletePendingRecords removes all records for a transaction. Used by
// transaction delete so no orphan is ever left behind.
func deletePendingRecords(tx *gorm.DB, churchId string, transactionId int) error {
	return tx.Where("church_id = ? AND transaction_id = ?", churchId, transactionId).
		Delete(&PendingTransactionRecord{}).Error
}
