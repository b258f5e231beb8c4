package models

import (
	"github.com/stewardbooks/churchbooks_backend/config"
)

// MigrateTable runs the schema migration for every model in dependency order.
func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Church{},
		&ChurchSettings{},
		&Fund{},
		&Donor{},
		&Category{},
		&CategoryKeyword{},
		&Transaction{},
		&PendingTransactionRecord{},
		&CsvImportBatch{},
		&CsvRow{},
		&BankFeedCursor{},
		&LedgerEventRecord{},
		&History{},
	)
}
