package utils

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stewardbooks/churchbooks_backend/config"
	"gorm.io/gorm"
)

const txMaxAttempts = 3

// RunInTxWithRetry executes fn inside a single all-or-nothing transaction and
// retries the whole closure on serialization conflicts (MySQL deadlock /
// lock-wait timeout), up to txMaxAttempts. fn must be safe to replay
// end-to-end: every write it performs, audit entries included, happens inside
// tx and rolls back with it.
func RunInTxWithRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db := config.GetDB()

	var lastErr error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err := db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !isRetryableConflict(err) {
			return err
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	return &ConflictError{Attempts: txMaxAttempts, Last: lastErr}
}

func isRetryableConflict(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1213 deadlock, 1205 lock wait timeout
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	// sqlite (tests) reports busy/locked as plain strings
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
