package models

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/stewardbooks/churchbooks_backend/config"
	"gorm.io/gorm"
)

const (
	ledgerEventClaimBatchSize = 50
	ledgerEventLockTTL        = 5 * time.Minute
)

var dispatcherId = func() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}()

// claimUnpublishedLedgerEvents claims a batch of unpublished rows for this
// dispatcher instance. Stale locks (crashed dispatcher) are reclaimed after
// the TTL, which is what makes delivery at-least-once rather than exactly-once.
func claimUnpublishedLedgerEvents(ctx context.Context) ([]LedgerEventRecord, error) {
	db := config.GetDB()
	now := time.Now()
	staleBefore := now.Add(-ledgerEventLockTTL)

	var claimed []LedgerEventRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []LedgerEventRecord
		if err := tx.Where("is_published = ?", false).
			Where("locked_at IS NULL OR locked_at < ?", staleBefore).
			Order("id asc").
			Limit(ledgerEventClaimBatchSize).
			Find(&candidates).Error; err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		ids := make([]int, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.ID)
		}
		result := tx.Model(&LedgerEventRecord{}).
			Where("id IN ?", ids).
			Where("is_published = ?", false).
			Where("locked_at IS NULL OR locked_at < ?", staleBefore).
			Updates(map[string]interface{}{"locked_at": now, "locked_by": dispatcherId})
		if result.Error != nil {
			return result.Error
		}

		// Re-read so we only return rows this instance actually won.
		return tx.Where("id IN ?", ids).
			Where("locked_by = ?", dispatcherId).
			Where("locked_at = ?", now).
			Find(&claimed).Error
	})
	return claimed, err
}

// ProcessUnpublishedLedgerEvents drains the outbox once: claim, publish,
// mark. Publish failures are recorded on the row and retried on a later
// sweep; they never bubble up to the writer that created the event.
func ProcessUnpublishedLedgerEvents(ctx context.Context) (int, error) {
	records, err := claimUnpublishedLedgerEvents(ctx)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		releaseLedgerEventLocks(ctx, records)
		return 0, err
	}
	topic := client.Topic(config.GetLedgerEventTopic())
	defer topic.Stop()

	db := config.GetDB()
	published := 0
	for _, record := range records {
		payload, err := json.Marshal(record.ToMessage())
		if err != nil {
			markLedgerEventFailed(ctx, db, record.ID, err)
			continue
		}
		result := topic.Publish(ctx, &pubsub.Message{
			Data: payload,
			Attributes: map[string]string{
				"church_id":      record.ChurchId,
				"reference_type": record.ReferenceType,
				"action":         string(record.Action),
			},
		})
		if _, err := result.Get(ctx); err != nil {
			config.LogError(config.GetLogger(), "models", "ProcessUnpublishedLedgerEvents", "publish", record.ID, err)
			markLedgerEventFailed(ctx, db, record.ID, err)
			continue
		}

		now := time.Now()
		err = db.WithContext(ctx).Model(&LedgerEventRecord{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"is_published": true,
				"published_at": now,
				"last_error":   nil,
				"locked_at":    nil,
				"locked_by":    nil,
			}).Error
		if err != nil {
			config.LogError(config.GetLogger(), "models", "ProcessUnpublishedLedgerEvents", "mark published", record.ID, err)
			continue
		}
		published++
	}
	return published, nil
}

func markLedgerEventFailed(ctx context.Context, db *gorm.DB, id int, failure error) {
	msg := failure.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	err := db.WithContext(ctx).Model(&LedgerEventRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_error": msg,
			"locked_at":  nil,
			"locked_by":  nil,
		}).Error
	if err != nil {
		config.LogError(config.GetLogger(), "models", "markLedgerEventFailed", "update", id, err)
	}
}

func releaseLedgerEventLocks(ctx context.Context, records []LedgerEventRecord) {
	if len(records) == 0 {
		return
	}
	ids := make([]int, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	err := config.GetDB().WithContext(ctx).Model(&LedgerEventRecord{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"locked_at": nil, "locked_by": nil}).Error
	if err != nil {
		config.LogError(config.GetLogger(), "models", "releaseLedgerEventLocks", "update", ids, err)
	}
}
