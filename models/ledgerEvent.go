package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stewardbooks/churchbooks_backend/config"
	"github.com/stewardbooks/churchbooks_backend/utils"
	"gorm.io/gorm"
)

// LedgerEventRecord is a transactional outbox row: written inside the
// caller's DB transaction, published to Pub/Sub asynchronously after commit
// by the dispatcher. Consumers get at-least-once delivery.
type LedgerEventRecord struct {
	ID            int               `gorm:"primary_key" json:"id"`
	ChurchId      string            `gorm:"index;size:64;not null" json:"church_id"`
	OccurredAt    time.Time         `gorm:"not null" json:"occurred_at"`
	ReferenceId   int               `gorm:"index;not null" json:"reference_id"`
	ReferenceType string            `gorm:"size:50;not null" json:"reference_type"`
	Action        LedgerEventAction `gorm:"size:10;not null" json:"action"`
	OldObj        []byte            `gorm:"type:mediumblob" json:"old_obj"`
	NewObj        []byte            `gorm:"type:mediumblob" json:"new_obj"`
	IsPublished   bool              `gorm:"index;not null;default:false" json:"is_published"`
	PublishedAt   *time.Time        `json:"published_at"`
	LastError     *string           `gorm:"type:text" json:"last_error"`
	LockedAt      *time.Time        `json:"locked_at"`
	LockedBy      *string           `gorm:"size:100" json:"locked_by"`
	CorrelationId string            `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// writeLedgerEvent records the event inside the caller's transaction but does
// NOT publish: publishing happens after commit, never inside the atomic step.
func writeLedgerEvent(ctx context.Context, tx *gorm.DB, churchId string, occurredAt time.Time, refId int, refType string, action LedgerEventAction, oldObj interface{}, newObj interface{}) error {

	var oldInByte []byte
	var newInByte []byte
	var err error

	if action == LedgerEventActionCreate || action == LedgerEventActionUpdate {
		newInByte, err = json.Marshal(newObj)
		if err != nil {
			return err
		}
	}
	if action == LedgerEventActionUpdate || action == LedgerEventActionDelete {
		oldInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := LedgerEventRecord{
		ChurchId:      churchId,
		OccurredAt:    occurredAt,
		ReferenceId:   refId,
		ReferenceType: refType,
		Action:        action,
		OldObj:        oldInByte,
		NewObj:        newInByte,
		IsPublished:   false,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func (r LedgerEventRecord) ToMessage() config.LedgerEventMessage {
	return config.LedgerEventMessage{
		ID:            r.ID,
		ChurchId:      r.ChurchId,
		OccurredAt:    r.OccurredAt,
		ReferenceId:   r.ReferenceId,
		ReferenceType: r.ReferenceType,
		Action:        string(r.Action),
		OldObj:        r.OldObj,
		NewObj:        r.NewObj,
		CorrelationId: r.CorrelationId,
	}
}
