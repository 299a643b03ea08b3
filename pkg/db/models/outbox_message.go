package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sergeJAVA/contractor-service/pkg/enums"
)

// OutboxMessage is a pending or completed change notification. The id is
// reused as the broker message id so consumers can deduplicate.
type OutboxMessage struct {
	MessageID     uuid.UUID          `gorm:"column:message_id;type:uuid;primaryKey"`
	AggregateID   string             `gorm:"column:aggregate_id;not null;index"`
	Payload       string             `gorm:"column:payload;type:text;not null"`
	Status        enums.OutboxStatus `gorm:"column:status;not null;index:ix_outbox_messages_status_created,priority:1"`
	CreatedAt     time.Time          `gorm:"column:created_at;not null;index:ix_outbox_messages_status_created,priority:2"`
	LastAttemptAt *time.Time         `gorm:"column:last_attempt_at"`
	SentAt        *time.Time         `gorm:"column:sent_at"`
	AttemptCount  int                `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string            `gorm:"column:last_error"`
	ClaimedBy     *string            `gorm:"column:claimed_by"`
	ClaimedAt     *time.Time         `gorm:"column:claimed_at"`
	ClaimToken    *string            `gorm:"column:claim_token;index"`
}

func (OutboxMessage) TableName() string { return "outbox_messages" }
