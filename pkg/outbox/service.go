package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sergeJAVA/contractor-service/pkg/codec"
	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/enums"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

type appender interface {
	Append(tx *gorm.DB, msg *models.OutboxMessage) error
}

type contractorEncoder interface {
	Encode(c *models.Contractor) ([]byte, error)
}

// Service is the write-path side of the outbox. It only ever talks to the
// database through the caller's transaction.
type Service struct {
	repo  appender
	codec contractorEncoder
	logg  *logger.Logger
	now   func() time.Time
}

func NewService(repo appender, enc contractorEncoder, logg *logger.Logger) *Service {
	if enc == nil {
		enc = codec.NewContractor()
	}
	return &Service{repo: repo, codec: enc, logg: logg, now: time.Now}
}

// EnqueueChangeNotification serializes the contractor snapshot and records
// it as a PENDING message inside tx. If tx rolls back, so does the message.
func (s *Service) EnqueueChangeNotification(ctx context.Context, tx *gorm.DB, entityID string, entity *models.Contractor) (*models.OutboxMessage, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	payload, err := s.codec.Encode(entity)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(entityID) == "" {
		entityID = entity.ID
	}
	return s.enqueue(ctx, tx, entityID, payload)
}

// EnqueueSerialized records an already serialized snapshot.
func (s *Service) EnqueueSerialized(ctx context.Context, tx *gorm.DB, entityID string, payload []byte) (*models.OutboxMessage, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	if strings.TrimSpace(entityID) == "" {
		return nil, errors.New("entity id is required")
	}
	if !json.Valid(payload) {
		return nil, &codec.SerializationError{Op: "encode", Err: errors.New("payload is not valid json")}
	}
	return s.enqueue(ctx, tx, entityID, payload)
}

func (s *Service) enqueue(ctx context.Context, tx *gorm.DB, entityID string, payload []byte) (*models.OutboxMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	msg := &models.OutboxMessage{
		MessageID:   uuid.New(),
		AggregateID: entityID,
		Payload:     string(payload),
		Status:      enums.OutboxStatusPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Append(tx, msg); err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"message_id":   msg.MessageID.String(),
			"aggregate_id": entityID,
		})
		s.logg.Info(logCtx, "outbox message queued")
	}
	return msg, nil
}
