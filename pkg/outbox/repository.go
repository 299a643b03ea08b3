package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/enums"
)

const (
	DefaultClaimTTL  = time.Minute
	defaultBatchSize = 10
	defaultListLimit = 50
	maxLastErrorLen  = 1024
)

type Repository struct {
	db       *gorm.DB
	claimTTL time.Duration
	now      func() time.Time
}

// NewRepository builds the outbox store. Claims older than claimTTL are
// treated as abandoned and may be taken over by another relay worker.
func NewRepository(db *gorm.DB, claimTTL time.Duration) *Repository {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Repository{db: db, claimTTL: claimTTL, now: time.Now}
}

func (r *Repository) clock() time.Time {
	return r.now().UTC()
}

// Append inserts a new record through the caller's transaction. It never
// commits on its own.
func (r *Repository) Append(tx *gorm.DB, msg *models.OutboxMessage) error {
	if tx == nil {
		return ErrTxRequired
	}
	if msg == nil {
		return errors.New("outbox message is required")
	}
	if msg.MessageID == uuid.Nil {
		msg.MessageID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = enums.OutboxStatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.clock()
	}
	if err := tx.Create(msg).Error; err != nil {
		return persistenceErr("append", msg.MessageID, err)
	}
	return nil
}

// ClaimPendingBatch marks up to limit PENDING records, oldest first, as
// in-flight for workerID and returns them. Records claimed by another worker
// are skipped until their claim is older than the claim TTL.
func (r *Repository) ClaimPendingBatch(ctx context.Context, limit int, workerID string) ([]models.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultBatchSize
	}
	now := r.clock()
	staleBefore := now.Add(-r.claimTTL)
	token := uuid.NewString()

	var claimed []models.OutboxMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&models.OutboxMessage{}).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", enums.OutboxStatusPending).
			Where("(claimed_at IS NULL OR claimed_at < ?)", staleBefore).
			Order("created_at ASC").
			Order("message_id ASC").
			Limit(limit).
			Pluck("message_id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		res := tx.Model(&models.OutboxMessage{}).
			Where("message_id IN ?", ids).
			Where("status = ?", enums.OutboxStatusPending).
			Where("(claimed_at IS NULL OR claimed_at < ?)", staleBefore).
			Updates(map[string]any{
				"claimed_by":  workerID,
				"claimed_at":  now,
				"claim_token": token,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		return tx.Where("claim_token = ?", token).
			Order("created_at ASC").
			Order("message_id ASC").
			Find(&claimed).Error
	})
	if err != nil {
		return nil, persistenceErr("claim", uuid.Nil, err)
	}
	return claimed, nil
}

// RenewClaim restarts the claim TTL of a record this worker still holds.
// ErrClaimLost means another worker took the record over or it left PENDING.
func (r *Repository) RenewClaim(ctx context.Context, id uuid.UUID, token string) error {
	res := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("message_id = ? AND claim_token = ? AND status = ?", id, token, enums.OutboxStatusPending).
		Update("claimed_at", r.clock())
	if res.Error != nil {
		return persistenceErr("renew claim", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// MarkSent moves a PENDING record held under token to SENT. Repeating the
// call is a no-op.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, token string) error {
	now := r.clock()
	res := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("message_id = ? AND claim_token = ? AND status = ?", id, token, enums.OutboxStatusPending).
		Updates(map[string]any{
			"status":          enums.OutboxStatusSent,
			"sent_at":         now,
			"last_attempt_at": now,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_error":      nil,
			"claimed_by":      nil,
			"claimed_at":      nil,
			"claim_token":     nil,
		})
	if res.Error != nil {
		return persistenceErr("mark sent", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return r.unmarked(ctx, "mark sent", id)
	}
	return nil
}

// MarkFailed moves a PENDING record held under token to FAILED and records
// the cause. A SENT record is never downgraded.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, token string, cause error) error {
	now := r.clock()
	msg := "unknown error"
	if cause != nil {
		msg = truncateError(cause.Error())
	}
	res := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("message_id = ? AND claim_token = ? AND status = ?", id, token, enums.OutboxStatusPending).
		Updates(map[string]any{
			"status":          enums.OutboxStatusFailed,
			"last_attempt_at": now,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_error":      msg,
			"claimed_by":      nil,
			"claimed_at":      nil,
			"claim_token":     nil,
		})
	if res.Error != nil {
		return persistenceErr("mark failed", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return r.unmarked(ctx, "mark failed", id)
	}
	return nil
}

// unmarked explains a status update that touched no row. A record already
// out of PENDING is a no-op; a PENDING one is held under another claim.
func (r *Repository) unmarked(ctx context.Context, op string, id uuid.UUID) error {
	var statuses []enums.OutboxStatus
	err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("message_id = ?", id).
		Pluck("status", &statuses).Error
	if err != nil {
		return persistenceErr(op, id, err)
	}
	if len(statuses) == 0 {
		return ErrNotFound
	}
	switch statuses[0] {
	case enums.OutboxStatusPending:
		return ErrClaimLost
	default:
		return nil
	}
}

// ReleaseClaim hands a still PENDING record back to the next poll, provided
// the claim is still the caller's.
func (r *Repository) ReleaseClaim(ctx context.Context, id uuid.UUID, token string) error {
	err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("message_id = ? AND claim_token = ? AND status = ?", id, token, enums.OutboxStatusPending).
		Updates(clearClaim()).Error
	return persistenceErr("release claim", id, err)
}

// ReleaseStaleClaims clears claims older than olderThan and returns how many
// records became claimable again.
func (r *Repository) ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = r.claimTTL
	}
	cutoff := r.clock().Add(-olderThan)
	res := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("status = ?", enums.OutboxStatusPending).
		Where("claimed_at IS NOT NULL AND claimed_at < ?", cutoff).
		Updates(clearClaim())
	if res.Error != nil {
		return 0, persistenceErr("release stale claims", uuid.Nil, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OutboxMessage, error) {
	var msg models.OutboxMessage
	err := r.db.WithContext(ctx).Where("message_id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceErr("find", id, err)
	}
	return &msg, nil
}

func (r *Repository) ListByStatus(ctx context.Context, status enums.OutboxStatus, limit int) ([]models.OutboxMessage, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid outbox status %q", status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	var rows []models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Order("message_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, persistenceErr("list", uuid.Nil, err)
	}
	return rows, nil
}

// Replay is the operator action that puts a FAILED record back to PENDING.
// Id and payload are kept, so consumers see the same message id again.
func (r *Repository) Replay(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("message_id = ? AND status = ?", id, enums.OutboxStatusFailed).
		Updates(map[string]any{
			"status":      enums.OutboxStatusPending,
			"claimed_by":  nil,
			"claimed_at":  nil,
			"claim_token": nil,
		})
	if res.Error != nil {
		return persistenceErr("replay", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	msg, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: status is %s", ErrNotReplayable, msg.Status)
}

// CountByStatus returns the number of records per status. Statuses without
// records are reported as zero.
func (r *Repository) CountByStatus(ctx context.Context) (map[enums.OutboxStatus]int64, error) {
	var rows []struct {
		Status enums.OutboxStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, persistenceErr("count", uuid.Nil, err)
	}
	counts := make(map[enums.OutboxStatus]int64, len(rows))
	for _, status := range enums.OutboxStatuses() {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// OldestPendingAge is how long the oldest PENDING record has been waiting.
func (r *Repository) OldestPendingAge(ctx context.Context) (time.Duration, error) {
	var rows []models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OutboxStatusPending).
		Order("created_at ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return 0, persistenceErr("oldest pending", uuid.Nil, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	age := r.clock().Sub(rows[0].CreatedAt)
	if age < 0 {
		return 0, nil
	}
	return age, nil
}

func clearClaim() map[string]any {
	return map[string]any{
		"claimed_by":  nil,
		"claimed_at":  nil,
		"claim_token": nil,
	}
}

func truncateError(message string) string {
	message = strings.TrimSpace(message)
	if len(message) <= maxLastErrorLen {
		return message
	}
	cut := maxLastErrorLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
