package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sergeJAVA/contractor-service/api/responses"
	"github.com/sergeJAVA/contractor-service/api/validators"
	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/enums"
	pkgerrors "github.com/sergeJAVA/contractor-service/pkg/errors"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/outbox"
	"github.com/sergeJAVA/contractor-service/pkg/types"
)

const (
	defaultOutboxListLimit = 50
	maxOutboxListLimit     = 100
)

type outboxAdmin interface {
	ListByStatus(ctx context.Context, status enums.OutboxStatus, limit int) ([]models.OutboxMessage, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.OutboxMessage, error)
	Replay(ctx context.Context, id uuid.UUID) error
}

type replayBatchRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,uuid"`
}

// AdminListOutbox lists outbox messages in one status, oldest first.
func AdminListOutbox(repo outboxAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := validators.ParseOutboxStatus(r, "status", enums.OutboxStatusFailed)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultOutboxListLimit, 1, maxOutboxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := repo.ListByStatus(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list outbox messages"))
			return
		}
		items := make([]types.OutboxMessageView, 0, len(rows))
		for _, row := range rows {
			items = append(items, outboxView(row))
		}
		responses.WriteSuccess(w, types.OutboxMessageList{Items: items, Status: string(status), Limit: limit})
	}
}

func AdminGetOutbox(repo outboxAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "messageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := repo.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, outboxError(err, "find outbox message"))
			return
		}
		responses.WriteSuccess(w, outboxView(*msg))
	}
}

// AdminReplayOutbox moves one FAILED message back to PENDING. The message
// keeps its id so consumers can still deduplicate it.
func AdminReplayOutbox(repo outboxAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "messageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := repo.Replay(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, outboxError(err, "replay outbox message"))
			return
		}
		logg.Info(logg.WithMessageID(r.Context(), id.String()), "outbox message replayed")

		msg, err := repo.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, outboxError(err, "find outbox message"))
			return
		}
		responses.WriteSuccess(w, outboxView(*msg))
	}
}

// AdminReplayOutboxBatch replays several messages. Ids that are unknown or
// not FAILED are reported as skipped instead of failing the whole request.
func AdminReplayOutboxBatch(repo outboxAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req replayBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := types.ReplayResult{Replayed: []string{}, Skipped: map[string]string{}}
		for _, raw := range req.IDs {
			id := uuid.MustParse(strings.TrimSpace(raw))
			err := repo.Replay(r.Context(), id)
			switch {
			case err == nil:
				result.Replayed = append(result.Replayed, id.String())
			case errors.Is(err, outbox.ErrNotFound):
				result.Skipped[id.String()] = "not found"
			case errors.Is(err, outbox.ErrNotReplayable):
				result.Skipped[id.String()] = err.Error()
			default:
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay outbox messages").
					WithDetails(map[string]any{"replayed": result.Replayed}))
				return
			}
		}

		logg.Info(logg.WithFields(r.Context(), map[string]any{
			"replayed": len(result.Replayed),
			"skipped":  len(result.Skipped),
		}), "outbox batch replay complete")
		responses.WriteSuccess(w, result)
	}
}

func outboxError(err error, op string) error {
	switch {
	case errors.Is(err, outbox.ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "outbox message not found")
	case errors.Is(err, outbox.ErrNotReplayable):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "only FAILED messages can be replayed").
			WithDetails(map[string]any{"reason": err.Error()})
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
}

func outboxView(msg models.OutboxMessage) types.OutboxMessageView {
	return types.OutboxMessageView{
		MessageID:     msg.MessageID.String(),
		AggregateID:   msg.AggregateID,
		Status:        string(msg.Status),
		Payload:       msg.Payload,
		CreatedAt:     msg.CreatedAt,
		LastAttemptAt: msg.LastAttemptAt,
		SentAt:        msg.SentAt,
		AttemptCount:  msg.AttemptCount,
		LastError:     msg.LastError,
		ClaimedBy:     msg.ClaimedBy,
	}
}
