package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/enums"
	"github.com/sergeJAVA/contractor-service/pkg/outbox"
	"github.com/sergeJAVA/contractor-service/pkg/types"
)

type fakeOutboxAdmin struct {
	rows      map[uuid.UUID]*models.OutboxMessage
	listErr   error
	replayErr error
	listed    struct {
		status enums.OutboxStatus
		limit  int
	}
}

func newFakeOutboxAdmin(rows ...models.OutboxMessage) *fakeOutboxAdmin {
	f := &fakeOutboxAdmin{rows: map[uuid.UUID]*models.OutboxMessage{}}
	for i := range rows {
		row := rows[i]
		f.rows[row.MessageID] = &row
	}
	return f
}

func (f *fakeOutboxAdmin) ListByStatus(_ context.Context, status enums.OutboxStatus, limit int) ([]models.OutboxMessage, error) {
	f.listed.status = status
	f.listed.limit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.OutboxMessage
	for _, row := range f.rows {
		if row.Status == status {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeOutboxAdmin) FindByID(_ context.Context, id uuid.UUID) (*models.OutboxMessage, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, outbox.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeOutboxAdmin) Replay(_ context.Context, id uuid.UUID) error {
	if f.replayErr != nil {
		return f.replayErr
	}
	row, ok := f.rows[id]
	if !ok {
		return outbox.ErrNotFound
	}
	if row.Status != enums.OutboxStatusFailed {
		return fmt.Errorf("%w: status is %s", outbox.ErrNotReplayable, row.Status)
	}
	row.Status = enums.OutboxStatusPending
	return nil
}

func outboxRow(status enums.OutboxStatus) models.OutboxMessage {
	reason := "publish: broker unavailable"
	return models.OutboxMessage{
		MessageID:    uuid.New(),
		AggregateID:  "c1",
		Payload:      `{"id":"c1"}`,
		Status:       status,
		CreatedAt:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		AttemptCount: 1,
		LastError:    &reason,
	}
}

func TestAdminListOutboxDefaultsToFailed(t *testing.T) {
	failed := outboxRow(enums.OutboxStatusFailed)
	repo := newFakeOutboxAdmin(failed, outboxRow(enums.OutboxStatusSent))

	rec := httptest.NewRecorder()
	AdminListOutbox(repo, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/outbox", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if repo.listed.status != enums.OutboxStatusFailed || repo.listed.limit != defaultOutboxListLimit {
		t.Fatalf("unexpected list arguments %+v", repo.listed)
	}
	var list types.OutboxMessageList
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].MessageID != failed.MessageID.String() {
		t.Fatalf("expected the failed row only, got %+v", list.Items)
	}
	if list.Items[0].LastError == nil || *list.Items[0].LastError != "publish: broker unavailable" {
		t.Fatalf("expected last error to be exposed, got %+v", list.Items[0])
	}
}

func TestAdminListOutboxRejectsBadQuery(t *testing.T) {
	repo := newFakeOutboxAdmin()
	cases := []string{"?status=DONE", "?limit=0", "?limit=101", "?limit=abc"}
	for _, query := range cases {
		rec := httptest.NewRecorder()
		AdminListOutbox(repo, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/outbox"+query, nil))
		expectErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
	}
}

func TestAdminListOutboxStoreError(t *testing.T) {
	repo := newFakeOutboxAdmin()
	repo.listErr = errors.New("db down")

	rec := httptest.NewRecorder()
	AdminListOutbox(repo, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/outbox?status=pending", nil))

	expectErrorCode(t, rec, http.StatusServiceUnavailable, "DEPENDENCY_ERROR")
	if repo.listed.status != enums.OutboxStatusPending {
		t.Fatalf("expected case-insensitive status, got %s", repo.listed.status)
	}
}

func TestAdminGetOutbox(t *testing.T) {
	row := outboxRow(enums.OutboxStatusSent)
	repo := newFakeOutboxAdmin(row)

	rec := httptest.NewRecorder()
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"messageId": row.MessageID.String()})
	AdminGetOutbox(repo, testLogger())(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"messageId": uuid.NewString()})
	AdminGetOutbox(repo, testLogger())(rec, req)
	expectErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = httptest.NewRecorder()
	req = withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"messageId": "nope"})
	AdminGetOutbox(repo, testLogger())(rec, req)
	expectErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAdminReplayOutbox(t *testing.T) {
	failed := outboxRow(enums.OutboxStatusFailed)
	sent := outboxRow(enums.OutboxStatusSent)
	repo := newFakeOutboxAdmin(failed, sent)

	rec := httptest.NewRecorder()
	req := withURLParams(httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"messageId": failed.MessageID.String()})
	AdminReplayOutbox(repo, testLogger())(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var view types.OutboxMessageView
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Status != string(enums.OutboxStatusPending) || view.MessageID != failed.MessageID.String() {
		t.Fatalf("expected replayed message to keep its id and be pending, got %+v", view)
	}

	rec = httptest.NewRecorder()
	req = withURLParams(httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"messageId": sent.MessageID.String()})
	AdminReplayOutbox(repo, testLogger())(rec, req)
	expectErrorCode(t, rec, http.StatusUnprocessableEntity, "STATE_CONFLICT")
}

func TestAdminReplayOutboxBatch(t *testing.T) {
	failed := outboxRow(enums.OutboxStatusFailed)
	pending := outboxRow(enums.OutboxStatusPending)
	missing := uuid.New()
	repo := newFakeOutboxAdmin(failed, pending)

	body := fmt.Sprintf(`{"ids":[%q,%q,%q]}`, failed.MessageID, pending.MessageID, missing)
	rec := httptest.NewRecorder()
	AdminReplayOutboxBatch(repo, testLogger())(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/outbox/replay", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var result types.ReplayResult
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Replayed) != 1 || result.Replayed[0] != failed.MessageID.String() {
		t.Fatalf("unexpected replayed ids %v", result.Replayed)
	}
	if result.Skipped[missing.String()] != "not found" {
		t.Fatalf("expected missing id to be skipped, got %v", result.Skipped)
	}
	if !strings.Contains(result.Skipped[pending.MessageID.String()], "PENDING") {
		t.Fatalf("expected pending id to be skipped with its status, got %v", result.Skipped)
	}
}

func TestAdminReplayOutboxBatchValidation(t *testing.T) {
	repo := newFakeOutboxAdmin()
	cases := []string{`{"ids":[]}`, `{"ids":["not-a-uuid"]}`, `{"other":1}`, `not json`}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		AdminReplayOutboxBatch(repo, testLogger())(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		expectErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
	}
}

func TestAdminReplayOutboxBatchStoreError(t *testing.T) {
	repo := newFakeOutboxAdmin()
	repo.replayErr = errors.New("db down")

	body := fmt.Sprintf(`{"ids":[%q]}`, uuid.New())
	rec := httptest.NewRecorder()
	AdminReplayOutboxBatch(repo, testLogger())(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	expectErrorCode(t, rec, http.StatusServiceUnavailable, "DEPENDENCY_ERROR")
}
