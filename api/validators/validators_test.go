package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/sergeJAVA/contractor-service/pkg/enums"
	pkgerrors "github.com/sergeJAVA/contractor-service/pkg/errors"
)

type sampleBody struct {
	ID   string   `json:"id" validate:"required,max=4"`
	Tags []string `json:"tags" validate:"omitempty,dive,uuid"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	var body sampleBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"toolong","tags":["x"]}`))
	err := DecodeJSONBody(req, &body)

	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %#v", typed.Details())
	}
	if details["sampleBody.id"] != "must be at most 4" {
		t.Fatalf("unexpected id detail %v", details)
	}
	if details["sampleBody.tags[0]"] != "must be a valid uuid" {
		t.Fatalf("unexpected tags detail %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	var body sampleBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"a","extra":true}`))
	if err := DecodeJSONBody(req, &body); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyAccepts(t *testing.T) {
	var body sampleBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"a1"}`))
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.ID != "a1" {
		t.Fatalf("expected id a1, got %q", body.ID)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20&bad=x&big=900", nil)

	if v, err := ParseQueryInt(req, "limit", 50, 1, 100); err != nil || v != 20 {
		t.Fatalf("expected 20, got %d %v", v, err)
	}
	if v, err := ParseQueryInt(req, "missing", 50, 1, 100); err != nil || v != 50 {
		t.Fatalf("expected default 50, got %d %v", v, err)
	}
	if _, err := ParseQueryInt(req, "bad", 50, 1, 100); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for non-numeric, got %v", err)
	}
	if _, err := ParseQueryInt(req, "big", 50, 1, 100); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for out of range, got %v", err)
	}
}

func TestParseOutboxStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?status=sent&other=nope", nil)

	if s, err := ParseOutboxStatus(req, "status", enums.OutboxStatusFailed); err != nil || s != enums.OutboxStatusSent {
		t.Fatalf("expected SENT, got %s %v", s, err)
	}
	if s, err := ParseOutboxStatus(req, "absent", enums.OutboxStatusFailed); err != nil || s != enums.OutboxStatusFailed {
		t.Fatalf("expected default FAILED, got %s %v", s, err)
	}
	if _, err := ParseOutboxStatus(req, "other", enums.OutboxStatusFailed); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	withParam := func(value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("messageId", value)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	id, err := ParseUUIDParam(withParam("6f1c9a8e-3b52-4f7e-9a51-2d0c1e3f4a5b"), "messageId")
	if err != nil || id.String() != "6f1c9a8e-3b52-4f7e-9a51-2d0c1e3f4a5b" {
		t.Fatalf("unexpected result %s %v", id, err)
	}
	if _, err := ParseUUIDParam(withParam("abc"), "messageId"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseUUIDParam(withParam(""), "messageId"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
}
