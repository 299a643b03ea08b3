package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sergeJAVA/contractor-service/api/middleware"
	"github.com/sergeJAVA/contractor-service/api/responses"
	"github.com/sergeJAVA/contractor-service/api/validators"
	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	pkgerrors "github.com/sergeJAVA/contractor-service/pkg/errors"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

type contractorService interface {
	Get(ctx context.Context, id string) (*models.Contractor, error)
	Save(ctx context.Context, contractor *models.Contractor, userID string) (*models.Contractor, bool, error)
	Delete(ctx context.Context, id, userID string) error
}

func ContractorGet(svc contractorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if id == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "contractor id is required"))
			return
		}
		contractor, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contractor)
	}
}

// ContractorSave inserts or updates a contractor. The change notification is
// queued in the same transaction; the broker is never contacted here.
func ContractorSave(svc contractorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var contractor models.Contractor
		if err := validators.DecodeJSONBody(r, &contractor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		saved, created, err := svc.Save(r.Context(), &contractor, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, saved)
	}
}

// ContractorDelete deactivates a contractor.
func ContractorDelete(svc contractorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if err := svc.Delete(r.Context(), id, middleware.UserIDFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
