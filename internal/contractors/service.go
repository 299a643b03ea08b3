package contractors

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	dbpkg "github.com/sergeJAVA/contractor-service/pkg/db"
	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	pkgerrors "github.com/sergeJAVA/contractor-service/pkg/errors"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type changeNotifier interface {
	EnqueueChangeNotification(ctx context.Context, tx *gorm.DB, entityID string, entity *models.Contractor) (*models.OutboxMessage, error)
}

// ServiceParams groups dependencies for the contractor service.
type ServiceParams struct {
	DB        txRunner
	Repo      Repository
	Outbox    changeNotifier
	Logger    *logger.Logger
	Validator *validator.Validate
}

// Service owns the contractor write path. Every committed change carries
// exactly one outbox record written in the same transaction.
type Service struct {
	db       txRunner
	repo     Repository
	outbox   changeNotifier
	logg     *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox writer is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	v := params.Validator
	if v == nil {
		v = validator.New()
	}
	return &Service{
		db:       params.DB,
		repo:     params.Repo,
		outbox:   params.Outbox,
		logg:     params.Logger,
		validate: v,
		now:      time.Now,
	}, nil
}

// Save inserts or updates the contractor and queues a change notification
// carrying the stored snapshot. created reports whether the row was new.
func (s *Service) Save(ctx context.Context, contractor *models.Contractor, userID string) (*models.Contractor, bool, error) {
	if contractor == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "contractor is required")
	}
	contractor.ID = strings.TrimSpace(contractor.ID)
	if err := s.validate.Struct(contractor); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid contractor").WithDetails(err.Error())
	}

	var (
		saved   *models.Contractor
		created bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()
		user := optional(userID)

		existing, err := repo.FindByID(ctx, contractor.ID)
		switch {
		case err == nil:
			row := *contractor
			row.CreateDate = existing.CreateDate
			row.CreateUserID = existing.CreateUserID
			row.IsActive = existing.IsActive
			row.ModifyDate = &now
			row.ModifyUserID = user
			if err := repo.Update(ctx, &row); err != nil {
				return err
			}
		case isNotFound(err):
			row := *contractor
			row.CreateDate = now
			row.ModifyDate = &now
			row.CreateUserID = user
			row.ModifyUserID = user
			row.IsActive = true
			if err := repo.Create(ctx, &row); err != nil {
				return err
			}
			created = true
		default:
			return err
		}

		reloaded, err := repo.FindByID(ctx, contractor.ID)
		if err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueChangeNotification(ctx, tx, reloaded.ID, reloaded); err != nil {
			return err
		}
		saved = reloaded
		return nil
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "contractor_id", contractor.ID), "contractor save failed", err)
		return nil, false, storageError(err, "save contractor")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"contractor_id": saved.ID,
		"created":       created,
	}), "contractor saved")
	return saved, created, nil
}

// Delete marks the contractor inactive and queues the resulting snapshot.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "contractor id is required")
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.SetInactive(ctx, id, optional(userID), s.now().UTC())
		if err != nil {
			return err
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "contractor not found")
		}
		reloaded, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		_, err = s.outbox.EnqueueChangeNotification(ctx, tx, reloaded.ID, reloaded)
		return err
	})
	if err != nil {
		return storageError(err, "delete contractor")
	}

	s.logg.Info(s.logg.WithField(ctx, "contractor_id", id), "contractor deactivated")
	return nil
}

// Get returns the stored contractor.
func (s *Service) Get(ctx context.Context, id string) (*models.Contractor, error) {
	contractor, err := s.repo.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "contractor not found")
		}
		return nil, storageError(err, "find contractor")
	}
	return contractor, nil
}

// storageError keeps coded errors as they are and reports anything else as
// an unavailable dependency.
func storageError(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if dbpkg.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "contractor was changed concurrently")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
