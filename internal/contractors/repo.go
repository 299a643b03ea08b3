package contractors

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sergeJAVA/contractor-service/internal/repo"
	dbpkg "github.com/sergeJAVA/contractor-service/pkg/db"
	"github.com/sergeJAVA/contractor-service/pkg/db/models"
)

// Repository persists contractor rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id string) (*models.Contractor, error)
	Create(ctx context.Context, contractor *models.Contractor) error
	Update(ctx context.Context, contractor *models.Contractor) error
	SetInactive(ctx context.Context, id string, userID *string, at time.Time) (bool, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Tx(tx)}
}

// FindByID returns the contractor or gorm.ErrRecordNotFound.
func (r *repository) FindByID(ctx context.Context, id string) (*models.Contractor, error) {
	var contractor models.Contractor
	if err := r.DB(ctx).Where("id = ?", id).First(&contractor).Error; err != nil {
		return nil, err
	}
	return &contractor, nil
}

// Create inserts a new row. Select("*") keeps is_active from being replaced
// by the column default when it is false.
func (r *repository) Create(ctx context.Context, contractor *models.Contractor) error {
	return r.DB(ctx).Select("*").Create(contractor).Error
}

// Update rewrites the business columns and modify audit fields. Creation
// audit fields and is_active are left alone.
func (r *repository) Update(ctx context.Context, contractor *models.Contractor) error {
	res := r.DB(ctx).Model(&models.Contractor{}).
		Where("id = ?", contractor.ID).
		Updates(map[string]any{
			"parent_id":      contractor.ParentID,
			"name":           contractor.Name,
			"name_full":      contractor.NameFull,
			"inn":            contractor.INN,
			"ogrn":           contractor.OGRN,
			"country":        contractor.CountryID,
			"industry":       contractor.IndustryID,
			"org_form":       contractor.OrgFormID,
			"modify_date":    contractor.ModifyDate,
			"modify_user_id": contractor.ModifyUserID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SetInactive(ctx context.Context, id string, userID *string, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.Contractor{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":      false,
			"modify_date":    at,
			"modify_user_id": userID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func isNotFound(err error) bool {
	return dbpkg.IsNotFound(err)
}
