package models

import "time"

// Contractor is the business entity whose every write produces an outbox
// notification. Lookup names are resolved elsewhere and only travel in the
// JSON snapshot.
type Contractor struct {
	ID           string     `gorm:"column:id;primaryKey" json:"id" validate:"required,max=12"`
	ParentID     *string    `gorm:"column:parent_id" json:"parentId"`
	Name         string     `gorm:"column:name;not null" json:"name" validate:"required,max=255"`
	NameFull     *string    `gorm:"column:name_full" json:"nameFull"`
	INN          *string    `gorm:"column:inn" json:"inn" validate:"omitempty,numeric,max=12"`
	OGRN         *string    `gorm:"column:ogrn" json:"ogrn" validate:"omitempty,numeric,max=15"`
	CountryID    *string    `gorm:"column:country" json:"countryId"`
	IndustryID   *int       `gorm:"column:industry" json:"industryId"`
	OrgFormID    *int       `gorm:"column:org_form" json:"orgFormId"`
	CreateDate   time.Time  `gorm:"column:create_date;not null" json:"createDate"`
	ModifyDate   *time.Time `gorm:"column:modify_date" json:"modifyDate"`
	CreateUserID *string    `gorm:"column:create_user_id" json:"createUserId"`
	ModifyUserID *string    `gorm:"column:modify_user_id" json:"modifyUserId"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true" json:"isActive"`

	CountryName  *string `gorm:"-" json:"countryName"`
	IndustryName *string `gorm:"-" json:"industryName"`
	OrgFormName  *string `gorm:"-" json:"orgFormName"`
}

func (Contractor) TableName() string { return "contractor" }
