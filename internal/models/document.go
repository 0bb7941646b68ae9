package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRole string

const (
	DocumentRoleMother DocumentRole = "mother"
	DocumentRoleUser   DocumentRole = "user"
)

// ProjectTypes is the canonical set of upload categories shown by the
// client. The upload endpoint stores the value as free text, so rows with
// other values are possible and the browse endpoint matches whatever was
// stored.
var ProjectTypes = []string{
	"استوری اینستاگرام",
	"پست اینستاگرام",
	"پست لینکدین",
	"پرزنتیشن",
	"تقدیرنامه",
	"نامه اداری",
	"طرح تجاری",
	"پوستر",
	"بیزینس مدل",
}

// Document is one half of an uploaded pair: the editable mother source or
// the distributable user file. Rows are append-only and never updated, so
// it carries its own identity instead of BaseModel. The composite unique
// index backs the transactional pair-id allocation: a racing allocation
// for the same owner aborts instead of producing two pairs with one id.
type Document struct {
	ID          uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID    `json:"user_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_documents_owner_pair_role"`
	FileName    string       `json:"file_name" gorm:"type:varchar(255);not null"`
	FilePath    string       `json:"file_path" gorm:"type:text;not null"`
	StorageKey  string       `json:"-" gorm:"type:text;not null"`
	Role        DocumentRole `json:"role" gorm:"type:varchar(10);not null;uniqueIndex:idx_documents_owner_pair_role"`
	PairID      int          `json:"pair_id" gorm:"not null;uniqueIndex:idx_documents_owner_pair_role"`
	ProjectName string       `json:"project_name" gorm:"type:varchar(255);not null"`
	ProjectType string       `json:"project_type" gorm:"type:varchar(100);not null;index"`
	UploadedAt  time.Time    `json:"uploaded_at" gorm:"not null;index"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID"`
}

func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	return nil
}

func (Document) TableName() string {
	return "documents"
}
