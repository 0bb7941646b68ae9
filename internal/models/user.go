package models

import "time"

type User struct {
	BaseModel
	FirstName         string     `json:"first_name" gorm:"type:varchar(100);not null"`
	LastName          string     `json:"last_name" gorm:"type:varchar(100);not null"`
	Username          string     `json:"username" gorm:"type:varchar(100);uniqueIndex;not null"`
	Email             *string    `json:"email,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	PhoneNumber       string     `json:"phone_number" gorm:"type:varchar(11);uniqueIndex;not null"`
	PasswordHash      string     `json:"-" gorm:"type:text;not null"`
	ProfilePictureURL *string    `json:"profile_picture_url,omitempty" gorm:"type:text"`
	IsOnline          bool       `json:"is_online" gorm:"not null;default:false"`
	IsFirstLogin      bool       `json:"is_first_login" gorm:"not null;default:true"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	Documents         []Document `json:"-" gorm:"foreignKey:UserID"`
}
