package models

import (
	"strings"
	"time"
)

// Role names understood by the authorization middleware.
const (
	RoleAdmin    = "admin"
	RoleEditor   = "editor"
	RoleReviewer = "reviewer"
	RoleUser     = "user"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleAdmin, RoleEditor, RoleReviewer, RoleUser:
		return true
	}
	return false
}

// UserModel is an account that can request summaries. Credits is only
// decremented for non-privileged roles and is never negative.
type UserModel struct {
	Base
	Email        string     `json:"email"        gorm:"type:varchar(191);uniqueIndex;not null"`
	FullName     string     `json:"fullName"     gorm:"type:varchar(191)"`
	Password     string     `json:"-"            gorm:"not null"`
	Role         string     `json:"role"         gorm:"type:varchar(32);index;not null;default:'user'"`
	Credits      int        `json:"credits"      gorm:"not null;default:0"`
	LastActiveAt *time.Time `json:"lastActiveAt"`
}

func (UserModel) TableName() string { return "users" }
