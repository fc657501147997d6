package models

import "time"

// UserSession backs a signed JWT; revoking the row invalidates the token.
type UserSession struct {
	Base
	UserID    string     `json:"userId"    gorm:"type:char(36);index;not null"`
	IP        string     `json:"ip"`
	UA        string     `json:"ua"        gorm:"type:text"`
	ExpiresAt time.Time  `json:"expiresAt" gorm:"index;not null"`
	RevokedAt *time.Time `json:"revokedAt" gorm:"index"`
}

func (UserSession) TableName() string { return "user_sessions" }
