package user

import "errors"

type UpdateRoleDTO struct {
	Role string `json:"role" binding:"required"`
}

type AdjustCreditsDTO struct {
	Credits *int `json:"credits" binding:"required"`
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidRole  = errors.New("unknown role")
	ErrSelfDemotion = errors.New("admins cannot remove their own admin role")
)
