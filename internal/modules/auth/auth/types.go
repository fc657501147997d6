package auth

import (
	"errors"
	"strings"

	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/modules/history"
)

type LoginDTO struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterDTO struct {
	FullName string `json:"fullName" binding:"required,max=191"`
	Email    string `json:"email"    binding:"required,email,max=191"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type loginResponse struct {
	Token string            `json:"token"`
	User  *models.UserModel `json:"user"`
}

// Profile is the authenticated user's account plus their history totals.
type Profile struct {
	*models.UserModel
	Stats *history.Stats `json:"stats"`
}

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
