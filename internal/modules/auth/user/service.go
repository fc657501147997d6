// Package user implements admin management of accounts: listing, role
// changes and credit adjustments.
package user

import (
	"context"
	"errors"
	"strings"

	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/modules/summarize"
	"github.com/briefly-app/core/internal/pkg/pagination"
	"github.com/briefly-app/core/internal/pkg/response"
	"gorm.io/gorm"
)

// CreditGranter adjusts a user's balance and returns the new value.
type CreditGranter interface {
	Grant(ctx context.Context, userID string, delta int) (int, error)
}

type Service struct {
	db     *gorm.DB
	credit CreditGranter
}

func NewService(db *gorm.DB, credit CreditGranter) *Service {
	return &Service{db: db, credit: credit}
}

// List pages through accounts, newest first. q.Search matches email or name.
func (s *Service) List(ctx context.Context, q pagination.Query) ([]models.UserModel, response.Pagination, error) {
	q = pagination.Normalize(q)
	tx := s.db.WithContext(ctx).Model(&models.UserModel{})
	if term := strings.TrimSpace(q.Search); term != "" {
		pattern := pagination.LikePattern(strings.ToLower(term))
		tx = tx.Where("(LOWER(email) LIKE ? ESCAPE '!' OR LOWER(full_name) LIKE ? ESCAPE '!')", pattern, pattern)
	}
	var users []models.UserModel
	total, err := pagination.Paginate(tx.Order("created_at DESC").Order("id"), q, &users)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	return users, q.Meta(total), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// SetRole changes the role of id. An admin may not drop their own admin role.
func (s *Service) SetRole(ctx context.Context, actor *models.UserModel, id, role string) (*models.UserModel, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	if actor != nil && actor.ID == id && role != models.RoleAdmin {
		return nil, ErrSelfDemotion
	}
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(u).Update("role", role).Error; err != nil {
		return nil, err
	}
	u.Role = role
	return u, nil
}

// AdjustCredits adds delta to the balance of id. The balance never drops
// below zero.
func (s *Service) AdjustCredits(ctx context.Context, id string, delta int) (*models.UserModel, error) {
	if _, err := s.credit.Grant(ctx, id, delta); err != nil {
		if errors.Is(err, summarize.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.GetByID(ctx, id)
}
