// Package auth registers accounts and issues session-bound tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/modules/history"
	sessionpkg "github.com/briefly-app/core/internal/pkg/session"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const defaultFailureDelay = 3 * time.Second

// StatsSource reports history totals for a user.
type StatsSource interface {
	Stats(ctx context.Context, userID string) (*history.Stats, error)
}

type Service struct {
	db             *gorm.DB
	stats          StatsSource
	defaultCredits int
	sessionTTL     time.Duration
	failureDelay   time.Duration
}

// NewService builds the auth service. New accounts start with defaultCredits.
func NewService(db *gorm.DB, stats StatsSource, defaultCredits int) *Service {
	return &Service{
		db:             db,
		stats:          stats,
		defaultCredits: defaultCredits,
		sessionTTL:     sessionpkg.DefaultTTL,
		failureDelay:   defaultFailureDelay,
	}
}

// Register creates a plain user account.
func (s *Service) Register(ctx context.Context, dto *RegisterDTO) (*models.UserModel, error) {
	return s.create(ctx, dto.FullName, dto.Email, dto.Password, models.RoleUser, s.defaultCredits)
}

func (s *Service) create(ctx context.Context, fullName, email, password, role string, credits int) (*models.UserModel, error) {
	email = normalizeEmail(email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := models.UserModel{
		Email:    email,
		FullName: strings.TrimSpace(fullName),
		Password: string(hash),
		Role:     role,
		Credits:  credits,
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &u, nil
}

// Login checks the password and issues a token bound to a new session.
func (s *Service) Login(ctx context.Context, email, password, ip, ua string) (string, *models.UserModel, error) {
	var u models.UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.delay(ctx)
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		s.delay(ctx)
		return "", nil, ErrInvalidCredentials
	}

	token, _, err := sessionpkg.Issue(ctx, s.db, u.ID, ip, ua, s.sessionTTL)
	if err != nil {
		return "", nil, err
	}
	return token, &u, nil
}

// Logout revokes the session behind the current token.
func (s *Service) Logout(ctx context.Context, userID, sessionID string) error {
	err := sessionpkg.Revoke(ctx, s.db, userID, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// Profile returns the user's account with their history totals.
func (s *Service) Profile(ctx context.Context, user *models.UserModel) (*Profile, error) {
	var fresh models.UserModel
	if err := s.db.WithContext(ctx).First(&fresh, "id = ?", user.ID).Error; err != nil {
		return nil, err
	}
	p := &Profile{UserModel: &fresh}
	if s.stats != nil {
		stats, err := s.stats.Stats(ctx, fresh.ID)
		if err != nil {
			return nil, fmt.Errorf("history stats: %w", err)
		}
		p.Stats = stats
	}
	return p, nil
}

// SeedAdmin creates an admin account for email unless one already exists.
// It reports whether an account was created.
func (s *Service) SeedAdmin(ctx context.Context, fullName, email, password string) (bool, error) {
	if normalizeEmail(email) == "" || password == "" {
		return false, errors.New("admin email and password are required")
	}
	if strings.TrimSpace(fullName) == "" {
		fullName = "Administrator"
	}
	_, err := s.create(ctx, fullName, email, password, models.RoleAdmin, 0)
	if errors.Is(err, ErrEmailTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) delay(ctx context.Context) {
	if s.failureDelay <= 0 {
		return
	}
	t := time.NewTimer(s.failureDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
