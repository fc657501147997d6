package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/briefly-app/core/internal/models"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned by the ledger for unknown users.
var ErrUserNotFound = errors.New("user not found")

// Ledger debits one credit per billed summarization.
type Ledger interface {
	TryDebit(ctx context.Context, userID, role string) error
}

// CreditLedger keeps balances in the users table. The debit is a single
// conditional UPDATE, so concurrent requests can never drive a balance
// below zero.
type CreditLedger struct {
	db         *gorm.DB
	privileged map[string]struct{}
}

// NewCreditLedger builds a ledger exempting the given roles from debits.
func NewCreditLedger(db *gorm.DB, privilegedRoles []string) *CreditLedger {
	set := make(map[string]struct{}, len(privilegedRoles))
	for _, role := range privilegedRoles {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}
	return &CreditLedger{db: db, privileged: set}
}

// IsPrivileged reports whether role skips the debit.
func (l *CreditLedger) IsPrivileged(role string) bool {
	_, ok := l.privileged[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// TryDebit takes one credit from userID. Privileged roles are not charged.
func (l *CreditLedger) TryDebit(ctx context.Context, userID, role string) error {
	if l.IsPrivileged(role) {
		return nil
	}
	res := l.db.WithContext(ctx).
		Model(&models.UserModel{}).
		Where("id = ? AND credits > 0", userID).
		UpdateColumn("credits", gorm.Expr("credits - 1"))
	if res.Error != nil {
		return fmt.Errorf("debit credit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return l.explainNoDebit(ctx, userID)
	}
	return nil
}

// explainNoDebit tells an empty balance apart from a user that is gone.
func (l *CreditLedger) explainNoDebit(ctx context.Context, userID string) error {
	var n int64
	if err := l.db.WithContext(ctx).Model(&models.UserModel{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return fmt.Errorf("debit credit: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return ErrInsufficientCredits
}

// Balance returns the current credit balance of userID.
func (l *CreditLedger) Balance(ctx context.Context, userID string) (int, error) {
	var user models.UserModel
	err := l.db.WithContext(ctx).Select("credits").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return user.Credits, nil
}

// Grant adds delta (which may be negative) to the balance of userID,
// flooring the result at zero, and returns the new balance.
func (l *CreditLedger) Grant(ctx context.Context, userID string, delta int) (int, error) {
	res := l.db.WithContext(ctx).
		Model(&models.UserModel{}).
		Where("id = ?", userID).
		UpdateColumn("credits", gorm.Expr("CASE WHEN credits + ? < 0 THEN 0 ELSE credits + ? END", delta, delta))
	if res.Error != nil {
		return 0, fmt.Errorf("grant credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrUserNotFound
	}
	return l.Balance(ctx, userID)
}
