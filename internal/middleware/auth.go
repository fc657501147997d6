package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/pkg/jwt"
	"github.com/briefly-app/core/internal/pkg/response"
	sessionpkg "github.com/briefly-app/core/internal/pkg/session"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	ContextKeyUser = "user"
	ContextKeySID  = "session_id"
)

// lastActiveGranularity limits how often LastActiveAt is written per user.
const lastActiveGranularity = time.Minute

// Auth returns a middleware that requires a valid JWT bound to an active
// session and stores the resolved *models.UserModel in the context.
func Auth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ValidateTokenClaims(c, db, extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}

		var user models.UserModel
		if err := db.WithContext(c.Request.Context()).First(&user, "id = ?", claims.UserID).Error; err != nil {
			response.Unauthorized(c)
			return
		}
		touchLastActive(c, db, &user)

		c.Set(ContextKeyUser, &user)
		c.Set(ContextKeySID, claims.SessionID)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated user has one of roles.
// It must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(r)] = struct{}{}
	}
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Unauthorized(c)
			return
		}
		if _, ok := allowed[strings.ToLower(user.Role)]; !ok {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

// ValidateTokenClaims parses the JWT and checks that its session is live.
func ValidateTokenClaims(c *gin.Context, db *gorm.DB, rawToken string) (*jwt.Claims, error) {
	token := NormalizeToken(rawToken)
	if token == "" {
		return nil, errors.New("token is required")
	}

	claims, err := jwt.Parse(token)
	if err != nil {
		return nil, err
	}
	active, err := sessionpkg.IsActive(c.Request.Context(), db, claims.UserID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errors.New("session expired or revoked")
	}
	return claims, nil
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *models.UserModel {
	v, ok := c.Get(ContextKeyUser)
	if !ok {
		return nil
	}
	user, _ := v.(*models.UserModel)
	return user
}

// CurrentUserID returns the authenticated user's id, or "".
func CurrentUserID(c *gin.Context) string {
	if user := CurrentUser(c); user != nil {
		return user.ID
	}
	return ""
}

// CurrentSessionID extracts the authenticated session ID from context.
func CurrentSessionID(c *gin.Context) string {
	v, _ := c.Get(ContextKeySID)
	id, _ := v.(string)
	return id
}

func touchLastActive(c *gin.Context, db *gorm.DB, user *models.UserModel) {
	now := time.Now()
	if user.LastActiveAt != nil && now.Sub(*user.LastActiveAt) < lastActiveGranularity {
		return
	}
	// UpdateColumn skips hooks and updated_at; failures are irrelevant to the request.
	_ = db.WithContext(c.Request.Context()).Model(&models.UserModel{}).
		Where("id = ?", user.ID).
		UpdateColumn("last_active_at", now).Error
	user.LastActiveAt = &now
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	if raw, err := c.Cookie("briefly_token"); err == nil {
		return NormalizeToken(raw)
	}
	return ""
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
