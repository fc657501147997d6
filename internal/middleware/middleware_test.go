package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/briefly-app/core/internal/database"
	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/pkg/redis"
	sessionpkg "github.com/briefly-app/core/internal/pkg/session"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() { gin.SetMode(gin.TestMode) }

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "mw.db"), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", NormalizeToken("  Bearer abc "))
	assert.Equal(t, "abc", NormalizeToken("bearer abc"))
	assert.Equal(t, "abc", NormalizeToken("abc"))
	assert.Equal(t, "", NormalizeToken("   "))
}

func TestAuthAndRequireRole(t *testing.T) {
	db := newDB(t)
	user := &models.UserModel{Email: "a@example.com", Password: "x", Role: models.RoleUser}
	admin := &models.UserModel{Email: "b@example.com", Password: "x", Role: models.RoleAdmin}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(admin).Error)

	userToken, _, err := sessionpkg.Issue(context.Background(), db, user.ID, "", "", time.Hour)
	require.NoError(t, err)
	adminToken, _, err := sessionpkg.Issue(context.Background(), db, admin.ID, "", "", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", Auth(db), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Email)
	})
	r.GET("/admin", Auth(db), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do("/me", "garbage").Code)

	w := do("/me", userToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@example.com", w.Body.String())

	assert.Equal(t, http.StatusForbidden, do("/admin", userToken).Code)
	assert.Equal(t, http.StatusNoContent, do("/admin", adminToken).Code)

	var reloaded models.UserModel
	require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
	assert.NotNil(t, reloaded.LastActiveAt)
}

func TestRateLimit(t *testing.T) {
	rdb := newRedis(t)
	r := gin.New()
	r.POST("/x", RateLimit(rdb, "test", 2, zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", http.NoBody))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitDisabled(t *testing.T) {
	r := gin.New()
	r.POST("/x", RateLimit(nil, "test", 1, zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", http.NoBody))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestIdempotence(t *testing.T) {
	rdb := newRedis(t)
	calls := 0
	r := gin.New()
	r.POST("/x", Idempotence(rdb, "test", zap.NewNop()), func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/x", http.NoBody)
		if key != "" {
			req.Header.Set(IdempotenceHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("k1"))
	assert.Equal(t, http.StatusConflict, send("k1"))
	assert.Equal(t, http.StatusOK, send("k2"))
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, 4, calls)
}

func TestIdempotenceReleasesOnFailure(t *testing.T) {
	rdb := newRedis(t)
	fail := true
	r := gin.New()
	r.POST("/x", Idempotence(rdb, "test", zap.NewNop()), func(c *gin.Context) {
		if fail {
			c.Status(http.StatusBadGateway)
			return
		}
		c.Status(http.StatusOK)
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/x", http.NoBody)
		req.Header.Set(IdempotenceHeader, "same")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusBadGateway, send())
	fail = false
	assert.Equal(t, http.StatusOK, send())
}
