package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/briefly-app/core/internal/database"
	"github.com/briefly-app/core/internal/models"
	jwtpkg "github.com/briefly-app/core/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestIssueAndRevoke(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	jwtpkg.SetSecret("session-test")

	token, s, err := Issue(ctx, db, "user-1", "127.0.0.1", "go-test", time.Hour)
	require.NoError(t, err)

	claims, err := jwtpkg.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claims.SessionID)

	active, err := IsActive(ctx, db, "user-1", s.ID)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = IsActive(ctx, db, "user-2", s.ID)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, Revoke(ctx, db, "user-1", s.ID))
	active, err = IsActive(ctx, db, "user-1", s.ID)
	require.NoError(t, err)
	assert.False(t, active)

	assert.ErrorIs(t, Revoke(ctx, db, "user-1", s.ID), gorm.ErrRecordNotFound)
}

func TestIsActiveRequiresSessionID(t *testing.T) {
	db := openTestDB(t)
	active, err := IsActive(context.Background(), db, "user-1", "")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestPurgeExpired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.UserSession{UserID: "u", ExpiresAt: time.Now().Add(-48 * time.Hour)}).Error)
	require.NoError(t, db.Create(&models.UserSession{UserID: "u", ExpiresAt: time.Now().Add(time.Hour)}).Error)

	n, err := PurgeExpired(ctx, db, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left int64
	require.NoError(t, db.Model(&models.UserSession{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)
}
