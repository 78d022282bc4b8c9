// Package repository 管理员仓储单元测试
package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/affiliate-engine-backend/internal/models"
)

func setupAdminTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Admin{})
	require.NoError(t, err)

	return db
}

func TestAdminRepository_Create(t *testing.T) {
	db := setupAdminTestDB(t)
	repo := NewAdminRepository(db)
	ctx := context.Background()

	admin := &models.Admin{
		Username:     "operator1",
		PasswordHash: "hashed",
		Name:         "运营一号",
		Role:         models.AdminRoleOperator,
		Status:       models.AdminStatusActive,
	}

	err := repo.Create(ctx, admin)
	require.NoError(t, err)
	assert.NotZero(t, admin.ID)
}

func TestAdminRepository_GetByUsername(t *testing.T) {
	db := setupAdminTestDB(t)
	repo := NewAdminRepository(db)
	ctx := context.Background()

	db.Create(&models.Admin{
		Username:     "operator1",
		PasswordHash: "hashed",
		Name:         "运营一号",
		Role:         models.AdminRoleOperator,
		Status:       models.AdminStatusActive,
	})

	found, err := repo.GetByUsername(ctx, "operator1")
	require.NoError(t, err)
	assert.Equal(t, "运营一号", found.Name)

	_, err = repo.GetByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAdminRepository_UpdateLoginInfo(t *testing.T) {
	db := setupAdminTestDB(t)
	repo := NewAdminRepository(db)
	ctx := context.Background()

	admin := &models.Admin{
		Username:     "operator1",
		PasswordHash: "hashed",
		Name:         "运营一号",
		Role:         models.AdminRoleOperator,
		Status:       models.AdminStatusActive,
	}
	db.Create(admin)

	err := repo.UpdateLoginInfo(ctx, admin.ID, "10.0.0.1")
	require.NoError(t, err)

	found, err := repo.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.NotNil(t, found.LastLoginAt)
	require.NotNil(t, found.LastLoginIP)
	assert.Equal(t, "10.0.0.1", *found.LastLoginIP)
}

func TestAdminRepository_ExistsByUsername(t *testing.T) {
	db := setupAdminTestDB(t)
	repo := NewAdminRepository(db)
	ctx := context.Background()

	db.Create(&models.Admin{
		Username:     "operator1",
		PasswordHash: "hashed",
		Name:         "运营一号",
		Role:         models.AdminRoleOperator,
		Status:       models.AdminStatusActive,
	})

	exists, err := repo.ExistsByUsername(ctx, "operator1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}
