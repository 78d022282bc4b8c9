// Package repository 转化仓储单元测试
package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/affiliate-engine-backend/internal/models"
)

func setupConversionTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Conversion{}, &models.Commission{})
	require.NoError(t, err)

	return db
}

func TestConversionRepository_Create(t *testing.T) {
	db := setupConversionTestDB(t)
	repo := NewConversionRepository(db)
	ctx := context.Background()

	conversion := &models.Conversion{
		AffiliateID: 1,
		UserID:      200,
		ClickID:     10,
		Type:        models.ConversionTypeSignup,
	}

	err := repo.Create(ctx, conversion)
	require.NoError(t, err)
	assert.NotZero(t, conversion.ID)

	// user_id 唯一约束：同一用户不可二次归因
	err = repo.Create(ctx, &models.Conversion{
		AffiliateID: 2,
		UserID:      200,
		ClickID:     11,
		Type:        models.ConversionTypeSignup,
	})
	assert.Error(t, err)
}

func TestConversionRepository_GetByUserID(t *testing.T) {
	db := setupConversionTestDB(t)
	repo := NewConversionRepository(db)
	ctx := context.Background()

	db.Create(&models.Conversion{AffiliateID: 1, UserID: 200, ClickID: 10, Type: models.ConversionTypeSignup})

	found, err := repo.GetByUserID(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.AffiliateID)

	_, err = repo.GetByUserID(ctx, 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestConversionRepository_ExistsByUserID(t *testing.T) {
	db := setupConversionTestDB(t)
	repo := NewConversionRepository(db)
	ctx := context.Background()

	db.Create(&models.Conversion{AffiliateID: 1, UserID: 200, ClickID: 10, Type: models.ConversionTypeSignup})

	exists, err := repo.ExistsByUserID(ctx, 200)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByUserID(ctx, 999)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConversionRepository_ListExpiredWithoutCommission(t *testing.T) {
	db := setupConversionTestDB(t)
	repo := NewConversionRepository(db)
	ctx := context.Background()

	// 窗口外且无佣金：应被列出
	stale := &models.Conversion{AffiliateID: 1, UserID: 200, ClickID: 10, Type: models.ConversionTypeSignup}
	db.Create(stale)
	db.Model(stale).Update("created_at", time.Now().AddDate(0, 0, -100))

	// 窗口外但已有佣金：不列出
	settled := &models.Conversion{AffiliateID: 1, UserID: 201, ClickID: 11, Type: models.ConversionTypeSignup}
	db.Create(settled)
	db.Model(settled).Update("created_at", time.Now().AddDate(0, 0, -100))
	db.Create(&models.Commission{
		AffiliateID: 1, UserID: 201,
		Type: models.ConversionTypeAuthorRegistration, ReferenceID: "reg-1",
		BasePrice: 19.99, Rate: 25, Amount: 5.00,
		Status: models.CommissionStatusConfirmed,
	})

	// 窗口内：不列出
	db.Create(&models.Conversion{AffiliateID: 1, UserID: 202, ClickID: 12, Type: models.ConversionTypeSignup})

	deadline := time.Now().AddDate(0, 0, -90)
	list, err := repo.ListExpiredWithoutCommission(ctx, deadline, 100)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(200), list[0].UserID)
}
