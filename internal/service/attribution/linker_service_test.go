// Package attribution 归因服务单元测试
package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

func setupAttributionTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Affiliate{},
		&models.Click{},
		&models.Conversion{},
	)
	require.NoError(t, err)

	return db
}

func newLinker(db *gorm.DB, retention time.Duration) *LinkerService {
	return NewLinkerService(
		repository.NewAffiliateRepository(db),
		repository.NewClickRepository(db),
		repository.NewConversionRepository(db),
		db, nil, retention,
	)
}

func seedApprovedAffiliate(t *testing.T, db *gorm.DB, userID int64, code string) *models.Affiliate {
	affiliate := &models.Affiliate{
		UserID: userID,
		Code:   code,
		Name:   "测试推广员",
		Level:  models.AffiliateLevelBronze,
		Status: models.AffiliateStatusApproved,
	}
	require.NoError(t, db.Create(affiliate).Error)
	return affiliate
}

func seedClick(t *testing.T, db *gorm.DB, affiliateID int64, ageDays int) *models.Click {
	click := &models.Click{AffiliateID: affiliateID, Source: "ads"}
	require.NoError(t, db.Create(click).Error)
	if ageDays > 0 {
		createdAt := time.Now().AddDate(0, 0, -ageDays)
		require.NoError(t, db.Model(click).Update("created_at", createdAt).Error)
		click.CreatedAt = createdAt
	}
	return click
}

func TestLinkerService_LinkSignup(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newLinker(db, 30*24*time.Hour)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	click := seedClick(t, db, affiliate.ID, 0)

	conversion, err := svc.LinkSignup(ctx, "ABCD2345", 100)
	require.NoError(t, err)
	require.NotNil(t, conversion)
	assert.Equal(t, affiliate.ID, conversion.AffiliateID)
	assert.Equal(t, int64(100), conversion.UserID)
	assert.Equal(t, click.ID, conversion.ClickID)
	assert.Equal(t, models.ConversionTypeSignup, conversion.Type)

	// 点击已被绑定并标记转化
	var bound models.Click
	require.NoError(t, db.First(&bound, click.ID).Error)
	require.NotNil(t, bound.UserID)
	assert.Equal(t, int64(100), *bound.UserID)
	assert.True(t, bound.Converted)
}

func TestLinkerService_LinkSignupPicksLatestClick(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newLinker(db, 30*24*time.Hour)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	seedClick(t, db, affiliate.ID, 5)
	latest := seedClick(t, db, affiliate.ID, 1)

	conversion, err := svc.LinkSignup(ctx, "ABCD2345", 100)
	require.NoError(t, err)
	require.NotNil(t, conversion)
	assert.Equal(t, latest.ID, conversion.ClickID)
}

func TestLinkerService_LinkSignupUnknownCode(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newLinker(db, 30*24*time.Hour)

	// 未知推广码静默忽略
	conversion, err := svc.LinkSignup(context.Background(), "NOPE2345", 100)
	assert.NoError(t, err)
	assert.Nil(t, conversion)
}

func TestLinkerService_LinkSignupNotApproved(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newLinker(db, 30*24*time.Hour)
	ctx := context.Background()

	affiliate := &models.Affiliate{
		UserID: 1,
		Code:   "ABCD2345",
		Name:   "测试推广员",
		Level:  models.AffiliateLevelBronze,
		Status: models.AffiliateStatusSuspended,
	}
	require.NoError(t, db.Create(affiliate).Error)
	seedClick(t, db, affiliate.ID, 0)

	conversion, err := svc.LinkSignup(ctx, "ABCD2345", 100)
	assert.NoError(t, err)
	assert.Nil(t, conversion)
}

func TestLinkerService_LinkSignupNoClick(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newLinker(db, 30*24*time.Hour)

	seedApprovedAffiliate(t, db, 1, "ABCD2345")

	conversion, err := svc.LinkSignup(context.Background(), "ABCD2345", 100)
	assert.NoError(t, err)
	assert.Nil(t, conversion)
}

func TestLinkerService_LinkSignupStaleClick(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newLinker(db, 30*24*time.Hour)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	seedClick(t, db, affiliate.ID, 31)

	// 超出保留期的点击不参与归因
	conversion, err := svc.LinkSignup(ctx, "ABCD2345", 100)
	assert.NoError(t, err)
	assert.Nil(t, conversion)
}

func TestLinkerService_LinkSignupAlreadyAttributed(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newLinker(db, 30*24*time.Hour)
	ctx := context.Background()

	first := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	second := seedApprovedAffiliate(t, db, 2, "EFGH2345")
	seedClick(t, db, first.ID, 0)
	seedClick(t, db, second.ID, 0)

	conversion, err := svc.LinkSignup(ctx, "ABCD2345", 100)
	require.NoError(t, err)
	require.NotNil(t, conversion)

	// 首次归因胜出：同一用户对其它推广码不再产生转化
	conversion, err = svc.LinkSignup(ctx, "EFGH2345", 100)
	assert.NoError(t, err)
	assert.Nil(t, conversion)

	var count int64
	db.Model(&models.Conversion{}).Where("user_id = ?", 100).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestLinkerService_LinkSignupClickAlreadyBound(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := newLinker(db, 30*24*time.Hour)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	click := seedClick(t, db, affiliate.ID, 0)

	// 点击已被其它注册请求抢先绑定
	require.NoError(t, db.Model(&models.Click{}).Where("id = ?", click.ID).
		Updates(map[string]interface{}{"user_id": 999, "converted": true}).Error)

	conversion, err := svc.LinkSignup(ctx, "ABCD2345", 100)
	assert.NoError(t, err)
	assert.Nil(t, conversion)
}

func TestTrackerService_RecordClick(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := NewTrackerService(
		repository.NewAffiliateRepository(db),
		repository.NewClickRepository(db),
	)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")

	// 点击不去重，每次点击独立记录
	id1, err := svc.RecordClick(ctx, "ABCD2345", "ads")
	require.NoError(t, err)
	id2, err := svc.RecordClick(ctx, "ABCD2345", "social")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	var count int64
	db.Model(&models.Click{}).Where("affiliate_id = ?", affiliate.ID).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestTrackerService_RecordClickUnknownCode(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := NewTrackerService(
		repository.NewAffiliateRepository(db),
		repository.NewClickRepository(db),
	)

	_, err := svc.RecordClick(context.Background(), "NOPE2345", "ads")
	assert.ErrorIs(t, err, apperrors.ErrUnknownAffiliateCode)
}

func TestTrackerService_RecordClickPendingAffiliate(t *testing.T) {
	db := setupAttributionTestDB(t)
	svc := NewTrackerService(
		repository.NewAffiliateRepository(db),
		repository.NewClickRepository(db),
	)

	affiliate := &models.Affiliate{
		UserID: 1,
		Code:   "ABCD2345",
		Name:   "测试推广员",
		Level:  models.AffiliateLevelBronze,
		Status: models.AffiliateStatusPending,
	}
	require.NoError(t, db.Create(affiliate).Error)

	// 未审核通过的推广码等同无效
	_, err := svc.RecordClick(context.Background(), "ABCD2345", "ads")
	assert.ErrorIs(t, err, apperrors.ErrUnknownAffiliateCode)
}
